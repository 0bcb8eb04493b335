package vad

import (
	"github.com/wike-chi/live-audio-pipeline/pkg/pipeline"
)

// sileroEngine is the narrow inference surface SileroGate depends on. The
// real ONNX Runtime implementation lives behind the "onnx" build tag
// (silero_engine_onnx.go); silero_engine_stub.go supplies a deterministic
// fallback so this package builds without the onnxruntime_go shared
// library present, exactly as nupi-ai-plugin-vad-local-silero ships a
// StubEngine alongside its real one.
type sileroEngine interface {
	Infer(pcm []byte) (speechProb float64, err error)
	Reset()
	Close() error
}

// SileroGate is an alternate VADProvider backed by a neural voice-activity
// model (Silero VAD) instead of the RMS+hangover heuristic, satisfying
// GLOSSARY's "a pluggable variant is permitted". It reuses the same
// Idle/Speech/Hangover segmenter as RMSGate; only the per-frame
// voiced/silent decision differs.
type SileroGate struct {
	threshold float64
	engine    sileroEngine
	seg       *segmenter
}

// SileroGateFactory returns a pipeline.VADFactory that builds a fresh
// SileroGate per session. If the inference engine fails to initialize
// (e.g. the onnxruntime shared library is missing), it logs a warning and
// falls back to the deterministic stub engine rather than failing the
// whole session over an optional neural-VAD dependency.
func SileroGateFactory(logger pipeline.Logger) pipeline.VADFactory {
	if logger == nil {
		logger = &pipeline.NoOpLogger{}
	}
	return func(cfg pipeline.SessionConfig) pipeline.VADProvider {
		g, err := NewSileroGate(cfg.VADMinRMS, cfg.VADMinSilenceSec, cfg.VADMinSpeechSec, cfg.VADHangoverSec)
		if err != nil {
			logger.Warn("vad: silero engine init failed, falling back to stub", "error", err)
			return &SileroGate{
				threshold: cfg.VADMinRMS,
				engine:    newStubSileroEngine(),
				seg: newSegmenter(thresholds{
					minSilenceSec: cfg.VADMinSilenceSec,
					minSpeechSec:  cfg.VADMinSpeechSec,
					hangoverSec:   cfg.VADHangoverSec,
				}),
			}
		}
		return g
	}
}

// NewSileroGate builds a gate around a freshly constructed inference
// engine (real or stub, depending on build tags).
func NewSileroGate(threshold, minSilenceSec, minSpeechSec, hangoverSec float64) (*SileroGate, error) {
	eng, err := newSileroEngine()
	if err != nil {
		return nil, err
	}
	return &SileroGate{
		threshold: threshold,
		engine:    eng,
		seg: newSegmenter(thresholds{
			minSilenceSec: minSilenceSec,
			minSpeechSec:  minSpeechSec,
			hangoverSec:   hangoverSec,
		}),
	}, nil
}

func (g *SileroGate) Process(frame pipeline.AudioFrame) (*pipeline.Segment, error) {
	prob, err := g.engine.Infer(frame.PCM)
	if err != nil {
		return nil, err
	}
	voiced := prob >= g.threshold
	return g.seg.observe(frame, voiced, prob), nil
}

func (g *SileroGate) Reset() {
	g.engine.Reset()
	g.seg.reset()
}

func (g *SileroGate) Name() string {
	return "silero_gate"
}

func (g *SileroGate) Close() error {
	return g.engine.Close()
}
