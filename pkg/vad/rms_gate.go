package vad

import (
	"math"

	"github.com/wike-chi/live-audio-pipeline/pkg/pipeline"
)

// RMSGate is the default voice-activity detector: a root-mean-square
// energy threshold plus hangover, exactly the heuristic named in
// spec.md's GLOSSARY ("VAD ... an RMS+hangover heuristic, not a neural
// model"). Adapted from the teacher's RMSVAD (pkg/orchestrator/vad.go in
// the source pack) into the Idle/Speech/Hangover segment-emitting shape
// spec.md §4.3 requires, instead of the teacher's bare speech-start/
// speech-end event stream.
type RMSGate struct {
	minRMS float64
	seg    *segmenter
}

// NewRMSGate builds a gate from the four §4.3 thresholds (seconds for
// silence/speech/hangover durations, a normalized [0,1] RMS threshold).
func NewRMSGate(minRMS, minSilenceSec, minSpeechSec, hangoverSec float64) *RMSGate {
	return &RMSGate{
		minRMS: minRMS,
		seg: newSegmenter(thresholds{
			minSilenceSec: minSilenceSec,
			minSpeechSec:  minSpeechSec,
			hangoverSec:   hangoverSec,
		}),
	}
}

// NewRMSGateFromConfig builds a gate from a pipeline.SessionConfig.
func NewRMSGateFromConfig(cfg pipeline.SessionConfig) *RMSGate {
	return NewRMSGate(cfg.VADMinRMS, cfg.VADMinSilenceSec, cfg.VADMinSpeechSec, cfg.VADHangoverSec)
}

// RMSGateFactory is a pipeline.VADFactory that builds a fresh RMSGate per
// session from that session's VAD thresholds.
func RMSGateFactory(cfg pipeline.SessionConfig) pipeline.VADProvider {
	return NewRMSGateFromConfig(cfg)
}

func (g *RMSGate) Process(frame pipeline.AudioFrame) (*pipeline.Segment, error) {
	rms := calculateRMS(frame.PCM)
	// Tie-break: a frame exactly equal to minRMS counts as voiced (§4.3).
	voiced := rms >= g.minRMS
	return g.seg.observe(frame, voiced, rms), nil
}

func (g *RMSGate) Reset() {
	g.seg.reset()
}

func (g *RMSGate) Name() string {
	return "rms_gate"
}

func calculateRMS(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	var sum float64
	n := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | (int16(pcm[i+1]) << 8)
		f := float64(sample) / 32768.0
		sum += f * f
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}
