package recognizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/wike-chi/live-audio-pipeline/pkg/pipeline"
)

// WhisperCppRecognizer runs transcription in-process against a whisper.cpp
// model loaded via CGO bindings, avoiding network round-trips entirely.
// Grounded on glyphoxa's NativeProvider (pkg/provider/stt/whisper/native.go):
// same model-loaded-once/context-per-call shape, collapsed from glyphoxa's
// own silence-buffered streaming session into a single Transcribe call
// since segmentation already happened upstream in the VAD gate.
type WhisperCppRecognizer struct {
	model    whisperlib.Model
	language string

	// whisper.cpp contexts are not safe for concurrent use; serialize calls
	// against the shared model the same way glyphoxa creates a fresh
	// context per inference but guards model access.
	mu sync.Mutex
}

// NewWhisperCppRecognizer loads a ggml model from modelPath once and
// shares it across every Transcribe call. Close must be called when the
// recognizer is no longer needed.
func NewWhisperCppRecognizer(modelPath, language string) (*WhisperCppRecognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whispercpp: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model %q: %w", modelPath, err)
	}
	if language == "" {
		language = "en"
	}
	return &WhisperCppRecognizer{model: model, language: language}, nil
}

func (r *WhisperCppRecognizer) Name() string { return "whispercpp" }

func (r *WhisperCppRecognizer) Transcribe(ctx context.Context, pcm []byte) (pipeline.RecognizeResult, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.RecognizeResult{}, err
	}

	samples := pcmToFloat32(pcm)

	r.mu.Lock()
	defer r.mu.Unlock()

	wctx, err := r.model.NewContext()
	if err != nil {
		return pipeline.RecognizeResult{}, fmt.Errorf("whispercpp: create context: %w", err)
	}
	if err := wctx.SetLanguage(r.language); err != nil {
		return pipeline.RecognizeResult{}, fmt.Errorf("whispercpp: set language: %w", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return pipeline.RecognizeResult{}, fmt.Errorf("whispercpp: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return pipeline.RecognizeResult{}, fmt.Errorf("whispercpp: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return pipeline.RecognizeResult{Text: strings.Join(parts, " "), Confidence: 1.0}, nil
}

func (r *WhisperCppRecognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// pcmToFloat32 converts 16-bit signed little-endian mono PCM to float32
// samples normalized to [-1.0, 1.0].
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		u := uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8
		samples[i] = float32(int16(u)) / 32768.0
	}
	return samples
}
