//go:build onnx

package vad

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Adapted from nupi-ai-plugin-vad-local-silero's internal/engine/silero.go:
// same tensor shapes and state carry-forward, but the model is loaded from
// a path on disk (SILERO_VAD_MODEL_PATH) rather than embedded, so this
// module never ships a binary model blob.
const (
	sileroWindowSize = 512
	sileroStateSize  = 128
	sileroSampleRate = 16000
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

type onnxSileroEngine struct {
	session *ort.AdvancedSession

	inputTensor *ort.Tensor[float32]
	stateTensor *ort.Tensor[float32]
	srTensor    *ort.Tensor[int64]

	outputTensor *ort.Tensor[float32]
	stateNTensor *ort.Tensor[float32]

	pcmBuf []float32
}

func newSileroEngine() (sileroEngine, error) {
	modelPath := os.Getenv("SILERO_VAD_MODEL_PATH")
	if modelPath == "" {
		return nil, fmt.Errorf("silero: SILERO_VAD_MODEL_PATH not set")
	}

	ortInitOnce.Do(func() {
		if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIB"); libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("silero: %w", ortInitErr)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, sileroWindowSize))
	if err != nil {
		return nil, fmt.Errorf("silero: create input tensor: %w", err)
	}
	stateTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("silero: create state tensor: %w", err)
	}
	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(sileroSampleRate)})
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		return nil, fmt.Errorf("silero: create sr tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		return nil, fmt.Errorf("silero: create output tensor: %w", err)
	}
	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("silero: create stateN tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{inputTensor, stateTensor, srTensor},
		[]ort.Value{outputTensor, stateNTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		stateNTensor.Destroy()
		return nil, fmt.Errorf("silero: create session: %w", err)
	}

	return &onnxSileroEngine{
		session:      session,
		inputTensor:  inputTensor,
		stateTensor:  stateTensor,
		srTensor:     srTensor,
		outputTensor: outputTensor,
		stateNTensor: stateNTensor,
		pcmBuf:       make([]float32, 0, sileroWindowSize*2),
	}, nil
}

// Infer buffers pcm until a full 512-sample window is available and
// returns the most recent window's speech probability. Partial windows
// carry over to the next call.
func (e *onnxSileroEngine) Infer(pcm []byte) (float64, error) {
	samples := pcmToFloat32(pcm)
	e.pcmBuf = append(e.pcmBuf, samples...)

	var last float64
	for len(e.pcmBuf) >= sileroWindowSize {
		prob, err := e.infer(e.pcmBuf[:sileroWindowSize])
		if err != nil {
			return 0, err
		}
		e.pcmBuf = e.pcmBuf[sileroWindowSize:]
		last = float64(prob)
	}
	return last, nil
}

func (e *onnxSileroEngine) infer(window []float32) (float32, error) {
	copy(e.inputTensor.GetData(), window)

	if err := e.session.Run(); err != nil {
		return 0, fmt.Errorf("silero: inference: %w", err)
	}

	prob := e.outputTensor.GetData()[0]
	copy(e.stateTensor.GetData(), e.stateNTensor.GetData())

	return prob, nil
}

func (e *onnxSileroEngine) Reset() {
	clearFloat32Slice(e.stateTensor.GetData())
	e.pcmBuf = e.pcmBuf[:0]
}

func (e *onnxSileroEngine) Close() error {
	e.session.Destroy()
	e.inputTensor.Destroy()
	e.stateTensor.Destroy()
	e.srTensor.Destroy()
	e.outputTensor.Destroy()
	e.stateNTensor.Destroy()
	return nil
}

func pcmToFloat32(buf []byte) []float32 {
	n := len(buf) / 2
	if n == 0 {
		return nil
	}
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		u := uint16(buf[2*i]) | uint16(buf[2*i+1])<<8
		samples[i] = float32(int16(u)) / 32768.0
	}
	return samples
}

func clearFloat32Slice(s []float32) {
	for i := range s {
		s[i] = 0
	}
}

func newStubSileroEngine() sileroEngine {
	// Kept for SileroGateFactory's fallback path even in onnx builds, to
	// avoid duplicating error handling at every call site.
	return &onnxStubFallback{}
}

type onnxStubFallback struct{}

func (onnxStubFallback) Infer(pcm []byte) (float64, error) { return 0, nil }
func (onnxStubFallback) Reset()                            {}
func (onnxStubFallback) Close() error                       { return nil }
