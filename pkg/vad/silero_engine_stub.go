//go:build !onnx

package vad

// This file backs SileroGate when built without the "onnx" tag (the
// onnxruntime_go shared library is a runtime dependency that is not
// always available, e.g. in CI). It mirrors
// nupi-ai-plugin-vad-local-silero's StubEngine: deterministic, no real
// inference, so the rest of the pipeline can be built and tested without
// the ONNX Runtime shared library installed.

func newSileroEngine() (sileroEngine, error) {
	return newStubSileroEngine(), nil
}

func newStubSileroEngine() sileroEngine {
	return &stubSileroEngine{}
}

type stubSileroEngine struct {
	counter  int
	speaking bool
}

const stubToggleInterval = 50

func (e *stubSileroEngine) Infer(pcm []byte) (float64, error) {
	e.counter++
	if e.counter >= stubToggleInterval {
		e.counter = 0
		e.speaking = !e.speaking
	}
	if e.speaking {
		return 0.9, nil
	}
	return 0.05, nil
}

func (e *stubSileroEngine) Reset() {
	e.counter = 0
	e.speaking = false
}

func (e *stubSileroEngine) Close() error { return nil }
