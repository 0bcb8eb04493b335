// Package recognizer implements pipeline.Recognizer against several cloud
// speech-to-text providers plus a local in-process engine. Adapted from
// the teacher's pkg/providers/stt package: same per-provider HTTP shapes,
// generalized to the fixed 16kHz mono PCM contract the VAD gate produces
// and to pipeline.RecognizeResult instead of a bare string.
package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/wike-chi/live-audio-pipeline/pkg/media"
	"github.com/wike-chi/live-audio-pipeline/pkg/pipeline"
)

const sampleRateHz = 16000

// GroqRecognizer calls Groq's OpenAI-compatible Whisper transcription
// endpoint. Grounded on the teacher's GroqSTT.
type GroqRecognizer struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

func NewGroqRecognizer(apiKey, model string) *GroqRecognizer {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &GroqRecognizer{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/audio/transcriptions",
		model:  model,
		client: http.DefaultClient,
	}
}

func (r *GroqRecognizer) Name() string { return "groq" }

func (r *GroqRecognizer) Transcribe(ctx context.Context, pcm []byte) (pipeline.RecognizeResult, error) {
	wavData := media.NewWavBuffer(pcm, sampleRateHz)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", r.model); err != nil {
		return pipeline.RecognizeResult{}, err
	}
	part, err := writer.CreateFormFile("file", "segment.wav")
	if err != nil {
		return pipeline.RecognizeResult{}, err
	}
	if _, err := io.Copy(part, bytes.NewReader(wavData)); err != nil {
		return pipeline.RecognizeResult{}, err
	}
	if err := writer.Close(); err != nil {
		return pipeline.RecognizeResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, body)
	if err != nil {
		return pipeline.RecognizeResult{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return pipeline.RecognizeResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return pipeline.RecognizeResult{}, fmt.Errorf("groq: status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pipeline.RecognizeResult{}, err
	}

	return pipeline.RecognizeResult{Text: result.Text, Confidence: 1.0}, nil
}
