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

// OpenAIRecognizer calls OpenAI's /v1/audio/transcriptions endpoint.
// Grounded on the teacher's OpenAISTT.
type OpenAIRecognizer struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

func NewOpenAIRecognizer(apiKey, model string) *OpenAIRecognizer {
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAIRecognizer{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/audio/transcriptions",
		model:  model,
		client: http.DefaultClient,
	}
}

func (r *OpenAIRecognizer) Name() string { return "openai" }

func (r *OpenAIRecognizer) Transcribe(ctx context.Context, pcm []byte) (pipeline.RecognizeResult, error) {
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
	if _, err := part.Write(wavData); err != nil {
		return pipeline.RecognizeResult{}, err
	}
	writer.Close()

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
		respBody, _ := io.ReadAll(resp.Body)
		return pipeline.RecognizeResult{}, fmt.Errorf("openai: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pipeline.RecognizeResult{}, err
	}

	return pipeline.RecognizeResult{Text: result.Text, Confidence: 1.0}, nil
}
