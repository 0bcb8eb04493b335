package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wike-chi/live-audio-pipeline/pkg/pipeline"
)

// AssemblyAIRecognizer implements the upload -> submit -> poll flow
// against AssemblyAI's async transcription API, grounded on the
// teacher's AssemblyAISTT.
type AssemblyAIRecognizer struct {
	apiKey    string
	baseURL   string
	client    *http.Client
	pollEvery time.Duration
}

func NewAssemblyAIRecognizer(apiKey string) *AssemblyAIRecognizer {
	return &AssemblyAIRecognizer{
		apiKey:    apiKey,
		baseURL:   "https://api.assemblyai.com",
		client:    http.DefaultClient,
		pollEvery: 500 * time.Millisecond,
	}
}

// overrideBaseURL points the recognizer at a different host; used by
// tests to substitute an httptest.Server for the real API.
func (r *AssemblyAIRecognizer) overrideBaseURL(baseURL string) {
	r.baseURL = baseURL
}

func (r *AssemblyAIRecognizer) Name() string { return "assemblyai" }

func (r *AssemblyAIRecognizer) Transcribe(ctx context.Context, pcm []byte) (pipeline.RecognizeResult, error) {
	uploadURL, err := r.upload(ctx, pcm)
	if err != nil {
		return pipeline.RecognizeResult{}, err
	}

	transcriptID, err := r.submit(ctx, uploadURL)
	if err != nil {
		return pipeline.RecognizeResult{}, err
	}

	for {
		select {
		case <-ctx.Done():
			return pipeline.RecognizeResult{}, ctx.Err()
		case <-time.After(r.pollEvery):
			text, confidence, status, err := r.getTranscript(ctx, transcriptID)
			if err != nil {
				return pipeline.RecognizeResult{}, err
			}
			switch status {
			case "completed":
				return pipeline.RecognizeResult{Text: text, Confidence: confidence}, nil
			case "error":
				return pipeline.RecognizeResult{}, fmt.Errorf("assemblyai: transcription failed")
			}
		}
	}
}

func (r *AssemblyAIRecognizer) upload(ctx context.Context, pcm []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v2/upload", bytes.NewReader(pcm))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.UploadURL, nil
}

func (r *AssemblyAIRecognizer) submit(ctx context.Context, uploadURL string) (string, error) {
	payload := map[string]interface{}{"audio_url": uploadURL}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.ID, nil
}

func (r *AssemblyAIRecognizer) getTranscript(ctx context.Context, id string) (text string, confidence float64, status string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/v2/transcript/"+id, nil)
	if err != nil {
		return "", 0, "", err
	}
	req.Header.Set("Authorization", r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", 0, "", err
	}
	defer resp.Body.Close()

	var result struct {
		Status     string  `json:"status"`
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, "", err
	}
	return result.Text, result.Confidence, result.Status, nil
}
