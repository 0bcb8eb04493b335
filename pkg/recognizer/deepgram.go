package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/wike-chi/live-audio-pipeline/pkg/pipeline"
)

// DeepgramRecognizer streams raw PCM to Deepgram's prerecorded /v1/listen
// endpoint. Grounded on the teacher's DeepgramSTT; the sample rate, sent in
// the Content-Type header, is fixed at 16kHz instead of the teacher's
// hardcoded 44100 since
// every segment here already arrives at the VAD gate's native rate.
type DeepgramRecognizer struct {
	apiKey string
	url    string
	client *http.Client
}

func NewDeepgramRecognizer(apiKey string) *DeepgramRecognizer {
	return &DeepgramRecognizer{
		apiKey: apiKey,
		url:    "https://api.deepgram.com/v1/listen",
		client: http.DefaultClient,
	}
}

func (r *DeepgramRecognizer) Name() string { return "deepgram" }

func (r *DeepgramRecognizer) Transcribe(ctx context.Context, pcm []byte) (pipeline.RecognizeResult, error) {
	u, err := url.Parse(r.url)
	if err != nil {
		return pipeline.RecognizeResult{}, err
	}

	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(pcm))
	if err != nil {
		return pipeline.RecognizeResult{}, err
	}
	req.Header.Set("Authorization", "Token "+r.apiKey)
	req.Header.Set("Content-Type", fmt.Sprintf("audio/l16; rate=%d; channels=1", sampleRateHz))

	resp, err := r.client.Do(req)
	if err != nil {
		return pipeline.RecognizeResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return pipeline.RecognizeResult{}, fmt.Errorf("deepgram: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string  `json:"transcript"`
					Confidence float64 `json:"confidence"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pipeline.RecognizeResult{}, err
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return pipeline.RecognizeResult{}, nil
	}
	alt := result.Results.Channels[0].Alternatives[0]
	return pipeline.RecognizeResult{Text: alt.Transcript, Confidence: alt.Confidence}, nil
}
