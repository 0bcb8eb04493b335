package recognizer

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/volcengine/volcengine-go-sdk/volcengine/credentials"

	"github.com/wike-chi/live-audio-pipeline/pkg/pipeline"
)

// VolcRecognizer streams a segment to Volcengine's realtime ASR gateway
// over one short-lived websocket connection per call. The wire shape
// (session.update / input_audio_buffer.append / session.finish, keyed by
// a per-event uuid) and the dial/send/receive split are grounded on
// asr-eval's qwen-client.go; that file talks to a different vendor over
// the same realtime-ASR wire pattern, which is why the event names below
// are Volc's rather than Qwen's. The access key ID is read from
// volcengine-go-sdk's credentials.Credentials and sent as the
// X-Api-Access-Key header; the request is not signed and the secret key is
// not sent.
type VolcRecognizer struct {
	appID  string
	token  string
	url    string
	creds  *credentials.Credentials
	dialer *websocket.Dialer
}

func NewVolcRecognizer(appID, accessKey, secretKey, token string) *VolcRecognizer {
	return &VolcRecognizer{
		appID:  appID,
		token:  token,
		url:    "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel",
		creds:  credentials.NewStaticCredentials(accessKey, secretKey, ""),
		dialer: websocket.DefaultDialer,
	}
}

func (r *VolcRecognizer) Name() string { return "volc" }

type volcSessionUpdate struct {
	EventID string        `json:"event_id"`
	Type    string        `json:"type"`
	Session volcSessionCfg `json:"session"`
}

type volcSessionCfg struct {
	Modalities       []string `json:"modalities"`
	InputAudioFormat string   `json:"input_audio_format"`
	SampleRate       int      `json:"sample_rate"`
}

type volcAudioAppend struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Audio   string `json:"audio"`
}

type volcSessionFinish struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
}

type volcServerEvent struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r *VolcRecognizer) Transcribe(ctx context.Context, pcm []byte) (pipeline.RecognizeResult, error) {
	val, err := r.creds.Get()
	if err != nil {
		return pipeline.RecognizeResult{}, fmt.Errorf("volc: credentials: %w", err)
	}

	headers := http.Header{}
	headers.Set("X-Api-App-Key", r.appID)
	headers.Set("X-Api-Access-Key", val.AccessKeyID)
	headers.Set("X-Api-Resource-Id", "volc.bigasr.sauc.duration")
	if r.token != "" {
		headers.Set("X-Api-App-Token", r.token)
	}

	conn, resp, err := r.dialer.DialContext(ctx, r.url, headers)
	if err != nil {
		if resp != nil {
			return pipeline.RecognizeResult{}, fmt.Errorf("volc: dial: %w (status %s)", err, resp.Status)
		}
		return pipeline.RecognizeResult{}, fmt.Errorf("volc: dial: %w", err)
	}
	defer conn.Close()

	update := volcSessionUpdate{
		EventID: uuid.NewString(),
		Type:    "session.update",
		Session: volcSessionCfg{
			Modalities:       []string{"text"},
			InputAudioFormat: "pcm",
			SampleRate:       sampleRateHz,
		},
	}
	updateBytes, err := sonic.Marshal(update)
	if err != nil {
		return pipeline.RecognizeResult{}, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, updateBytes); err != nil {
		return pipeline.RecognizeResult{}, fmt.Errorf("volc: send session.update: %w", err)
	}

	audioAppend := volcAudioAppend{
		EventID: uuid.NewString(),
		Type:    "input_audio_buffer.append",
		Audio:   base64.StdEncoding.EncodeToString(pcm),
	}
	appendBytes, err := sonic.Marshal(audioAppend)
	if err != nil {
		return pipeline.RecognizeResult{}, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, appendBytes); err != nil {
		return pipeline.RecognizeResult{}, fmt.Errorf("volc: send audio: %w", err)
	}

	finish := volcSessionFinish{EventID: uuid.NewString(), Type: "session.finish"}
	finishBytes, err := sonic.Marshal(finish)
	if err != nil {
		return pipeline.RecognizeResult{}, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, finishBytes); err != nil {
		return pipeline.RecognizeResult{}, fmt.Errorf("volc: send session.finish: %w", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	conn.SetReadDeadline(deadline)

	var lastText string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if lastText != "" {
				return pipeline.RecognizeResult{Text: lastText, Confidence: 1.0}, nil
			}
			return pipeline.RecognizeResult{}, fmt.Errorf("volc: read: %w", err)
		}

		var event volcServerEvent
		if err := sonic.Unmarshal(msg, &event); err != nil {
			continue
		}

		switch event.Type {
		case "error":
			errMsg := "unknown error"
			if event.Error != nil {
				errMsg = fmt.Sprintf("%s - %s", event.Error.Code, event.Error.Message)
			}
			return pipeline.RecognizeResult{}, fmt.Errorf("volc: server error: %s", errMsg)
		case "conversation.item.input_audio_transcription.completed":
			if event.Transcript != "" {
				return pipeline.RecognizeResult{Text: event.Transcript, Confidence: 1.0}, nil
			}
		case "session.finished":
			return pipeline.RecognizeResult{Text: lastText, Confidence: 1.0}, nil
		default:
			if event.Text != "" {
				lastText = event.Text
			}
		}
	}
}
