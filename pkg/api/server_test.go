package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/wike-chi/live-audio-pipeline/pkg/pipeline"
)

type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, roomRef string) (pipeline.RoomInfo, error) {
	return pipeline.RoomInfo{RoomID: "room-42", MediaURL: "http://example/stream", AnchorName: "anchor"}, nil
}

type fakePuller struct{}

func (fakePuller) Open(ctx context.Context, mediaURL string) (io.Reader, func(), error) {
	r := &blockingReader{unblock: make(chan struct{})}
	var once sync.Once
	// Like killing a real transcoder, cancel makes the pending Read return.
	return r, func() { once.Do(func() { close(r.unblock) }) }, nil
}

type blockingReader struct {
	unblock chan struct{}
}

func (b *blockingReader) Read(p []byte) (int, error) {
	<-b.unblock
	return 0, io.EOF
}

type fakeVAD struct{}

func (fakeVAD) Process(frame pipeline.AudioFrame) (*pipeline.Segment, error) { return nil, nil }
func (fakeVAD) Reset()                                                      {}
func (fakeVAD) Name() string                                                { return "fake" }

type fakeRecognizer struct{}

func (fakeRecognizer) Name() string { return "fake" }
func (fakeRecognizer) Transcribe(ctx context.Context, pcm []byte) (pipeline.RecognizeResult, error) {
	return pipeline.RecognizeResult{Text: "hi", Confidence: 1}, nil
}

func newTestServer() (*Server, *pipeline.PipelineSupervisor) {
	sup := pipeline.NewPipelineSupervisor(pipeline.Dependencies{
		RoomResolver: fakeResolver{},
		MediaPuller:  fakePuller{},
		VADFactory:   func(cfg pipeline.SessionConfig) pipeline.VADProvider { return fakeVAD{} },
		Recognizer:   fakeRecognizer{},
	})
	return NewServer(sup, nil), sup
}

func TestHandleStartRejectsEmptyBody(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/live_audio/start", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	s.handleStart(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleStartThenStatusThenStop(t *testing.T) {
	s, sup := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/live_audio/start", strings.NewReader(`{"live_url":"room-1","profile":"fast"}`))
	w := httptest.NewRecorder()
	s.handleStart(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp apiResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success response, got %+v", resp)
	}

	if !sup.Status().IsRunning {
		t.Fatal("expected a running session after start")
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/api/live_audio/status", nil)
	statusW := httptest.NewRecorder()
	s.handleStatus(statusW, statusReq)
	if statusW.Code != http.StatusOK {
		t.Fatalf("expected 200 from status, got %d", statusW.Code)
	}

	stopReq := httptest.NewRequest(http.MethodPost, "/api/live_audio/stop", nil)
	stopW := httptest.NewRecorder()
	s.handleStop(stopW, stopReq)
	if stopW.Code != http.StatusOK {
		t.Fatalf("expected 200 from stop, got %d", stopW.Code)
	}
}

func TestHandleStartConflictWhenAlreadyRunning(t *testing.T) {
	s, _ := newTestServer()

	first := httptest.NewRequest(http.MethodPost, "/api/live_audio/start", strings.NewReader(`{"live_url":"room-1"}`))
	s.handleStart(httptest.NewRecorder(), first)

	second := httptest.NewRequest(http.MethodPost, "/api/live_audio/start", strings.NewReader(`{"live_url":"room-2"}`))
	w := httptest.NewRecorder()
	s.handleStart(w, second)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestHandleDouyinStartRequiresLiveID(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/douyin/web/start", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	s.handleDouyinStart(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleDouyinStatusMapsSnapshot(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/douyin/web/start", strings.NewReader(`{"live_id":"room-1"}`))
	s.handleDouyinStart(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	s.handleDouyinStatus(w, httptest.NewRequest(http.MethodGet, "/api/douyin/web/status", nil))

	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["is_running"] != true {
		t.Fatalf("expected is_running true, got %+v", body)
	}
	if body["room_id"] != "room-42" {
		t.Fatalf("expected room_id room-42, got %+v", body)
	}
}

func TestHandleWSStreamsTranscriptEnvelope(t *testing.T) {
	s, sup := newTestServer()

	startReq := httptest.NewRequest(http.MethodPost, "/api/live_audio/start", strings.NewReader(`{"live_url":"room-1"}`))
	s.handleStart(httptest.NewRecorder(), startReq)

	mux := http.NewServeMux()
	s.Routes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live_audio/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Stopping the session publishes a "stopped" status frame right before
	// closing the broadcaster, which is what unblocks the read below.
	go func() { _ = sup.Stop(context.Background()) }()

	var env wsEnvelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	if env.Type == "" {
		t.Fatal("expected a non-empty envelope type")
	}
}

func TestHandleChatStreamWritesSSEFrames(t *testing.T) {
	s, sup := newTestServer()

	startReq := httptest.NewRequest(http.MethodPost, "/api/live_audio/start", strings.NewReader(`{"live_url":"room-1"}`))
	s.handleStart(httptest.NewRecorder(), startReq)

	mux := http.NewServeMux()
	s.Routes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/douyin/web/stream")
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Fatalf("expected SSE content type, got %q", resp.Header.Get("Content-Type"))
	}

	_ = sup.Stop(context.Background())
}
