// Package api implements the HTTP/JSON control surface and the WS/SSE
// streaming endpoints of §6, on top of one PipelineSupervisor.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/wike-chi/live-audio-pipeline/pkg/pipeline"
)

// subscriberWriteDeadline bounds a single subscriber send (§5): the writer
// drops the subscriber rather than block the serving goroutine on a
// connection that is alive but not draining.
const subscriberWriteDeadline = 2 * time.Second

// Server wires net/http handlers onto a single PipelineSupervisor.
type Server struct {
	sup    *pipeline.PipelineSupervisor
	logger pipeline.Logger
}

// NewServer builds a Server around an existing supervisor.
func NewServer(sup *pipeline.PipelineSupervisor, logger pipeline.Logger) *Server {
	if logger == nil {
		logger = &pipeline.NoOpLogger{}
	}
	return &Server{sup: sup, logger: logger}
}

// Routes registers every §6 endpoint onto mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/live_audio/start", s.handleStart)
	mux.HandleFunc("/api/live_audio/stop", s.handleStop)
	mux.HandleFunc("/api/live_audio/status", s.handleStatus)
	mux.HandleFunc("/api/live_audio/ws", s.handleWS)

	mux.HandleFunc("/api/douyin/web/start", s.handleDouyinStart)
	mux.HandleFunc("/api/douyin/web/stop", s.handleStop)
	mux.HandleFunc("/api/douyin/web/status", s.handleDouyinStatus)
	mux.HandleFunc("/api/douyin/web/stream", s.handleChatStream)
}

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	b, err := sonic.Marshal(body)
	if err != nil {
		return
	}
	w.Write(b)
}

// startRequestBody mirrors the §6 start-endpoint field table.
type startRequestBody struct {
	LiveURL          string  `json:"live_url"`
	SessionID        string  `json:"session_id"`
	ChunkDuration    float64 `json:"chunk_duration"`
	Profile          string  `json:"profile"`
	VADMinSilenceSec float64 `json:"vad_min_silence_sec"`
	VADMinSpeechSec  float64 `json:"vad_min_speech_sec"`
	VADHangoverSec   float64 `json:"vad_hangover_sec"`
	VADRMS           float64 `json:"vad_rms"`
	MaxWaitSec       float64 `json:"max_wait"`
	MaxChars         int     `json:"max_chars"`
	SilenceFlushSec  float64 `json:"silence_flush"`
	MinSentenceChars int     `json:"min_sentence_chars"`
	PersistEnabled   bool    `json:"persist_enabled"`
	PersistRoot      string  `json:"persist_root"`
}

func (b startRequestBody) toStartRequest() pipeline.StartRequest {
	profile := pipeline.Profile(b.Profile)
	return pipeline.StartRequest{
		RoomRef:   b.LiveURL,
		SessionID: b.SessionID,
		Profile:   profile,
		Overrides: pipeline.SessionConfig{
			ChunkSeconds:     b.ChunkDuration,
			VADMinSilenceSec: b.VADMinSilenceSec,
			VADMinSpeechSec:  b.VADMinSpeechSec,
			VADHangoverSec:   b.VADHangoverSec,
			VADMinRMS:        b.VADRMS,
			MaxWait:          time.Duration(b.MaxWaitSec * float64(time.Second)),
			MaxChars:         b.MaxChars,
			SilenceFlush:     time.Duration(b.SilenceFlushSec * float64(time.Second)),
			MinSentenceChars: b.MinSentenceChars,
			PersistEnabled:   b.PersistEnabled,
			PersistRoot:      b.PersistRoot,
		},
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiResponse{Error: "method not allowed"})
		return
	}

	var body startRequestBody
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "invalid request body"})
		return
	}
	if body.LiveURL == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "live_url is required"})
		return
	}
	if body.Profile == "" {
		body.Profile = string(pipeline.ProfileFast)
	}

	result, err := s.sup.Start(r.Context(), body.toStartRequest())
	if err != nil {
		s.writeStartError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: map[string]interface{}{
		"sessionID": result.SessionID,
		"roomID":    result.RoomID,
		"startedAt": result.StartedAt,
	}})
}

// writeStartError maps a Start failure onto the §6 status-code table:
// 409 already running, 400 invalid config, 502 resolve/media failure.
func (s *Server) writeStartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, apiResponse{Error: err.Error()})
	case errors.Is(err, pipeline.ErrConfigInvalid):
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusBadGateway, apiResponse{Error: err.Error()})
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiResponse{Error: "method not allowed"})
		return
	}
	_ = s.sup.Stop(r.Context())
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: s.sup.Status()})
}

// handleDouyinStart adapts the douyin-flavored {live_id} body onto the
// same Start operation, since both API surfaces front one supervisor.
func (s *Server) handleDouyinStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiResponse{Error: "method not allowed"})
		return
	}
	var body struct {
		LiveID string `json:"live_id"`
	}
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&body); err != nil || body.LiveID == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "live_id is required"})
		return
	}

	_, err := s.sup.Start(r.Context(), pipeline.StartRequest{RoomRef: body.LiveID, Profile: pipeline.ProfileFast})
	if err != nil {
		s.writeStartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (s *Server) handleDouyinStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.sup.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"is_running": snap.IsRunning,
		"live_id":    snap.RoomID,
		"room_id":    snap.RoomID,
		"last_error": snap.LastError,
	})
}

// wsEnvelope is the §6 WS message shape: {type, data}.
type wsEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func transcriptEventType(kind pipeline.EventKind) string {
	switch kind {
	case pipeline.KindFinal:
		return "transcription"
	case pipeline.KindDelta:
		return "transcription_delta"
	case pipeline.KindLevel:
		return "level"
	case pipeline.KindError:
		return "error"
	default:
		return "status"
	}
}

// handleWS streams TranscriptEvents and level ticks over one
// long-lived connection (§6, §4.6).
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sub, err := s.sup.SubscribeTranscript()
	if err != nil {
		wsjson.Write(r.Context(), conn, wsEnvelope{Type: "error", Data: map[string]string{"reason": err.Error()}})
		return
	}
	defer sub.Unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			envelope := wsEnvelope{Type: transcriptEventType(event.Kind), Data: event}
			writeCtx, cancel := context.WithTimeout(ctx, subscriberWriteDeadline)
			err := wsjson.Write(writeCtx, conn, envelope)
			cancel()
			if err != nil {
				sub.Unsubscribe()
				return
			}
		}
	}
}

// handleChatStream streams normalized chat Events as SSE (§6, §4.7).
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := s.sup.SubscribeChat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	rc := http.NewResponseController(w)
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			b, err := sonic.Marshal(event)
			if err != nil {
				continue
			}
			_ = rc.SetWriteDeadline(time.Now().Add(subscriberWriteDeadline))
			if _, err := w.Write([]byte("data: ")); err != nil {
				sub.Unsubscribe()
				return
			}
			if _, err := w.Write(b); err != nil {
				sub.Unsubscribe()
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				sub.Unsubscribe()
				return
			}
			flusher.Flush()
		}
	}
}
