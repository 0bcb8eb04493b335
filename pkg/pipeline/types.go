package pipeline

import (
	"sync"
	"time"
)

// EventKind distinguishes the frames carried on the transcript/level
// broadcaster (§4.6, §6 WS envelope).
type EventKind string

const (
	KindDelta  EventKind = "delta"
	KindFinal  EventKind = "final"
	KindLevel  EventKind = "level"
	KindStatus EventKind = "status"
	KindError  EventKind = "error"
)

// TranscriptEvent is the single envelope carried on the transcript/level
// broadcaster (§4.6): a delta or final transcription, a level tick, or a
// status/error frame, distinguished by Kind. Sharing one envelope type
// lets the broadcaster's drop policy compare events of different kinds
// against each other in the same per-subscriber ring.
type TranscriptEvent struct {
	Kind       EventKind `json:"kind"`
	Text       string    `json:"text,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	SegStart   int64     `json:"segStart,omitempty"`
	SegEnd     int64     `json:"segEnd,omitempty"`
	SessionID  string    `json:"sessionID"`

	// RMS/Peak/T are populated for Kind == KindLevel.
	RMS  float64 `json:"rms,omitempty"`
	Peak float64 `json:"peak,omitempty"`
	T    int64   `json:"t,omitempty"`

	// Stage/Reason/Fatal are populated for status and error frames.
	Stage   string `json:"stage,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Fatal   bool   `json:"fatal,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
}

// LevelEvent is the lossy UI audio-meter tick the chunker computes per
// frame (§3), emitted at <=10Hz and converted to a TranscriptEvent with
// Kind == KindLevel before reaching the broadcaster.
type LevelEvent struct {
	RMS       float64 `json:"rms"`
	Peak      float64 `json:"peak"`
	T         int64   `json:"t"`
	SessionID string  `json:"sessionID"`
}

// AsTranscriptEvent converts a LevelEvent into the broadcaster's unified
// envelope.
func (l LevelEvent) AsTranscriptEvent() TranscriptEvent {
	return TranscriptEvent{
		Kind:      KindLevel,
		SessionID: l.SessionID,
		RMS:       l.RMS,
		Peak:      l.Peak,
		T:         l.T,
	}
}

// AudioFrame is one fixed-size PCM chunk produced by the chunker (§3).
type AudioFrame struct {
	PCM []byte
	T0  int64 // monotonic nanoseconds
}

// Segment is one utterance bounded by detected silences (§3), the unit the
// recognizer worker pool consumes exactly once.
type Segment struct {
	ID          string
	PCM         []byte
	T0          int64
	DurationSec float64
	MeanRMS     float64
	Seq         uint64
}

// Stats holds the rolling counters exposed by Status() (§3, supplemented by
// SPEC_FULL's latency addition).
type Stats struct {
	ChunksIn              int64
	SegmentsEmitted       int64
	Transcripts           int64
	SuccessfulTranscripts int64
	FailedTranscripts     int64
	DroppedFrames         int64
	AvgConfidence         float64
	confidenceSum         float64
	confidenceSamples     int64

	// AvgRecognitionLatencyMs is the rolling mean of time-from-segment-
	// emitted to transcript-delivered, covering queueing plus the
	// Recognizer call itself.
	AvgRecognitionLatencyMs float64
	latencySumMs            float64
	latencySamples          int64
}

// Session is the mutable runtime state of the one active pipeline (§3). It
// is exclusively owned by the PipelineSupervisor; readers take a read lock
// via snapshot.
type Session struct {
	mu sync.RWMutex

	Config     SessionConfig
	StartedAt  time.Time
	RoomID     string
	MediaURL   string
	AnchorName string
	LastError  string

	stats Stats
}

// SessionSnapshot is the read-only copy returned by Status() (§4.8).
type SessionSnapshot struct {
	SessionID  string    `json:"sessionID"`
	RoomID     string    `json:"roomID"`
	AnchorName string    `json:"anchorName"`
	StartedAt  time.Time `json:"startedAt"`
	Profile    Profile   `json:"profile"`
	IsRunning  bool      `json:"isRunning"`
	LastError  string    `json:"lastError,omitempty"`
	Stats      Stats     `json:"stats"`
}

func newSession(cfg SessionConfig) *Session {
	return &Session{
		Config:    cfg,
		StartedAt: time.Now(),
	}
}

func (s *Session) incChunksIn() {
	s.mu.Lock()
	s.stats.ChunksIn++
	s.mu.Unlock()
}

func (s *Session) incDroppedFrames(n int64) {
	s.mu.Lock()
	s.stats.DroppedFrames += n
	s.mu.Unlock()
}

func (s *Session) incSegmentsEmitted() {
	s.mu.Lock()
	s.stats.SegmentsEmitted++
	s.mu.Unlock()
}

func (s *Session) recordRecognitionLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.latencySumMs += float64(d.Milliseconds())
	s.stats.latencySamples++
	s.stats.AvgRecognitionLatencyMs = s.stats.latencySumMs / float64(s.stats.latencySamples)
}

func (s *Session) recordTranscript(confidence float64, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Transcripts++
	if success {
		s.stats.SuccessfulTranscripts++
		s.stats.confidenceSum += confidence
		s.stats.confidenceSamples++
		if s.stats.confidenceSamples > 0 {
			s.stats.AvgConfidence = s.stats.confidenceSum / float64(s.stats.confidenceSamples)
		}
	} else {
		s.stats.FailedTranscripts++
	}
}

func (s *Session) setLastError(msg string) {
	s.mu.Lock()
	s.LastError = msg
	s.mu.Unlock()
}

func (s *Session) snapshot(running bool) SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionSnapshot{
		SessionID:  s.Config.SessionID,
		RoomID:     s.RoomID,
		AnchorName: s.AnchorName,
		StartedAt:  s.StartedAt,
		Profile:    s.Config.Profile,
		IsRunning:  running,
		LastError:  s.LastError,
		Stats:      s.stats,
	}
}
