package pipeline

import (
	"context"
	"io"
)

// Recognizer is the pluggable speech-to-text capability (§2.2, §4.4).
// Implementations must be safe to call concurrently from worker goroutines;
// any internal model state is guarded by the implementation's own mutex.
type Recognizer interface {
	Transcribe(ctx context.Context, pcm16leMono16k []byte) (RecognizeResult, error)
	Name() string
}

// RecognizeResult is a Recognizer's output for one Segment.
type RecognizeResult struct {
	Text       string
	Confidence float64
}

// RoomInfo is what a RoomResolver produces for a roomRef (§2.3).
type RoomInfo struct {
	RoomID     string
	MediaURL   string
	AnchorName string

	// ChatHeaders carries whatever headers/cookies the chat-channel
	// connection needs (§6, §9 Open Questions: derivation is opaque).
	ChatHeaders map[string]string
	ChatToken   string
}

// RoomResolver turns an operator-supplied URL or room ID into a playable
// media URL and a room identity (§2.3).
type RoomResolver interface {
	Resolve(ctx context.Context, roomRef string) (RoomInfo, error)
}

// MediaPuller owns the external process (or in-process decoder) that turns
// a resolved media URL into a continuous PCM16LE mono 16kHz byte stream
// (§2.4, §4.1).
type MediaPuller interface {
	Open(ctx context.Context, mediaURL string) (stdout io.Reader, cancel func(), err error)
}

// VADProvider is the pluggable voice-activity gate (§2.5, §4.3, GLOSSARY).
// Process consumes one fixed-size AudioFrame and returns a completed
// Segment when a Hangover->Idle transition (or forced flush) occurs; it
// returns (nil, nil) while still accumulating. A new instance is built per
// session via a VADFactory rather than shared, since its internal state
// (speech/silence accumulators, prebuffer) is not safe to reuse across
// concurrent sessions.
type VADProvider interface {
	Process(frame AudioFrame) (*Segment, error)
	Reset()
	Name() string
}

// VADFactory builds a fresh VADProvider bound to one session's thresholds
// (§4.3's fast/stable profile defaults, overridden per §6's start request).
type VADFactory func(cfg SessionConfig) VADProvider
