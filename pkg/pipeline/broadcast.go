package pipeline

import "github.com/wike-chi/live-audio-pipeline/pkg/broadcast"

// TranscriptBroadcaster fans a session's delta/final/level/status/error
// frames out to every attached WS/SSE client (§4.6).
type TranscriptBroadcaster = broadcast.Broadcaster[TranscriptEvent]

// NewTranscriptBroadcaster wires the unified stream envelope to the
// slow-subscriber policy §4.6 specifies: drop level ticks first, then
// buffered deltas, and never drop a final transcript or a status/error
// frame.
func NewTranscriptBroadcaster() *TranscriptBroadcaster {
	return broadcast.NewBroadcaster[TranscriptEvent](transcriptDropPolicy, slowSubscriberEvent)
}

// slowSubscriberEvent is forced into a subscriber's ring just before it is
// dropped for falling too far behind (§8 scenario 4).
func slowSubscriberEvent() TranscriptEvent {
	return TranscriptEvent{Kind: KindError, Reason: "subscriber_slow", Fatal: false}
}

func transcriptDropPolicy(buffered []TranscriptEvent, incoming TranscriptEvent) int {
	defer defaultMetrics.recordDroppedEvent(string(incoming.Kind))
	for i, e := range buffered {
		if e.Kind == KindLevel {
			return i
		}
	}
	for i, e := range buffered {
		if e.Kind == KindDelta {
			return i
		}
	}
	return -1
}
