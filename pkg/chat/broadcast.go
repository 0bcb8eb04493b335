package chat

import "github.com/wike-chi/live-audio-pipeline/pkg/broadcast"

// EventBroadcaster fans a room's normalized chat events out to every
// attached WS/SSE client (§4.7).
type EventBroadcaster = broadcast.Broadcaster[Event]

// NewEventBroadcaster wires the chat stream to the slow-subscriber
// policy §4.7 specifies: status, error and room_control frames are
// never dropped; everything else (chat messages, gifts, likes, and the
// rest of the high-volume room chatter) may be evicted oldest-first.
func NewEventBroadcaster() *EventBroadcaster {
	return broadcast.NewBroadcaster[Event](chatDropPolicy, slowSubscriberEvent)
}

// slowSubscriberEvent is forced into a subscriber's ring just before it is
// dropped for falling too far behind (§8 scenario 4).
func slowSubscriberEvent() Event {
	return errorEvent("subscriber_slow")
}

func chatDropPolicy(buffered []Event, incoming Event) int {
	for i, e := range buffered {
		if !protectedEvent(e.Type) {
			return i
		}
	}
	return -1
}

func protectedEvent(t EventType) bool {
	return t == EventStatus || t == EventError || t == EventRoomControl
}
