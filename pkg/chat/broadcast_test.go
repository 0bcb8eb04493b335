package chat

import "testing"

func TestChatDropPolicyEvictsUnprotectedFirst(t *testing.T) {
	buffered := []Event{
		{Type: EventStatus},
		{Type: EventChat},
		{Type: EventRoomControl},
	}
	idx := chatDropPolicy(buffered, Event{Type: EventGift})
	if idx != 1 {
		t.Fatalf("expected to evict the chat event at index 1, got %d", idx)
	}
}

func TestChatDropPolicyNeverEvictsProtected(t *testing.T) {
	buffered := []Event{
		{Type: EventStatus},
		{Type: EventError},
		{Type: EventRoomControl},
	}
	if idx := chatDropPolicy(buffered, Event{Type: EventLike}); idx != -1 {
		t.Fatalf("expected no eviction candidate, got %d", idx)
	}
}

func TestNewEventBroadcasterWiring(t *testing.T) {
	b := NewEventBroadcaster()
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	b.Publish(newEvent(EventChat, map[string]string{"user": "alice"}))
	got := <-sub.Events
	if got.Payload["user"] != "alice" {
		t.Fatalf("expected alice, got %+v", got.Payload)
	}
}
