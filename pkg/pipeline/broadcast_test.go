package pipeline

import "testing"

func TestTranscriptDropPolicyPrefersLevelEvents(t *testing.T) {
	buffered := []TranscriptEvent{
		{Kind: KindDelta, Text: "partial"},
		{Kind: KindLevel, RMS: 0.1},
		{Kind: KindFinal, Text: "done"},
	}
	idx := transcriptDropPolicy(buffered, TranscriptEvent{Kind: KindLevel})
	if idx != 1 {
		t.Fatalf("expected to evict the level event at index 1, got %d", idx)
	}
}

func TestTranscriptDropPolicyFallsBackToDelta(t *testing.T) {
	buffered := []TranscriptEvent{
		{Kind: KindFinal, Text: "done"},
		{Kind: KindDelta, Text: "partial"},
	}
	idx := transcriptDropPolicy(buffered, TranscriptEvent{Kind: KindDelta})
	if idx != 1 {
		t.Fatalf("expected to evict the delta event at index 1, got %d", idx)
	}
}

func TestTranscriptDropPolicyNeverEvictsFinalOrStatus(t *testing.T) {
	buffered := []TranscriptEvent{
		{Kind: KindFinal, Text: "done"},
		{Kind: KindStatus, Stage: "reconnecting"},
		{Kind: KindError, Reason: "boom"},
	}
	if idx := transcriptDropPolicy(buffered, TranscriptEvent{Kind: KindLevel}); idx != -1 {
		t.Fatalf("expected no eviction candidate, got %d", idx)
	}
}

func TestNewTranscriptBroadcasterWiring(t *testing.T) {
	b := NewTranscriptBroadcaster()
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	b.Publish(TranscriptEvent{Kind: KindFinal, Text: "hello"})
	got := <-sub.Events
	if got.Text != "hello" {
		t.Fatalf("expected hello, got %q", got.Text)
	}
}
