package broadcast

import (
	"testing"
	"time"
)

func neverDrop(buffered []int, incoming int) int { return -1 }

func dropOldest(buffered []int, incoming int) int {
	if len(buffered) == 0 {
		return -1
	}
	return 0
}

func TestBroadcasterDeliversInOrder(t *testing.T) {
	b := NewBroadcaster[int](neverDrop, nil)
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	for i := 0; i < 5; i++ {
		b.Publish(i)
	}

	for i := 0; i < 5; i++ {
		select {
		case got := <-sub.Events:
			if got != i {
				t.Fatalf("expected %d, got %d", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster[int](neverDrop, nil)
	subA := b.Subscribe()
	subB := b.Subscribe()
	defer subA.Unsubscribe()
	defer subB.Unsubscribe()

	b.Publish(42)

	for _, sub := range []Subscription[int]{subA, subB} {
		select {
		case got := <-sub.Events:
			if got != 42 {
				t.Fatalf("expected 42, got %d", got)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out event")
		}
	}

	if n := b.SubscriberCount(); n != 2 {
		t.Fatalf("expected 2 subscribers, got %d", n)
	}
}

func TestBroadcasterDropPolicyEvictsOldest(t *testing.T) {
	b := NewBroadcaster[int](dropOldest, nil)
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	// Fill the ring without draining, then push one more to trigger the
	// drop policy.
	for i := 0; i < ringCapacity+1; i++ {
		b.Publish(i)
	}

	time.Sleep(50 * time.Millisecond)

	if sub.DroppedCount() == 0 {
		t.Fatal("expected at least one dropped event")
	}
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster[int](neverDrop, nil)
	sub := b.Subscribe()
	sub.Unsubscribe()

	select {
	case _, ok := <-sub.Events:
		if ok {
			t.Fatal("expected channel to be closed after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestBroadcasterCloseAll(t *testing.T) {
	b := NewBroadcaster[int](neverDrop, nil)
	subA := b.Subscribe()
	subB := b.Subscribe()

	b.CloseAll()

	for _, sub := range []Subscription[int]{subA, subB} {
		select {
		case _, ok := <-sub.Events:
			if ok {
				t.Fatal("expected channel to be closed after CloseAll")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for channel close")
		}
	}

	if n := b.SubscriberCount(); n != 0 {
		t.Fatalf("expected 0 subscribers after CloseAll, got %d", n)
	}
}

func TestBroadcasterDropsStuckSubscriberWithTerminalEvent(t *testing.T) {
	// Every publish is unevictable (neverDrop), so once the ring fills, the
	// very next event is an unescapable collision and the subscriber must
	// be dropped immediately with a terminal -1 frame, not after a grace
	// window of further losses.
	b := NewBroadcaster[int](neverDrop, func() int { return -1 })
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	for i := 0; i < ringCapacity+1; i++ {
		b.Publish(i)
	}

	if n := b.SubscriberCount(); n != 0 {
		t.Fatalf("expected the stuck subscriber to have been dropped, got %d remaining", n)
	}

	var lastSeen int
	draining := true
	for draining {
		select {
		case v, ok := <-sub.Events:
			if !ok {
				draining = false
				break
			}
			lastSeen = v
		case <-time.After(time.Second):
			t.Fatal("timed out draining the dropped subscriber's ring")
		}
	}
	if lastSeen != -1 {
		t.Fatalf("expected the terminal frame (-1) to be the last event delivered, got %d", lastSeen)
	}
}

func TestBroadcasterNeverDropsProtectedEvents(t *testing.T) {
	// Mirrors the transcript policy's "never drop a final" contract using
	// a toy policy: only values >= 100 are protected (never evicted).
	policy := func(buffered []int, incoming int) int {
		for i, v := range buffered {
			if v < 100 {
				return i
			}
		}
		return -1
	}

	b := NewBroadcaster[int](policy, nil)
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	for i := 0; i < ringCapacity; i++ {
		b.Publish(100 + i)
	}
	// One more unprotected push is dropped and counted since the ring is
	// full of protected values with nothing to evict; the subscriber is
	// then removed as stuck.
	b.Publish(1)

	time.Sleep(50 * time.Millisecond)
	if sub.DroppedCount() == 0 {
		t.Fatal("expected the unprotected event to be dropped")
	}
}
