// Package broadcast implements the bounded multi-subscriber fan-out used
// by both the transcript/level event stream and the chat event stream:
// each subscriber gets its own ring buffer and writer goroutine, and a
// pluggable drop policy decides what to discard when a subscriber falls
// behind instead of blocking the producer.
package broadcast

import "sync"

const ringCapacity = 256

// DropPolicy decides, given a full ring of buffered events, which buffered
// index to evict to make room for a new event. It returns -1 if nothing
// may be evicted (the new event itself must then be dropped).
type DropPolicy[T any] func(buffered []T, incoming T) int

// Broadcaster fans values of type T out to any number of subscribers,
// each with its own bounded ring and writer goroutine, exactly as §4.6
// describes for transcripts/levels and §4.7 for chat events.
type Broadcaster[T any] struct {
	mu          sync.Mutex
	subscribers map[uint64]*subscriber[T]
	nextID      uint64
	policy      DropPolicy[T]
	slowEvent   func() T
}

type subscriber[T any] struct {
	out          chan T
	mu           sync.Mutex
	cond         *sync.Cond
	ring         []T
	droppedCount uint64
	closed       bool
}

// NewBroadcaster builds a Broadcaster using policy to decide what to evict
// when a subscriber's ring is full. slowEvent builds the terminal event
// written to a subscriber's ring just before it is dropped for being stuck;
// it may be nil, in which case a stuck subscriber is dropped silently.
func NewBroadcaster[T any](policy DropPolicy[T], slowEvent func() T) *Broadcaster[T] {
	return &Broadcaster[T]{
		subscribers: make(map[uint64]*subscriber[T]),
		policy:      policy,
		slowEvent:   slowEvent,
	}
}

// Subscription is returned by Subscribe; Events delivers values in
// producer order, Unsubscribe releases the subscriber's queue.
type Subscription[T any] struct {
	Events      <-chan T
	Unsubscribe func()
	DroppedCount func() uint64
}

// Subscribe registers a new subscriber and starts its writer goroutine.
func (b *Broadcaster[T]) Subscribe() Subscription[T] {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscriber[T]{
		out: make(chan T, 1),
	}
	sub.cond = sync.NewCond(&sub.mu)
	b.subscribers[id] = sub
	b.mu.Unlock()

	go sub.writerLoop()

	return Subscription[T]{
		Events: sub.out,
		Unsubscribe: func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			sub.close()
		},
		DroppedCount: func() uint64 {
			sub.mu.Lock()
			defer sub.mu.Unlock()
			return sub.droppedCount
		},
	}
}

// Publish delivers an event to every current subscriber, applying the
// drop policy per-subscriber when that subscriber's ring is full. The
// first time the policy finds nothing it can evict for a subscriber (its
// ring is full of events the policy protects), that subscriber is
// considered stuck and dropped outright: a terminal slowEvent is forced
// into its ring (if one was configured) and it is removed from the
// broadcaster, leaving every other subscriber unaffected.
func (b *Broadcaster[T]) Publish(event T) {
	b.mu.Lock()
	ids := make([]uint64, 0, len(b.subscribers))
	subs := make([]*subscriber[T], 0, len(b.subscribers))
	for id, s := range b.subscribers {
		ids = append(ids, id)
		subs = append(subs, s)
	}
	b.mu.Unlock()

	var stuck []uint64
	for i, s := range subs {
		if s.enqueue(event, b.policy) {
			stuck = append(stuck, ids[i])
		}
	}
	if len(stuck) == 0 {
		return
	}

	b.mu.Lock()
	dropped := make([]*subscriber[T], 0, len(stuck))
	for _, id := range stuck {
		if s, ok := b.subscribers[id]; ok {
			dropped = append(dropped, s)
			delete(b.subscribers, id)
		}
	}
	b.mu.Unlock()

	for _, s := range dropped {
		if b.slowEvent != nil {
			s.forceEnqueue(b.slowEvent())
		}
		s.close()
	}
}

// CloseAll closes every subscriber's channel, e.g. when a session ends.
func (b *Broadcaster[T]) CloseAll() {
	b.mu.Lock()
	subs := make([]*subscriber[T], 0, len(b.subscribers))
	for id := range b.subscribers {
		subs = append(subs, b.subscribers[id])
		delete(b.subscribers, id)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// SubscriberCount reports how many subscribers are currently attached.
func (b *Broadcaster[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// enqueue applies the drop policy when the ring is full. It returns true
// when the policy found nothing it could evict for this event, meaning
// the subscriber is stuck and must be dropped by the caller immediately.
func (s *subscriber[T]) enqueue(event T, policy DropPolicy[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	if len(s.ring) < ringCapacity {
		s.ring = append(s.ring, event)
		s.cond.Signal()
		return false
	}

	evictIdx := policy(s.ring, event)
	if evictIdx < 0 {
		s.droppedCount++
		return true
	}
	s.ring = append(s.ring[:evictIdx], s.ring[evictIdx+1:]...)
	s.ring = append(s.ring, event)
	s.droppedCount++
	s.cond.Signal()
	return false
}

// forceEnqueue writes a terminal event unconditionally, evicting the
// oldest buffered event if necessary. Used only for the slow-subscriber
// terminal frame, which must never itself be silently dropped.
func (s *subscriber[T]) forceEnqueue(event T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(s.ring) >= ringCapacity {
		s.ring = s.ring[1:]
	}
	s.ring = append(s.ring, event)
	s.cond.Signal()
}

func (s *subscriber[T]) writerLoop() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.ring) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.ring) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		next := s.ring[0]
		s.ring = s.ring[1:]
		s.mu.Unlock()

		s.out <- next
	}
}

func (s *subscriber[T]) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}
