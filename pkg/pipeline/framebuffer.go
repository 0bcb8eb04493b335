package pipeline

import (
	"sync"
	"time"
)

// frameBufferCapacity bounds the intermediate segment buffer sitting
// between VAD emission and the recognizer pool's own queue, approximating
// §5's "frame queue 64*N bytes" sizing bound in segment-count terms.
const frameBufferCapacity = 16

// frameRetention is how long a segment may wait in that intermediate
// buffer before it is dropped as stale rather than delivered late (§4.4).
const frameRetention = 2 * time.Second

type pendingSegment struct {
	seg Segment
	at  time.Time
}

// segmentBuffer absorbs segments the recognizer pool's own queue has no
// room for (§4.4): pushing never blocks the media reader, evicting the
// oldest buffered segment once full instead. A segment that ages past
// frameRetention while still waiting is dropped the next time the buffer
// is drained, rather than delivered late.
type segmentBuffer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries []pendingSegment
	closed  bool
}

func newSegmentBuffer() *segmentBuffer {
	b := &segmentBuffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// push enqueues seg, evicting and returning the oldest buffered segment's
// ID first if the buffer was already at capacity.
func (b *segmentBuffer) push(seg Segment, now time.Time) (droppedID string, dropped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return seg.ID, true
	}

	if len(b.entries) >= frameBufferCapacity {
		droppedID = b.entries[0].seg.ID
		dropped = true
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, pendingSegment{seg: seg, at: now})
	b.cond.Signal()
	return droppedID, dropped
}

// next blocks until a segment is available or the buffer is closed. Any
// entry already older than frameRetention is dropped rather than returned;
// their IDs are reported in staleIDs so the caller can account them.
func (b *segmentBuffer) next() (seg Segment, staleIDs []string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		for len(b.entries) > 0 && time.Since(b.entries[0].at) > frameRetention {
			staleIDs = append(staleIDs, b.entries[0].seg.ID)
			b.entries = b.entries[1:]
		}
		if len(b.entries) > 0 {
			seg = b.entries[0].seg
			b.entries = b.entries[1:]
			return seg, staleIDs, true
		}
		if b.closed {
			return Segment{}, staleIDs, false
		}
		b.cond.Wait()
	}
}

// close unblocks any waiting next() call; subsequent pushes are ignored.
func (b *segmentBuffer) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
}
