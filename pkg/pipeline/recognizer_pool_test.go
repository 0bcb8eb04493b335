package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeRecognizer struct {
	mu      sync.Mutex
	delays  map[string]time.Duration
	failIDs map[string]bool
}

func (f *fakeRecognizer) Name() string { return "fake" }

func (f *fakeRecognizer) Transcribe(ctx context.Context, pcm []byte) (RecognizeResult, error) {
	id := string(pcm)
	f.mu.Lock()
	delay := f.delays[id]
	fail := f.failIDs[id]
	f.mu.Unlock()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return RecognizeResult{}, ctx.Err()
	}

	if fail {
		return RecognizeResult{}, errors.New("boom")
	}
	return RecognizeResult{Text: "text-" + id, Confidence: 0.5}, nil
}

func TestRecognizerPoolPreservesOrderAcrossWorkers(t *testing.T) {
	rec := &fakeRecognizer{
		delays: map[string]time.Duration{
			"0": 30 * time.Millisecond,
			"1": 5 * time.Millisecond,
			"2": 20 * time.Millisecond,
		},
	}
	pool := NewRecognizerPool(rec, 3, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})
	go func() {
		pool.Run(ctx, func(seg Segment, res RecognizeResult, ok bool) {
			mu.Lock()
			order = append(order, seg.ID)
			if len(order) == 3 {
				close(done)
			}
			mu.Unlock()
		})
	}()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("%d", i)
		pool.Submit(ctx, Segment{ID: id, Seq: uint64(i), PCM: []byte(id), DurationSec: 1})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for all results")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "0" || order[1] != "1" || order[2] != "2" {
		t.Fatalf("expected results delivered in submission order, got %v", order)
	}
}

func TestRecognizerPoolReportsFailure(t *testing.T) {
	rec := &fakeRecognizer{failIDs: map[string]bool{"0": true}}
	pool := NewRecognizerPool(rec, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		pool.Run(ctx, func(seg Segment, res RecognizeResult, ok bool) {
			done <- ok
		})
	}()

	pool.Submit(ctx, Segment{ID: "0", Seq: 0, PCM: []byte("0"), DurationSec: 1})

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected failure to be reported as ok=false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestPerSegmentDeadlineFloor(t *testing.T) {
	if d := perSegmentDeadline(0.5); d != 3*time.Second {
		t.Fatalf("expected 3s floor, got %v", d)
	}
	if d := perSegmentDeadline(5); d != 10*time.Second {
		t.Fatalf("expected 2x duration, got %v", d)
	}
}

func TestReorderBufferReleasesInSequence(t *testing.T) {
	var emitted []uint64
	rb := newReorderBuffer(func(r workerResult) {
		emitted = append(emitted, r.seq)
	})

	rb.push(workerResult{seq: 2})
	rb.push(workerResult{seq: 0})
	if len(emitted) != 1 || emitted[0] != 0 {
		t.Fatalf("expected only seq 0 released, got %v", emitted)
	}
	rb.push(workerResult{seq: 1})
	if len(emitted) != 3 {
		t.Fatalf("expected seq 1 and 2 to release once the gap closed, got %v", emitted)
	}
}
