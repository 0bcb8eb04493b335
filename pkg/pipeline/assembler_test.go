package pipeline

import (
	"testing"
	"time"
)

func testAssemblerConfig() SessionConfig {
	return SessionConfig{
		MaxChars:         20,
		MaxWait:          4 * time.Second,
		SilenceFlush:     800 * time.Millisecond,
		MinSentenceChars: 6,
	}
}

func TestAssemblerAppendEmitsDelta(t *testing.T) {
	a := NewAssembler(testAssemblerConfig())
	now := time.Unix(0, 0)

	events := a.Append("s1", "hello", 0, 100, 0.9, now)
	if len(events) != 1 || events[0].Kind != KindDelta {
		t.Fatalf("expected a single delta event, got %+v", events)
	}
	if events[0].Text != "hello" {
		t.Fatalf("expected text 'hello', got %q", events[0].Text)
	}
}

func TestAssemblerFinalsOnSentenceTerminator(t *testing.T) {
	a := NewAssembler(testAssemblerConfig())
	now := time.Unix(0, 0)

	events := a.Append("s1", "hello there.", 0, 100, 0.9, now)
	if len(events) != 2 {
		t.Fatalf("expected delta+final, got %+v", events)
	}
	if events[1].Kind != KindFinal || events[1].Text != "hello there." {
		t.Fatalf("expected final with full text, got %+v", events[1])
	}
	if a.pendingText != "" {
		t.Fatalf("expected pendingText reset after final, got %q", a.pendingText)
	}
}

func TestAssemblerFinalsOnMaxChars(t *testing.T) {
	cfg := testAssemblerConfig()
	cfg.MaxChars = 10
	a := NewAssembler(cfg)
	now := time.Unix(0, 0)

	events := a.Append("s1", "this is definitely over ten chars", 0, 100, 0.9, now)
	if len(events) != 2 || events[1].Kind != KindFinal {
		t.Fatalf("expected final triggered by maxChars, got %+v", events)
	}
}

func TestAssemblerFinalsOnMaxWait(t *testing.T) {
	a := NewAssembler(testAssemblerConfig())
	start := time.Unix(0, 0)

	events := a.Append("s1", "hi", 0, 100, 0.9, start)
	if len(events) != 1 {
		t.Fatalf("expected only a delta, got %+v", events)
	}

	later := start.Add(5 * time.Second)
	events = a.Tick("s1", later)
	if len(events) != 1 || events[0].Kind != KindFinal {
		t.Fatalf("expected maxWait-triggered final, got %+v", events)
	}
}

func TestAssemblerSilenceFlushRespectsMinSentenceChars(t *testing.T) {
	a := NewAssembler(testAssemblerConfig())
	start := time.Unix(0, 0)

	a.Append("s1", "hi", 0, 100, 0.9, start)
	after := start.Add(900 * time.Millisecond)
	events := a.Tick("s1", after)
	if len(events) != 0 {
		t.Fatalf("expected no final since pendingText is under minSentenceChars, got %+v", events)
	}
}

func TestAssemblerSilenceFlushFinals(t *testing.T) {
	a := NewAssembler(testAssemblerConfig())
	start := time.Unix(0, 0)

	a.Append("s1", "hello world", 0, 100, 0.9, start)
	after := start.Add(900 * time.Millisecond)
	events := a.Tick("s1", after)
	if len(events) != 1 || events[0].Kind != KindFinal {
		t.Fatalf("expected silenceFlush-triggered final, got %+v", events)
	}
}

func TestAssemblerIdempotentOnExactDuplicate(t *testing.T) {
	a := NewAssembler(testAssemblerConfig())
	now := time.Unix(0, 0)

	a.Append("s1", "hello", 0, 100, 0.9, now)
	events := a.Append("s1", "hello", 0, 100, 0.9, now)
	if len(events) != 0 {
		t.Fatalf("expected duplicate append to be a no-op, got %+v", events)
	}
	if a.pendingText != "hello" {
		t.Fatalf("expected pendingText unchanged, got %q", a.pendingText)
	}
}

func TestAssemblerJoinsCJKWithoutSpace(t *testing.T) {
	a := NewAssembler(testAssemblerConfig())
	now := time.Unix(0, 0)

	a.Append("s1", "你好", 0, 100, 0.9, now)
	events := a.Append("s1", "世界", 100, 200, 0.9, now)
	if events[0].Text != "你好世界" {
		t.Fatalf("expected CJK fragments joined without a space, got %q", events[0].Text)
	}
}

func TestAssemblerJoinsLatinWithSpace(t *testing.T) {
	a := NewAssembler(testAssemblerConfig())
	now := time.Unix(0, 0)

	a.Append("s1", "hello", 0, 100, 0.9, now)
	events := a.Append("s1", "world", 100, 200, 0.9, now)
	if events[0].Text != "hello world" {
		t.Fatalf("expected Latin fragments joined with a space, got %q", events[0].Text)
	}
}
