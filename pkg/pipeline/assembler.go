package pipeline

import (
	"strings"
	"time"
)

// sentenceTerminators ends a pendingText buffer (§4.5 rule 3a), covering
// both Latin and CJK punctuation since a room's chat language is not
// known in advance.
var sentenceTerminators = []rune{'.', '。', '!', '！', '?', '？', '…'}

// Assembler turns a stream of per-segment recognized text into stable
// sentence finals and low-latency deltas (§4.5). It is not safe for
// concurrent use: the supervisor calls Append from its recognizer-pool
// drain goroutine and Tick from its idle-ticker goroutine, serialized by
// a mutex.
type Assembler struct {
	cfg SessionConfig

	pendingText       string
	pendingSince      time.Time
	lastSegmentEnd    int64
	lastAppendedFrag  string
	silenceFlushAfter time.Time
}

// NewAssembler builds an Assembler using a session's maxChars/maxWait/
// silenceFlush/minSentenceChars thresholds.
func NewAssembler(cfg SessionConfig) *Assembler {
	return &Assembler{cfg: cfg}
}

// Append feeds one recognized segment's text and returns the
// TranscriptEvents it produces, in order: at most one delta, then at
// most one final (§4.5 rules 1-4).
func (a *Assembler) Append(sessionID string, text string, segStart, segEnd int64, confidence float64, now time.Time) []TranscriptEvent {
	text = strings.TrimSpace(text)
	if text == "" {
		return a.checkTimeBasedFinal(sessionID, segEnd, now)
	}

	// Idempotence: an exact duplicate of the most-recently appended
	// fragment is dropped rather than appended twice (§4.5 Idempotence).
	if text == a.lastAppendedFrag && a.lastSegmentEnd == segEnd {
		return nil
	}

	if a.pendingText == "" {
		a.pendingSince = now
	}
	a.pendingText = appendFragment(a.pendingText, text)
	a.lastAppendedFrag = text
	a.lastSegmentEnd = segEnd
	a.silenceFlushAfter = now.Add(a.cfg.SilenceFlush)

	events := []TranscriptEvent{{
		Kind:      KindDelta,
		Text:      a.pendingText,
		SessionID: sessionID,
		SegStart:  segStart,
		SegEnd:    segEnd,
	}}

	if a.shouldFinal(now) {
		events = append(events, a.emitFinal(sessionID, confidence))
	}

	return events
}

// Tick re-evaluates the time-based final rules (maxWait, silenceFlush)
// with no new segment text, so a long pause does not hold a finished
// sentence hostage forever. The supervisor calls this on an idle timer.
func (a *Assembler) Tick(sessionID string, now time.Time) []TranscriptEvent {
	return a.checkTimeBasedFinal(sessionID, a.lastSegmentEnd, now)
}

func (a *Assembler) checkTimeBasedFinal(sessionID string, segEnd int64, now time.Time) []TranscriptEvent {
	if a.pendingText == "" {
		return nil
	}
	if a.shouldFinal(now) {
		return []TranscriptEvent{a.emitFinal(sessionID, 0)}
	}
	return nil
}

// shouldFinal evaluates §4.5 rule 3 in order.
func (a *Assembler) shouldFinal(now time.Time) bool {
	if endsWithTerminator(a.pendingText) {
		return true
	}
	if len(a.pendingText) >= a.cfg.MaxChars {
		return true
	}
	if a.cfg.MaxWait > 0 && now.Sub(a.pendingSince) >= a.cfg.MaxWait {
		return true
	}
	if a.cfg.SilenceFlush > 0 && !a.silenceFlushAfter.IsZero() && now.After(a.silenceFlushAfter) &&
		len(a.pendingText) >= a.cfg.MinSentenceChars {
		return true
	}
	return false
}

func (a *Assembler) emitFinal(sessionID string, confidence float64) TranscriptEvent {
	event := TranscriptEvent{
		Kind:       KindFinal,
		Text:       a.pendingText,
		Confidence: confidence,
		SessionID:  sessionID,
		SegEnd:     a.lastSegmentEnd,
	}
	a.pendingText = ""
	a.pendingSince = time.Time{}
	a.lastAppendedFrag = ""
	a.silenceFlushAfter = time.Time{}
	return event
}

func endsWithTerminator(s string) bool {
	if s == "" {
		return false
	}
	r := []rune(s)
	last := r[len(r)-1]
	for _, t := range sentenceTerminators {
		if last == t {
			return true
		}
	}
	return false
}

// appendFragment joins pending text with a new fragment, inserting a
// space only when neither side of the join is CJK (§4.5 rule 1).
func appendFragment(pending, fragment string) string {
	if pending == "" {
		return fragment
	}
	if isCJK(lastRune(pending)) || isCJK(firstRune(fragment)) {
		return pending + fragment
	}
	return pending + " " + fragment
}

func lastRune(s string) rune {
	r := []rune(s)
	if len(r) == 0 {
		return 0
	}
	return r[len(r)-1]
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

// isCJK reports whether r falls in one of the common CJK unified
// ideograph / kana / hangul blocks, enough to decide word-join spacing
// without pulling in a full script-detection dependency.
func isCJK(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK Unified Ideographs
		return true
	case r >= 0x3040 && r <= 0x30FF: // Hiragana + Katakana
		return true
	case r >= 0xAC00 && r <= 0xD7A3: // Hangul syllables
		return true
	case r >= 0x3000 && r <= 0x303F: // CJK punctuation
		return true
	case r >= 0xFF00 && r <= 0xFFEF: // fullwidth forms
		return true
	}
	return false
}
