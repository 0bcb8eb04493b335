package pipeline

import (
	"fmt"
	"time"
)

// Profile names a bundle of VAD/assembler defaults.
type Profile string

const (
	ProfileFast   Profile = "fast"
	ProfileStable Profile = "stable"
)

// SessionConfig holds the immutable parameters of one pipeline run. It is
// built once by Start and never mutated afterward (§3 Invariants).
type SessionConfig struct {
	RoomRef   string
	SessionID string
	Profile   Profile

	ChunkSeconds float64

	VADMinSilenceSec float64
	VADMinSpeechSec  float64
	VADHangoverSec   float64
	VADMinRMS        float64

	MaxWait          time.Duration
	MaxChars         int
	SilenceFlush     time.Duration
	MinSentenceChars int

	PersistEnabled bool
	PersistRoot    string

	Workers int
}

// fastDefaults and stableDefaults implement the profile table of spec.md §4.3.
var fastDefaults = SessionConfig{
	ChunkSeconds:     0.2,
	VADMinSilenceSec: 0.3,
	VADMinSpeechSec:  0.2,
	VADHangoverSec:   0.1,
	VADMinRMS:        0.012,
	MaxWait:          4 * time.Second,
	MaxChars:         120,
	SilenceFlush:     800 * time.Millisecond,
	MinSentenceChars: 6,
	Workers:          1,
}

var stableDefaults = SessionConfig{
	ChunkSeconds:     0.5,
	VADMinSilenceSec: 1.2,
	VADMinSpeechSec:  1.0,
	VADHangoverSec:   0.30,
	VADMinRMS:        0.020,
	MaxWait:          4 * time.Second,
	MaxChars:         120,
	SilenceFlush:     800 * time.Millisecond,
	MinSentenceChars: 6,
	Workers:          1,
}

// DefaultSessionConfig returns the profile defaults for the given profile,
// falling back to "fast" for an unrecognized or empty value.
func DefaultSessionConfig(profile Profile) SessionConfig {
	switch profile {
	case ProfileStable:
		cfg := stableDefaults
		cfg.Profile = ProfileStable
		return cfg
	case ProfileFast, "":
		cfg := fastDefaults
		cfg.Profile = ProfileFast
		return cfg
	default:
		cfg := fastDefaults
		cfg.Profile = ProfileFast
		return cfg
	}
}

// ApplyOverrides merges non-zero fields of override onto the profile
// defaults of cfg.Profile, implementing "explicit overrides win" (§4.3, §6).
func ApplyOverrides(profile Profile, override SessionConfig) SessionConfig {
	cfg := DefaultSessionConfig(profile)

	cfg.RoomRef = override.RoomRef
	cfg.SessionID = override.SessionID
	cfg.PersistEnabled = override.PersistEnabled
	cfg.PersistRoot = override.PersistRoot

	if override.ChunkSeconds != 0 {
		cfg.ChunkSeconds = override.ChunkSeconds
	}
	if override.VADMinSilenceSec != 0 {
		cfg.VADMinSilenceSec = override.VADMinSilenceSec
	}
	if override.VADMinSpeechSec != 0 {
		cfg.VADMinSpeechSec = override.VADMinSpeechSec
	}
	if override.VADHangoverSec != 0 {
		cfg.VADHangoverSec = override.VADHangoverSec
	}
	if override.VADMinRMS != 0 {
		cfg.VADMinRMS = override.VADMinRMS
	}
	if override.MaxWait != 0 {
		cfg.MaxWait = override.MaxWait
	}
	if override.MaxChars != 0 {
		cfg.MaxChars = override.MaxChars
	}
	if override.SilenceFlush != 0 {
		cfg.SilenceFlush = override.SilenceFlush
	}
	if override.MinSentenceChars != 0 {
		cfg.MinSentenceChars = override.MinSentenceChars
	}
	if override.Workers != 0 {
		cfg.Workers = override.Workers
	}

	return cfg
}

// Validate enforces the §3 range constraints. It returns ErrConfigInvalid
// wrapped with the offending field.
func (c SessionConfig) Validate() error {
	if c.RoomRef == "" {
		return fmt.Errorf("%w: roomRef is required", ErrConfigInvalid)
	}
	if c.ChunkSeconds < 0.2 || c.ChunkSeconds > 2.0 {
		return fmt.Errorf("%w: chunk_duration %.3f out of range [0.2,2.0]", ErrConfigInvalid, c.ChunkSeconds)
	}
	if c.Profile != ProfileFast && c.Profile != ProfileStable {
		return fmt.Errorf("%w: profile %q must be fast or stable", ErrConfigInvalid, c.Profile)
	}
	if c.VADMinSilenceSec <= 0 || c.VADMinSpeechSec <= 0 || c.VADHangoverSec < 0 || c.VADMinRMS < 0 {
		return fmt.Errorf("%w: vad thresholds must be positive", ErrConfigInvalid)
	}
	if c.MaxChars <= 0 || c.MinSentenceChars < 0 || c.MinSentenceChars > c.MaxChars {
		return fmt.Errorf("%w: assembler char bounds invalid", ErrConfigInvalid)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be >= 1", ErrConfigInvalid)
	}
	return nil
}

// FrameBytes returns N, the fixed AudioFrame size in bytes for this config
// (§4.2): round(chunkSeconds * 16000 * 2).
func (c SessionConfig) FrameBytes() int {
	n := int(c.ChunkSeconds*16000*2 + 0.5)
	if n < 2 {
		n = 2
	}
	// PCM16LE mono frames must hold whole samples.
	if n%2 != 0 {
		n++
	}
	return n
}
