// Package vad implements the voice-activity-gated segmentation state
// machine: Idle -> Speech -> Hangover -> Idle, with a short prebuffer
// (the last hangoverSec of audio seen while Idle, at least one frame) that
// opens each segment, and a forced flush that bounds recognizer input size.
// Voiced audio older than the prebuffer at the moment speech is confirmed
// is not included in the segment.
package vad

import (
	"bytes"
	"time"

	"github.com/wike-chi/live-audio-pipeline/pkg/pipeline"
)

type state int

const (
	stateIdle state = iota
	stateSpeech
	stateHangover
)

const forcedFlushSec = 30.0

// thresholds bundles the tunables of §4.3, carried by whichever VADProvider
// embeds a segmenter.
type thresholds struct {
	minSilenceSec float64
	minSpeechSec  float64
	hangoverSec   float64
}

// segmenter is the shared Idle/Speech/Hangover bookkeeping used by both the
// RMS gate and the Silero gate; it is decision-source agnostic; it only
// needs to be told, per frame, whether that frame was voiced.
type segmenter struct {
	th thresholds

	st state

	// onset confirmation while in Idle.
	speechAccumSec float64

	// continuous silence while in Hangover.
	silenceAccumSec float64

	// total voiced duration since entering Speech, for the forced flush.
	totalVoicedSec float64

	segBuf   bytes.Buffer
	segT0    int64
	rmsSum   float64
	rmsCount int

	// prebuffer holds the last hangoverSec worth of frames seen while Idle,
	// so a Speech segment includes the onset that preceded detection.
	prebuffer     [][]byte
	prebufferSec  float64
}

func newSegmenter(th thresholds) *segmenter {
	return &segmenter{th: th}
}

func frameDurationSec(frame pipeline.AudioFrame) float64 {
	samples := len(frame.PCM) / 2
	return float64(samples) / 16000.0
}

// observe feeds one frame plus its voiced/rms decision into the state
// machine and returns a completed Segment when a boundary is crossed.
func (s *segmenter) observe(frame pipeline.AudioFrame, voiced bool, rms float64) *pipeline.Segment {
	dur := frameDurationSec(frame)

	switch s.st {
	case stateIdle:
		s.pushPrebuffer(frame.PCM, dur)
		if voiced {
			s.speechAccumSec += dur
			if s.speechAccumSec >= s.th.minSpeechSec {
				s.enterSpeech(frame.T0)
			}
		} else {
			s.speechAccumSec = 0
		}
		return nil

	case stateSpeech:
		s.segBuf.Write(frame.PCM)
		s.rmsSum += rms
		s.rmsCount++
		s.totalVoicedSec += dur

		if !voiced {
			s.st = stateHangover
			s.silenceAccumSec = dur
			if s.silenceAccumSec >= s.th.minSilenceSec {
				return s.emit()
			}
			return nil
		}

		if s.totalVoicedSec >= forcedFlushSec {
			return s.emit()
		}
		return nil

	case stateHangover:
		s.segBuf.Write(frame.PCM)
		s.rmsSum += rms
		s.rmsCount++

		if voiced {
			// Hangover -> Speech, no emit; keep accumulating.
			s.st = stateSpeech
			s.silenceAccumSec = 0
			s.totalVoicedSec += dur
			if s.totalVoicedSec >= forcedFlushSec {
				return s.emit()
			}
			return nil
		}

		s.silenceAccumSec += dur
		if s.silenceAccumSec >= s.th.minSilenceSec {
			return s.emit()
		}
		return nil
	}

	return nil
}

func (s *segmenter) pushPrebuffer(pcm []byte, dur float64) {
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.prebuffer = append(s.prebuffer, cp)
	s.prebufferSec += dur

	for s.prebufferSec > s.th.hangoverSec && len(s.prebuffer) > 1 {
		s.prebufferSec -= frameDurationSec(pipeline.AudioFrame{PCM: s.prebuffer[0]})
		s.prebuffer = s.prebuffer[1:]
	}
}

func (s *segmenter) enterSpeech(t0 int64) {
	s.st = stateSpeech
	s.segBuf.Reset()
	s.rmsSum = 0
	s.rmsCount = 0
	s.totalVoicedSec = s.speechAccumSec
	s.silenceAccumSec = 0

	segStart := t0
	if len(s.prebuffer) > 0 {
		segStart = t0 - int64(s.prebufferSec*float64(time.Second))
		for _, pcm := range s.prebuffer {
			s.segBuf.Write(pcm)
		}
	}
	s.segT0 = segStart
	s.prebuffer = nil
	s.prebufferSec = 0
}

func (s *segmenter) emit() *pipeline.Segment {
	pcm := make([]byte, s.segBuf.Len())
	copy(pcm, s.segBuf.Bytes())

	meanRMS := 0.0
	if s.rmsCount > 0 {
		meanRMS = s.rmsSum / float64(s.rmsCount)
	}

	seg := &pipeline.Segment{
		PCM:         pcm,
		T0:          s.segT0,
		DurationSec: float64(len(pcm)/2) / 16000.0,
		MeanRMS:     meanRMS,
	}

	s.reset()
	return seg
}

func (s *segmenter) reset() {
	s.st = stateIdle
	s.speechAccumSec = 0
	s.silenceAccumSec = 0
	s.totalVoicedSec = 0
	s.segBuf.Reset()
	s.rmsSum = 0
	s.rmsCount = 0
	s.prebuffer = nil
	s.prebufferSec = 0
}
