package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wike-chi/live-audio-pipeline/pkg/broadcast"
	"github.com/wike-chi/live-audio-pipeline/pkg/chat"
	"github.com/wike-chi/live-audio-pipeline/pkg/media"
)

// lifecycleState is the PipelineSupervisor's own state machine (§4.8):
// Idle -> Starting -> Running -> Stopping -> Idle. Re-entry into Starting
// is rejected until Idle is reached.
type lifecycleState int

const (
	stateIdle lifecycleState = iota
	stateStarting
	stateRunning
	stateStopping
)

// stopDrainTimeout bounds how long Stop waits for in-flight workers to
// drain before forcing cancellation (§4.8).
const stopDrainTimeout = 3 * time.Second

// idleTickInterval drives the assembler's time-based final rules
// (maxWait, silenceFlush) even when no new segment arrives.
const idleTickInterval = 200 * time.Millisecond

// StartRequest is the input to PipelineSupervisor.Start (§4.8, §6).
type StartRequest struct {
	RoomRef   string
	SessionID string
	Profile   Profile
	Overrides SessionConfig
}

// StartResult is Start's synchronous return value (§4.8).
type StartResult struct {
	SessionID string
	RoomID    string
	StartedAt time.Time
}

// Dependencies are the pluggable capabilities a PipelineSupervisor is
// built with; all are consumer-defined interfaces (§2) so pkg/pipeline
// never imports its own implementers.
type Dependencies struct {
	RoomResolver RoomResolver
	MediaPuller  MediaPuller
	VADFactory   VADFactory
	Recognizer   Recognizer
	ChatWSURL    func(info RoomInfo) string
	Logger       Logger
	Metrics      *Metrics
}

// PipelineSupervisor is the module's public surface (§4.8): it owns the
// single active session's lifecycle, wiring the chunker, VAD gate,
// recognizer pool, sentence assembler, transcript broadcaster, chat
// client and chat broadcaster into one errgroup-joined goroutine group
// per the teacher's hot-layer Assembler (errgroup.WithContext) idiom,
// generalized from a one-shot parallel fetch into a long-lived pipeline.
type PipelineSupervisor struct {
	deps Dependencies

	mu      sync.Mutex
	state   lifecycleState
	session *Session
	cancel  context.CancelFunc
	done    chan struct{}

	transcriptBC *TranscriptBroadcaster
	chatBC       *chat.EventBroadcaster
}

// NewPipelineSupervisor builds a supervisor with the given dependencies.
func NewPipelineSupervisor(deps Dependencies) *PipelineSupervisor {
	if deps.Logger == nil {
		deps.Logger = &NoOpLogger{}
	}
	return &PipelineSupervisor{deps: deps, state: stateIdle}
}

// Start resolves the room, opens the media stream, and launches the full
// pipeline goroutine group (§4.8).
func (p *PipelineSupervisor) Start(ctx context.Context, req StartRequest) (StartResult, error) {
	p.mu.Lock()
	if p.state != stateIdle {
		p.mu.Unlock()
		return StartResult{}, ErrAlreadyRunning
	}
	p.state = stateStarting
	p.mu.Unlock()

	cfg := ApplyOverrides(req.Profile, req.Overrides)
	cfg.RoomRef = req.RoomRef
	cfg.SessionID = req.SessionID
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		p.resetToIdle()
		return StartResult{}, err
	}

	info, err := p.deps.RoomResolver.Resolve(ctx, cfg.RoomRef)
	if err != nil {
		p.resetToIdle()
		return StartResult{}, fmt.Errorf("%w: %v", ErrResolveFailed, err)
	}

	stdout, mediaCancel, err := p.deps.MediaPuller.Open(ctx, info.MediaURL)
	if err != nil {
		p.resetToIdle()
		return StartResult{}, fmt.Errorf("%w: %v", ErrMediaOpenFailed, err)
	}

	session := newSession(cfg)
	session.RoomID = info.RoomID
	session.MediaURL = info.MediaURL
	session.AnchorName = info.AnchorName

	sessionCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.mu.Lock()
	p.session = session
	p.cancel = cancel
	p.done = done
	p.transcriptBC = NewTranscriptBroadcaster()
	p.chatBC = chat.NewEventBroadcaster()
	p.state = stateRunning
	p.mu.Unlock()

	p.deps.Metrics.sessionStarted(ctx)
	go p.run(sessionCtx, session, stdout, mediaCancel, info, done)

	return StartResult{
		SessionID: cfg.SessionID,
		RoomID:    info.RoomID,
		StartedAt: session.StartedAt,
	}, nil
}

// run drives one session's full goroutine group until sessionCtx is
// cancelled or a fatal error occurs, then transitions Running->Stopping
// automatically (§4.8).
func (p *PipelineSupervisor) run(ctx context.Context, session *Session, stdout io.Reader, mediaCancel func(), info RoomInfo, done chan struct{}) {
	var mediaMu sync.Mutex
	currentCancel := mediaCancel
	stopMedia := func() {
		mediaMu.Lock()
		c := currentCancel
		mediaMu.Unlock()
		c()
	}
	defer stopMedia()

	g, gctx := errgroup.WithContext(ctx)

	// stdout.Read blocks on the transcoder process, not on gctx, so Stop's
	// context cancellation alone cannot unblock goroutine 1: killing the
	// process is what makes its Read return.
	go func() {
		<-gctx.Done()
		stopMedia()
	}()

	// restartMedia kills the current transcoder and opens a fresh one
	// against the same media URL, for the §4.1 "stable profile restarts the
	// puller on stall" edge case.
	restartMedia := func() (io.Reader, error) {
		mediaMu.Lock()
		oldCancel := currentCancel
		mediaMu.Unlock()
		oldCancel()

		newStdout, newCancel, err := p.deps.MediaPuller.Open(ctx, info.MediaURL)
		if err != nil {
			return nil, err
		}
		mediaMu.Lock()
		currentCancel = newCancel
		mediaMu.Unlock()
		return newStdout, nil
	}

	vad := p.deps.VADFactory(session.Config)
	chunker := NewChunker(session.Config.SessionID, session.Config.FrameBytes())
	assembler := NewAssembler(session.Config)
	pool := NewRecognizerPool(p.deps.Recognizer, session.Config.Workers, p.deps.Logger)
	var nextSeq uint64
	var emittedAt sync.Map // segment ID -> time.Time, drained by the recognizer-drain goroutine for latency tracking

	// assembler is shared between the recognizer-drain goroutine (Append)
	// and the idle-ticker goroutine (Tick); assemblerMu serializes access
	// to it across both.
	var assemblerMu sync.Mutex
	appendSegment := func(text string, segStart, segEnd int64, confidence float64, now time.Time) []TranscriptEvent {
		assemblerMu.Lock()
		defer assemblerMu.Unlock()
		return assembler.Append(session.Config.SessionID, text, segStart, segEnd, confidence, now)
	}
	tickAssembler := func(now time.Time) []TranscriptEvent {
		assemblerMu.Lock()
		defer assemblerMu.Unlock()
		return assembler.Tick(session.Config.SessionID, now)
	}
	publishTranscriptEvents := func(events []TranscriptEvent) {
		for _, e := range events {
			e.SessionID = session.Config.SessionID
			if session.Config.PersistEnabled && e.Kind == KindFinal {
				if err := media.AppendTranscriptLine(session.Config.PersistRoot, session.Config.SessionID, e.Text); err != nil {
					p.deps.Logger.Warn("pipeline: transcript persist failed", "session", session.Config.SessionID, "error", err)
				}
			}
			p.transcriptBC.Publish(e)
		}
	}

	frameBuf := newSegmentBuffer()
	go func() {
		<-gctx.Done()
		frameBuf.close()
	}()

	// onStall implements §4.1's media-stall edge case: under the fast
	// profile a stall is terminal (the caller's emitFatal runs off the
	// ordinary err != nil path below); under stable it restarts the
	// puller and keeps reading from the fresh stdout.
	onStall := func() (io.Reader, bool) {
		if session.Config.Profile != ProfileStable {
			return nil, false
		}
		newStdout, err := restartMedia()
		if err != nil {
			p.deps.Logger.Warn("pipeline: media restart after stall failed", "session", session.Config.SessionID, "error", err)
			return nil, false
		}
		p.deps.Logger.Info("pipeline: media stalled, puller restarted", "session", session.Config.SessionID)
		return newStdout, true
	}

	// ── goroutine 1: media reader -> chunker -> VAD -> frame buffer ──
	g.Go(func() error {
		err := chunker.ReadAll(stdout, time.Now, func(frame AudioFrame) {
			session.incChunksIn()
			p.deps.Metrics.recordChunkIn(gctx)
			seg, vadErr := vad.Process(frame)
			if vadErr != nil {
				return
			}
			if seg == nil {
				return
			}
			session.incSegmentsEmitted()
			p.deps.Metrics.recordSegmentEmitted(gctx)
			if session.Config.PersistEnabled {
				if _, err := media.WriteSegmentWAV(session.Config.PersistRoot, session.Config.SessionID, seg.T0, seg.PCM, 16000); err != nil {
					p.deps.Logger.Warn("pipeline: segment persist failed", "session", session.Config.SessionID, "error", err)
				}
			}
			seg.ID = uuid.NewString()
			seg.Seq = nextSeq
			nextSeq++
			emittedAt.Store(seg.ID, time.Now())
			if droppedID, dropped := frameBuf.push(*seg, time.Now()); dropped {
				session.incDroppedFrames(1)
				p.deps.Metrics.recordDroppedFrames(gctx, 1)
				emittedAt.Delete(droppedID)
			}
		}, func(level LevelEvent) {
			p.transcriptBC.Publish(level.AsTranscriptEvent())
		}, onStall)
		if err != nil {
			if gctx.Err() != nil {
				// Stop already cancelled the session; the media stream
				// closing is the expected result of killing the
				// transcoder, not a fatal condition.
				return nil
			}
			p.emitFatal(session, "media_closed")
			return ErrMediaStreamLost
		}
		return nil
	})

	// ── goroutine 1b: frame buffer drain -> recognizer queue ──
	g.Go(func() error {
		for {
			seg, staleIDs, ok := frameBuf.next()
			for _, id := range staleIDs {
				session.incDroppedFrames(1)
				p.deps.Metrics.recordDroppedFrames(gctx, 1)
				emittedAt.Delete(id)
			}
			if !ok {
				return nil
			}
			if err := pool.Submit(gctx, seg); err != nil {
				session.incDroppedFrames(1)
				p.deps.Metrics.recordDroppedFrames(gctx, 1)
				emittedAt.Delete(seg.ID)
			}
		}
	})

	// ── goroutine 2: recognizer pool drain -> assembler -> broadcaster ──
	g.Go(func() error {
		pool.Run(gctx, func(seg Segment, res RecognizeResult, ok bool) {
			session.recordTranscript(res.Confidence, ok)
			p.deps.Metrics.recordTranscript(gctx, res.Confidence, ok)
			if t0, ok := emittedAt.LoadAndDelete(seg.ID); ok {
				session.recordRecognitionLatency(time.Since(t0.(time.Time)))
			}
			segEnd := seg.T0 + int64(seg.DurationSec*float64(time.Second))
			events := appendSegment(res.Text, seg.T0, segEnd, res.Confidence, time.Now())
			publishTranscriptEvents(events)
		})
		return nil
	})

	// ── goroutine 3: idle ticker, drives time-based assembler finals ──
	g.Go(func() error {
		ticker := time.NewTicker(idleTickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				publishTranscriptEvents(tickAssembler(now))
			}
		}
	})

	// ── goroutine 4: chat relay ──
	if p.deps.ChatWSURL != nil {
		chatClient := chat.NewClient(info.RoomID, p.deps.ChatWSURL(info), info.ChatHeaders, p.deps.Logger)
		g.Go(func() error {
			chatClient.Run(gctx)
			return nil
		})
		g.Go(func() error {
			for event := range chatClient.Events() {
				p.chatBC.Publish(event)
			}
			return nil
		})
	}

	_ = g.Wait()

	p.finishSession(session)
	close(done)
}

func (p *PipelineSupervisor) emitFatal(session *Session, reason string) {
	session.setLastError(reason)
	p.transcriptBC.Publish(TranscriptEvent{
		Kind:      KindError,
		SessionID: session.Config.SessionID,
		Reason:    reason,
		Fatal:     true,
	})
}

// finishSession is called once a session's goroutine group has fully
// returned, either because Stop cancelled it or because a fatal error
// ended the audio path.
func (p *PipelineSupervisor) finishSession(session *Session) {
	p.mu.Lock()
	if p.session != session {
		p.mu.Unlock()
		return
	}
	p.state = stateStopping
	p.mu.Unlock()

	p.transcriptBC.Publish(TranscriptEvent{Kind: KindStatus, SessionID: session.Config.SessionID, Stage: "stopped"})
	p.transcriptBC.CloseAll()
	p.chatBC.CloseAll()
	p.deps.Metrics.sessionEnded(context.Background())

	p.mu.Lock()
	p.session = nil
	p.cancel = nil
	p.transcriptBC = nil
	p.chatBC = nil
	p.state = stateIdle
	p.mu.Unlock()
}

// Stop idempotently ends the active session, waiting up to
// stopDrainTimeout for the goroutine group to exit before the caller
// gives up waiting (the group itself keeps draining in the background
// via finishSession).
func (p *PipelineSupervisor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.state != stateRunning {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	done := p.done
	p.state = stateStopping
	p.mu.Unlock()

	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(stopDrainTimeout):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current session snapshot, or a zero-value snapshot
// with IsRunning false when no session is active. Safe to call
// concurrently with Start/Stop (§4.8).
func (p *PipelineSupervisor) Status() SessionSnapshot {
	p.mu.Lock()
	session := p.session
	running := p.state == stateRunning
	p.mu.Unlock()

	if session == nil {
		return SessionSnapshot{}
	}
	return session.snapshot(running)
}

// SubscribeTranscript returns a handle to the transcript/level stream
// (§4.6). It returns ErrNotRunning if no session is active.
func (p *PipelineSupervisor) SubscribeTranscript() (broadcast.Subscription[TranscriptEvent], error) {
	p.mu.Lock()
	bc := p.transcriptBC
	p.mu.Unlock()
	if bc == nil {
		return broadcast.Subscription[TranscriptEvent]{}, ErrNotRunning
	}
	return bc.Subscribe(), nil
}

// SubscribeChat returns a handle to the chat stream (§4.7). It returns
// ErrNotRunning if no session is active.
func (p *PipelineSupervisor) SubscribeChat() (broadcast.Subscription[chat.Event], error) {
	p.mu.Lock()
	bc := p.chatBC
	p.mu.Unlock()
	if bc == nil {
		return broadcast.Subscription[chat.Event]{}, ErrNotRunning
	}
	return bc.Subscribe(), nil
}

func (p *PipelineSupervisor) resetToIdle() {
	p.mu.Lock()
	p.state = stateIdle
	p.mu.Unlock()
}
