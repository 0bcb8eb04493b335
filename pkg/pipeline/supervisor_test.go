package pipeline

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

type fakeResolver struct {
	info RoomInfo
	err  error
}

func (f *fakeResolver) Resolve(ctx context.Context, roomRef string) (RoomInfo, error) {
	return f.info, f.err
}

type fakePuller struct {
	reader io.Reader
	err    error
	closed bool
}

func (f *fakePuller) Open(ctx context.Context, mediaURL string) (io.Reader, func(), error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.reader, func() { f.closed = true }, nil
}

type blockingReader struct {
	unblock chan struct{}
}

func (b *blockingReader) Read(p []byte) (int, error) {
	<-b.unblock
	return 0, io.EOF
}

type fakeSupervisorRecognizer struct{}

func (fakeSupervisorRecognizer) Name() string { return "fake" }
func (fakeSupervisorRecognizer) Transcribe(ctx context.Context, pcm []byte) (RecognizeResult, error) {
	return RecognizeResult{Text: "hi", Confidence: 1}, nil
}

func testSupervisor(puller *fakePuller) *PipelineSupervisor {
	return NewPipelineSupervisor(Dependencies{
		RoomResolver: &fakeResolver{info: RoomInfo{RoomID: "r1", MediaURL: "http://example/stream", AnchorName: "anchor"}},
		MediaPuller:  puller,
		VADFactory:   func(cfg SessionConfig) VADProvider { return &fakeVAD{} },
		Recognizer:   fakeSupervisorRecognizer{},
	})
}

type fakeVAD struct{}

func (f *fakeVAD) Process(frame AudioFrame) (*Segment, error) { return nil, nil }
func (f *fakeVAD) Reset()                                     {}
func (f *fakeVAD) Name() string                               { return "fake" }

func TestSupervisorStartRejectsEmptyRoomRef(t *testing.T) {
	s := testSupervisor(&fakePuller{reader: strings.NewReader("")})
	_, err := s.Start(context.Background(), StartRequest{Profile: ProfileFast})
	if err == nil {
		t.Fatal("expected an error for an empty roomRef")
	}
	if s.Status().IsRunning {
		t.Fatal("expected no running session after a rejected start")
	}
}

func TestSupervisorStartThenStop(t *testing.T) {
	unblock := make(chan struct{})
	puller := &fakePuller{reader: &blockingReader{unblock: unblock}}
	s := testSupervisor(puller)

	res, err := s.Start(context.Background(), StartRequest{RoomRef: "room-1", Profile: ProfileFast})
	if err != nil {
		t.Fatalf("unexpected Start error: %v", err)
	}
	if res.RoomID != "r1" {
		t.Fatalf("expected roomID r1, got %q", res.RoomID)
	}

	if !s.Status().IsRunning {
		t.Fatal("expected session to be running after Start")
	}

	close(unblock)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("unexpected Stop error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if !s.Status().IsRunning {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if s.Status().IsRunning {
		t.Fatal("expected session to be stopped")
	}
	if !puller.closed {
		t.Fatal("expected MediaPuller cancel to have been invoked")
	}
}

func TestSupervisorStartRejectsWhenAlreadyRunning(t *testing.T) {
	unblock := make(chan struct{})
	defer close(unblock)
	puller := &fakePuller{reader: &blockingReader{unblock: unblock}}
	s := testSupervisor(puller)

	if _, err := s.Start(context.Background(), StartRequest{RoomRef: "room-1", Profile: ProfileFast}); err != nil {
		t.Fatalf("unexpected first Start error: %v", err)
	}

	_, err := s.Start(context.Background(), StartRequest{RoomRef: "room-2", Profile: ProfileFast})
	if err != ErrAlreadyRunning {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestSupervisorStopIsIdempotent(t *testing.T) {
	s := testSupervisor(&fakePuller{reader: strings.NewReader("")})
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("expected Stop on an idle supervisor to be a no-op, got %v", err)
	}
}

func TestSupervisorSubscribeTranscriptRequiresRunningSession(t *testing.T) {
	s := testSupervisor(&fakePuller{reader: strings.NewReader("")})
	_, err := s.SubscribeTranscript()
	if err != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}
