package pipeline

import "errors"

var (
	// ErrAlreadyRunning is returned synchronously from Start when a session
	// is already active. Never fatal to the process.
	ErrAlreadyRunning = errors.New("a live audio session is already running")

	// ErrConfigInvalid is returned synchronously from Start when a
	// SessionConfig field is out of range.
	ErrConfigInvalid = errors.New("session config invalid")

	// ErrResolveFailed indicates the RoomResolver could not resolve roomRef.
	ErrResolveFailed = errors.New("room resolution failed")

	// ErrMediaOpenFailed indicates the MediaPuller failed to start.
	ErrMediaOpenFailed = errors.New("media open failed")

	// ErrMediaStreamLost is runtime-fatal: the transcoder stream closed
	// mid-session.
	ErrMediaStreamLost = errors.New("media stream lost")

	// ErrMediaStalled is returned by Chunker.ReadAll when no bytes arrive
	// for stallTimeout and the stall is not recovered (fast profile, or a
	// failed puller restart under stable).
	ErrMediaStalled = errors.New("media stream stalled")

	// ErrNotRunning is returned by operations that require an active
	// session when none exists.
	ErrNotRunning = errors.New("no live audio session is running")

	// ErrNilDependency marks a required capability that was not supplied.
	ErrNilDependency = errors.New("required dependency is nil")
)
