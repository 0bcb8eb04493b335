package media

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/wike-chi/live-audio-pipeline/pkg/pipeline"
)

// gracefulShutdownWait is how long Cancel waits for the transcoder to
// exit after SIGTERM before escalating to SIGKILL (§4.1).
const gracefulShutdownWait = 2 * time.Second

// FFmpegPuller is the default MediaPuller: it shells out to ffmpeg to
// pull and transcode an arbitrary media URL down to raw PCM16LE mono
// 16kHz on stdout. Its process-lifecycle handling (LookPath validation,
// structured start/stop logging) follows the fankserver-discord-voice-mcp
// transcriber's exec.Command wrapping idiom.
type FFmpegPuller struct {
	binPath string
	logger  pipeline.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewFFmpegPuller resolves the ffmpeg binary on PATH (or binPath if
// non-empty) and returns a puller, failing fast if it is missing.
func NewFFmpegPuller(binPath string, logger pipeline.Logger) (*FFmpegPuller, error) {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	resolved, err := exec.LookPath(binPath)
	if err != nil {
		return nil, fmt.Errorf("media: ffmpeg executable %q not found: %w", binPath, err)
	}
	binPath = resolved
	if logger == nil {
		logger = &pipeline.NoOpLogger{}
	}
	return &FFmpegPuller{binPath: binPath, logger: logger}, nil
}

// Open starts ffmpeg reading mediaURL and writing PCM16LE mono 16kHz to
// its stdout (§2.4, §4.1). cancel is idempotent and SIGKILL-safe: it
// sends SIGTERM first, then escalates to SIGKILL if the process has not
// exited within gracefulShutdownWait.
func (p *FFmpegPuller) Open(ctx context.Context, mediaURL string) (io.Reader, func(), error) {
	args := []string{
		"-loglevel", "error",
		"-i", mediaURL,
		"-f", "s16le",
		"-ar", "16000",
		"-ac", "1",
		"-",
	}

	cmd := exec.CommandContext(ctx, p.binPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("media: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("media: start ffmpeg: %w", err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()

	p.logger.Info("media: transcoder started", "url", mediaURL, "pid", cmd.Process.Pid)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.terminate(cmd)
		})
	}

	return stdout, cancel, nil
}

func (p *FFmpegPuller) terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-done:
		return
	case <-time.After(gracefulShutdownWait):
		p.logger.Warn("media: transcoder did not exit after SIGTERM, sending SIGKILL", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-done
	}
}
