package media

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// NewWavBuffer wraps raw 16-bit mono PCM in a minimal RIFF/WAVE header.
// Adapted from the teacher's pkg/audio/wav.go, used here both by
// recognizer providers that need a file upload and by segment debug
// export.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// WriteSegmentWAV persists a segment's PCM under root/sessionID/ for
// offline debugging, named by its start timestamp. It is only called
// when SessionConfig.PersistEnabled is set.
func WriteSegmentWAV(root, sessionID string, segT0 int64, pcm []byte, sampleRate int) (string, error) {
	dir := filepath.Join(root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("media: create persist dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("seg_%d.wav", segT0))
	if err := os.WriteFile(path, NewWavBuffer(pcm, sampleRate), 0o644); err != nil {
		return "", fmt.Errorf("media: write segment wav: %w", err)
	}
	return path, nil
}

// AppendTranscriptLine appends one assembled final transcript line to
// root/sessionID/transcript.txt, alongside the per-segment WAV exports.
func AppendTranscriptLine(root, sessionID, text string) error {
	dir := filepath.Join(root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("media: create persist dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "transcript.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("media: open transcript file: %w", err)
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, text)
	return err
}
