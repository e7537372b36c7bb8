package stream

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// source is a running decoder producing s16le PCM.
type source interface {
	io.Reader
	// Wait blocks until the decoder exits and reports how it exited.
	Wait() error
	// Kill stops the decoder. Safe to call more than once.
	Kill()
}

// openFunc starts a decoder for the same media at seek.
type openFunc func(seek time.Duration) (source, error)

type ffmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer

	once    sync.Once
	waitErr error
}

func ffmpegArgs(url string, seek time.Duration) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}
	if seek > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", seek.Seconds()))
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	return append(args,
		"-i", url,
		"-vn",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"pipe:1",
	)
}

// openFFmpeg starts ffmpeg for url. The process is not bound to a context:
// it lives as long as the playback and is killed by Kill.
func openFFmpeg(url string, seek time.Duration) (source, error) {
	cmd := exec.Command("ffmpeg", ffmpegArgs(url, seek)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = &limitedWriter{buf: stderr, max: 4096}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	return &ffmpegSource{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

func (f *ffmpegSource) Read(p []byte) (int, error) { return f.stdout.Read(p) }

func (f *ffmpegSource) Wait() error {
	f.once.Do(func() {
		err := f.cmd.Wait()
		if err != nil {
			if msg := strings.TrimSpace(f.stderr.String()); msg != "" {
				err = fmt.Errorf("%w: %s", err, msg)
			}
		}
		f.waitErr = err
	})
	return f.waitErr
}

func (f *ffmpegSource) Kill() {
	if f.cmd.Process != nil {
		_ = f.cmd.Process.Kill()
	}
	_ = f.Wait()
}

// limitedWriter keeps the first max bytes of ffmpeg's complaints.
type limitedWriter struct {
	mu  sync.Mutex
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if room := w.max - w.buf.Len(); room > 0 {
		w.buf.Write(p[:min(room, len(p))])
	}
	return len(p), nil
}
