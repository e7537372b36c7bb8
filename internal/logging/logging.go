package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup routes the standard logger to stderr and, when path is set, to a rotated file.
// The returned closer flushes and closes the file.
func Setup(path string) io.Closer {
	log.SetFlags(log.LstdFlags)

	if path == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("[WARN] Failed to create log directory, logging to stderr only: %v", err)
		log.SetOutput(os.Stderr)
		return nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, file))
	return file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
