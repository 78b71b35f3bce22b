// Package audit appends human-readable decision lines to the hook's audit
// log. Unlike the teacher's FileAuditStore — built for a long-running
// proxy process and so batched, size/date-rotated, and cached in a ring
// buffer — a single hook invocation has no sustained throughput to batch,
// so this is a synchronous, unbuffered appender. It keeps the teacher's
// mutex-guarded, 0600-permission, create-parent-on-demand discipline.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger appends one line per event to a fixed path.
type Logger struct {
	path string
	mu   sync.Mutex
	seq  int
	runID string
}

// New creates a Logger writing to path, tagging every line with runID for
// correlation when multiple invocations interleave into a shared file.
func New(path, runID string) *Logger {
	return &Logger{path: path, runID: runID}
}

// Line appends a single formatted line, prefixed with the local timestamp
// and this invocation's run ID and sequence number.
func (l *Logger) Line(format string, args ...any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("create audit log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	l.seq++
	ts := time.Now().Local().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%s #%d] %s %s\n", l.runID, l.seq, ts, fmt.Sprintf(format, args...))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write audit log line: %w", err)
	}
	return nil
}

// Path returns the configured log path.
func (l *Logger) Path() string {
	return l.path
}
