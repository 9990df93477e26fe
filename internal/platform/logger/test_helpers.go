package logger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
)

// CaptureBuffer collects JSON log lines written by a capture logger.
// It is safe for use by concurrent writers.
type CaptureBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *CaptureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *CaptureBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Entries decodes every captured line into a key/value map.
func (b *CaptureBuffer) Entries() ([]map[string]any, error) {
	var entries []map[string]any
	sc := bufio.NewScanner(bytes.NewReader([]byte(b.String())))
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, sc.Err()
}

// Find returns the first entry logged with msg, or nil.
func (b *CaptureBuffer) Find(msg string) map[string]any {
	entries, err := b.Entries()
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if e["msg"] == msg {
			return e
		}
	}
	return nil
}

// NewCaptureLogger returns a debug-level JSON logger that writes to a fresh
// CaptureBuffer.
func NewCaptureLogger(tb testing.TB) (*slog.Logger, *CaptureBuffer) {
	tb.Helper()
	buf := &CaptureBuffer{}
	return New(buf, slog.LevelDebug), buf
}

// NewCaptureContext returns a context carrying a capture logger.
func NewCaptureContext(tb testing.TB) (context.Context, *CaptureBuffer) {
	tb.Helper()
	log, buf := NewCaptureLogger(tb)
	return WithLogger(context.Background(), log), buf
}
