package relay

import (
	"context"
	"io"
	"sync"
)

// nopCloser turns a reader into a serial.Port.
type nopCloser struct {
	io.Reader
}

func (nopCloser) Close() error { return nil }

// blockingPort is a serial.Port whose Read blocks until Close.
type blockingPort struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu     sync.Mutex
	closed bool
}

func newBlockingPort() *blockingPort {
	pr, pw := io.Pipe()
	return &blockingPort{pr: pr, pw: pw}
}

func (p *blockingPort) Read(b []byte) (int, error) { return p.pr.Read(b) }

func (p *blockingPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.pw.Close() //nolint:errcheck // Test helper
	return p.pr.Close()
}

func (p *blockingPort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeHistory records envelopes in memory.
type fakeHistory struct {
	mu        sync.Mutex
	topics    []string
	envelopes []Envelope
	err       error
}

func (h *fakeHistory) Record(_ context.Context, topic string, env Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.topics = append(h.topics, topic)
	h.envelopes = append(h.envelopes, env)
	return nil
}

// recordingLogger counts entries per level.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

func (l *recordingLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.log("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.log("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.log("error", msg, args) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

func (l *recordingLogger) last() logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return logEntry{}
	}
	return l.entries[len(l.entries)-1]
}

// panicLogger panics on every call.
type panicLogger struct{}

func (panicLogger) Debug(string, ...any) { panic("debug") }
func (panicLogger) Info(string, ...any)  { panic("info") }
func (panicLogger) Warn(string, ...any)  { panic("warn") }
func (panicLogger) Error(string, ...any) { panic("error") }
