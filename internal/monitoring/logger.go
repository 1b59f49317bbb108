// Package monitoring holds the bridge's diagnostic log streams.
//
// Three streams are kept apart so that noisy per-packet output can be muted
// without losing lifecycle messages:
//
//   - ops: lifecycle events and actionable failures (bind errors, shutdown)
//   - diag: recoverable runtime errors (failed receives, failed sends)
//   - trace: per-packet noise (malformed telemetry, unknown control bytes)
package monitoring

import (
	"io"
	"log"
	"os"
	"sync"
)

const prefix = "[simbridge] "

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

var (
	mu          sync.RWMutex
	opsLogger   = newLogger(os.Stderr)
	diagLogger  = newLogger(os.Stderr)
	traceLogger *log.Logger
)

// SetLogWriters configures all three logging streams at once.
// Pass nil for any writer to disable that stream.
func SetLogWriters(w LogWriters) {
	mu.Lock()
	defer mu.Unlock()
	opsLogger = newLogger(w.Ops)
	diagLogger = newLogger(w.Diag)
	traceLogger = newLogger(w.Trace)
}

// Mute disables every stream. Intended for tests.
func Mute() {
	SetLogWriters(LogWriters{})
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

func printf(l *log.Logger, format string, args ...interface{}) {
	if l != nil {
		l.Printf(format, args...)
	}
}

// Opsf logs to the ops stream.
func Opsf(format string, args ...interface{}) {
	mu.RLock()
	l := opsLogger
	mu.RUnlock()
	printf(l, format, args...)
}

// Diagf logs to the diag stream.
func Diagf(format string, args ...interface{}) {
	mu.RLock()
	l := diagLogger
	mu.RUnlock()
	printf(l, format, args...)
}

// Tracef logs to the trace stream. The stream is off by default.
func Tracef(format string, args ...interface{}) {
	mu.RLock()
	l := traceLogger
	mu.RUnlock()
	printf(l, format, args...)
}
