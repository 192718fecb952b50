// Package monitoring holds the logging plumbing shared by the world model
// packages.
//
// Every package logs on three streams:
//
//   - ops: actionable warnings, errors, data loss
//   - diag: day-to-day diagnostics and tuning context
//   - trace: per-cycle and per-packet telemetry
//
// Each stream can be pointed at its own writer or disabled with nil.
package monitoring

import (
	"io"
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Streams is a set of ops/diag/trace loggers sharing a prefix.
// The zero value logs nothing.
type Streams struct {
	prefix string

	mu    sync.RWMutex
	ops   *log.Logger
	diag  *log.Logger
	trace *log.Logger
}

// NewStreams returns Streams with every stream disabled. prefix is written
// in front of each line, e.g. "[worldmodel] ".
func NewStreams(prefix string) *Streams {
	return &Streams{prefix: prefix}
}

// SetWriters configures the three streams. Pass nil for any writer to
// disable that stream.
func (s *Streams) SetWriters(ops, diag, trace io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = newLogger(s.prefix, ops)
	s.diag = newLogger(s.prefix, diag)
	s.trace = newLogger(s.prefix, trace)
}

// SetSingleWriter routes all three streams to w.
func (s *Streams) SetSingleWriter(w io.Writer) {
	s.SetWriters(w, w, w)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs to the ops stream.
func (s *Streams) Opsf(format string, args ...interface{}) {
	s.printf(func() *log.Logger { return s.ops }, format, args...)
}

// Diagf logs to the diag stream.
func (s *Streams) Diagf(format string, args ...interface{}) {
	s.printf(func() *log.Logger { return s.diag }, format, args...)
}

// Tracef logs to the trace stream.
func (s *Streams) Tracef(format string, args ...interface{}) {
	s.printf(func() *log.Logger { return s.trace }, format, args...)
}

// TraceEnabled reports whether the trace stream has a writer. Callers use it
// to skip building expensive per-cycle summaries.
func (s *Streams) TraceEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trace != nil
}

func (s *Streams) printf(pick func() *log.Logger, format string, args ...interface{}) {
	s.mu.RLock()
	l := pick()
	s.mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}
