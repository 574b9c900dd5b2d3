// Package jsonl appends audit events to a local file, one JSON document per
// line, rotating the file once it grows past a size limit.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"auditlog/pkg/audit"
	"auditlog/pkg/audit/sink"
)

// DefaultRotateMaxBytes is the size at which the active file is rotated.
const DefaultRotateMaxBytes int64 = 100 * 1024 * 1024

var ErrMissingPath = errors.New("missing jsonl path")

// Sink writes events to the file named by Options.ConnectionString.
type Sink struct {
	rotateMaxBytes int64
	now            func() time.Time

	mu     sync.Mutex
	path   string
	f      *os.File
	w      *bufio.Writer
	size   int64
	closed bool
	debug  sink.Debugger
}

type Option func(*Sink)

// WithRotateMaxBytes sets the rotation threshold; n <= 0 keeps the default.
func WithRotateMaxBytes(n int64) Option {
	return func(s *Sink) {
		if n > 0 {
			s.rotateMaxBytes = n
		}
	}
}

// WithClock sets the time source used to name rotated files.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *Sink {
	s := &Sink{
		rotateMaxBytes: DefaultRotateMaxBytes,
		now:            time.Now,
		debug:          sink.NewDebugger("jsonl", sink.Defaults()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure opens (creating if needed) the file at opts.ConnectionString in
// append mode.
func (s *Sink) Configure(ctx context.Context, opts sink.Options) error {
	opts = sink.Resolve(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.debug = sink.NewDebugger("jsonl", opts)
	s.path = strings.TrimSpace(opts.ConnectionString)
	if s.path == "" {
		return s.debug.Failure(ctx, "open file", ErrMissingPath)
	}
	if err := s.openLocked(); err != nil {
		return s.debug.Failure(ctx, "open file", err)
	}
	s.debug.Printf(ctx, "writing to %s", s.path)
	return nil
}

// Persist appends one line and flushes it.
func (s *Sink) Persist(ctx context.Context, p audit.Payload) error {
	event, ok := audit.AsEvent(p)
	if !ok {
		return nil
	}
	b, err := json.Marshal(event)
	if err != nil {
		return s.debug.Failure(ctx, "encode event", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.debug.Failure(ctx, "save event", sink.ErrClosed)
	}
	if s.w == nil {
		return s.debug.Failure(ctx, "save event", sink.ErrNotConnected)
	}
	if err := s.rotateIfNeededLocked(int64(len(b)) + 1); err != nil {
		return s.debug.Failure(ctx, "rotate file", err)
	}

	n, err := s.w.Write(append(b, '\n'))
	s.size += int64(n)
	if err != nil {
		return s.debug.Failure(ctx, "save event", err)
	}
	if err := s.w.Flush(); err != nil {
		return s.debug.Failure(ctx, "save event", err)
	}
	s.debug.Printf(ctx, "emit: %s %s %s", event.Action, event.Label, event.ObjectID)
	return nil
}

// Close flushes and closes the file. Later Persist calls fail with
// sink.ErrClosed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.f == nil {
		return nil
	}
	var flushErr error
	if s.w != nil {
		flushErr = s.w.Flush()
	}
	err := s.f.Close()
	s.f, s.w, s.size = nil, nil, 0
	return errors.Join(flushErr, err)
}

func (s *Sink) openLocked() error {
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.size = 0
	if st, err := f.Stat(); err == nil {
		s.size = st.Size()
	}
	s.f = f
	s.w = bufio.NewWriterSize(f, 64*1024)
	return nil
}

func (s *Sink) rotateIfNeededLocked(addBytes int64) error {
	if s.size == 0 || s.size+addBytes <= s.rotateMaxBytes {
		return nil
	}

	_ = s.w.Flush()
	_ = s.f.Close()
	s.f, s.w = nil, nil

	rotated := fmt.Sprintf("%s.%s", s.path, s.now().UTC().Format("20060102T150405.000000000Z"))
	if err := os.Rename(s.path, rotated); err != nil {
		// Keep appending to the current file rather than losing events.
		return s.openLocked()
	}
	return s.openLocked()
}
