// Package redisstream appends audit events to a Redis stream named after
// Options.ModelName. Each entry carries the JSON event in "payload" plus the
// action, label and object id as flat fields for consumers that filter
// without decoding.
package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"auditlog/pkg/audit"
	"auditlog/pkg/audit/sink"
)

// Sink writes to one stream.
type Sink struct {
	maxLen int64

	mu     sync.RWMutex
	client *redis.Client
	owned  bool
	stream string
	debug  sink.Debugger
}

type Option func(*Sink)

// WithMaxLen caps the stream at roughly n entries (XADD MAXLEN ~).
func WithMaxLen(n int64) Option {
	return func(s *Sink) {
		if n > 0 {
			s.maxLen = n
		}
	}
}

// WithClient reuses an existing client instead of dialing the connection
// string. The caller keeps ownership of client.
func WithClient(client *redis.Client) Option {
	return func(s *Sink) {
		s.client = client
	}
}

func New(opts ...Option) *Sink {
	s := &Sink{debug: sink.NewDebugger("redis", sink.Defaults())}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure dials the redis:// URL in opts.ConnectionString and pings it.
func (s *Sink) Configure(ctx context.Context, opts sink.Options) error {
	opts = sink.Resolve(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.debug = sink.NewDebugger("redis", opts)
	s.stream = opts.ModelName

	if s.client == nil {
		parsed, err := redis.ParseURL(opts.ConnectionString)
		if err != nil {
			return s.debug.Failure(ctx, "connect", fmt.Errorf("parse redis URL: %w", err))
		}
		s.client, s.owned = redis.NewClient(parsed), true
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.closeLocked()
		s.client = nil
		return s.debug.Failure(ctx, "connect", fmt.Errorf("redis ping failed: %w", err))
	}
	s.debug.Printf(ctx, "connected, stream %s", s.stream)
	return nil
}

// Persist adds one stream entry.
func (s *Sink) Persist(ctx context.Context, p audit.Payload) error {
	event, ok := audit.AsEvent(p)
	if !ok {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return s.debug.Failure(ctx, "encode event", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.client == nil {
		return s.debug.Failure(ctx, "save event", sink.ErrNotConnected)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"payload": string(payload),
			"action":  string(event.Action),
			"label":   event.Label,
			"object":  event.ObjectID,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return s.debug.Failure(ctx, "save event", err)
	}
	s.debug.Printf(ctx, "emit: %s %s %s", event.Action, event.Label, event.ObjectID)
	return nil
}

// Read returns up to count events from the start of the stream.
func (s *Sink) Read(ctx context.Context, count int64) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.client == nil {
		return nil, sink.ErrNotConnected
	}
	entries, err := s.client.XRangeN(ctx, s.stream, "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", s.stream, err)
	}

	events := make([]audit.Event, 0, len(entries))
	for _, entry := range entries {
		raw, ok := entry.Values["payload"].(string)
		if !ok {
			continue
		}
		var e audit.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", entry.ID, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// Close closes the client if the sink dialed it.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.closeLocked()
	s.client = nil
	return err
}

func (s *Sink) closeLocked() error {
	if s.client == nil || !s.owned {
		return nil
	}
	s.owned = false
	return s.client.Close()
}
