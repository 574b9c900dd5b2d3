package memory

import (
	"context"
	"sync"

	"auditlog/pkg/audit"
	"auditlog/pkg/audit/sink"
)

// Sink keeps events in process memory. It is the reference sink used by tests
// and local tooling; events are lost when the process exits.
type Sink struct {
	mu     sync.RWMutex
	events []audit.Event
	fail   error
	debug  sink.Debugger
}

// New returns a configured in-memory sink.
func New(opts sink.Options) *Sink {
	s := &Sink{}
	_ = s.Configure(context.Background(), opts)
	return s
}

// Configure applies options. There is no connection to establish.
func (s *Sink) Configure(_ context.Context, opts sink.Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debug = sink.NewDebugger("memory", sink.Resolve(opts))
	return nil
}

// Persist appends the event. Non-event payloads are ignored.
func (s *Sink) Persist(ctx context.Context, p audit.Payload) error {
	event, ok := audit.AsEvent(p)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.debug.Failure(ctx, "save event", s.fail)
	}
	s.debug.Printf(ctx, "emit: %s %s %s", event.Action, event.Label, event.ObjectID)
	s.events = append(s.events, event)
	return nil
}

// FailWith makes every subsequent Persist fail with err; nil restores normal
// operation.
func (s *Sink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Events returns a copy of all stored events in arrival order.
func (s *Sink) Events() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...)
}

// ByObject returns the stored events for one entity instance.
func (s *Sink) ByObject(objectID string) []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Event
	for _, e := range s.events {
		if e.ObjectID == objectID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of stored events.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
