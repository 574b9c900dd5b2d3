// Package dispatcher fans audit payloads out to registered sinks.
//
// Emit never blocks and never fails: each sink has its own bounded lane and
// worker goroutine, so a slow or broken sink only loses its own events. The
// outcome of every delivery is visible through the logger, the Prometheus
// metrics and a span per persist call, never through the caller of Emit.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"auditlog/pkg/audit"
	"auditlog/pkg/audit/sink"
)

var (
	ErrDuplicateSink = errors.New("sink already registered")
	ErrClosed        = errors.New("dispatcher is closed")
	ErrNilSink       = errors.New("sink is nil")
)

const (
	defaultBufferSize = 1024
	tracerName        = "auditlog/dispatcher"
)

// Dispatcher routes payloads to every registered sink.
type Dispatcher struct {
	mu     sync.RWMutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup

	logger           *slog.Logger
	metrics          *Metrics
	tracer           trace.Tracer
	bufferSize       int
	persistTimeout   time.Duration
	breakerThreshold int
	breakerCooldown  time.Duration
	now              func() time.Time

	dropped atomic.Uint64
}

type lane struct {
	name    string
	sink    sink.Sink
	ch      chan audit.Payload
	breaker *circuitBreaker
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithTracer overrides the tracer; the global otel provider is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithBufferSize sets the per-sink queue capacity.
func WithBufferSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.bufferSize = n
		}
	}
}

// WithPersistTimeout bounds each Persist call. Zero means no timeout.
func WithPersistTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.persistTimeout = timeout
		}
	}
}

// WithBreaker configures the per-sink circuit breaker: after threshold
// consecutive failures a sink is skipped for cooldown.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(d *Dispatcher) {
		d.breakerThreshold = threshold
		d.breakerCooldown = cooldown
	}
}

// WithClock sets the time source used by the circuit breakers.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates a dispatcher with no sinks.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		lanes:      make(map[string]*lane),
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
		bufferSize: defaultBufferSize,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds a sink under name and starts its delivery worker. Sinks may be
// registered while events are being emitted; they only see later events.
func (d *Dispatcher) Register(ctx context.Context, name string, s sink.Sink) error {
	if s == nil {
		return ErrNilSink
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if _, ok := d.lanes[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSink, name)
	}

	l := &lane{
		name:    name,
		sink:    s,
		ch:      make(chan audit.Payload, d.bufferSize),
		breaker: newCircuitBreaker(d.breakerThreshold, d.breakerCooldown, d.now),
	}
	d.lanes[name] = l
	d.metrics.setCircuitOpen(name, false)

	d.wg.Add(1)
	go d.run(l)

	d.logger.DebugContext(ctx, "audit sink registered", "sink", name)
	return nil
}

// Sinks returns the registered sink names in sorted order.
func (d *Dispatcher) Sinks() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.lanes))
	for name := range d.lanes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Emit hands p to every registered sink and returns immediately. A sink whose
// queue is full loses p; other sinks are unaffected. Emit after Close is a
// no-op.
func (d *Dispatcher) Emit(ctx context.Context, p audit.Payload) {
	if d == nil || p == nil {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}
	d.metrics.incEmitted()

	for _, l := range d.lanes {
		select {
		case l.ch <- p:
		default:
			d.dropped.Add(1)
			d.metrics.incDropped(l.name, reasonBufferFull)
			d.logger.DebugContext(ctx, "audit sink queue full, dropping payload", "sink", l.name)
		}
	}
}

// Dropped returns how many deliveries were dropped because a queue was full or
// a circuit was open.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Close stops accepting payloads, waits for queued payloads to be delivered and
// then closes every sink that implements io.Closer. If ctx expires first the
// remaining payloads are abandoned to their workers and ctx's error returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	lanes := make([]*lane, 0, len(d.lanes))
	for _, l := range d.lanes {
		close(l.ch)
		lanes = append(lanes, l)
	}
	d.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range lanes {
		closer, ok := l.sink.(io.Closer)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := closer.Close(); err != nil {
				d.logger.WarnContext(gctx, "failed to close audit sink", "sink", l.name, "error", err)
				return fmt.Errorf("close sink %s: %w", l.name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Dispatcher) run(l *lane) {
	defer d.wg.Done()
	for p := range l.ch {
		d.deliver(l, p)
	}
}

func (d *Dispatcher) deliver(l *lane, p audit.Payload) {
	ctx := context.Background()

	if !l.breaker.Allow() {
		d.dropped.Add(1)
		d.metrics.incDropped(l.name, reasonCircuitOpen)
		return
	}
	d.metrics.setCircuitOpen(l.name, false)

	if d.persistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.persistTimeout)
		defer cancel()
	}

	ctx, span := d.tracer.Start(ctx, "auditlog.persist", trace.WithAttributes(
		attribute.String("auditlog.sink", l.name),
		attribute.String("auditlog.log_type", string(p.LogType())),
	))
	defer span.End()

	start := time.Now()
	err := persist(ctx, l.sink, p)
	d.metrics.observePersist(l.name, time.Since(start).Seconds(), err)

	if err == nil {
		l.breaker.RecordSuccess()
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	attrs := []any{"sink", l.name, "error", err}
	if e, ok := audit.AsEvent(p); ok {
		attrs = append(attrs, "event_id", e.ID, "action", e.Action, "label", e.Label)
	}
	d.logger.DebugContext(ctx, "audit sink persist failed, dropping event", attrs...)

	if l.breaker.RecordFailure() {
		d.metrics.setCircuitOpen(l.name, true)
		d.logger.WarnContext(ctx, "audit sink circuit opened", "sink", l.name)
	}
}

// persist calls the sink and turns a panic into an error so a faulty sink
// cannot take the worker, or the process, down with it.
func persist(ctx context.Context, s sink.Sink, p audit.Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return s.Persist(ctx, p)
}
