// Package sink defines the contract every audit destination satisfies and the
// configuration and debug-reporting helpers shared by the implementations.
//
// A sink is constructed once, owns its connection for the life of the process
// and persists one event per Persist call. Sinks never surface failures to the
// code whose mutation produced the event: Persist reports on the sink's own
// debug channel and returns the error only so the dispatcher can count it.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"auditlog/pkg/audit"
)

//go:generate mockgen -source=sink.go -destination=../../../mocks/sink/mock_sink.go -package=mocksink Sink

// Sink is a durable destination for audit events.
type Sink interface {
	// Configure applies options and reaches the backing store. A connection
	// failure is reported and returned, but the sink stays usable as a value:
	// later Persist calls fail with ErrNotConnected.
	Configure(ctx context.Context, opts Options) error
	// Persist stores one payload. Payloads that are not audit events are
	// ignored and return nil.
	Persist(ctx context.Context, p audit.Payload) error
}

var (
	ErrNotConnected = errors.New("sink is not connected")
	ErrClosed       = errors.New("sink is closed")
)

// DefaultModelName names the collection, table, stream or topic events land in
// when Options.ModelName is unset.
const DefaultModelName = "AuditLog"

// Options is the configuration surface shared by all sinks.
type Options struct {
	// ConnectionString addresses the backing store. Its format is sink specific.
	ConnectionString string
	// ModelName is the collection/table/stream/topic name.
	ModelName string
	// Debug enables the sink's debug channel.
	Debug bool
	// Logger receives debug output; slog.Default() when nil.
	Logger *slog.Logger
}

// Defaults returns the documented default options.
func Defaults() Options {
	return Options{ModelName: DefaultModelName}
}

// Merge overlays every non-zero field of override onto o.
func (o Options) Merge(override Options) Options {
	if override.ConnectionString != "" {
		o.ConnectionString = override.ConnectionString
	}
	if override.ModelName != "" {
		o.ModelName = override.ModelName
	}
	if override.Debug {
		o.Debug = true
	}
	if override.Logger != nil {
		o.Logger = override.Logger
	}
	return o
}

// Resolve merges opts over the defaults.
func Resolve(opts Options) Options {
	return Defaults().Merge(opts)
}

// TableName converts a model name like "AuditLog" into "audit_log".
func TableName(model string) string {
	var b strings.Builder
	runes := []rune(model)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if r == '-' || r == ' ' || r == '.' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Debugger is a sink's debug channel. Messages are written only when debug
// output is enabled for the sink.
type Debugger struct {
	name    string
	enabled bool
	logger  *slog.Logger
}

// NewDebugger builds the debug channel for the named sink.
func NewDebugger(name string, opts Options) Debugger {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return Debugger{name: name, enabled: opts.Debug, logger: logger}
}

// Enabled reports whether messages will be written.
func (d Debugger) Enabled() bool { return d.enabled }

// Printf reports a formatted message.
func (d Debugger) Printf(ctx context.Context, format string, args ...any) {
	d.log(ctx, slog.LevelInfo, fmt.Sprintf(format, args...))
}

func (d Debugger) log(ctx context.Context, level slog.Level, msg string) {
	if !d.enabled || d.logger == nil {
		return
	}
	d.logger.Log(ctx, level, "audit-log("+d.name+"): "+msg, "sink", d.name)
}

// Failure reports err with a short description of what failed and returns it
// wrapped, so sinks can write `return d.Failure(ctx, "save event", err)`.
func (d Debugger) Failure(ctx context.Context, what string, err error) error {
	if err == nil {
		return nil
	}
	d.log(ctx, slog.LevelWarn, fmt.Sprintf("error %s: %v", what, err))
	return fmt.Errorf("%s: %w", what, err)
}
