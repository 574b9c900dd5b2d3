// Package interceptor turns an entity's mutation lifecycle into audit events.
//
// An Interceptor is bound to one entity type. The data-access layer calls
// OnSave before committing a save and OnRemove after a deletion has been
// committed; the interceptor decides which changes are audit-worthy, builds
// one event per change and hands them to an Emitter. It never returns errors
// to the data-access layer.
package interceptor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"auditlog/pkg/audit"
	"auditlog/pkg/platform/strings"
)

// Document is the view of a mutating entity the data-access layer exposes.
type Document interface {
	// IsNew reports whether the entity has never been persisted.
	IsNew() bool
	// ModifiedPaths lists the fields changed since the entity was loaded, in
	// the order the change tracker reports them.
	ModifiedPaths() []string
	// IsDirectModified reports whether path was set on this instance rather
	// than changed through a nested or cascaded document.
	IsDirectModified(path string) bool
	// Get returns the current value of path.
	Get(path string) (any, bool)
}

// EmissionGate is implemented by documents that opt gated fields into the
// audit trail for a single save.
type EmissionGate interface {
	EmitRequested(path string) bool
}

// Emitter accepts finished events. *dispatcher.Dispatcher satisfies it.
type Emitter interface {
	Emit(ctx context.Context, p audit.Payload)
}

// Interceptor is the audit binding for one entity type. It is safe for
// concurrent use; all state is fixed at construction.
type Interceptor struct {
	cfg     Config
	emitter Emitter
	skip    map[string]struct{}
	gated   map[string]struct{}
	logger  *slog.Logger
	now     func() time.Time
}

// New binds cfg, merged over Defaults(), to emitter.
func New(emitter Emitter, cfg Config) *Interceptor {
	cfg = Defaults().Merge(cfg)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	skip := strings.Set(cfg.ExcludePaths...)
	for _, p := range []string{cfg.TimestampPath, cfg.VersionPath} {
		if p != "" {
			skip[p] = struct{}{}
		}
	}

	return &Interceptor{
		cfg:     cfg,
		emitter: emitter,
		skip:    skip,
		gated:   strings.Set(cfg.GatedPaths...),
		logger:  logger.With("model", cfg.ModelName),
		now:     time.Now,
	}
}

// Config returns the effective configuration.
func (i *Interceptor) Config() Config { return i.cfg }

// OnSave runs change detection for a save that is about to be committed and
// emits the resulting events. A first save yields exactly one Created event
// and no field events. It returns the emitted events.
func (i *Interceptor) OnSave(ctx context.Context, doc Document) []audit.Event {
	meta := i.meta(ctx, i.objectID(doc))

	if doc.IsNew() {
		event := audit.NewCreated(meta)
		i.debug(ctx, "created", "object", meta.ObjectID)
		i.emit(ctx, event)
		return []audit.Event{event}
	}

	var events []audit.Event
	for _, path := range doc.ModifiedPaths() {
		if !i.auditable(ctx, doc, path) {
			continue
		}
		value, _ := doc.Get(path)
		events = append(events, audit.NewUpdated(meta, path, value))
	}

	for _, event := range events {
		i.debug(ctx, "updated", "object", meta.ObjectID, "path", event.Path)
		i.emit(ctx, event)
	}
	return events
}

// OnRemove emits the single Removed event for a committed deletion. snapshot
// is the entity's final state; the object id is read from it because the live
// instance may already be gone.
func (i *Interceptor) OnRemove(ctx context.Context, snapshot map[string]any) audit.Event {
	meta := i.meta(ctx, render(snapshot[i.cfg.IDPath]))
	event := audit.NewRemoved(meta, i.removedDescription(ctx, snapshot))
	i.debug(ctx, "removed", "object", meta.ObjectID)
	i.emit(ctx, event)
	return event
}

func (i *Interceptor) auditable(ctx context.Context, doc Document, path string) bool {
	if !doc.IsDirectModified(path) {
		return false
	}
	if _, ok := i.skip[path]; ok {
		return false
	}
	if _, ok := i.gated[path]; ok {
		gate, ok := doc.(EmissionGate)
		if !ok || !gate.EmitRequested(path) {
			i.debug(ctx, "gated field not requested", "path", path)
			return false
		}
	}
	return true
}

func (i *Interceptor) removedDescription(ctx context.Context, snapshot map[string]any) string {
	if i.cfg.StoresDoc(audit.ActionRemoved) {
		raw, err := json.Marshal(snapshot)
		if err == nil {
			return string(raw)
		}
		i.logger.WarnContext(ctx, "audit snapshot not serializable, storing summary", "error", err)
	}

	var name string
	if i.cfg.NamePath != "" {
		name = render(snapshot[i.cfg.NamePath])
	}
	return `Removed "` + name + `"`
}

func (i *Interceptor) meta(ctx context.Context, objectID string) audit.Meta {
	return audit.Meta{
		Actor:    i.cfg.Actor.Resolve(ctx),
		Origin:   i.cfg.Origin,
		Label:    i.cfg.ModelName,
		ObjectID: objectID,
		Time:     i.now(),
	}
}

func (i *Interceptor) objectID(doc Document) string {
	v, _ := doc.Get(i.cfg.IDPath)
	return render(v)
}

func (i *Interceptor) emit(ctx context.Context, event audit.Event) {
	if i.emitter == nil {
		return
	}
	i.emitter.Emit(ctx, event)
}

func (i *Interceptor) debug(ctx context.Context, msg string, args ...any) {
	if i.cfg.Debug {
		i.logger.InfoContext(ctx, "audit interceptor: "+msg, args...)
	}
}

// render formats identifiers and names; nil renders as "".
func render(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
