package interceptor

import (
	"log/slog"
	"slices"

	"auditlog/pkg/audit"
	"auditlog/pkg/audit/actor"
	"auditlog/pkg/platform/strings"
)

// Default configuration values.
const (
	DefaultModelName     = "untitled"
	DefaultOrigin        = "interceptor"
	DefaultIDPath        = "id"
	DefaultVersionPath   = "version"
	DefaultTimestampPath = "modified_at"
)

// Config describes how one entity type is audited. Zero-valued fields take
// the defaults documented on each field. For the slice fields nil means
// "use the default" and an empty non-nil slice means "none".
type Config struct {
	// ModelName is the human-readable entity type, recorded as the event label.
	// Default "untitled".
	ModelName string
	// Origin tags the events this binding produces. Default "interceptor".
	Origin string
	// NamePath is the field whose value names a removed entity.
	NamePath string
	// IDPath is the field holding the entity identifier. Default "id".
	IDPath string
	// VersionPath is the optimistic-lock counter, never audited. Default "version".
	VersionPath string
	// TimestampPath is the bookkeeping timestamp, never audited. Default "modified_at".
	TimestampPath string
	// ExcludePaths are further fields that are never audited.
	ExcludePaths []string
	// GatedPaths are audited only when the document requests it through
	// EmissionGate. Default ["date"].
	GatedPaths []string
	// StoreDoc lists the actions whose events carry a full JSON snapshot
	// instead of a short description. Default [Removed].
	StoreDoc []audit.Action
	// Debug logs every audit decision.
	Debug bool
	// Actor resolves the acting principal; nil records an empty actor.
	Actor actor.Resolver
	// Logger receives debug output. Default slog.Default().
	Logger *slog.Logger
}

// Defaults returns the documented default configuration.
func Defaults() Config {
	return Config{
		ModelName:     DefaultModelName,
		Origin:        DefaultOrigin,
		IDPath:        DefaultIDPath,
		VersionPath:   DefaultVersionPath,
		TimestampPath: DefaultTimestampPath,
		GatedPaths:    []string{"date"},
		StoreDoc:      []audit.Action{audit.ActionRemoved},
	}
}

// Merge overlays the set fields of override onto c.
func (c Config) Merge(override Config) Config {
	if override.ModelName != "" {
		c.ModelName = override.ModelName
	}
	if override.Origin != "" {
		c.Origin = override.Origin
	}
	if override.NamePath != "" {
		c.NamePath = override.NamePath
	}
	if override.IDPath != "" {
		c.IDPath = override.IDPath
	}
	if override.VersionPath != "" {
		c.VersionPath = override.VersionPath
	}
	if override.TimestampPath != "" {
		c.TimestampPath = override.TimestampPath
	}
	if override.ExcludePaths != nil {
		c.ExcludePaths = strings.DedupeAndTrim(override.ExcludePaths)
	}
	if override.GatedPaths != nil {
		c.GatedPaths = strings.DedupeAndTrim(override.GatedPaths)
	}
	if override.StoreDoc != nil {
		c.StoreDoc = slices.Clone(override.StoreDoc)
	}
	if override.Debug {
		c.Debug = true
	}
	if override.Actor != nil {
		c.Actor = override.Actor
	}
	if override.Logger != nil {
		c.Logger = override.Logger
	}
	return c
}

// StoresDoc reports whether events for action keep a full snapshot.
func (c Config) StoresDoc(action audit.Action) bool {
	return slices.Contains(c.StoreDoc, action)
}
