package interceptor

import (
	"maps"
	"slices"
)

// Record is a map-backed Document with its own change tracking. It serves
// callers whose data layer has no dirty tracking of its own, and tests.
type Record struct {
	values    map[string]any
	persisted bool
	modified  []string
	indirect  map[string]struct{}
	requested map[string]struct{}
}

// NewRecord returns an unsaved record holding values.
func NewRecord(values map[string]any) *Record {
	return &Record{values: cloneValues(values)}
}

// LoadRecord returns a record that was read from storage and has no pending
// changes.
func LoadRecord(values map[string]any) *Record {
	r := NewRecord(values)
	r.persisted = true
	return r
}

// Set assigns a field and marks it directly modified.
func (r *Record) Set(path string, value any) {
	r.values[path] = value
	r.touch(path)
	delete(r.indirect, path)
}

// SetIndirect assigns a field as a side effect of a nested change. Indirect
// changes are tracked but never audited.
func (r *Record) SetIndirect(path string, value any) {
	r.values[path] = value
	r.touch(path)
	if r.indirect == nil {
		r.indirect = make(map[string]struct{})
	}
	r.indirect[path] = struct{}{}
}

// RequestEmit opts a gated field into the audit trail for the next save.
func (r *Record) RequestEmit(path string) {
	if r.requested == nil {
		r.requested = make(map[string]struct{})
	}
	r.requested[path] = struct{}{}
}

// Commit marks the record as persisted and clears all pending changes.
func (r *Record) Commit() {
	r.persisted = true
	r.modified = nil
	r.indirect = nil
	r.requested = nil
}

// Snapshot returns a copy of the current field values.
func (r *Record) Snapshot() map[string]any {
	return cloneValues(r.values)
}

func (r *Record) IsNew() bool { return !r.persisted }

func (r *Record) ModifiedPaths() []string { return slices.Clone(r.modified) }

func (r *Record) IsDirectModified(path string) bool {
	if !slices.Contains(r.modified, path) {
		return false
	}
	_, indirect := r.indirect[path]
	return !indirect
}

func (r *Record) Get(path string) (any, bool) {
	v, ok := r.values[path]
	return v, ok
}

func (r *Record) EmitRequested(path string) bool {
	_, ok := r.requested[path]
	return ok
}

func (r *Record) touch(path string) {
	if !slices.Contains(r.modified, path) {
		r.modified = append(r.modified, path)
	}
}

func cloneValues(values map[string]any) map[string]any {
	if values == nil {
		return make(map[string]any)
	}
	return maps.Clone(values)
}
