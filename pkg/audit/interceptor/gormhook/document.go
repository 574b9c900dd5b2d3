package gormhook

import (
	"reflect"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/gorm/utils"
)

// createdDocument is a freshly inserted row.
type createdDocument struct {
	row
}

func (d *createdDocument) IsNew() bool                  { return true }
func (d *createdDocument) ModifiedPaths() []string      { return nil }
func (d *createdDocument) IsDirectModified(string) bool { return false }
func (d *createdDocument) Get(path string) (any, bool)  { return d.get(path) }

// updatedDocument is a row about to be updated. Current values come from
// the model, new values from the statement's destination.
type updatedDocument struct {
	row
	changed []string
	values  map[string]any
}

func newUpdatedDocument(stmt *gorm.Statement, rv reflect.Value) *updatedDocument {
	doc := &updatedDocument{
		row:    row{ctx: stmt.Context, schema: stmt.Schema, value: rv},
		values: make(map[string]any),
	}
	selected, _ := stmt.SelectAndOmitColumns(false, true)

	for _, field := range stmt.Schema.Fields {
		if field.DBName == "" || field.PrimaryKey {
			continue
		}
		value, ok := destValue(stmt, field, selected)
		if !ok || !stmt.Changed(field.Name) {
			continue
		}
		doc.changed = append(doc.changed, field.DBName)
		doc.values[field.DBName] = value
	}
	return doc
}

// newSavedDocument compares the model with its stored row. Columns left out
// by Select or Omit are not written and not reported.
func newSavedDocument(stmt *gorm.Statement, rv, stored reflect.Value) *updatedDocument {
	doc := &updatedDocument{
		row:    row{ctx: stmt.Context, schema: stmt.Schema, value: rv},
		values: make(map[string]any),
	}
	selected, restricted := stmt.SelectAndOmitColumns(false, true)

	for _, field := range stmt.Schema.Fields {
		if field.DBName == "" || field.PrimaryKey {
			continue
		}
		if v, ok := selected[field.DBName]; (ok && !v) || (!ok && restricted) {
			continue
		}
		next, _ := field.ValueOf(stmt.Context, rv)
		prev, _ := field.ValueOf(stmt.Context, stored)
		if utils.AssertEqual(next, prev) {
			continue
		}
		doc.changed = append(doc.changed, field.DBName)
		doc.values[field.DBName] = next
	}
	return doc
}

// destValue returns the value the statement writes to field. Zero fields of
// a struct destination are skipped by gorm unless selected explicitly.
func destValue(stmt *gorm.Statement, field *schema.Field, selected map[string]bool) (any, bool) {
	switch dest := stmt.Dest.(type) {
	case map[string]any:
		if v, ok := dest[field.Name]; ok {
			return v, true
		}
		v, ok := dest[field.DBName]
		return v, ok
	default:
		rv := reflect.Indirect(reflect.ValueOf(stmt.Dest))
		if rv.Kind() != reflect.Struct || rv.Type() != stmt.Schema.ModelType {
			return nil, false
		}
		v, zero := field.ValueOf(stmt.Context, rv)
		if zero && !selected[field.DBName] {
			return nil, false
		}
		return v, true
	}
}

func (d *updatedDocument) IsNew() bool { return false }

func (d *updatedDocument) ModifiedPaths() []string { return slices.Clone(d.changed) }

// IsDirectModified is true for every changed column; associations have no
// column and never appear.
func (d *updatedDocument) IsDirectModified(path string) bool {
	return slices.Contains(d.changed, path)
}

func (d *updatedDocument) Get(path string) (any, bool) {
	if v, ok := d.values[path]; ok {
		return v, true
	}
	return d.get(path)
}
