// Package gormhook feeds gorm's create, update and delete callbacks into
// audit interceptors, one per bound model type.
//
// Field changes of Update and Updates are taken from gorm's own change
// detection (Statement.Changed). Save, and Updates with the model itself as
// the destination, are compared column by column with the stored row.
// Deletions snapshot the matching rows before they are removed. Audited paths
// are the column names.
package gormhook

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"auditlog/pkg/audit/interceptor"
)

// DefaultOrigin tags events produced through gorm callbacks.
const DefaultOrigin = "gorm"

var ErrInvalidModel = errors.New("model must be a struct or pointer to struct")

// removedRowsKey holds the rows a delete statement is about to remove.
const removedRowsKey = "auditlog:removed_rows"

// Plugin is a gorm.Plugin; register it with db.Use.
type Plugin struct {
	emitter interceptor.Emitter

	mu       sync.RWMutex
	bindings map[reflect.Type]*interceptor.Interceptor
}

var _ gorm.Plugin = (*Plugin)(nil)

func New(emitter interceptor.Emitter) *Plugin {
	return &Plugin{
		emitter:  emitter,
		bindings: make(map[reflect.Type]*interceptor.Interceptor),
	}
}

func (p *Plugin) Name() string { return "auditlog" }

// Initialize registers the callbacks.
func (p *Plugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().After("gorm:create").Register("auditlog:after_create", p.afterCreate); err != nil {
		return fmt.Errorf("register create callback: %w", err)
	}
	if err := db.Callback().Update().Before("gorm:update").Register("auditlog:before_update", p.beforeUpdate); err != nil {
		return fmt.Errorf("register update callback: %w", err)
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("auditlog:before_delete", p.beforeDelete); err != nil {
		return fmt.Errorf("register delete callback: %w", err)
	}
	if err := db.Callback().Delete().After("gorm:delete").Register("auditlog:after_delete", p.afterDelete); err != nil {
		return fmt.Errorf("register delete callback: %w", err)
	}
	return nil
}

// Bind audits model's type with cfg. An unset Origin defaults to "gorm".
// Binding the same type again replaces the earlier binding.
func (p *Plugin) Bind(model any, cfg interceptor.Config) error {
	t := reflect.TypeOf(model)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %T", ErrInvalidModel, model)
	}
	if cfg.Origin == "" {
		cfg.Origin = DefaultOrigin
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.bindings[t] = interceptor.New(p.emitter, cfg)
	return nil
}

func (p *Plugin) lookup(db *gorm.DB) (*interceptor.Interceptor, bool) {
	if db.Statement == nil || db.Statement.Schema == nil {
		return nil, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	ic, ok := p.bindings[db.Statement.Schema.ModelType]
	return ic, ok
}

func (p *Plugin) afterCreate(db *gorm.DB) {
	ic, ok := p.lookup(db)
	if !ok || db.Error != nil {
		return
	}
	ctx := db.Statement.Context
	eachStruct(db.Statement.ReflectValue, func(rv reflect.Value) {
		ic.OnSave(ctx, &createdDocument{row: row{ctx: ctx, schema: db.Statement.Schema, value: rv}})
	})
}

func (p *Plugin) beforeUpdate(db *gorm.DB) {
	ic, ok := p.lookup(db)
	if !ok || db.Error != nil {
		return
	}
	rv := reflect.Indirect(db.Statement.ReflectValue)
	if rv.Kind() != reflect.Struct {
		return
	}

	var doc *updatedDocument
	if destIsModel(db.Statement) {
		stored, found := loadStored(db, rv)
		if !found {
			return
		}
		doc = newSavedDocument(db.Statement, rv, stored)
	} else {
		doc = newUpdatedDocument(db.Statement, rv)
	}
	ic.OnSave(db.Statement.Context, doc)
}

// beforeDelete loads the rows the statement is about to delete so the
// removal events carry their final state. The model value alone is empty for
// Delete(&T{}, id) and Where(...).Delete(&T{}).
func (p *Plugin) beforeDelete(db *gorm.DB) {
	if _, ok := p.lookup(db); !ok || db.Error != nil {
		return
	}
	stmt := db.Statement

	var conds []clause.Expression
	if c, ok := stmt.Clauses["WHERE"]; ok {
		if where, ok := c.Expression.(clause.Where); ok && len(where.Exprs) > 0 {
			conds = append(conds, where)
		}
	}
	_, queryValues := schema.GetIdentityFieldValuesMap(stmt.Context, stmt.ReflectValue, stmt.Schema.PrimaryFields)
	column, values := schema.ToQueryValues(stmt.Table, stmt.Schema.PrimaryFieldDBNames, queryValues)
	if len(values) > 0 {
		conds = append(conds, clause.Where{Exprs: []clause.Expression{clause.IN{Column: column, Values: values}}})
	}
	if len(conds) == 0 {
		return
	}

	rows := reflect.New(reflect.SliceOf(stmt.Schema.ModelType))
	err := db.Session(&gorm.Session{NewDB: true}).
		Table(stmt.Table).
		Clauses(conds...).
		Find(rows.Interface()).Error
	if err != nil {
		db.Logger.Warn(stmt.Context, "auditlog: load rows before delete: %v", err)
		return
	}
	db.InstanceSet(removedRowsKey, rows.Elem())
}

func (p *Plugin) afterDelete(db *gorm.DB) {
	ic, ok := p.lookup(db)
	if !ok || db.Error != nil || db.RowsAffected == 0 {
		return
	}
	v, ok := db.InstanceGet(removedRowsKey)
	if !ok {
		return
	}
	ctx := db.Statement.Context
	eachStruct(v.(reflect.Value), func(rv reflect.Value) {
		ic.OnRemove(ctx, row{ctx: ctx, schema: db.Statement.Schema, value: rv}.snapshot())
	})
}

// destIsModel reports whether the statement writes the model value itself,
// as Save does. gorm then has nothing to compare the new values with.
func destIsModel(stmt *gorm.Statement) bool {
	dest := reflect.ValueOf(stmt.Dest)
	model := reflect.ValueOf(stmt.Model)
	return dest.Kind() == reflect.Pointer && model.Kind() == reflect.Pointer &&
		!dest.IsNil() && dest.Pointer() == model.Pointer()
}

// loadStored reads the current row of rv by primary key. It reports false
// for rows without a primary key value or not stored yet.
func loadStored(db *gorm.DB, rv reflect.Value) (reflect.Value, bool) {
	stmt := db.Statement
	var exprs []clause.Expression
	for _, field := range stmt.Schema.PrimaryFields {
		v, zero := field.ValueOf(stmt.Context, rv)
		if zero {
			return reflect.Value{}, false
		}
		exprs = append(exprs, clause.Eq{Column: clause.Column{Table: stmt.Table, Name: field.DBName}, Value: v})
	}
	if len(exprs) == 0 {
		return reflect.Value{}, false
	}

	stored := reflect.New(stmt.Schema.ModelType)
	res := db.Session(&gorm.Session{NewDB: true}).
		Table(stmt.Table).
		Clauses(clause.Where{Exprs: exprs}).
		Limit(1).
		Find(stored.Interface())
	if res.Error != nil || res.RowsAffected == 0 {
		return reflect.Value{}, false
	}
	return stored.Elem(), true
}

func eachStruct(rv reflect.Value, fn func(reflect.Value)) {
	rv = reflect.Indirect(rv)
	switch rv.Kind() {
	case reflect.Struct:
		fn(rv)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if elem := reflect.Indirect(rv.Index(i)); elem.Kind() == reflect.Struct {
				fn(elem)
			}
		}
	}
}

// row reads column values from one model struct.
type row struct {
	ctx    context.Context
	schema *schema.Schema
	value  reflect.Value
}

func (r row) get(path string) (any, bool) {
	field := r.schema.LookUpField(path)
	if field == nil || field.DBName == "" {
		return nil, false
	}
	v, _ := field.ValueOf(r.ctx, r.value)
	return v, true
}

func (r row) snapshot() map[string]any {
	out := make(map[string]any, len(r.schema.Fields))
	for _, field := range r.schema.Fields {
		if field.DBName == "" {
			continue
		}
		v, _ := field.ValueOf(r.ctx, r.value)
		out[field.DBName] = v
	}
	return out
}
