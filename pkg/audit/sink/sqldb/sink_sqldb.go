// Package sqldb stores audit events with database/sql on PostgreSQL (lib/pq
// or pgx) or SQLite. Inserts are idempotent on the event id, so replaying a
// file of events into the same table does not duplicate rows.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"auditlog/pkg/audit"
	"auditlog/pkg/audit/sink"
)

// Sink writes events to one table.
type Sink struct {
	mu      sync.RWMutex
	db      *sql.DB
	dialect dialect
	table   string
	debug   sink.Debugger
}

func New() *Sink {
	return &Sink{debug: sink.NewDebugger("sql", sink.Defaults())}
}

// Configure opens the database, verifies the connection and creates the
// event table when it does not exist.
func (s *Sink) Configure(ctx context.Context, opts sink.Options) error {
	opts = sink.Resolve(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.debug = sink.NewDebugger("sql", opts)

	d, dsn, err := parseConnection(opts.ConnectionString)
	if err != nil {
		return s.debug.Failure(ctx, "connect", err)
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return s.debug.Failure(ctx, "connect", err)
	}
	if d == sqliteDialect {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return s.debug.Failure(ctx, "connect", err)
	}

	table := pq.QuoteIdentifier(sink.TableName(opts.ModelName))
	if _, err := db.ExecContext(ctx, d.createTable(table)); err != nil {
		_ = db.Close()
		return s.debug.Failure(ctx, "create table "+table, err)
	}

	s.db, s.dialect, s.table = db, d, table
	s.debug.Printf(ctx, "connected via %s, table %s", d.driver, table)
	return nil
}

// Persist inserts one event. An event whose id is already stored is
// silently kept as is.
func (s *Sink) Persist(ctx context.Context, p audit.Payload) error {
	event, ok := audit.AsEvent(p)
	if !ok {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return s.debug.Failure(ctx, "save event", sink.ErrNotConnected)
	}

	var path sql.NullString
	if event.Path != "" {
		path = sql.NullString{String: event.Path, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.dialect.insert(s.table),
		event.ID.String(), event.Actor, event.Timestamp.UTC(), event.Origin, string(event.Action),
		path, event.Label, event.ObjectID, event.Description,
	)
	if err != nil {
		return s.debug.Failure(ctx, "save event", err)
	}
	s.debug.Printf(ctx, "emit: %s %s %s", event.Action, event.Label, event.ObjectID)
	return nil
}

// History returns the stored events of one entity instance, oldest first.
func (s *Sink) History(ctx context.Context, objectID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, sink.ErrNotConnected
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.selectByObject(s.table), objectID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (audit.Event, error) {
	var (
		id, actor, origin, action, label, object, description string
		date                                                  time.Time
		path                                                  sql.NullString
	)
	if err := rows.Scan(&id, &actor, &date, &origin, &action, &path, &label, &object, &description); err != nil {
		return audit.Event{}, fmt.Errorf("scan event: %w", err)
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return audit.Event{}, fmt.Errorf("scan event: %w", err)
	}
	parsedAction, err := audit.ParseAction(action)
	if err != nil {
		return audit.Event{}, fmt.Errorf("scan event: %w", err)
	}
	return audit.Event{
		ID:          parsedID,
		Actor:       actor,
		Timestamp:   date,
		Origin:      origin,
		Action:      parsedAction,
		Path:        path.String,
		Label:       label,
		ObjectID:    object,
		Description: description,
	}, nil
}

// Close releases the connection pool.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
