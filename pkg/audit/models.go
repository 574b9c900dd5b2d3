package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action is the closed set of mutations an audit event can describe.
type Action string

const (
	ActionCreated Action = "Created"
	ActionUpdated Action = "Updated"
	ActionRemoved Action = "Removed"
)

// Valid reports whether a belongs to the closed action set.
func (a Action) Valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionRemoved:
		return true
	}
	return false
}

// ParseAction maps a stored action name back onto the closed set.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

// LogType discriminates the payload shapes a dispatcher may route. Sinks only
// persist LogTypeEvent payloads and ignore the rest.
type LogType string

const LogTypeEvent LogType = "Event"

// Payload is anything that can be handed to a dispatcher.
type Payload interface {
	LogType() LogType
}

var (
	ErrUnknownAction  = errors.New("unknown audit action")
	ErrMissingObject  = errors.New("audit event requires an object id")
	ErrPathMismatch   = errors.New("audit event path must be set for updates only")
	ErrMissingLogType = errors.New("audit payload is not an event")
)

// Event is one observed change to a persistent entity. Events are values:
// once built by one of the constructors they are never modified, and every
// copy handed to a sink is independent of the one the interceptor kept.
type Event struct {
	ID          uuid.UUID
	Actor       string
	Timestamp   time.Time
	Origin      string
	Action      Action
	Path        string // set only for ActionUpdated
	Label       string
	ObjectID    string
	Description string
}

// LogType marks Event as a genuine audit event.
func (Event) LogType() LogType { return LogTypeEvent }

// Meta carries the fields shared by every event one interceptor produces.
type Meta struct {
	Actor    string
	Origin   string
	Label    string
	ObjectID string
	Time     time.Time
}

func (m Meta) build(action Action, path, description string) Event {
	ts := m.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return Event{
		ID:          uuid.New(),
		Actor:       m.Actor,
		Timestamp:   ts,
		Origin:      m.Origin,
		Action:      action,
		Path:        path,
		Label:       m.Label,
		ObjectID:    m.ObjectID,
		Description: description,
	}
}

// NewCreated builds the single event emitted when an entity is first saved.
func NewCreated(m Meta) Event {
	return m.build(ActionCreated, "", "")
}

// NewUpdated builds the event for one directly modified field.
func NewUpdated(m Meta, path string, value any) Event {
	return m.build(ActionUpdated, path, fmt.Sprintf("Updated %s to %v", path, value))
}

// NewRemoved builds the aggregate event emitted after a deletion.
func NewRemoved(m Meta, description string) Event {
	return m.build(ActionRemoved, "", description)
}

// Validate checks the structural invariants sinks rely on.
func (e Event) Validate() error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, e.Action)
	}
	if (e.Action == ActionUpdated) != (e.Path != "") {
		return ErrPathMismatch
	}
	if e.ObjectID == "" {
		return ErrMissingObject
	}
	return nil
}

// AsEvent returns the event carried by p when p is a genuine audit event.
func AsEvent(p Payload) (Event, bool) {
	if p == nil || p.LogType() != LogTypeEvent {
		return Event{}, false
	}
	switch e := p.(type) {
	case Event:
		return e, true
	case *Event:
		if e == nil {
			return Event{}, false
		}
		return *e, true
	}
	return Event{}, false
}

// record is the wire shape of an Event. Keys follow the stored document
// layout: the timestamp is "date" and the object id is "object".
type record struct {
	ID          string  `json:"id"`
	LogType     LogType `json:"logType"`
	Actor       string  `json:"actor"`
	Date        string  `json:"date"`
	Origin      string  `json:"origin"`
	Action      Action  `json:"action"`
	Path        *string `json:"path"`
	Label       string  `json:"label"`
	Object      string  `json:"object"`
	Description string  `json:"description"`
}

// MarshalJSON encodes the event with a null path for non-update actions.
func (e Event) MarshalJSON() ([]byte, error) {
	r := record{
		ID:          e.ID.String(),
		LogType:     LogTypeEvent,
		Actor:       e.Actor,
		Date:        e.Timestamp.UTC().Format(time.RFC3339Nano),
		Origin:      e.Origin,
		Action:      e.Action,
		Label:       e.Label,
		Object:      e.ObjectID,
		Description: e.Description,
	}
	if e.Path != "" {
		p := e.Path
		r.Path = &p
	}
	return json.Marshal(r)
}

// UnmarshalJSON decodes a stored event. Payloads without logType "Event"
// are rejected so replay tooling can skip foreign records.
func (e *Event) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	if r.LogType != LogTypeEvent {
		return ErrMissingLogType
	}
	action, err := ParseAction(string(r.Action))
	if err != nil {
		return err
	}
	out := Event{
		Actor:       r.Actor,
		Origin:      r.Origin,
		Action:      action,
		Label:       r.Label,
		ObjectID:    r.Object,
		Description: r.Description,
	}
	if r.ID != "" {
		if out.ID, err = uuid.Parse(r.ID); err != nil {
			return fmt.Errorf("parse event id: %w", err)
		}
	}
	if r.Date != "" {
		if out.Timestamp, err = time.Parse(time.RFC3339Nano, r.Date); err != nil {
			return fmt.Errorf("parse event date: %w", err)
		}
	}
	if r.Path != nil {
		out.Path = *r.Path
	}
	*e = out
	return nil
}
