package interceptor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditlog/pkg/audit"
	"auditlog/pkg/audit/actor"
	"auditlog/pkg/audit/dispatcher"
	"auditlog/pkg/audit/sink"
	"auditlog/pkg/audit/sink/memory"
	"auditlog/pkg/testutil"
)

type recordingEmitter struct {
	mu       sync.Mutex
	payloads []audit.Payload
}

func (r *recordingEmitter) Emit(_ context.Context, p audit.Payload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
}

func (r *recordingEmitter) events(t *testing.T) []audit.Event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Event, 0, len(r.payloads))
	for _, p := range r.payloads {
		e, ok := audit.AsEvent(p)
		require.True(t, ok)
		out = append(out, e)
	}
	return out
}

func paths(events []audit.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Path)
	}
	return out
}

func loadedUser() *Record {
	return LoadRecord(map[string]any{
		"id":          "u-1",
		"name":        "Ann",
		"email":       "ann@example.com",
		"version":     1,
		"modified_at": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
}

func TestOnSaveCreated(t *testing.T) {
	emitter := &recordingEmitter{}
	ic := New(emitter, Config{ModelName: "User", Actor: actor.Static("admin")})

	doc := NewRecord(map[string]any{"id": "u-1", "name": "Ann"})
	doc.Set("email", "ann@example.com")

	events := ic.OnSave(context.Background(), doc)

	require.Len(t, events, 1, "a first save never yields field events")
	e := events[0]
	assert.Equal(t, audit.ActionCreated, e.Action)
	assert.Empty(t, e.Path)
	assert.Equal(t, "u-1", e.ObjectID)
	assert.Equal(t, "User", e.Label)
	assert.Equal(t, "admin", e.Actor)
	assert.Equal(t, DefaultOrigin, e.Origin)
	assert.Equal(t, events, emitter.events(t))
}

func TestOnSaveUpdated(t *testing.T) {
	testutil.Given(t, "a loaded entity with several direct modifications", func(t *testing.T) {
		emitter := &recordingEmitter{}
		ic := New(emitter, Config{ModelName: "User"})
		doc := loadedUser()
		doc.Set("name", "Bob")
		doc.Set("email", "bob@example.com")

		events := ic.OnSave(context.Background(), doc)

		testutil.Then(t, "one Updated event per field in change order", func(t *testing.T) {
			require.Len(t, events, 2)
			assert.Equal(t, []string{"name", "email"}, paths(events))
			for _, e := range events {
				assert.Equal(t, audit.ActionUpdated, e.Action)
				assert.Equal(t, "u-1", e.ObjectID)
				assert.NoError(t, e.Validate())
			}
			assert.Equal(t, "Updated name to Bob", events[0].Description)
			assert.Equal(t, "Updated email to bob@example.com", events[1].Description)
		})
		testutil.And(t, "the same events were emitted", func(t *testing.T) {
			assert.Equal(t, events, emitter.events(t))
		})
	})

	testutil.Given(t, "bookkeeping fields changed alongside a real field", func(t *testing.T) {
		ic := New(nil, Config{})
		doc := loadedUser()
		doc.Set("modified_at", time.Now())
		doc.Set("version", 2)
		doc.Set("name", "Bob")

		testutil.Then(t, "only the real field is audited", func(t *testing.T) {
			assert.Equal(t, []string{"name"}, paths(ic.OnSave(context.Background(), doc)))
		})
	})

	testutil.Given(t, "a field whose name only contains the timestamp name", func(t *testing.T) {
		ic := New(nil, Config{})
		doc := loadedUser()
		doc.Set("modified_at_source", "import")

		testutil.Then(t, "it is audited because exclusion is by exact name", func(t *testing.T) {
			assert.Equal(t, []string{"modified_at_source"}, paths(ic.OnSave(context.Background(), doc)))
		})
	})

	testutil.Given(t, "excluded and indirectly modified fields", func(t *testing.T) {
		ic := New(nil, Config{ExcludePaths: []string{" password "}})
		doc := loadedUser()
		doc.Set("password", "secret")
		doc.SetIndirect("address", map[string]any{"city": "Oslo"})

		testutil.Then(t, "nothing is audited", func(t *testing.T) {
			assert.Empty(t, ic.OnSave(context.Background(), doc))
		})
	})

	testutil.Given(t, "no modifications", func(t *testing.T) {
		emitter := &recordingEmitter{}
		ic := New(emitter, Config{})

		testutil.Then(t, "nothing is emitted", func(t *testing.T) {
			assert.Empty(t, ic.OnSave(context.Background(), loadedUser()))
			assert.Empty(t, emitter.events(t))
		})
	})
}

func TestOnSaveGatedPaths(t *testing.T) {
	ic := New(nil, Config{})

	testutil.When(t, "the gated field changes without a request", func(t *testing.T) {
		doc := loadedUser()
		doc.Set("date", "2024-05-01")

		testutil.Then(t, "it is not audited", func(t *testing.T) {
			assert.Empty(t, ic.OnSave(context.Background(), doc))
		})
	})

	testutil.When(t, "the gated field changes with a request", func(t *testing.T) {
		doc := loadedUser()
		doc.Set("date", "2024-05-01")
		doc.RequestEmit("date")

		testutil.Then(t, "it is audited", func(t *testing.T) {
			events := ic.OnSave(context.Background(), doc)
			require.Len(t, events, 1)
			assert.Equal(t, "date", events[0].Path)
		})
	})

	testutil.When(t, "the request was cleared by a commit", func(t *testing.T) {
		doc := loadedUser()
		doc.RequestEmit("date")
		doc.Commit()
		doc.Set("date", "2024-06-01")

		testutil.Then(t, "it is not audited", func(t *testing.T) {
			assert.Empty(t, ic.OnSave(context.Background(), doc))
		})
	})

	testutil.When(t, "the document cannot request emission", func(t *testing.T) {
		doc := plainDocument{modified: []string{"date"}, values: map[string]any{"id": 7, "date": "x"}}

		testutil.Then(t, "the gated field is never audited", func(t *testing.T) {
			assert.Empty(t, ic.OnSave(context.Background(), doc))
		})
	})
}

// plainDocument implements Document without EmissionGate.
type plainDocument struct {
	modified []string
	values   map[string]any
}

func (d plainDocument) IsNew() bool                  { return false }
func (d plainDocument) ModifiedPaths() []string      { return d.modified }
func (d plainDocument) IsDirectModified(string) bool { return true }

func (d plainDocument) Get(path string) (any, bool) {
	v, ok := d.values[path]
	return v, ok
}

func TestOnRemove(t *testing.T) {
	snapshot := map[string]any{"id": "u-1", "name": "Bob", "age": float64(41)}

	testutil.Given(t, "the default capture policy", func(t *testing.T) {
		ic := New(nil, Config{ModelName: "User"})
		e := ic.OnRemove(context.Background(), snapshot)

		testutil.Then(t, "the description deserializes to the snapshot", func(t *testing.T) {
			assert.Equal(t, audit.ActionRemoved, e.Action)
			assert.Equal(t, "u-1", e.ObjectID)
			assert.Empty(t, e.Path)

			var decoded map[string]any
			require.NoError(t, json.Unmarshal([]byte(e.Description), &decoded))
			assert.Equal(t, snapshot, decoded)
		})
	})

	testutil.Given(t, "a policy without snapshots", func(t *testing.T) {
		ic := New(nil, Config{NamePath: "name", StoreDoc: []audit.Action{}})

		testutil.Then(t, "the description names the entity", func(t *testing.T) {
			assert.Equal(t, `Removed "Bob"`, ic.OnRemove(context.Background(), snapshot).Description)
		})
		testutil.And(t, "a missing name renders empty", func(t *testing.T) {
			e := ic.OnRemove(context.Background(), map[string]any{"id": 3})
			assert.Equal(t, `Removed ""`, e.Description)
			assert.Equal(t, "3", e.ObjectID)
		})
		testutil.And(t, "the name is embedded verbatim", func(t *testing.T) {
			for name, want := range map[string]string{
				`O"Brien`:   `Removed "O"Brien"`,
				`C:\x`:      `Removed "C:\x"`,
				"tab\there": "Removed \"tab\there\"",
			} {
				e := ic.OnRemove(context.Background(), map[string]any{"id": 4, "name": name})
				assert.Equal(t, want, e.Description)
			}
		})
	})

	testutil.Given(t, "a snapshot that cannot be serialized", func(t *testing.T) {
		ic := New(nil, Config{NamePath: "name", Logger: quietLogger()})
		e := ic.OnRemove(context.Background(), map[string]any{"id": "u-2", "name": "Eve", "ch": make(chan int)})

		testutil.Then(t, "the short description is used", func(t *testing.T) {
			assert.Equal(t, `Removed "Eve"`, e.Description)
		})
	})

	testutil.Given(t, "a snapshot without the id field", func(t *testing.T) {
		ic := New(nil, Config{})

		testutil.Then(t, "the object id is empty", func(t *testing.T) {
			assert.Empty(t, ic.OnRemove(context.Background(), map[string]any{"name": "x"}).ObjectID)
		})
	})
}

func TestActorResolvedPerCall(t *testing.T) {
	ic := New(nil, Config{Actor: actor.FromContext})
	doc := loadedUser()
	doc.Set("name", "Bob")

	events := ic.OnSave(actor.WithPrincipal(context.Background(), "alice"), doc)
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].Actor)

	anonymous := ic.OnRemove(context.Background(), map[string]any{"id": "u-1"})
	assert.Empty(t, anonymous.Actor)
}

func TestDebugLogging(t *testing.T) {
	var buf testutil.SyncBuffer
	ic := New(nil, Config{Debug: true, Logger: testutil.NewLogger(&buf)})
	doc := loadedUser()
	doc.Set("name", "Bob")
	doc.Set("date", "2024-01-01")
	ic.OnSave(context.Background(), doc)

	out := buf.String()
	assert.Contains(t, out, "audit interceptor: updated")
	assert.Contains(t, out, "gated field not requested")
}

func TestUserLifecycleThroughDispatcher(t *testing.T) {
	d := dispatcher.New(dispatcher.WithLogger(quietLogger()))
	store := memory.New(sink.Options{})
	require.NoError(t, d.Register(context.Background(), "memory", store))

	ic := New(d, Config{
		ModelName: "User",
		NamePath:  "name",
		StoreDoc:  []audit.Action{},
		Actor:     actor.Static("admin"),
	})
	ctx := context.Background()

	user := NewRecord(map[string]any{"id": "u-42", "name": "Ann"})
	ic.OnSave(ctx, user)
	user.Commit()

	user.Set("name", "Bob")
	ic.OnSave(ctx, user)
	user.Commit()

	ic.OnRemove(ctx, user.Snapshot())

	require.NoError(t, d.Close(ctx))

	events := store.ByObject("u-42")
	require.Len(t, events, 3)

	assert.Equal(t, audit.ActionCreated, events[0].Action)
	assert.Empty(t, events[0].Path)

	assert.Equal(t, audit.ActionUpdated, events[1].Action)
	assert.Equal(t, "name", events[1].Path)
	assert.Contains(t, events[1].Description, "Bob")

	assert.Equal(t, audit.ActionRemoved, events[2].Action)
	assert.Equal(t, `Removed "Bob"`, events[2].Description)

	for _, e := range events {
		assert.Equal(t, "admin", e.Actor)
		assert.Equal(t, "User", e.Label)
	}
}
