package jsonl

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditlog/pkg/audit"
	"auditlog/pkg/audit/sink"
	"auditlog/pkg/testutil"
)

type otherPayload struct{}

func (otherPayload) LogType() audit.LogType { return "Metric" }

func updated(objectID, value string) audit.Event {
	return audit.NewUpdated(audit.Meta{Actor: "admin", Label: "User", ObjectID: objectID}, "name", value)
}

func readEvents(t *testing.T, path string) []audit.Event {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []audit.Event
	_, err = Scan(f, func(e audit.Event) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)
	return events
}

func TestSink_AppendsOneLinePerEvent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")

	s := New()
	require.NoError(t, s.Configure(ctx, sink.Options{ConnectionString: path}))

	first, second := updated("u-1", "Bob"), updated("u-1", "Carl")
	require.NoError(t, s.Persist(ctx, first))
	require.NoError(t, s.Persist(ctx, otherPayload{}))
	require.NoError(t, s.Persist(ctx, second))
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(raw), "\n"))

	events := readEvents(t, path)
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, "Updated name to Carl", events[1].Description)
}

func TestSink_AppendsToExistingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	for _, v := range []string{"a", "b"} {
		s := New()
		require.NoError(t, s.Configure(ctx, sink.Options{ConnectionString: path}))
		require.NoError(t, s.Persist(ctx, updated("u-1", v)))
		require.NoError(t, s.Close())
	}

	assert.Len(t, readEvents(t, path), 2)
}

func TestSink_Rotates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	s := New(WithRotateMaxBytes(10), WithClock(clock))
	require.NoError(t, s.Configure(ctx, sink.Options{ConnectionString: path}))
	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, s.Persist(ctx, updated("u-1", v)))
	}
	require.NoError(t, s.Close())

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, matches, 2, "every write after the first rotates the oversized file")
	assert.Len(t, readEvents(t, path), 1)
}

func TestSink_NotConnected(t *testing.T) {
	ctx := context.Background()

	testutil.Given(t, "an empty path", func(t *testing.T) {
		s := New()
		err := s.Configure(ctx, sink.Options{ConnectionString: "  "})

		testutil.Then(t, "configure fails and persist reports not connected", func(t *testing.T) {
			require.ErrorIs(t, err, ErrMissingPath)
			assert.ErrorIs(t, s.Persist(ctx, updated("u-1", "x")), sink.ErrNotConnected)
		})
	})

	testutil.Given(t, "a closed sink", func(t *testing.T) {
		s := New()
		require.NoError(t, s.Configure(ctx, sink.Options{ConnectionString: filepath.Join(t.TempDir(), "a.jsonl")}))
		require.NoError(t, s.Close())

		testutil.Then(t, "persist fails with ErrClosed", func(t *testing.T) {
			assert.ErrorIs(t, s.Persist(ctx, updated("u-1", "x")), sink.ErrClosed)
		})
	})
}

func TestSink_DebugChannel(t *testing.T) {
	ctx := context.Background()
	var buf testutil.SyncBuffer

	s := New()
	require.NoError(t, s.Configure(ctx, sink.Options{
		ConnectionString: filepath.Join(t.TempDir(), "a.jsonl"),
		Debug:            true,
		Logger:           testutil.NewLogger(&buf),
	}))
	require.NoError(t, s.Persist(ctx, updated("u-9", "x")))
	require.NoError(t, s.Close())

	assert.Contains(t, buf.String(), "audit-log(jsonl): emit: Updated User u-9")
}

func TestScan(t *testing.T) {
	good := updated("u-1", "Bob")
	line, err := good.MarshalJSON()
	require.NoError(t, err)

	input := strings.Join([]string{
		string(line),
		"",
		`{"logType":"Metric","value":3}`,
		"not json",
		string(line),
	}, "\n")

	var seen int
	skipped, err := Scan(strings.NewReader(input), func(e audit.Event) error {
		seen++
		assert.Equal(t, good.ID, e.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, seen)
	assert.Equal(t, 2, skipped)

	stop := errors.New("stop")
	_, err = Scan(bytes.NewReader(line), func(audit.Event) error { return stop })
	assert.ErrorIs(t, err, stop)
}
