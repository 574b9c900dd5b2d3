//go:build integration

package redisstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditlog/pkg/audit"
	"auditlog/pkg/audit/sink"
	"auditlog/pkg/testutil/containers"
)

func TestSink_Redis(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	s := New(WithMaxLen(100))
	require.NoError(t, s.Configure(ctx, sink.Options{ConnectionString: rc.URL, ModelName: "UserAudit"}))
	t.Cleanup(func() { _ = s.Close() })

	m := audit.Meta{Actor: "admin", Label: "User", ObjectID: "u-1"}
	created := audit.NewCreated(m)
	updated := audit.NewUpdated(m, "name", "Bob")
	require.NoError(t, s.Persist(ctx, created))
	require.NoError(t, s.Persist(ctx, updated))

	n, err := rc.Client.XLen(ctx, "UserAudit").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	events, err := s.Read(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, created.ID, events[0].ID)
	assert.Equal(t, "name", events[1].Path)
}
