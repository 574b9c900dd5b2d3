//go:build integration

package sqldb

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditlog/pkg/audit"
	"auditlog/pkg/audit/sink"
	"auditlog/pkg/testutil/containers"
)

func TestSink_Postgres(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()

	for _, scheme := range []string{"postgres", "pgx"} {
		t.Run(scheme, func(t *testing.T) {
			dsn := scheme + "://" + strings.TrimPrefix(pg.ConnectionString, "postgres://")

			s := New()
			require.NoError(t, s.Configure(ctx, sink.Options{ConnectionString: dsn, ModelName: "Audit" + strings.ToUpper(scheme[:1]) + scheme[1:]}))
			t.Cleanup(func() { _ = s.Close() })

			e := audit.NewUpdated(audit.Meta{Actor: "admin", Label: "User", ObjectID: "u-1"}, "name", "Bob")
			require.NoError(t, s.Persist(ctx, e))
			require.NoError(t, s.Persist(ctx, e))

			history, err := s.History(ctx, "u-1")
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, e.ID, history[0].ID)
			assert.Equal(t, "name", history[0].Path)
		})
	}
}
