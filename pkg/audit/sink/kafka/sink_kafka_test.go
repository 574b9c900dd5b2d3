package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditlog/pkg/audit"
	"auditlog/pkg/audit/sink"
)

func TestSink_NoBrokers(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.Configure(ctx, sink.Options{ConnectionString: " , "})
	require.ErrorIs(t, err, ErrNoBrokers)

	assert.ErrorIs(t, s.Persist(ctx, audit.NewCreated(audit.Meta{ObjectID: "x"})), sink.ErrNotConnected)
	assert.NoError(t, s.Close())
}

type metric struct{}

func (metric) LogType() audit.LogType { return "Metric" }

func TestSink_IgnoresForeignPayloadsWithoutConnection(t *testing.T) {
	assert.NoError(t, New().Persist(context.Background(), metric{}))
}

func TestWithTopicLayout(t *testing.T) {
	s := New(WithTopicLayout(6, 3))
	assert.EqualValues(t, 6, s.partitions)
	assert.EqualValues(t, 3, s.replication)

	s = New(WithTopicLayout(0, -1))
	assert.EqualValues(t, 1, s.partitions)
	assert.EqualValues(t, -1, s.replication)
}
