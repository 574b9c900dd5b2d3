//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"auditlog/pkg/audit"
	"auditlog/pkg/audit/sink"
	"auditlog/pkg/testutil/containers"
)

func TestSink_ProducesKeyedRecords(t *testing.T) {
	broker := containers.NewKafkaContainer(t).Broker
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s := New()
	require.NoError(t, s.Configure(ctx, sink.Options{ConnectionString: broker, ModelName: "UserAudit"}))
	t.Cleanup(func() { _ = s.Close() })

	// a second Configure finds the topic already present
	again := New()
	require.NoError(t, again.Configure(ctx, sink.Options{ConnectionString: broker, ModelName: "UserAudit"}))
	require.NoError(t, again.Close())

	event := audit.NewUpdated(audit.Meta{Actor: "admin", Label: "User", ObjectID: "u-1"}, "name", "Bob")
	require.NoError(t, s.Persist(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics("UserAudit"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollRecords(ctx, 1)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)

	assert.Equal(t, event.ID.String(), string(records[0].Key))
	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, "name", got.Path)
}
