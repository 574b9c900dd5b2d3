// Package kafka publishes audit events to a Kafka topic named after
// Options.ModelName. Records are keyed by event id and produced
// synchronously, so a broker failure is reported for the event that hit it.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"auditlog/pkg/audit"
	"auditlog/pkg/audit/sink"
	"auditlog/pkg/platform/strings"
)

var ErrNoBrokers = errors.New("no kafka brokers configured")

// Sink produces to one topic.
type Sink struct {
	partitions  int32
	replication int16
	clientOpts  []kgo.Opt

	mu     sync.RWMutex
	client *kgo.Client
	topic  string
	debug  sink.Debugger
}

type Option func(*Sink)

// WithTopicLayout sets the partition count and replication factor used when
// the topic has to be created. A replication factor of -1 uses the broker
// default.
func WithTopicLayout(partitions int32, replication int16) Option {
	return func(s *Sink) {
		if partitions > 0 {
			s.partitions = partitions
		}
		s.replication = replication
	}
}

// WithClientOptions passes extra options to the franz-go client.
func WithClientOptions(opts ...kgo.Opt) Option {
	return func(s *Sink) {
		s.clientOpts = append(s.clientOpts, opts...)
	}
}

func New(opts ...Option) *Sink {
	s := &Sink{
		partitions:  1,
		replication: -1,
		debug:       sink.NewDebugger("kafka", sink.Defaults()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure connects to the comma separated brokers in opts.ConnectionString
// and creates the topic when it does not exist yet.
func (s *Sink) Configure(ctx context.Context, opts sink.Options) error {
	opts = sink.Resolve(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.debug = sink.NewDebugger("kafka", opts)
	s.topic = opts.ModelName

	brokers := strings.SplitList(opts.ConnectionString)
	if len(brokers) == 0 {
		return s.debug.Failure(ctx, "connect", ErrNoBrokers)
	}

	clientOpts := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(s.topic),
		kgo.AllowAutoTopicCreation(),
	}, s.clientOpts...)
	client, err := kgo.NewClient(clientOpts...)
	if err != nil {
		return s.debug.Failure(ctx, "connect", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return s.debug.Failure(ctx, "connect", err)
	}

	if err := s.ensureTopic(ctx, client); err != nil {
		client.Close()
		return s.debug.Failure(ctx, "create topic "+s.topic, err)
	}

	s.client = client
	s.debug.Printf(ctx, "connected to %v, topic %s", brokers, s.topic)
	return nil
}

func (s *Sink) ensureTopic(ctx context.Context, client *kgo.Client) error {
	adm := kadm.NewClient(client)
	_, err := adm.CreateTopic(ctx, s.partitions, s.replication, nil, s.topic)
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return err
	}
	return nil
}

// Persist produces one record and waits for the broker acknowledgement.
func (s *Sink) Persist(ctx context.Context, p audit.Payload) error {
	event, ok := audit.AsEvent(p)
	if !ok {
		return nil
	}
	value, err := json.Marshal(event)
	if err != nil {
		return s.debug.Failure(ctx, "encode event", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.client == nil {
		return s.debug.Failure(ctx, "save event", sink.ErrNotConnected)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.ID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
			{Key: "label", Value: []byte(event.Label)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return s.debug.Failure(ctx, "save event", fmt.Errorf("produce to %s: %w", s.topic, err))
	}
	s.debug.Printf(ctx, "emit: %s %s %s", event.Action, event.Label, event.ObjectID)
	return nil
}

// Close closes the client. Persist waits for every record, so nothing is buffered.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	s.client.Close()
	s.client = nil
	return nil
}
