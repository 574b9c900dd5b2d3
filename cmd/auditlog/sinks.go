package main

import (
	"context"
	"path/filepath"
	"strings"

	"auditlog/internal/platform/config"
	"auditlog/internal/platform/metrics"
	"auditlog/pkg/audit/dispatcher"
	"auditlog/pkg/audit/sink"
	"auditlog/pkg/audit/sink/gormsink"
	"auditlog/pkg/audit/sink/jsonl"
	"auditlog/pkg/audit/sink/kafka"
	"auditlog/pkg/audit/sink/redisstream"
	"auditlog/pkg/audit/sink/sqldb"
)

type namedSink struct {
	name       string
	sink       sink.Sink
	connection string
}

// configuredSinks lists the backends with a connection string, skipping the
// JSONL file named by exclude.
func configuredSinks(cfg config.Sinks, exclude string) []namedSink {
	var out []namedSink
	if cfg.JSONLPath != "" && !samePath(cfg.JSONLPath, exclude) {
		out = append(out, namedSink{name: "jsonl", sink: jsonl.New(), connection: cfg.JSONLPath})
	}
	if cfg.GormDSN != "" {
		out = append(out, namedSink{name: "gorm", sink: gormsink.New(), connection: cfg.GormDSN})
	}
	if cfg.SQLDSN != "" {
		out = append(out, namedSink{name: "sql", sink: sqldb.New(), connection: cfg.SQLDSN})
	}
	if cfg.RedisURL != "" {
		out = append(out, namedSink{name: "redis", sink: redisstream.New(), connection: cfg.RedisURL})
	}
	if len(cfg.KafkaBrokers) > 0 {
		out = append(out, namedSink{name: "kafka", sink: kafka.New(), connection: strings.Join(cfg.KafkaBrokers, ",")})
	}
	return out
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}

// registerSinks configures every sink and registers it with d. A sink that
// fails to connect is still registered; its deliveries fail and are counted.
func (a *app) registerSinks(ctx context.Context, d *dispatcher.Dispatcher, sinks []namedSink, m *metrics.Metrics) error {
	for _, s := range sinks {
		err := s.sink.Configure(ctx, a.sinkOptions(s.connection, a.cfg.Sinks))
		if err != nil {
			a.logger.WarnContext(ctx, "audit sink failed to connect", "sink", s.name, "error", err)
		}
		if m != nil {
			m.SetSinkUp(s.name, err == nil)
		}
		if err := d.Register(ctx, s.name, s.sink); err != nil {
			return err
		}
	}
	return nil
}
