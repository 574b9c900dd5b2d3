package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"auditlog/internal/platform/config"
	"auditlog/pkg/audit"
	"auditlog/pkg/audit/sink"
	"auditlog/pkg/audit/sink/jsonl"
)

var errNoSinks = errors.New("no sinks configured to replay into")

type replayResult struct {
	Events   int
	Skipped  int
	Failures map[string]int
}

func newReplayCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "replay <file.jsonl>",
		Short: "Write the events of a JSONL audit file into the configured sinks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.replay(cmd.Context(), args[0], dryRun)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "replayed %d events, skipped %d lines\n", res.Events, res.Skipped)
			for name, n := range res.Failures {
				fmt.Fprintf(out, "sink %s: %d events failed\n", name, n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count the events without writing them")
	return cmd
}

// replay persists every event of path into each configured sink, except the
// file itself. Unlike the dispatcher, replay waits for each write: a file of
// past events should land completely or report what did not.
func (a *app) replay(ctx context.Context, path string, dryRun bool) (replayResult, error) {
	res := replayResult{Failures: make(map[string]int)}

	f, err := os.Open(path)
	if err != nil {
		return res, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var sinks []namedSink
	if !dryRun {
		sinks = configuredSinks(a.cfg.Sinks, path)
		if len(sinks) == 0 {
			return res, errNoSinks
		}
		for _, s := range sinks {
			if err := s.sink.Configure(ctx, a.sinkOptions(s.connection, a.cfg.Sinks)); err != nil {
				closeSinks(sinks)
				return res, fmt.Errorf("sink %s: %w", s.name, err)
			}
		}
		defer closeSinks(sinks)
	}

	res.Skipped, err = jsonl.Scan(f, func(e audit.Event) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Events++
		for _, s := range sinks {
			if err := s.sink.Persist(ctx, e); err != nil {
				res.Failures[s.name]++
				a.logger.DebugContext(ctx, "replay persist failed", "sink", s.name, "event_id", e.ID, "error", err)
			}
		}
		return nil
	})
	return res, err
}

func (a *app) sinkOptions(connection string, cfg config.Sinks) sink.Options {
	return sink.Options{
		ConnectionString: connection,
		ModelName:        cfg.ModelName,
		Debug:            cfg.Debug,
		Logger:           a.logger,
	}
}

func closeSinks(sinks []namedSink) {
	for _, s := range sinks {
		if c, ok := s.sink.(io.Closer); ok {
			_ = c.Close()
		}
	}
}
