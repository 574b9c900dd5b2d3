package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"auditlog/internal/platform/config"
	"auditlog/internal/platform/logger"
	"auditlog/pkg/platform/strings"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg    config.Server
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	a := &app{}

	root := &cobra.Command{
		Use:          "auditlog",
		Short:        "Capture entity mutations as an append-only audit trail",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(v, &cfg)

			log, err := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, log
			slog.SetDefault(log)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.Bool("debug", false, "enable the sinks' debug channels")
	flags.String("model-name", "AuditLog", "table, stream or topic events are written to")
	flags.String("jsonl-path", "", "append events to this JSONL file")
	flags.String("gorm-dsn", "", "gorm sink connection (mysql://... or sqlite://...)")
	flags.String("sql-dsn", "", "database/sql sink connection (postgres://, pgx://, sqlite://)")
	flags.String("redis-url", "", "redis stream sink URL")
	flags.String("kafka-brokers", "", "comma separated kafka brokers")

	_ = v.BindPFlags(flags)

	root.AddCommand(newServeCmd(a, v), newReplayCmd(a))
	return root
}

// applyFlags overlays explicitly set command line flags onto the
// environment configuration. Flags left at their defaults do not count as set.
func applyFlags(v *viper.Viper, cfg *config.Server) {
	overlay := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	overlay("addr", &cfg.Addr)
	overlay("log-level", &cfg.LogLevel)
	overlay("log-format", &cfg.LogFormat)
	overlay("model-name", &cfg.Sinks.ModelName)
	overlay("jsonl-path", &cfg.Sinks.JSONLPath)
	overlay("gorm-dsn", &cfg.Sinks.GormDSN)
	overlay("sql-dsn", &cfg.Sinks.SQLDSN)
	overlay("redis-url", &cfg.Sinks.RedisURL)
	if v.IsSet("kafka-brokers") {
		cfg.Sinks.KafkaBrokers = strings.SplitList(v.GetString("kafka-brokers"))
	}
	if v.IsSet("debug") {
		cfg.Sinks.Debug = v.GetBool("debug")
	}
}
