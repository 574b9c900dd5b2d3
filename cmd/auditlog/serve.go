package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"auditlog/internal/platform/httpserver"
	"auditlog/internal/platform/metrics"
	httptransport "auditlog/internal/transport/http"
	"auditlog/pkg/audit/actor"
	"auditlog/pkg/audit/dispatcher"
)

const drainTimeout = 15 * time.Second

func newServeCmd(a *app, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept audit events over HTTP and deliver them to the configured sinks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().String("addr", ":9464", "listen address")
	_ = v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	m := metrics.New()
	d := dispatcher.New(
		dispatcher.WithLogger(a.logger),
		dispatcher.WithMetrics(dispatcher.NewMetrics(m.Registry)),
		dispatcher.WithBufferSize(a.cfg.Dispatcher.BufferSize),
		dispatcher.WithPersistTimeout(a.cfg.Dispatcher.PersistTimeout),
	)

	sinks := configuredSinks(a.cfg.Sinks, "")
	if len(sinks) == 0 {
		a.logger.WarnContext(ctx, "no audit sinks configured, events will be discarded")
	}
	if err := a.registerSinks(ctx, d, sinks, m); err != nil {
		return err
	}

	var verifier actor.Verifier
	if a.cfg.JWTKey != "" {
		verifier = actor.NewHMACVerifier(a.cfg.JWTKey, "")
	}
	router := httptransport.NewRouter(httptransport.NewHandler(d, a.logger), m.Handler(), verifier, a.logger)
	srv := httpserver.New(a.cfg.Addr, router)

	a.logger.InfoContext(ctx, "starting auditlog", "addr", a.cfg.Addr, "sinks", d.Sinks())
	serveErr := httpserver.Run(ctx, srv)

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := d.Close(drainCtx); err != nil {
		a.logger.WarnContext(drainCtx, "audit dispatcher did not drain cleanly", "error", err)
	}
	if serveErr != nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	a.logger.Info("auditlog stopped", "dropped", d.Dropped())
	return nil
}
