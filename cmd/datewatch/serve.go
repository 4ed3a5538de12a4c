package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/syntrixbase/datewatch/internal/services"
)

// serveCmd runs the scheduler, change intake and metrics endpoint until
// interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run sweeps periodically and consume change events",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mgr, cleanup, err := setup(ctx, services.ServeOptions())
		if err != nil {
			return err
		}
		defer cleanup()

		if err := mgr.Start(ctx); err != nil {
			return err
		}
		slog.Info("datewatch started")

		<-ctx.Done()
		slog.Info("Shutting down...")
		return nil
	},
}
