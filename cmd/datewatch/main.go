package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/syntrixbase/datewatch/internal/config"
	"github.com/syntrixbase/datewatch/internal/logging"
	"github.com/syntrixbase/datewatch/internal/services"
)

var (
	configDir   string
	initTimeout = 30 * time.Second
	stopTimeout = 10 * time.Second
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "datewatch",
	Short: "Date-driven notifications for watched tables",
	Long: "datewatch indexes date fields of watched tables and notifies registered watchers when " +
		"a date, shifted by the watcher's offset, is reached.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "Directory holding config.yml")

	rootCmd.AddCommand(serveCmd, sweepCmd, reconcileCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration, initializes logging and builds an initialized
// manager. The returned cleanup shuts both down.
func setup(ctx context.Context, opts services.Options) (*services.Manager, func(), error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, nil, err
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		return nil, nil, err
	}

	mgr := services.NewManager(cfg, opts)

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	cleanup := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := mgr.Shutdown(stopCtx); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		}
		_ = logging.Shutdown()
	}

	if err := mgr.Init(initCtx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return mgr, cleanup, nil
}

// oneShot loads the watcher file but starts nothing in the background.
func oneShot() services.Options {
	return services.Options{WatchFile: true}
}
