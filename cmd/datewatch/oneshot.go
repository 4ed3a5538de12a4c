package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a single sweep and exit",
	Long:  `Reconcile the index with the current watchers, then notify every watcher whose date was reached since the last sweep.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, cleanup, err := setup(cmd.Context(), oneShot())
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := mgr.Sweeper().Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d fields, %d notified, %d failed\n",
			res.RunID, res.Fields, res.Notified, res.Failed)
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Bring the index in line with the registered watchers",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, cleanup, err := setup(cmd.Context(), oneShot())
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := mgr.Reconciler().Reconcile(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %d, reseeded %d, deleted %d, seeded %d entries, %d failed\n",
			res.Created, res.Reseeded, res.Deleted, res.Seeded, res.Failed)
		if res.Failed > 0 {
			return fmt.Errorf("%d fields could not be indexed", res.Failed)
		}
		return nil
	},
}
