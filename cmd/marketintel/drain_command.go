package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"marketintel/internal/blobstore"
	"marketintel/internal/daemonctl"
	"marketintel/internal/daemonrun"
	"marketintel/internal/logging"
	"marketintel/internal/queue"
	"marketintel/internal/workflow"
)

func newDrainCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Process the queue in the foreground until no item is claimable",
		Long: "Run every stage in this process until a full pass executes nothing.\n" +
			"Items waiting on a future retry time are left for a later run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if running, pid, _ := daemonctl.ProcessInfo(cmd.Context(), cfg); running {
				return fmt.Errorf("daemon is running (pid %d); stop it before draining in the foreground", pid)
			}

			logger, err := logging.New(logging.Options{
				Level:       logLevel,
				Format:      "console",
				OutputPaths: []string{"stderr"},
				Color:       shouldColorize(cmd.ErrOrStderr()),
			})
			if err != nil {
				return err
			}

			return ctx.withStore(func(store *queue.Store) error {
				blobs, err := blobstore.Open(cfg)
				if err != nil {
					return fmt.Errorf("open blob store: %w", err)
				}
				if blobs != nil {
					defer blobs.Close()
				}
				caps, err := daemonrun.BuildCapabilities(cmd.Context(), cfg)
				if err != nil {
					return err
				}

				manager := workflow.NewManager(cfg, store, logger)
				manager.ConfigureStages(daemonrun.BuildStages(cfg, caps, blobs, logger))
				executed, err := manager.Drain(cmd.Context())
				if err != nil {
					return err
				}
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, map[string]any{"executed": executed, "stats": stats})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Executed %d item(s)\n", executed)
				if waiting := stats[queue.StatusRetry]; waiting > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%d item(s) wait for a later retry\n", waiting)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level for stage output")
	return cmd
}
