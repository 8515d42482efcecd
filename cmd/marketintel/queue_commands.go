package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"marketintel/internal/queue"
	"marketintel/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the work queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))
	queueCmd.AddCommand(newQueueScopesCommand(ctx))
	queueCmd.AddCommand(newQueueReclaimCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		stageFlag   string
		statusFlags []string
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := buildListFilter(stageFlag, statusFlags, limit)
			if err != nil {
				return err
			}
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				items, err := access.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderItemTable(items))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stageFlag, "stage", "", "Only list items of this stage")
	cmd.Flags().StringSliceVar(&statusFlags, "status", nil, "Only list items with these statuses")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of items")
	return cmd
}

func buildListFilter(stageFlag string, statusFlags []string, limit int) (queue.ListFilter, error) {
	filter := queue.ListFilter{Limit: limit}
	if value := strings.TrimSpace(stageFlag); value != "" {
		stage, ok := queue.ParseStage(value)
		if !ok {
			return filter, fmt.Errorf("unknown stage %q", value)
		}
		filter.Stage = stage
	}
	for _, value := range statusFlags {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return filter, fmt.Errorf("unknown status %q", value)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	return filter, nil
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show item counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				stats, err := access.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, stats)
				}
				order := make([]string, 0, len(queue.AllStatuses()))
				for _, status := range queue.AllStatuses() {
					order = append(order, string(status))
				}
				rows := countRows(order, stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				health, err := access.Health(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, health)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				printSection(out, "Queue Database", colorize)
				fmt.Fprintln(out, renderStatusLine("Path", statusInfo, health.DBPath, colorize))
				fmt.Fprintln(out, renderStatusLine("Schema", statusInfo, health.SchemaVersion, colorize))
				fmt.Fprintln(out, renderStatusLine("Readable", okKind(health.DatabaseReadable), yesNo(health.DatabaseReadable), colorize))
				fmt.Fprintln(out, renderStatusLine("Table", okKind(health.TableExists), yesNo(health.TableExists), colorize))
				fmt.Fprintln(out, renderStatusLine("Integrity", okKind(health.IntegrityCheck), yesNo(health.IntegrityCheck), colorize))
				if len(health.MissingColumns) > 0 {
					fmt.Fprintln(out, renderStatusLine("Missing columns", statusError, strings.Join(health.MissingColumns, ", "), colorize))
				}
				fmt.Fprintln(out, renderStatusLine("Items", statusInfo, itoa(health.TotalItems), colorize))
				if health.Error != "" {
					fmt.Fprintln(out, renderStatusLine("Error", statusError, health.Error, colorize))
				}
				return nil
			})
		},
	}
}

func okKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}

func newQueueScopesCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "scopes",
		Short: "List recent submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				scopes, err := store.Scopes(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, scopes)
				}
				if len(scopes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(scopes))
				for _, scope := range scopes {
					rows = append(rows, []string{
						scope.ScopeKey,
						itoa(scope.Items),
						scope.CreatedAt.Local().Format(time.DateTime),
						scope.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Scope", "Items", "Created", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of submissions")
	return cmd
}

func newQueueReclaimCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Return items stuck in processing to retry",
		Long: "Return items left in processing by a crashed worker to retry. Items whose\n" +
			"retry budget is spent are marked failed instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				cutoff := time.Now().Add(-olderThan)
				n, err := store.ReclaimStale(cmd.Context(), cutoff, cfg.Workflow.MaxRetries)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, map[string]int64{"reclaimed": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d item(s) processing since before %s\n", n, cutoff.Local().Format(time.DateTime))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*time.Minute, "Only reclaim items processing for longer than this")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every queue item",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing to clear the queue without --yes")
			}
			return ctx.withStore(func(store *queue.Store) error {
				n, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d item(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "Confirm deletion")
	return cmd
}
