package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"marketintel/internal/api"
	"marketintel/internal/queue"
	"marketintel/internal/queueaccess"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <scope>",
		Short: "Show per-stage progress of one submission",
		Long:  "Show per-stage progress of one submission. The scope is project#request.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := strings.TrimSpace(args[0])
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				report, err := access.Report(cmd.Context(), scope)
				if errors.Is(err, api.ErrScopeNotFound) {
					return fmt.Errorf("no items found for %s", scope)
				}
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, report)
				}
				printScopeReport(cmd, report)
				return nil
			})
		},
	}
}

func printScopeReport(cmd *cobra.Command, report api.ScopeReport) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	printSection(out, "Request "+report.ScopeKey, colorize)
	state := statusInfo
	label := "In progress"
	switch {
	case report.Done && report.Failed > 0:
		state, label = statusWarn, fmt.Sprintf("Done with %d failed item(s)", report.Failed)
	case report.Done:
		state, label = statusOK, "Done"
	}
	fmt.Fprintln(out, renderStatusLine("Progress", state, label, colorize))
	fmt.Fprintln(out, renderStatusLine("Items", statusInfo, itoa(report.Total), colorize))
	fmt.Fprintln(out)

	statuses := queue.AllStatuses()
	headers := []string{"Stage"}
	aligns := []columnAlignment{alignLeft}
	for _, status := range statuses {
		headers = append(headers, string(status))
		aligns = append(aligns, alignRight)
	}
	var rows [][]string
	for _, stage := range queue.AllStages() {
		counts, ok := report.Stages[string(stage)]
		if !ok {
			continue
		}
		row := []string{string(stage)}
		for _, status := range statuses {
			row = append(row, itoa(counts[string(status)]))
		}
		rows = append(rows, row)
	}
	fmt.Fprint(out, renderTable(headers, rows, aligns))
}

func newTreeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tree <scope>",
		Short: "List every work item of one submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := strings.TrimSpace(args[0])
			return ctx.withAccess(cmd.Context(), func(access queueaccess.Access) error {
				items, err := access.Tree(cmd.Context(), scope)
				if err != nil {
					return err
				}
				if ctx.jsonMode() {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					return fmt.Errorf("no items found for %s", scope)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderItemTable(items))
				return nil
			})
		},
	}
}

func renderItemTable(items []api.QueueItem) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.Stage,
			item.SequenceKey,
			item.Status,
			itoa(item.RetryCount),
			api.ItemLabel(item),
			item.ErrorMessage,
		})
	}
	return renderTable(
		[]string{"Stage", "Sequence", "Status", "Retries", "Item", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}
