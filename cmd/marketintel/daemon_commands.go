package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"marketintel/internal/daemonctl"
)

const daemonBinaryName = "marketinteld"

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Control the background daemon",
	}
	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	return daemonCmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), cfg, exe, daemonctl.LaunchOptions{
				ConfigPath: ctx.configPath(),
				LogLevel:   logLevel,
			}, 10*time.Second)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(out, "Daemon started (pid %d) on %s\n", result.PID, cfg.APIBaseURL())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	return cmd
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cmd.Context(), cfg, 10*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, worker and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			client, err := daemonctl.Dial(cmd.Context(), cfg)
			if err != nil {
				if ctx.jsonMode() {
					return writeJSON(cmd, map[string]any{"running": false})
				}
				colorize := shouldColorize(out)
				printSection(out, "Daemon", colorize)
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "Not running", colorize))
				fmt.Fprintln(out, renderStatusLine("Queue", statusInfo, cfg.QueuePath(), colorize))
				return nil
			}
			defer client.Close()

			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonMode() {
				return writeJSON(cmd, status)
			}

			colorize := shouldColorize(out)
			printSection(out, "Daemon", colorize)
			fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("API", statusInfo, status.APIAddress, colorize))
			fmt.Fprintln(out, renderStatusLine("Queue", statusInfo, status.QueueDBPath, colorize))
			workflowKind := statusOK
			if !status.Workflow.Running {
				workflowKind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Workflow", workflowKind, yesNo(status.Workflow.Running), colorize))
			if status.Workflow.LastError != "" {
				fmt.Fprintln(out, renderStatusLine("Last error", statusError, status.Workflow.LastError, colorize))
			}
			fmt.Fprintln(out)

			printSection(out, "Stages", colorize)
			for _, health := range status.Workflow.StageHealth {
				kind := statusOK
				if !health.Ready {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(health.Name, kind, health.Detail, colorize))
			}
			fmt.Fprintln(out)

			rows := make([][]string, 0, len(status.Workflow.Workers))
			for _, worker := range status.Workflow.Workers {
				rows = append(rows, []string{
					worker.Stage,
					yesNo(worker.Running),
					fmt.Sprintf("%d", worker.Processed),
					fmt.Sprintf("%d", worker.Failed),
					worker.LastItem,
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Worker", "Running", "Processed", "Failed", "Last item"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

// daemonExecutable prefers a marketinteld next to this binary, then PATH.
func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	sibling := filepath.Join(filepath.Dir(exe), daemonBinaryName)
	if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
		return sibling, nil
	}
	path, err := exec.LookPath(daemonBinaryName)
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", daemonBinaryName, err)
	}
	return path, nil
}
