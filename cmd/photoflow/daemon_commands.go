package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"photoflow/internal/daemonctl"
	"photoflow/internal/daemonrun"
)

const stopGraceMargin = 5 * time.Second

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newRunCommand(ctx),
		newStopCommand(ctx),
		newStatusCommand(ctx),
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the processing daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running daemon after it drains in-flight photos",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cfg, cfg.DrainTimeout()+stopGraceMargin)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon (pid %d) did not drain in time and was killed\n", result.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon (pid %d) stopped\n", result.PID)
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether a daemon is running for the configured data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			running, pid, err := daemonctl.ProcessInfo(cfg)
			if err != nil {
				return err
			}
			switch {
			case running && pid > 0:
				fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", pid), colorize))
			case running:
				fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, "Running", colorize))
			default:
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "Not running", colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Workers", statusInfo, fmt.Sprintf("%d", cfg.Workflow.WorkerCount), colorize))
			fmt.Fprintln(out, renderStatusLine("Backends", statusInfo,
				fmt.Sprintf("queue=%s lock=%s cache=%s", cfg.Queue.Backend, cfg.Lock.Backend, cfg.Cache.Backend), colorize))
			fmt.Fprintln(out, renderStatusLine("Events", statusInfo, "Kafka publishing "+enabledLabel(cfg.EventsEnabled()), colorize))
			return nil
		},
	}
}

func enabledLabel(value bool) string {
	if value {
		return "enabled"
	}
	return "disabled"
}
