package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"photoflow/internal/daemon"
	"photoflow/internal/daemonctl"
	"photoflow/internal/jobqueue"
	"photoflow/internal/photos"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and repair the processing queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueRequeueCommand(ctx))
	queueCmd.AddCommand(newQueueReconcileCommand(ctx))
	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show photo counts per status and queue depth",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withBackends(cmd, func(b *daemon.Backends) error {
				stats, err := b.Engine.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, stats)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				statusRows := make([][]string, 0, len(photos.AllStatuses()))
				for _, status := range photos.AllStatuses() {
					statusRows = append(statusRows, []string{
						renderPhotoStatus(status, colorize),
						strconv.Itoa(stats.Photos[status]),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Status", "Photos"}, statusRows, []columnAlignment{alignLeft, alignRight}))

				depthRows := [][]string{
					{"Ready", strconv.Itoa(stats.Queue.Ready)},
					{"In flight", strconv.Itoa(stats.Queue.InFlight)},
					{"Delayed", strconv.Itoa(stats.Queue.Delayed)},
				}
				fmt.Fprintln(out, renderTable([]string{"Queue " + jobqueue.Name, "Jobs"}, depthRows, []columnAlignment{alignLeft, alignRight}))

				running, pid, _ := daemonctl.ProcessInfo(cfg)
				fmt.Fprintf(out, "Daemon running: %s", yesNo(running))
				if running && pid > 0 {
					fmt.Fprintf(out, " (pid %d)", pid)
				}
				fmt.Fprintf(out, "\nQueue backend: %s\n", cfg.Queue.Backend)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <id>...",
		Short: "Enqueue a new job for queued or processing photos that have none",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := ensureSharedQueue(cfg); err != nil {
				return err
			}
			return ctx.withBackends(cmd, func(b *daemon.Backends) error {
				out := cmd.OutOrStdout()
				var failures []string
				for _, arg := range args {
					id := strings.TrimSpace(arg)
					added, err := b.Engine.Requeue(cmd.Context(), id)
					switch {
					case errors.Is(err, photos.ErrNotFound):
						failures = append(failures, fmt.Sprintf("photo %s not found", id))
					case errors.Is(err, photos.ErrInvalidTransition):
						failures = append(failures, fmt.Sprintf("photo %s cannot be requeued: %v", id, err))
					case err != nil:
						return err
					case added:
						fmt.Fprintf(out, "Requeued photo %s\n", id)
					default:
						fmt.Fprintf(out, "Photo %s already has a pending job\n", id)
					}
				}
				if len(failures) > 0 {
					return errors.New(strings.Join(failures, "; "))
				}
				return nil
			})
		},
	}
}

func newQueueReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Queue uploaded photos and enqueue jobs for photos left without one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := ensureSharedQueue(cfg); err != nil {
				return err
			}
			return ctx.withBackends(cmd, func(b *daemon.Backends) error {
				count, err := b.Engine.ReconcileQueued(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if count == 0 {
					fmt.Fprintln(out, "No photos needed a new job")
					return nil
				}
				fmt.Fprintf(out, "Enqueued %d job(s)\n", count)
				return nil
			})
		},
	}
}
