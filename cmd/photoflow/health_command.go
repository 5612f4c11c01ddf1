package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"photoflow/internal/daemon"
	"photoflow/internal/preflight"
	"photoflow/internal/workflow"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the store, queue, cache and configured dependencies are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withBackends(cmd, func(b *daemon.Backends) error {
				health := b.Engine.HealthCheck(cmd.Context())
				checks := preflight.RunAll(cmd.Context(), cfg)
				healthy := health.Healthy() && len(preflight.Failed(checks)) == 0

				if asJSON {
					if err := writeJSON(cmd, struct {
						Healthy bool               `json:"healthy"`
						Health  workflow.Health    `json:"backends"`
						Checks  []preflight.Result `json:"checks"`
					}{healthy, health, checks}); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					for _, line := range healthLines(health, checks, shouldColorize(out)) {
						fmt.Fprintln(out, line)
					}
				}
				if !healthy {
					return errors.New("one or more health checks failed")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func healthLines(health workflow.Health, checks []preflight.Result, colorize bool) []string {
	lines := renderSectionHeader("Backends", colorize)
	lines = append(lines,
		backendLine("Store", health.StoreReachable, health.StoreError, colorize),
		backendLine("Queue", health.QueueReachable, health.QueueError, colorize),
		backendLine("Cache", health.CacheReachable, health.CacheError, colorize),
	)
	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	for _, check := range checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	return lines
}

func backendLine(label string, reachable bool, detail string, colorize bool) string {
	if reachable {
		return renderStatusLine(label, statusOK, "Reachable", colorize)
	}
	return renderStatusLine(label, statusError, detail, colorize)
}
