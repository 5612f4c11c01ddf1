package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"photoflow/internal/logging"
	"photoflow/internal/logs"
)

const followWait = time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var photoID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
			opts := logs.TailOptions{Offset: -1, Limit: lines}
			if id := strings.TrimSpace(photoID); id != "" {
				// Console records show a short subject, JSON records the full id.
				opts.Match = []string{id, logging.FormatSubject("", id)}
			}

			out := cmd.OutOrStdout()
			for {
				result, err := logs.Tail(cmd.Context(), path, opts)
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				for _, line := range result.Lines {
					fmt.Fprintln(out, line)
				}
				if !follow {
					return nil
				}
				opts.Offset = result.Offset
				opts.Follow = true
				opts.Wait = followWait
			}
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of records to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new records")
	cmd.Flags().StringVar(&photoID, "photo", "", "Only show records about this photo")
	return cmd
}
