package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"photoflow/internal/config"
	"photoflow/internal/daemon"
	"photoflow/internal/photos"
	"photoflow/internal/workflow"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Register uploaded photos and queue them for processing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name != "" && len(args) > 1 {
				return errors.New("--name can only be used with a single path")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := ensureSharedQueue(cfg); err != nil {
				return err
			}
			return ctx.withBackends(cmd, func(b *daemon.Backends) error {
				out := cmd.OutOrStdout()
				var failed int
				for _, arg := range args {
					req, err := createRequest(arg, name)
					if err != nil {
						return err
					}
					photo, err := b.Engine.CreatePhoto(cmd.Context(), req)
					switch {
					case err != nil && photo != nil:
						// Recorded but not enqueued; startup reconciliation repairs it.
						fmt.Fprintf(out, "Queued %s as %s (job not enqueued: %v)\n", req.OriginalName, photo.ID, err)
						failed++
					case err != nil:
						fmt.Fprintf(out, "Failed to add %s: %v\n", req.OriginalName, err)
						failed++
					default:
						fmt.Fprintf(out, "Queued %s as %s\n", req.OriginalName, photo.ID)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d photos were not fully queued", failed, len(args))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Original file name to record (defaults to the path's base name)")
	return cmd
}

func createRequest(arg, name string) (workflow.CreateRequest, error) {
	path, err := config.ExpandPath(strings.TrimSpace(arg))
	if err != nil {
		return workflow.CreateRequest{}, fmt.Errorf("resolve path %q: %w", arg, err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	original := strings.TrimSpace(name)
	if original == "" {
		original = filepath.Base(path)
	}
	return workflow.CreateRequest{OriginalName: original, StoragePath: path}, nil
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Display a photo and its event history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withBackends(cmd, func(b *daemon.Backends) error {
				photo, err := b.Engine.GetPhoto(cmd.Context(), id)
				if errors.Is(err, photos.ErrNotFound) {
					return fmt.Errorf("photo %s not found", id)
				}
				if err != nil {
					return err
				}
				history, err := b.Engine.PhotoHistory(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, struct {
						Photo  *photos.Photo   `json:"photo"`
						Events []photos.Event `json:"events"`
					}{photo, history})
				}
				printPhoto(cmd.OutOrStdout(), photo, history, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printPhoto(out io.Writer, photo *photos.Photo, history []photos.Event, colorize bool) {
	fmt.Fprintf(out, "ID:            %s\n", photo.ID)
	fmt.Fprintf(out, "Original name: %s\n", photo.OriginalName)
	fmt.Fprintf(out, "Filename:      %s\n", photo.Filename)
	fmt.Fprintf(out, "Status:        %s\n", renderPhotoStatus(photo.Status, colorize))
	if photo.StoragePath != "" {
		fmt.Fprintf(out, "Storage path:  %s\n", photo.StoragePath)
	}
	fmt.Fprintf(out, "Created:       %s\n", formatTime(photo.CreatedAt))
	fmt.Fprintf(out, "Updated:       %s\n", formatTime(photo.UpdatedAt))
	fmt.Fprintf(out, "Processed:     %s\n", formatOptionalTime(photo.ProcessedAt))
	if len(history) == 0 {
		return
	}
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("History", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := make([][]string, 0, len(history))
	for _, event := range history {
		rows = append(rows, []string{
			formatTime(event.CreatedAt),
			string(event.Type),
			transitionLabel(event, colorize),
			event.Message,
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Time", "Event", "Transition", "Message"}, rows, nil))
}

func transitionLabel(event photos.Event, colorize bool) string {
	to := renderPhotoStatus(event.ToStatus, colorize)
	if event.FromStatus == nil {
		return to
	}
	return renderPhotoStatus(*event.FromStatus, colorize) + " -> " + to
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var page, limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List photos, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status *photos.Status
			if strings.TrimSpace(statusFlag) != "" {
				parsed, ok := photos.ParseStatus(statusFlag)
				if !ok {
					return fmt.Errorf("unknown status %q (expected one of %s)", statusFlag, statusChoices())
				}
				status = &parsed
			}
			return ctx.withBackends(cmd, func(b *daemon.Backends) error {
				result, err := b.Engine.ListPhotos(cmd.Context(), status, page, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				if result.Total == 0 {
					fmt.Fprintln(out, "No photos found")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(result.Items))
				for _, photo := range result.Items {
					rows = append(rows, []string{
						photo.ID,
						photo.OriginalName,
						renderPhotoStatus(photo.Status, colorize),
						formatTime(photo.CreatedAt),
						formatTime(photo.UpdatedAt),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"ID", "Name", "Status", "Created", "Updated"}, rows, nil))
				fmt.Fprintln(out, pageSummary(result.Page, result.TotalPages, result.Total, "photos"))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&statusFlag, "status", "s", "", "Only list photos in this status")
	cmd.Flags().IntVar(&page, "page", photos.DefaultPage, "Page number")
	cmd.Flags().IntVar(&limit, "limit", photos.DefaultLimit, "Photos per page (max "+strconv.Itoa(photos.MaxLimit)+")")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var photoID string
	var page, limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List workflow events, newest first (or one photo's history)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBackends(cmd, func(b *daemon.Backends) error {
				result, err := b.Engine.ListEvents(cmd.Context(), strings.TrimSpace(photoID), page, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				if result.Total == 0 {
					fmt.Fprintln(out, "No events found")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(result.Items))
				for _, event := range result.Items {
					rows = append(rows, []string{
						formatTime(event.CreatedAt),
						event.PhotoID,
						string(event.Type),
						transitionLabel(event, colorize),
						event.Message,
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Time", "Photo", "Event", "Transition", "Message"}, rows, nil))
				fmt.Fprintln(out, pageSummary(result.Page, result.TotalPages, result.Total, "events"))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&photoID, "photo", "", "Only list events for this photo")
	cmd.Flags().IntVar(&page, "page", photos.DefaultPage, "Page number")
	cmd.Flags().IntVar(&limit, "limit", photos.DefaultLimit, "Events per page (max "+strconv.Itoa(photos.MaxLimit)+")")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func pageSummary(page, totalPages, total int, noun string) string {
	return fmt.Sprintf("Page %d of %d (%d %s)", page, totalPages, total, noun)
}

func statusChoices() string {
	statuses := photos.AllStatuses()
	names := make([]string, 0, len(statuses))
	for _, status := range statuses {
		names = append(names, strings.ToLower(string(status)))
	}
	return strings.Join(names, ", ")
}
