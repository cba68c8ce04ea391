package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/pager"
)

const noteManualReset = "manual reset"

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Return failed (or done) entries to pending",
	Long: `Moves workflow entries with the given status back to pending so the next
ingest run retries them. Entries in error are only ever retried this way.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

var (
	resetSource string
	resetStatus string
	resetDryRun bool
)

func init() {
	resetCmd.Flags().StringVar(&resetSource, "source", "", "Only entries of this source id")
	resetCmd.Flags().StringVar(&resetStatus, "status", string(models.WorkflowError), "Status to reset (error or done)")
	resetCmd.Flags().BoolVar(&resetDryRun, "dry-run", false, "Count matching entries without changing them")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	status := models.WorkflowStatus(resetStatus)
	if status != models.WorkflowError && status != models.WorkflowDone {
		return fmt.Errorf("invalid --status %q (expected error or done)", resetStatus)
	}

	application, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	filter := models.WorkflowFilter{SourceID: resetSource, Status: status}
	entries, err := pager.All(cmd.Context(), config.Workflow.PageSize, 0, func(ctx context.Context, after string, size int) (pager.Page[*models.WorkflowEntry], error) {
		return application.WorkflowStore.ListPage(ctx, filter, after, size)
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if resetDryRun {
		fmt.Fprintf(out, "%d %s entries would be reset\n", len(entries), status)
		return nil
	}

	urls := make([]string, len(entries))
	for i, e := range entries {
		urls[i] = e.URL
	}
	n, err := application.WorkflowStore.Reset(cmd.Context(), urls, noteManualReset)
	if err != nil {
		return err
	}

	logger.Info().
		Str("source", resetSource).
		Str("status", resetStatus).
		Int("reset", n).
		Msg("Workflow entries reset")

	fmt.Fprintf(out, "Reset %d %s entries to pending\n", n, status)
	return nil
}
