package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/ternarybob/tacklebox/internal/models"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue URL...",
	Short: "Add product URLs to the workflow as pending",
	Long: `Adds URLs to the workflow store as pending entries. URLs already known are
left untouched. Without --source each URL is matched to the adapter that owns it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnqueue,
}

var enqueueSource string

func init() {
	enqueueCmd.Flags().StringVar(&enqueueSource, "source", "", "Source id the URLs belong to")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	application, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	entries := make([]*models.WorkflowEntry, 0, len(args))
	for _, raw := range args {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("not an absolute URL: %q", raw)
		}

		if enqueueSource != "" {
			adapter, ok := application.Registry.Lookup(enqueueSource)
			if !ok {
				return fmt.Errorf("unknown source %q", enqueueSource)
			}
			if !adapter.Owns(raw) {
				return fmt.Errorf("%s does not belong to source %s", raw, enqueueSource)
			}
			entries = append(entries, models.NewPendingEntry(raw, enqueueSource))
			continue
		}

		adapter, ok := application.Registry.ForURL(raw)
		if !ok {
			return fmt.Errorf("no source owns %s; pass --source", raw)
		}
		entries = append(entries, models.NewPendingEntry(raw, adapter.Source().ID))
	}

	n, err := application.WorkflowStore.Enqueue(cmd.Context(), entries)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %d of %d URLs (%d already known)\n", n, len(entries), len(entries)-n)
	return nil
}
