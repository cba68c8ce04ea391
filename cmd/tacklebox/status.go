package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ternarybob/tacklebox/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workflow counts and catalog rows per source",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var statusSource string

func init() {
	statusCmd.Flags().StringVar(&statusSource, "source", "", "Only this source id")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	application, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	ids := application.Registry.IDs()
	if statusSource != "" {
		if _, ok := application.Registry.Lookup(statusSource); !ok {
			return fmt.Errorf("unknown source %q", statusSource)
		}
		ids = []string{statusSource}
	}

	headers := []string{"source"}
	for _, s := range models.WorkflowStatuses {
		headers = append(headers, string(s))
	}
	headers = append(headers, "catalog rows")

	var rows [][]string
	totals := make([]int, len(models.WorkflowStatuses)+1)
	for _, id := range ids {
		adapter, _ := application.Registry.Lookup(id)

		counts, err := application.WorkflowStore.Counts(cmd.Context(), id)
		if err != nil {
			return err
		}
		rowsInCatalog, err := application.CatalogStore.Count(cmd.Context(), adapter.Source().Slug)
		if err != nil {
			return err
		}

		row := []string{id}
		for i, s := range models.WorkflowStatuses {
			row = append(row, strconv.Itoa(counts[s]))
			totals[i] += counts[s]
		}
		row = append(row, strconv.Itoa(rowsInCatalog))
		totals[len(totals)-1] += rowsInCatalog
		rows = append(rows, row)
	}

	if len(ids) > 1 {
		total := []string{"total"}
		for _, n := range totals {
			total = append(total, strconv.Itoa(n))
		}
		rows = append(rows, total)
	}

	renderTable(cmd.OutOrStdout(), headers, rows)
	return nil
}
