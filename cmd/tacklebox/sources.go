package main

import (
	"github.com/spf13/cobra"

	"github.com/ternarybob/tacklebox/internal/app"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the registered source adapters",
	Args:  cobra.NoArgs,
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	registry, _, _ := app.NewRegistry(config, logger)

	var rows [][]string
	for _, src := range registry.Sources() {
		rows = append(rows, []string{src.ID, src.Name, src.BaseURL})
	}
	renderTable(cmd.OutOrStdout(), []string{"id", "name", "base url"}, rows)
	return nil
}
