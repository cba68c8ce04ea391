package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ternarybob/tacklebox/internal/series"
)

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Export the catalog grouped into series",
	Long: `Reads the whole catalog, groups records sharing a product name into one
series with color variants and price, weight and length ranges, and writes the
result as JSON or YAML. Newest series come first.`,
	Args: cobra.NoArgs,
	RunE: runSeries,
}

var (
	seriesSource string
	seriesFormat string
	seriesOut    string
)

func init() {
	seriesCmd.Flags().StringVar(&seriesSource, "source", "", "Only records of this source id")
	seriesCmd.Flags().StringVar(&seriesFormat, "format", series.FormatJSON, "Output format (json or yaml)")
	seriesCmd.Flags().StringVarP(&seriesOut, "out", "o", "", "Write to this file instead of stdout")
	rootCmd.AddCommand(seriesCmd)
}

func runSeries(cmd *cobra.Command, args []string) error {
	if seriesFormat != series.FormatJSON && seriesFormat != series.FormatYAML {
		return fmt.Errorf("unsupported format %q (expected json or yaml)", seriesFormat)
	}

	application, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	slug := ""
	if seriesSource != "" {
		adapter, ok := application.Registry.Lookup(seriesSource)
		if !ok {
			return fmt.Errorf("unknown source %q", seriesSource)
		}
		slug = adapter.Source().Slug
	}

	aggregated, err := series.LoadSource(cmd.Context(), application.CatalogStore, slug, config.Catalog.PageSize)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if seriesOut != "" {
		f, err := os.Create(seriesOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", seriesOut, err)
		}
		defer f.Close()
		w = f
	}

	if err := series.Write(w, aggregated, seriesFormat); err != nil {
		return fmt.Errorf("failed to write series: %w", err)
	}

	logger.Info().
		Int("series", len(aggregated)).
		Str("format", seriesFormat).
		Str("out", seriesOut).
		Msg("Series exported")

	return nil
}
