package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ternarybob/tacklebox/internal/gaps"
)

var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "Detect new products and lost catalog rows",
	Long: `Compares each source's live product listing with the workflow store and
enqueues products never seen before. Entries marked done whose catalog rows are
missing are reset to pending.`,
	Args: cobra.NoArgs,
	RunE: runGaps,
}

var (
	gapsSource  string
	gapsDryRun  bool
	gapsJSON    bool
	gapsVerbose bool
)

func init() {
	gapsCmd.Flags().StringVar(&gapsSource, "source", "", "Only check this source id")
	gapsCmd.Flags().BoolVar(&gapsDryRun, "dry-run", false, "Report without enqueueing or resetting")
	gapsCmd.Flags().BoolVar(&gapsJSON, "json", false, "Print the report as JSON")
	gapsCmd.Flags().BoolVarP(&gapsVerbose, "verbose", "v", false, "List every new and missing URL")
	rootCmd.AddCommand(gapsCmd)
}

func runGaps(cmd *cobra.Command, args []string) error {
	application, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	report, err := application.Gaps.Run(cmd.Context(), gaps.Options{
		SourceID: gapsSource,
		DryRun:   gapsDryRun,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if gapsJSON {
		return printJSON(out, report)
	}

	title := "Gap report"
	if report.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintln(out, titleStyle.Render(title))

	rows := make([][]string, 0, len(report.Sources))
	for _, sr := range report.Sources {
		rows = append(rows, []string{
			sr.SourceID,
			strconv.Itoa(sr.Candidates),
			strconv.Itoa(len(sr.NewURLs)),
			strconv.Itoa(sr.Enqueued),
			strconv.Itoa(len(sr.MissingURLs)),
			strconv.Itoa(sr.Reset),
			sr.Error,
		})
	}
	renderTable(out, []string{"source", "listed", "new", "enqueued", "missing", "reset", "error"}, rows)

	if gapsVerbose {
		for _, sr := range report.Sources {
			for _, u := range sr.NewURLs {
				fmt.Fprintf(out, "new      %-12s %s\n", sr.SourceID, u)
			}
			for _, u := range sr.MissingURLs {
				fmt.Fprintf(out, "missing  %-12s %s\n", sr.SourceID, u)
			}
		}
	}

	return nil
}
