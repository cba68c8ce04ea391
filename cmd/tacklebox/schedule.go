package main

import (
	"github.com/spf13/cobra"

	"github.com/ternarybob/tacklebox/internal/common"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run ingest and gap detection on their cron schedules",
	Long: `Starts a long running process that triggers the ingest and gaps jobs using
the six-field cron expressions in [schedule]. Stops on SIGINT or SIGTERM after
the running job has released its claims.`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	application, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	common.PrintBanner()

	if err := application.RegisterScheduledJobs(); err != nil {
		return err
	}
	if err := application.Scheduler.Start(); err != nil {
		return err
	}

	logger.Info().
		Str("ingest", config.Schedule.Ingest).
		Str("gaps", config.Schedule.Gaps).
		Msg("Scheduler running; press Ctrl+C to stop")

	<-cmd.Context().Done()

	logger.Info().Msg("Shutdown signal received")
	return nil
}
