package main

import (
	"github.com/spf13/cobra"
	"github.com/ternarybob/gammawatch/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the daily scheduler",
	Long:  `Starts the scheduler which runs the scan, delivery and analysis once a day at the configured time.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return err
	}
	defer application.Close()

	ctx, stop := signalContext()
	defer stop()

	if err := application.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start scheduler")
		return err
	}

	status := application.SchedulerService.Status()
	event := logger.Info().Str("schedule_time", status.Schedule)
	if status.NextRun != nil {
		event = event.Str("next_run", status.NextRun.Format("2006-01-02 15:04 MST"))
	}
	event.Msg("Scheduler running - Press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info().Msg("Interrupt signal received, shutting down")
	return nil
}
