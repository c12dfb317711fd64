package main

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/gammawatch/internal/app"
	"github.com/ternarybob/gammawatch/internal/models"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scan, delivery and analysis once and exit",
	RunE:  runOnce,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the multi-day analysis for every symbol without scanning",
	RunE:  runAnalyze,
}

func runOnce(cmd *cobra.Command, args []string) error {
	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return err
	}
	defer application.Close()

	ctx, stop := signalContext()
	defer stop()

	summary, err := application.RunNow(ctx)
	printSummary(cmd, summary)
	return err
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	application, err := app.New(config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		return err
	}
	defer application.Close()

	ctx, stop := signalContext()
	defer stop()

	summary, err := application.Analyze(ctx)
	printSummary(cmd, summary)
	return err
}

func printSummary(cmd *cobra.Command, run *models.RunSummary) {
	if run == nil {
		return
	}
	printf(cmd, "\nRun %s (%s) finished in %s\n", run.ID, run.Trigger, run.Duration().Round(time.Millisecond))
	printf(cmd, "  queued %d, processed %d, failed %d\n", run.Queued, run.Processed, run.Failed)
	if len(run.AnalysedSymbols) > 0 {
		printf(cmd, "  analysed: %s\n", strings.Join(run.AnalysedSymbols, ", "))
	}
	if len(run.SkippedSymbols) > 0 {
		printf(cmd, "  skipped:  %s\n", strings.Join(run.SkippedSymbols, ", "))
	}
	for _, e := range run.Errors {
		printf(cmd, "  error: %s\n", e)
	}
}
