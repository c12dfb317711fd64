package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/gammawatch/internal/storage"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs from the run log",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 10, "Number of runs to show (0 for all)")
}

func runRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.NewRunStorage(logger, config)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open run log")
		return err
	}
	if runs == nil {
		return fmt.Errorf("run log is disabled (storage.badger.path is empty)")
	}
	defer runs.Close()

	list, err := runs.ListRuns(context.Background(), runsLimit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		printf(cmd, "No runs recorded\n")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tTRIGGER\tDURATION\tQUEUED\tPROCESSED\tFAILED\tANALYSED\tERRORS")
	for _, run := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%d\n",
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Trigger,
			run.Duration().Round(time.Millisecond),
			run.Queued,
			run.Processed,
			run.Failed,
			strings.Join(run.AnalysedSymbols, ","),
			len(run.Errors),
		)
	}
	return w.Flush()
}
