package main

import (
	"slices"
	"sort"

	"github.com/spf13/cobra"
	"github.com/ternarybob/gammawatch/internal/history"
)

var (
	historyMigrate  bool
	historyNoBackup bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show per-symbol history and analysis eligibility",
	RunE:  runHistory,
}

var historyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Back up and clear the history file",
	RunE:  runHistoryReset,
}

func init() {
	historyCmd.Flags().BoolVar(&historyMigrate, "migrate", false, "Rewrite the history file in the current layout")
	historyResetCmd.Flags().BoolVar(&historyNoBackup, "no-backup", false, "Do not write <history>.backup before clearing")
	historyCmd.AddCommand(historyResetCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	store := history.NewStore(config.HistoryFile, logger)
	store.Load()

	printf(cmd, "History: %s\n", store.Path())

	configured := make(map[string]bool, len(config.Symbols))
	for _, sym := range config.Symbols {
		configured[sym.Key()] = true
	}

	keys := store.Symbols()
	for _, sym := range config.Symbols {
		if !slices.Contains(keys, sym.Key()) {
			keys = append(keys, sym.Key())
		}
	}
	sort.Strings(keys)

	window := config.Analysis.RecentDays
	if window < 2 {
		window = 2
	}

	for _, key := range keys {
		entries := store.Entries(key)
		label := key
		if !configured[key] {
			label += " (not configured)"
		}
		printf(cmd, "\n%s: %d dates\n", label, len(entries))

		for _, e := range entries {
			printf(cmd, "  %s  chart=%s text=%s\n", e.Date, mark(e.HasChart()), mark(e.HasText()))
		}

		if !configured[key] {
			continue
		}

		recent := store.GetRecentRecords(key, window)
		if len(recent) < 2 {
			printf(cmd, "  analysis: not eligible (%d of 2 dates)\n", len(recent))
			continue
		}

		charts, texts := 0, 0
		for _, e := range recent {
			if e.HasChart() {
				charts++
			}
			if e.HasText() {
				texts++
			}
		}
		printf(cmd, "  analysis: eligible, charts %d/%d, text %d/%d\n", charts, len(recent), texts, len(recent))
		if charts == 0 && texts == 0 {
			printf(cmd, "  warning: no usable data in the analysis window\n")
		}
	}

	if historyMigrate {
		if err := store.Save(); err != nil {
			logger.Error().Err(err).Msg("Failed to rewrite history file")
			return err
		}
		printf(cmd, "\nHistory rewritten in the current layout\n")
	}

	return nil
}

func runHistoryReset(cmd *cobra.Command, args []string) error {
	store := history.NewStore(config.HistoryFile, logger)
	store.Load()

	backup, err := store.Reset(!historyNoBackup)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to reset history")
		return err
	}

	if backup != "" {
		printf(cmd, "Backup written to %s\n", backup)
	}
	printf(cmd, "History cleared: %s\n", store.Path())
	return nil
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
