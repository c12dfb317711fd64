package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the resolved settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("GammaWatch", GetVersion())

	keys := make([]string, 0, len(config.Symbols))
	for _, sym := range config.Symbols {
		keys = append(keys, sym.Key())
	}

	logger.Info().
		Str("version", GetFullVersion()).
		Str("watch_directory", config.WatchDirectory).
		Str("output_directory", config.OutputDirectory).
		Str("history_file", config.HistoryFile).
		Str("schedule_time", config.ScheduleTime).
		Strs("symbols", keys).
		Msg("Configuration loaded")
}
