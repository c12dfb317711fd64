package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gammawatch/internal/common"
)

var (
	// Command-line flags
	configFiles  []string // Later files override earlier ones
	watchDir     string
	scheduleTime string
	logLevel     string
	runNow       bool

	// Global state
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "gammawatch",
	Short: "Renders, delivers and analyses dated chart snapshots",
	Long: `GammaWatch scans a directory for dated chart and text snapshots once a day,
renders charts to images, sends them to the configured channels and posts a
multi-day LLM analysis per symbol.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:      true,
	PersistentPreRunE: initialize,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runNow {
			return runOnce(cmd, args)
		}
		return runServe(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil, "Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&watchDir, "watch-dir", "", "Watch directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&scheduleTime, "schedule", "", "Daily run time HH:MM (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.Flags().BoolVar(&runNow, "run-now", false, "Run once immediately and exit")

	rootCmd.AddCommand(serveCmd, runCmd, analyzeCmd, historyCmd, notifyCmd, runsCmd, versionCmd)
}

func main() {
	defer common.RecoverWithCrashFile()

	common.LoadVersionFromFile()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initialize runs the startup sequence (REQUIRED ORDER):
// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
// 2. Apply CLI overrides (highest priority)
// 3. Validate
// 4. Initialize logger and crash reports
// 5. Print banner
func initialize(cmd *cobra.Command, args []string) error {
	if len(configFiles) == 0 {
		if _, err := os.Stat("gammawatch.toml"); err == nil {
			configFiles = append(configFiles, "gammawatch.toml")
		} else if _, err := os.Stat("deployments/local/gammawatch.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/gammawatch.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		common.GetLogger().Error().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		return err
	}

	common.ApplyFlagOverrides(config, watchDir, scheduleTime, logLevel)

	if err := config.Validate(); err != nil {
		common.GetLogger().Error().Err(err).Msg("Configuration rejected")
		return err
	}

	logger = common.InitLogger(config)
	common.InstallCrashHandler(config.Logging.Directory)

	common.PrintBanner(config, logger)

	for _, overlap := range config.KeywordOverlaps() {
		logger.Warn().Str("overlap", overlap).Msg("Symbol keywords overlap, declaration order decides")
	}

	logger.Debug().
		Strs("config_files", configFiles).
		Str("log_level", config.Logging.Level).
		Strs("log_output", config.Logging.Output).
		Str("environment", config.Environment).
		Msg("Resolved configuration")

	return nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printf(cmd *cobra.Command, format string, a ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, a...)
}
