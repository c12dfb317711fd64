package main

import (
	"github.com/spf13/cobra"
	"github.com/ternarybob/gammawatch/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// No configuration needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		printf(cmd, "GammaWatch version %s\n", common.GetFullVersion())
	},
}
