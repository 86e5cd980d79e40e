package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus and index statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	idx := mustOpenIndex(cfg)
	defer idx.Close()

	provider := newProvider(cfg)
	builder := newBuilder(cfg, idx, newBridge(cfg, provider))

	stats, err := builder.Stats()
	if err != nil {
		exitWithError(ExitError, "collecting stats: %v", err)
	}

	if humanOutput {
		printStatsHuman(stats)
		return nil
	}
	return outputJSON(stats)
}
