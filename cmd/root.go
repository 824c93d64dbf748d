package cmd

import (
	"context"

	"github.com/quantfall/arbscan/utils"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
	logDir  string
)

var rootCmd = &cobra.Command{
	Use:   "arbscan",
	Short: "A cross-venue arbitrage scanner",
	Long: `A scanner that quotes token pairs across AMM venues with exact
decimal arithmetic, plans flash-loan financing for the spread, and can
simulate and submit the resulting trades through a private relay.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file (json or yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", ".", "directory for log files")
}

func initConfig() {
	utils.InitLogger(utils.LogOptions{Debug: debug, Dir: logDir})
}
