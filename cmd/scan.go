package cmd

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantfall/arbscan/config"
	"github.com/quantfall/arbscan/fixedpoint"
	"github.com/quantfall/arbscan/scanner"
	"github.com/quantfall/arbscan/utils"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single scan sweep and print the opportunities",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()

		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		cfg.ApplyEnvOverrides()

		uni, err := buildUniverse(cfg, log)
		if err != nil {
			return err
		}
		defer uni.client.Close()

		scan := scanner.New(uni.registry, scanner.Config{
			MinProfitPercent: cfg.MinProfit(),
			BatchSize:        cfg.BatchSize,
			QuoteTimeout:     cfg.QuoteTimeout,
		}, log)

		// Batches come back sorted by profit descending, so the print
		// order within a size is best-first.
		found := 0
		for _, size := range cfg.ScanAmounts {
			for _, group := range pairGroups(uni.pairs) {
				amount, err := probeAmount(size, group.decimals)
				if err != nil {
					return fmt.Errorf("scan amount %q: %w", size, err)
				}
				for _, opp := range scan.ScanPairs(cmd.Context(), group.pairs, amount) {
					found++
					fmt.Printf("%s/%s: buy %s sell %s size %s profit %s%% (%s raw)\n",
						opp.TokenA.Symbol, opp.TokenB.Symbol, opp.BuyVenue, opp.SellVenue, size,
						opp.ProfitPercent.StringFixed(4), opp.ExpectedProfit)
				}
			}
		}

		if found == 0 {
			fmt.Println("no opportunities above threshold")
		}
		log.Info("sweep complete",
			zap.Int("pairs", len(uni.pairs)),
			zap.Int("sizes", len(cfg.ScanAmounts)),
			zap.Int("opportunities", found))
		return nil
	},
}

// probeAmount converts a whole-token probe size into raw units.
func probeAmount(size string, decimals int32) (*big.Int, error) {
	value, err := decimal.NewFromString(size)
	if err != nil {
		return nil, err
	}
	return fixedpoint.ToRaw(value, decimals), nil
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
