package cmd

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantfall/arbscan/config"
	"github.com/quantfall/arbscan/executor"
	"github.com/quantfall/arbscan/financing"
	"github.com/quantfall/arbscan/gas"
	"github.com/quantfall/arbscan/relay"
	"github.com/quantfall/arbscan/scanner"
	"github.com/quantfall/arbscan/simulator"
	"github.com/quantfall/arbscan/types"
	"github.com/quantfall/arbscan/utils"
	"github.com/quantfall/arbscan/utils/metrics"
)

var (
	metricsAddr string
	dryRun      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan continuously and execute profitable trades",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		defer utils.CleanupLogger()

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

		providers, err := buildProviders(cfg, uni.client, log)
		if err != nil {
			return err
		}
		optimizer := financing.NewOptimizer(providers, log)

		scan := scanner.New(uni.registry, scanner.Config{
			MinProfitPercent: cfg.MinProfit(),
			BatchSize:        cfg.BatchSize,
			QuoteTimeout:     cfg.QuoteTimeout,
		}, log)

		estimator := gas.NewEstimator(uni.client, log)

		var coordinator *executor.Coordinator
		if !dryRun {
			coordinator, err = buildCoordinator(cfg, uni, log)
			if err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go estimator.Watch(ctx)
		if err := estimator.Refresh(ctx); err != nil {
			log.Warn("initial gas refresh failed", zap.Error(err))
		}

		go serveMetrics(ctx, metricsAddr, log)

		scanMetrics := metrics.NewScanMetrics("arbscan")
		ticker := time.NewTicker(cfg.ScanInterval)
		defer ticker.Stop()

		log.Info("scanner started",
			zap.Int("pairs", len(uni.pairs)),
			zap.Int("venues", uni.registry.Len()),
			zap.Bool("dry_run", dryRun))

		for {
			select {
			case <-ctx.Done():
				log.Info("scanner stopping")
				return nil
			case <-ticker.C:
				sweep(ctx, cfg, uni, scan, optimizer, estimator, coordinator, scanMetrics, log)
			}
		}
	},
}

func sweep(
	ctx context.Context,
	cfg *config.Config,
	uni *universe,
	scan *scanner.Scanner,
	optimizer *financing.Optimizer,
	estimator *gas.Estimator,
	coordinator *executor.Coordinator,
	scanMetrics *metrics.ScanMetrics,
	log *zap.Logger,
) {
	start := time.Now()
	defer func() {
		scanMetrics.Sweeps.Inc()
		scanMetrics.SweepLatency.Observe(time.Since(start).Seconds())
	}()

	var bestPct float64

	// Probe sizes run smallest first so trades stay well inside pool
	// depth. Each size scans whole batches and works the results
	// best-first: index 0 of a batch is the strongest candidate.
	for _, size := range cfg.ScanAmounts {
		for _, group := range pairGroups(uni.pairs) {
			amount, err := probeAmount(size, group.decimals)
			if err != nil {
				log.Error("bad scan amount", zap.String("size", size), zap.Error(err))
				return
			}

			for _, opp := range scan.ScanPairs(ctx, group.pairs, amount) {
				scanMetrics.Opportunities.Inc()
				if pct, _ := opp.ProfitPercent.Float64(); pct > bestPct {
					bestPct = pct
				}

				pairName := fmt.Sprintf("%s/%s", opp.TokenA.Symbol, opp.TokenB.Symbol)
				gasCost := tradeGasCost(estimator, "aave")
				eval, err := optimizer.Evaluate(ctx, opp, gasCost, cfg.MinProfitFloor())
				if err != nil {
					log.Warn("financing unavailable", zap.String("pair", pairName), zap.Error(err))
					continue
				}
				if !eval.Profitable {
					log.Debug("opportunity not profitable after costs",
						zap.String("pair", pairName),
						zap.String("net", eval.NetProfit.String()))
					continue
				}

				log.Info("profitable opportunity",
					zap.String("pair", pairName),
					zap.String("buy", opp.BuyVenue),
					zap.String("sell", opp.SellVenue),
					zap.String("provider", eval.Plan.Provider.Name()),
					zap.String("net_profit", eval.NetProfit.String()))

				if coordinator == nil {
					continue
				}
				result := execute(ctx, coordinator, eval, opp, estimator, log)
				scanMetrics.Executions.WithLabelValues(result).Inc()
			}
		}
	}

	if bestPct > 0 {
		scanMetrics.BestProfitPct.Set(bestPct)
	}
}

func execute(
	ctx context.Context,
	coordinator *executor.Coordinator,
	eval *financing.Evaluation,
	opp *types.Opportunity,
	estimator *gas.Estimator,
	log *zap.Logger,
) string {
	gasPrice, err := estimator.GasPrice()
	if err != nil {
		log.Warn("no gas price for execution", zap.Error(err))
		return executor.StateFailed.String()
	}

	callData, err := eval.Plan.Provider.LoanCallData(
		eval.Plan.Provider.Address(), eval.Plan.Token.Address, eval.Plan.Amount, nil)
	if err != nil {
		log.Warn("failed to build loan calldata", zap.Error(err))
		return executor.StateFailed.String()
	}

	action := &executor.Action{
		Opportunity: opp,
		Plan:        eval.Plan,
		To:          eval.Plan.Provider.Address(),
		CallData:    callData,
		GasLimit:    gas.TradeGas(eval.Plan.Provider.Name()),
		GasPrice:    gasPrice,
	}

	result, err := coordinator.Execute(ctx, action)
	if err != nil {
		log.Warn("execution failed", zap.Error(err))
	}
	return result.State.String()
}

func buildCoordinator(cfg *config.Config, uni *universe, log *zap.Logger) (*executor.Coordinator, error) {
	signKey, err := loadKey(config.EnvPrivateKey)
	if err != nil {
		return nil, err
	}
	authKey, err := loadKey(config.EnvAuthKey)
	if err != nil {
		return nil, err
	}

	submitter, err := relay.New(relay.Config{
		RelayURL: cfg.RelayURL,
		AuthKey:  authKey,
		SignKey:  signKey,
		ChainID:  new(big.Int).SetUint64(cfg.ChainID),
	}, uni.client, log)
	if err != nil {
		return nil, err
	}

	return executor.NewCoordinator(simulator.New(uni.client, log), submitter, log), nil
}

func loadKey(envVar string) (*ecdsa.PrivateKey, error) {
	hexKey := os.Getenv(envVar)
	if hexKey == "" {
		return nil, fmt.Errorf("%s must be set to execute trades (use --dry-run to scan only)", envVar)
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", envVar, err)
	}
	return key, nil
}

func tradeGasCost(estimator *gas.Estimator, provider string) *big.Int {
	cost, err := estimator.EstimateCost(gas.TradeGas(provider))
	if err != nil {
		return nil
	}
	return cost
}

func serveMetrics(ctx context.Context, addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("metrics server stopped", zap.Error(err))
	}
}

func init() {
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "prometheus metrics listen address")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "scan and evaluate without executing trades")
	rootCmd.AddCommand(runCmd)
}
