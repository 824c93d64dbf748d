// Package simulator dry-runs trade actions against a node before any
// value is at risk.
package simulator

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/quantfall/arbscan/executor"
)

// Client is the subset of ethclient the simulator needs.
type Client interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Simulator validates an action with a gas estimate followed by a full
// eth_call dry run. Either step reverting fails the simulation.
type Simulator struct {
	metrics struct {
		simulations prometheus.Counter
		reverts     prometheus.Counter
		latency     prometheus.Histogram
	}
	client  Client
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a simulator over client.
func New(client Client, logger *zap.Logger) *Simulator {
	s := &Simulator{
		client:  client,
		timeout: 5 * time.Second,
		logger:  logger,
	}

	s.metrics.simulations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulator_runs_total",
		Help: "Total number of dry runs",
	})
	s.metrics.reverts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulator_reverts_total",
		Help: "Dry runs that reverted or errored",
	})
	s.metrics.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "simulator_latency_seconds",
		Help:    "Latency of dry runs",
		Buckets: prometheus.DefBuckets,
	})

	return s
}

var _ executor.Simulator = (*Simulator)(nil)

// Simulate estimates gas for the action and then executes it as a call.
// The gas estimate also catches actions whose declared limit is too low.
func (s *Simulator) Simulate(ctx context.Context, action *executor.Action) error {
	start := time.Now()
	defer func() {
		s.metrics.latency.Observe(time.Since(start).Seconds())
	}()
	s.metrics.simulations.Inc()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg := ethereum.CallMsg{
		To:       &action.To,
		Gas:      action.GasLimit,
		GasPrice: action.GasPrice,
		Data:     action.CallData,
	}

	gasUsed, err := s.client.EstimateGas(ctx, msg)
	if err != nil {
		s.metrics.reverts.Inc()
		return fmt.Errorf("gas estimation failed: %w", err)
	}
	if action.GasLimit > 0 && gasUsed > action.GasLimit {
		s.metrics.reverts.Inc()
		return fmt.Errorf("estimated gas %d exceeds limit %d", gasUsed, action.GasLimit)
	}

	if _, err := s.client.CallContract(ctx, msg, nil); err != nil {
		s.metrics.reverts.Inc()
		return fmt.Errorf("dry run call failed: %w", err)
	}

	s.logger.Debug("dry run passed",
		zap.Uint64("gas_used", gasUsed),
		zap.Uint64("gas_limit", action.GasLimit))
	return nil
}
