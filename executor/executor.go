// Package executor drives a planned trade through simulation and
// submission, tracking its lifecycle state.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/quantfall/arbscan/financing"
	"github.com/quantfall/arbscan/types"
)

// State is the lifecycle stage of a trade execution.
type State int

const (
	StatePlanned State = iota
	StateSimulated
	StateSubmitted
	StateConfirmed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePlanned:
		return "PLANNED"
	case StateSimulated:
		return "SIMULATED"
	case StateSubmitted:
		return "SUBMITTED"
	case StateConfirmed:
		return "CONFIRMED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

var (
	// ErrSimulationFailed is returned when the dry run reverts or errors.
	ErrSimulationFailed = errors.New("executor: simulation failed")

	// ErrSubmissionRejected is returned when the relay refuses the trade.
	ErrSubmissionRejected = errors.New("executor: submission rejected")

	// ErrInclusionTimeout is returned when a submitted trade never lands.
	ErrInclusionTimeout = errors.New("executor: inclusion timeout")
)

// Action is a fully materialized trade ready to simulate and submit.
type Action struct {
	Opportunity *types.Opportunity
	Plan        *financing.Plan
	To          common.Address
	CallData    []byte
	GasLimit    uint64
	GasPrice    *big.Int
}

// Simulator dry-runs an action without spending anything.
type Simulator interface {
	Simulate(ctx context.Context, action *Action) error
}

// Submitter sends a simulated action for inclusion and waits for it to
// land. Submit returns an identifier the caller can use in logs.
type Submitter interface {
	Submit(ctx context.Context, action *Action) (string, error)
	AwaitInclusion(ctx context.Context, id string) error
}

// Result records where an execution ended up and why.
type Result struct {
	Action    *Action
	State     State
	TxID      string
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
}

// Coordinator runs each trade through the fixed pipeline
// PLANNED, SIMULATED, SUBMITTED, then CONFIRMED or FAILED.
// A failed stage is terminal: there are no retries, the next
// scan will produce a fresh plan against fresh prices.
type Coordinator struct {
	metrics struct {
		executions prometheus.CounterVec
		latency    prometheus.Histogram
	}
	simulator Simulator
	submitter Submitter
	logger    *zap.Logger
}

// NewCoordinator wires a coordinator over the given simulator and submitter.
func NewCoordinator(simulator Simulator, submitter Submitter, logger *zap.Logger) *Coordinator {
	c := &Coordinator{
		simulator: simulator,
		submitter: submitter,
		logger:    logger,
	}

	c.metrics.executions = *prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "executor_executions_total",
		Help: "Executions by terminal state",
	}, []string{"state"})

	c.metrics.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "executor_execution_latency_seconds",
		Help:    "End to end execution latency",
		Buckets: prometheus.DefBuckets,
	})

	return c
}

// Execute runs action to a terminal state. The returned Result always
// carries the terminal state and, on failure, the classified error; the
// error return mirrors Result.Err for callers that only check errors.
func (c *Coordinator) Execute(ctx context.Context, action *Action) (*Result, error) {
	result := &Result{
		Action:    action,
		State:     StatePlanned,
		StartedAt: time.Now(),
	}
	defer func() {
		result.EndedAt = time.Now()
		c.metrics.latency.Observe(result.EndedAt.Sub(result.StartedAt).Seconds())
		c.metrics.executions.WithLabelValues(result.State.String()).Inc()
	}()

	log := c.logger.With(
		zap.String("pair", fmt.Sprintf("%s/%s", action.Opportunity.TokenA.Symbol, action.Opportunity.TokenB.Symbol)),
		zap.String("buy_venue", action.Opportunity.BuyVenue),
		zap.String("sell_venue", action.Opportunity.SellVenue),
	)

	if err := c.simulator.Simulate(ctx, action); err != nil {
		result.State = StateFailed
		result.Err = fmt.Errorf("%w: %v", ErrSimulationFailed, err)
		log.Warn("simulation failed", zap.Error(err))
		return result, result.Err
	}
	result.State = StateSimulated
	log.Debug("simulation passed", zap.String("state", result.State.String()))

	id, err := c.submitter.Submit(ctx, action)
	if err != nil {
		result.State = StateFailed
		result.Err = fmt.Errorf("%w: %v", ErrSubmissionRejected, err)
		log.Warn("submission rejected", zap.Error(err))
		return result, result.Err
	}
	result.State = StateSubmitted
	result.TxID = id
	log.Info("trade submitted", zap.String("tx_id", id))

	if err := c.submitter.AwaitInclusion(ctx, id); err != nil {
		result.State = StateFailed
		result.Err = fmt.Errorf("%w: %v", ErrInclusionTimeout, err)
		log.Warn("trade not included", zap.String("tx_id", id), zap.Error(err))
		return result, result.Err
	}

	result.State = StateConfirmed
	log.Info("trade confirmed",
		zap.String("tx_id", id),
		zap.String("expected_profit", action.Opportunity.ExpectedProfit.String()))
	return result, nil
}
