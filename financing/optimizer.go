package financing

import (
	"context"
	"fmt"
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"github.com/quantfall/arbscan/fixedpoint"
	"github.com/quantfall/arbscan/types"
)

// Optimizer picks the cheapest funding source for each trade and judges
// whether the trade survives its financing and gas costs.
type Optimizer struct {
	metrics struct {
		providerSelections prometheus.CounterVec
		skippedProviders   prometheus.CounterVec
		profitableCount    prometheus.Counter
		evaluationCount    prometheus.Counter
		profitableRate     prometheus.Gauge
	}
	providers []Provider
	logger    *zap.Logger
}

// NewOptimizer creates an optimizer over the given providers. Provider
// order is significant: when two providers quote the same cost, the one
// listed first wins.
func NewOptimizer(providers []Provider, logger *zap.Logger) *Optimizer {
	o := &Optimizer{
		providers: providers,
		logger:    logger,
	}

	o.metrics.providerSelections = *prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "financing_provider_selections_total",
		Help: "Number of times each provider was selected",
	}, []string{"provider"})

	o.metrics.skippedProviders = *prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "financing_provider_skips_total",
		Help: "Providers skipped during selection by reason",
	}, []string{"provider", "reason"})

	o.metrics.profitableCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "financing_profitable_evaluations_total",
		Help: "Number of evaluations that cleared all costs",
	})

	o.metrics.evaluationCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "financing_evaluations_total",
		Help: "Total number of profitability evaluations",
	})

	o.metrics.profitableRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "financing_profitable_rate",
		Help: "Fraction of evaluations that were profitable",
	})

	return o
}

// SelectCheapestProvider returns the cheapest financing plan for borrowing amount
// of token. Providers that cannot report liquidity or cannot cover the
// amount are skipped, not fatal.
func (o *Optimizer) SelectCheapestProvider(ctx context.Context, token types.Token, amount *big.Int) (*Plan, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(o.providers) == 0 {
		return nil, ErrNoProvider
	}

	var (
		best     Provider
		bestCost *big.Int
	)

	for _, provider := range o.providers {
		liquidity, err := provider.Liquidity(ctx, token.Address)
		if err != nil {
			o.logger.Warn("provider liquidity check failed",
				zap.String("provider", provider.Name()),
				zap.Error(err))
			o.metrics.skippedProviders.WithLabelValues(provider.Name(), "liquidity_error").Inc()
			continue
		}
		if liquidity.Cmp(amount) < 0 {
			o.metrics.skippedProviders.WithLabelValues(provider.Name(), "insufficient_liquidity").Inc()
			continue
		}

		cost := LoanCost(amount, provider.FeeBps())
		// Strict comparison keeps the earlier provider on equal cost.
		if bestCost == nil || cost.Cmp(bestCost) < 0 {
			best = provider
			bestCost = cost
		}
	}

	if best == nil {
		return nil, fmt.Errorf("financing %s for %s: %w", amount, token.Symbol, ErrNoProvider)
	}

	o.metrics.providerSelections.WithLabelValues(best.Name()).Inc()
	o.logger.Debug("selected financing provider",
		zap.String("provider", best.Name()),
		zap.String("token", token.Symbol),
		zap.String("amount", amount.String()),
		zap.String("cost", bestCost.String()))

	return &Plan{
		Token:    token,
		Amount:   amount,
		Provider: best,
		Cost:     bestCost,
	}, nil
}

// Evaluate checks whether an opportunity's expected profit survives the
// financing fee and the estimated gas cost, against a raw minimum profit
// floor. An unprofitable trade is a normal outcome, reported in the
// result rather than as an error. A nil minProfit or gasCost counts as
// zero.
func (o *Optimizer) Evaluate(ctx context.Context, opp *types.Opportunity, gasCost, minProfit *big.Int) (*Evaluation, error) {
	plan, err := o.SelectCheapestProvider(ctx, opp.TokenA, opp.AmountIn)
	if err != nil {
		return nil, err
	}

	totalCost := new(big.Int).Set(plan.Cost)
	if gasCost != nil {
		totalCost.Add(totalCost, gasCost)
	}
	if minProfit == nil {
		minProfit = new(big.Int)
	}

	eval := &Evaluation{
		Plan:       plan,
		NetProfit:  new(big.Int).Sub(opp.ExpectedProfit, totalCost),
		Profitable: fixedpoint.IsProfitable(opp.ExpectedProfit, totalCost, minProfit),
	}

	o.metrics.evaluationCount.Inc()
	if eval.Profitable {
		o.metrics.profitableCount.Inc()
	}
	o.updateProfitableRate()

	return eval, nil
}

// updateProfitableRate recomputes the profitable fraction from the two
// counters by reading them back through the collector interface.
func (o *Optimizer) updateProfitableRate() {
	var profitable, total float64

	ch := make(chan prometheus.Metric, 1)
	o.metrics.profitableCount.Collect(ch)
	if metric := <-ch; metric != nil {
		m := &dto.Metric{}
		if err := metric.Write(m); err == nil && m.Counter != nil {
			profitable = *m.Counter.Value
		}
	}

	o.metrics.evaluationCount.Collect(ch)
	if metric := <-ch; metric != nil {
		m := &dto.Metric{}
		if err := metric.Write(m); err == nil && m.Counter != nil {
			total = *m.Counter.Value
		}
	}

	if total > 0 {
		o.metrics.profitableRate.Set(profitable / total)
	}
}
