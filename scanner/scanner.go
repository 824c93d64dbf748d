// Package scanner finds cross-venue round-trip opportunities for configured
// token pairs. All quote requests inside a pair fan out concurrently and
// join before selection; a venue failing or timing out only removes that
// venue from the cycle's candidate set.
package scanner

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quantfall/arbscan/amm"
	"github.com/quantfall/arbscan/fixedpoint"
	"github.com/quantfall/arbscan/types"
	"github.com/quantfall/arbscan/venue"
)

// DefaultBatchSize caps concurrently scanned pairs in a sweep.
const DefaultBatchSize = 10

var oneHundred = decimal.NewFromInt(100)

// Config tunes a Scanner.
type Config struct {
	// MinProfitPercent drops opportunities whose pre-financing round-trip
	// profit is below this percentage.
	MinProfitPercent decimal.Decimal
	// BatchSize bounds pairs in flight during ScanPairs.
	BatchSize int
	// QuoteTimeout is the per-venue-request timeout.
	QuoteTimeout time.Duration
}

// Scanner fans quote requests out across a read-only venue registry.
type Scanner struct {
	registry *venue.Registry
	cfg      Config
	logger   *zap.Logger

	metrics struct {
		quotesIssued  prometheus.CounterVec
		venueErrors   prometheus.CounterVec
		opportunities prometheus.Counter
		scanLatency   prometheus.Histogram
	}
}

// New creates a scanner over the given registry. The registry and config
// are shared read-only across concurrent scans.
func New(registry *venue.Registry, cfg Config, logger *zap.Logger) *Scanner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 3 * time.Second
	}

	s := &Scanner{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}

	s.metrics.quotesIssued = *prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_quotes_issued_total",
		Help: "Number of quote requests issued per venue",
	}, []string{"venue"})

	s.metrics.venueErrors = *prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_venue_errors_total",
		Help: "Number of failed quote requests per venue",
	}, []string{"venue"})

	s.metrics.opportunities = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scanner_opportunities_total",
		Help: "Number of opportunities that cleared the profit threshold",
	})

	s.metrics.scanLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scanner_pair_scan_latency_seconds",
		Help:    "Latency of a full pair scan",
		Buckets: prometheus.DefBuckets,
	})

	return s
}

// quoteResult is one leg of the joined fan-out: either a quote or the
// error that excluded the venue.
type quoteResult struct {
	venueName string
	quote     *amm.Quote
	err       error
}

// fanOut issues one quote request per adapter for the given direction and
// joins them all. Failures are returned alongside successes, never raised.
func (s *Scanner) fanOut(ctx context.Context, tokenIn, tokenOut types.Token, amountIn *big.Int) []quoteResult {
	adapters := s.registry.Adapters()
	results := make([]quoteResult, len(adapters))

	var wg sync.WaitGroup
	for i, adapter := range adapters {
		wg.Add(1)
		go func(i int, adapter venue.Adapter) {
			defer wg.Done()

			reqCtx, cancel := context.WithTimeout(ctx, s.cfg.QuoteTimeout)
			defer cancel()

			s.metrics.quotesIssued.WithLabelValues(adapter.Name()).Inc()
			quote, err := adapter.Quote(reqCtx, tokenIn, tokenOut, amountIn)
			results[i] = quoteResult{venueName: adapter.Name(), quote: quote, err: err}
		}(i, adapter)
	}
	wg.Wait()

	return results
}

// partition splits joined results into usable quotes and the venues that
// failed this cycle.
func partition(results []quoteResult) (quotes []*amm.Quote, failed []quoteResult) {
	for _, r := range results {
		if r.err != nil {
			failed = append(failed, r)
			continue
		}
		quotes = append(quotes, r.quote)
	}
	return quotes, failed
}

// bestQuote picks the quote with the highest AmountOut. Output, not price,
// is the objective: fees are already baked into AmountOut. Equal outputs
// resolve by lexical venue-name order so selection is deterministic
// regardless of goroutine completion order.
func bestQuote(quotes []*amm.Quote) *amm.Quote {
	var best *amm.Quote
	for _, q := range quotes {
		if best == nil {
			best = q
			continue
		}
		switch q.AmountOut.Cmp(best.AmountOut) {
		case 1:
			best = q
		case 0:
			if q.Venue < best.Venue {
				best = q
			}
		}
	}
	return best
}

// reverseProbe rescales a raw token-A amount into token B's scale, so the
// sell side is sampled at a comparable magnitude instead of a raw count of
// base units. One WETH against an 18/6 pair probes one USDC, not 10^12.
// Amounts below B's resolution clamp to one base unit.
func reverseProbe(amountIn *big.Int, decimalsA, decimalsB int32) *big.Int {
	probe := fixedpoint.ToRaw(fixedpoint.ToDecimal(amountIn, decimalsA), decimalsB)
	if probe.Sign() <= 0 {
		return big.NewInt(1)
	}
	return probe
}

// ScanPair finds the best round trip for one pair: buy B with A on the
// venue paying the most B, sell that B back for A on the venue paying the
// most A. Returns (nil, nil) when no venue pair clears the threshold.
func (s *Scanner) ScanPair(ctx context.Context, pair types.TokenPair, amountIn *big.Int) (*types.Opportunity, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, amm.ErrInvalidAmount
	}

	start := time.Now()
	defer func() {
		s.metrics.scanLatency.Observe(time.Since(start).Seconds())
	}()

	// Both directions fan out together; the join below is the only
	// suspension point in the scan.
	var forward, reverse []quoteResult
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		forward = s.fanOut(ctx, pair.A, pair.B, amountIn)
	}()
	go func() {
		defer wg.Done()
		// The sell side is probed at the same whole-token magnitude in B's
		// scale; the actual sell leg is repriced from the buy output below.
		reverse = s.fanOut(ctx, pair.B, pair.A, reverseProbe(amountIn, pair.A.Decimals, pair.B.Decimals))
	}()
	wg.Wait()

	buyQuotes, buyFailed := partition(forward)
	sellQuotes, sellFailed := partition(reverse)
	for _, f := range append(buyFailed, sellFailed...) {
		s.metrics.venueErrors.WithLabelValues(f.venueName).Inc()
		s.logger.Debug("venue excluded from scan",
			zap.String("pair", pair.String()),
			zap.String("venue", f.venueName),
			zap.Error(f.err))
	}

	if len(buyQuotes) == 0 || len(sellQuotes) == 0 {
		return nil, nil
	}

	bestBuy := bestQuote(buyQuotes)
	bestSell := bestQuote(sellQuotes)

	// Round trip: A -> B on the buy venue, then the B proceeds back to A at
	// the sell venue's effective price.
	tokenBAmount := bestBuy.AmountOut
	finalAmount := fixedpoint.OutputFromPrice(tokenBAmount, bestSell.Price, pair.B.Decimals, pair.A.Decimals)

	expectedProfit := new(big.Int).Sub(finalAmount, amountIn)
	profitPercent := decimal.NewFromBigInt(expectedProfit, 0).
		Div(decimal.NewFromBigInt(amountIn, 0)).
		Mul(oneHundred)

	if profitPercent.LessThan(s.cfg.MinProfitPercent) {
		return nil, nil
	}

	s.metrics.opportunities.Inc()
	s.logger.Info("opportunity found",
		zap.String("pair", pair.String()),
		zap.String("buy_venue", bestBuy.Venue),
		zap.String("sell_venue", bestSell.Venue),
		zap.String("profit_percent", profitPercent.StringFixed(4)))

	return &types.Opportunity{
		TokenA:         pair.A,
		TokenB:         pair.B,
		BuyVenue:       bestBuy.Venue,
		SellVenue:      bestSell.Venue,
		BuyPrice:       bestBuy.Price,
		SellPrice:      bestSell.Price,
		AmountIn:       amountIn,
		ExpectedProfit: expectedProfit,
		ProfitPercent:  profitPercent,
		Route:          []string{pair.A.Symbol, pair.B.Symbol, pair.A.Symbol},
		Timestamp:      time.Now(),
	}, nil
}

// ScanPairs scans pairs in batches of at most BatchSize in flight and
// returns all opportunities sorted descending by ProfitPercent. Consumers
// rely on index 0 being the best candidate. A pair that fails or finds
// nothing contributes nothing; a sweep never errors because of one pair.
func (s *Scanner) ScanPairs(ctx context.Context, pairs []types.TokenPair, amountIn *big.Int) []*types.Opportunity {
	found := make([]*types.Opportunity, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchSize)

	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			opp, err := s.ScanPair(gctx, pair, amountIn)
			if err != nil {
				s.logger.Warn("pair scan failed",
					zap.String("pair", pair.String()),
					zap.Error(err))
				return nil
			}
			found[i] = opp
			return nil
		})
	}
	// Workers never return errors; Wait is just the join point.
	_ = g.Wait()

	opportunities := make([]*types.Opportunity, 0, len(found))
	for _, opp := range found {
		if opp != nil {
			opportunities = append(opportunities, opp)
		}
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].ProfitPercent.GreaterThan(opportunities[j].ProfitPercent)
	})

	return opportunities
}
