package scanner

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quantfall/arbscan/amm"
	"github.com/quantfall/arbscan/types"
	"github.com/quantfall/arbscan/venue"
)

var (
	tokenA = types.Token{Address: common.HexToAddress("0x1"), Symbol: "WETH", Decimals: 18}
	tokenB = types.Token{Address: common.HexToAddress("0x2"), Symbol: "USDC", Decimals: 18}
	tokenC = types.Token{Address: common.HexToAddress("0x3"), Symbol: "WBTC", Decimals: 18}
	tokenD = types.Token{Address: common.HexToAddress("0x4"), Symbol: "DAI", Decimals: 18}
)

// fakeAdapter returns canned outputs per direction, keyed by tokenIn symbol.
// Outputs are raw amounts for a one-whole-token probe.
type fakeAdapter struct {
	name    string
	outputs map[string]*big.Int
	err     error
	calls   int64
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) FeeBps() int64 { return 30 }

func (f *fakeAdapter) Quote(_ context.Context, tokenIn, tokenOut types.Token, amountIn *big.Int) (*amm.Quote, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	out, ok := f.outputs[tokenIn.Symbol]
	if !ok {
		return nil, amm.ErrIlliquidPool
	}
	return amm.NewQuote(tokenIn, tokenOut, f.name, amountIn, out)
}

// scaled returns base * 10^exp as a raw amount.
func scaled(base int64, exp int64) *big.Int {
	e := new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
	return new(big.Int).Mul(big.NewInt(base), e)
}

func oneToken() *big.Int { return scaled(1, 18) }

func newScanner(t *testing.T, minPercent string, adapters ...venue.Adapter) *Scanner {
	t.Helper()
	registry, err := venue.NewRegistry(adapters...)
	require.NoError(t, err)
	min, err := decimal.NewFromString(minPercent)
	require.NoError(t, err)
	return New(registry, Config{
		MinProfitPercent: min,
		QuoteTimeout:     time.Second,
	}, zap.NewNop())
}

func TestScanPairSelectsHighestOutput(t *testing.T) {
	// For the same probe, alpha pays 100 USDC and bravo pays 105: the buy
	// leg must pick the higher output, not the lower nominal price.
	alpha := &fakeAdapter{name: "alpha", outputs: map[string]*big.Int{
		"WETH": scaled(100, 18),
		"USDC": scaled(95, 14), // 0.0095 WETH per USDC
	}}
	bravo := &fakeAdapter{name: "bravo", outputs: map[string]*big.Int{
		"WETH": scaled(105, 18),
		"USDC": scaled(1, 16), // 0.01 WETH per USDC
	}}

	s := newScanner(t, "0.5", alpha, bravo)

	opp, err := s.ScanPair(context.Background(), types.TokenPair{A: tokenA, B: tokenB}, oneToken())
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, "bravo", opp.BuyVenue)
	assert.Equal(t, "bravo", opp.SellVenue)
	// 105 USDC at 0.01 WETH each: 1.05 WETH back on 1 in, 5% round trip.
	assert.Equal(t, scaled(5, 16).String(), opp.ExpectedProfit.String())
	assert.True(t, opp.ProfitPercent.Equal(decimal.NewFromInt(5)), "got %s", opp.ProfitPercent)
}

func TestScanPairTieBreaksByVenueName(t *testing.T) {
	outputs := map[string]*big.Int{
		"WETH": scaled(105, 18),
		"USDC": scaled(1, 16),
	}
	// Identical quotes from both venues: lexical order must win every run,
	// not whichever goroutine finished first.
	zulu := &fakeAdapter{name: "zulu", outputs: outputs}
	alpha := &fakeAdapter{name: "alpha", outputs: outputs}

	s := newScanner(t, "0.5", zulu, alpha)

	for i := 0; i < 20; i++ {
		opp, err := s.ScanPair(context.Background(), types.TokenPair{A: tokenA, B: tokenB}, oneToken())
		require.NoError(t, err)
		require.NotNil(t, opp)
		assert.Equal(t, "alpha", opp.BuyVenue)
		assert.Equal(t, "alpha", opp.SellVenue)
	}
}

func TestScanPairToleratesPartialFailure(t *testing.T) {
	healthy := &fakeAdapter{name: "healthy", outputs: map[string]*big.Int{
		"WETH": scaled(105, 18),
		"USDC": scaled(1, 16),
	}}
	broken := &fakeAdapter{name: "broken", err: &venue.UnavailableError{Venue: "broken", Err: errors.New("rpc down")}}

	s := newScanner(t, "0.5", healthy, broken)

	opp, err := s.ScanPair(context.Background(), types.TokenPair{A: tokenA, B: tokenB}, oneToken())
	require.NoError(t, err)
	require.NotNil(t, opp, "one dead venue must not abort the pair scan")
	assert.Equal(t, "healthy", opp.BuyVenue)
	assert.Equal(t, int64(2), atomic.LoadInt64(&broken.calls), "failing venue still probed in both directions")
	assert.Equal(t, int64(2), atomic.LoadInt64(&healthy.calls))
}

// poolAdapter prices both directions against a single constant-product
// pool, so slippage responds to the probe size like a live venue would.
type poolAdapter struct {
	name     string
	tokenB   types.Token
	reserveA *big.Int
	reserveB *big.Int
}

func (p *poolAdapter) Name() string  { return p.name }
func (p *poolAdapter) FeeBps() int64 { return 30 }

func (p *poolAdapter) Quote(_ context.Context, tokenIn, tokenOut types.Token, amountIn *big.Int) (*amm.Quote, error) {
	reserveIn, reserveOut := p.reserveA, p.reserveB
	if tokenIn.Symbol == p.tokenB.Symbol {
		reserveIn, reserveOut = p.reserveB, p.reserveA
	}
	return amm.ConstantProductQuote(tokenIn, tokenOut, p.name, amountIn, reserveIn, reserveOut, 30)
}

func TestScanPairHandlesHeterogeneousDecimals(t *testing.T) {
	usdc := types.Token{Address: common.HexToAddress("0x5"), Symbol: "USDC", Decimals: 6}

	// 1000 WETH on both pools; cheap prices WETH at 2000 USDC, rich at 2080.
	// Buying on rich and selling on cheap nets roughly 3.3% before financing.
	// A sell probe left in WETH's raw scale would be read as 10^12 USDC,
	// drain the cheap pool's quote and bury the opportunity.
	cheap := &poolAdapter{name: "cheap", tokenB: usdc,
		reserveA: scaled(1000, 18), reserveB: scaled(2_000_000, 6)}
	rich := &poolAdapter{name: "rich", tokenB: usdc,
		reserveA: scaled(1000, 18), reserveB: scaled(2_080_000, 6)}

	s := newScanner(t, "0.5", cheap, rich)

	opp, err := s.ScanPair(context.Background(), types.TokenPair{A: tokenA, B: usdc}, oneToken())
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, "rich", opp.BuyVenue)
	assert.Equal(t, "cheap", opp.SellVenue)
	assert.True(t, opp.ProfitPercent.GreaterThan(decimal.NewFromInt(3)), "got %s", opp.ProfitPercent)
	assert.True(t, opp.ProfitPercent.LessThan(decimal.NewFromInt(4)), "got %s", opp.ProfitPercent)
}

// probeRecorder captures the raw amount each direction was probed with.
type probeRecorder struct {
	name string
	mu   sync.Mutex
	seen map[string]*big.Int
}

func (p *probeRecorder) Name() string  { return p.name }
func (p *probeRecorder) FeeBps() int64 { return 30 }

func (p *probeRecorder) Quote(_ context.Context, tokenIn, _ types.Token, amountIn *big.Int) (*amm.Quote, error) {
	p.mu.Lock()
	p.seen[tokenIn.Symbol] = new(big.Int).Set(amountIn)
	p.mu.Unlock()
	return nil, amm.ErrIlliquidPool
}

func TestScanPairScalesReverseProbe(t *testing.T) {
	wbtc := types.Token{Address: common.HexToAddress("0x6"), Symbol: "WBTC", Decimals: 8}
	rec := &probeRecorder{name: "rec", seen: map[string]*big.Int{}}

	s := newScanner(t, "0.5", rec)

	// Five whole WETH must probe the sell side as five whole WBTC.
	_, err := s.ScanPair(context.Background(), types.TokenPair{A: tokenA, B: wbtc}, scaled(5, 18))
	require.NoError(t, err)

	assert.Equal(t, scaled(5, 18).String(), rec.seen["WETH"].String())
	assert.Equal(t, scaled(5, 8).String(), rec.seen["WBTC"].String())
}

func TestScanPairClampsDustReverseProbe(t *testing.T) {
	usdc := types.Token{Address: common.HexToAddress("0x5"), Symbol: "USDC", Decimals: 6}
	rec := &probeRecorder{name: "rec", seen: map[string]*big.Int{}}

	s := newScanner(t, "0.5", rec)

	// 10^-15 WETH is below USDC's resolution; the sell probe floors at one
	// base unit instead of going to zero and failing every quote.
	_, err := s.ScanPair(context.Background(), types.TokenPair{A: tokenA, B: usdc}, big.NewInt(1_000))
	require.NoError(t, err)

	assert.Equal(t, "1", rec.seen["USDC"].String())
}

func TestScanPairNoQuotesReturnsNil(t *testing.T) {
	broken := &fakeAdapter{name: "broken", err: errors.New("rpc down")}

	s := newScanner(t, "0.5", broken)

	opp, err := s.ScanPair(context.Background(), types.TokenPair{A: tokenA, B: tokenB}, oneToken())
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestScanPairDropsBelowThreshold(t *testing.T) {
	// Buy 2000 USDC, sell back at 0.0005015 WETH each: 1.003 WETH on 1 in,
	// a 0.3% round trip that must not clear a 0.5% minimum.
	adapter := &fakeAdapter{name: "alpha", outputs: map[string]*big.Int{
		"WETH": scaled(2000, 18),
		"USDC": scaled(5015, 11),
	}}

	s := newScanner(t, "0.5", adapter)

	opp, err := s.ScanPair(context.Background(), types.TokenPair{A: tokenA, B: tokenB}, oneToken())
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestScanPairRejectsInvalidAmount(t *testing.T) {
	s := newScanner(t, "0.5", &fakeAdapter{name: "alpha"})

	_, err := s.ScanPair(context.Background(), types.TokenPair{A: tokenA, B: tokenB}, big.NewInt(0))
	assert.ErrorIs(t, err, amm.ErrInvalidAmount)
}

func TestScanPairsSortedByProfitDescending(t *testing.T) {
	// One adapter serves both pairs; WETH/USDC round-trips at 2% and
	// WBTC/DAI at 5%, so WBTC/DAI must come out first.
	multi := &fakeAdapter{name: "multi", outputs: map[string]*big.Int{
		"WETH": scaled(2000, 18),
		"USDC": scaled(51, 13), // 2000 * 0.00051 = 1.02 WETH
		"WBTC": scaled(3000, 18),
		"DAI":  scaled(35, 13), // 3000 * 0.00035 = 1.05 WBTC
	}}

	pairs := []types.TokenPair{
		{A: tokenA, B: tokenB},
		{A: tokenC, B: tokenD},
	}

	s := newScanner(t, "0.5", multi)

	opps := s.ScanPairs(context.Background(), pairs, oneToken())
	require.Len(t, opps, 2)

	assert.Equal(t, "WBTC", opps[0].TokenA.Symbol)
	assert.Equal(t, "WETH", opps[1].TokenA.Symbol)
	for i := 0; i+1 < len(opps); i++ {
		assert.True(t, opps[i].ProfitPercent.GreaterThanOrEqual(opps[i+1].ProfitPercent))
	}
}

func TestScanPairsEmptyWhenNothingProfitable(t *testing.T) {
	flat := &fakeAdapter{name: "flat", outputs: map[string]*big.Int{
		"WETH": scaled(2000, 18),
		"USDC": scaled(5, 14), // exact break-even round trip
	}}

	s := newScanner(t, "0.5", flat)

	opps := s.ScanPairs(context.Background(), []types.TokenPair{{A: tokenA, B: tokenB}}, oneToken())
	assert.Empty(t, opps)
}
