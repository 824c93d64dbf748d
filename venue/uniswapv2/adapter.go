// Package uniswapv2 implements the constant-product venue family
// (Uniswap V2 and its forks: SushiSwap, QuickSwap, Dystopia, Retro).
package uniswapv2

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	"github.com/quantfall/arbscan/amm"
	"github.com/quantfall/arbscan/types"
	"github.com/quantfall/arbscan/venue"
)

// Adapter prices swaps against a constant-product pool using reserves from
// a ReserveSource. It holds no mutable state and is safe for concurrent use.
type Adapter struct {
	name   string
	feeBps int64
	source venue.ReserveSource
	logger *zap.Logger
}

// New creates a constant-product venue adapter.
func New(name string, feeBps int64, source venue.ReserveSource, logger *zap.Logger) *Adapter {
	return &Adapter{
		name:   name,
		feeBps: feeBps,
		source: source,
		logger: logger.With(zap.String("venue", name)),
	}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) FeeBps() int64 { return a.feeBps }

// Quote fetches fresh reserves and prices the swap with the venue fee.
// Reserve retrieval failures surface as venue.ErrUnavailable so the scanner
// can exclude this venue without aborting siblings.
func (a *Adapter) Quote(ctx context.Context, tokenIn, tokenOut types.Token, amountIn *big.Int) (*amm.Quote, error) {
	reserves, err := a.source.GetReserves(ctx, tokenIn.Address, tokenOut.Address)
	if err != nil {
		a.logger.Debug("reserve fetch failed",
			zap.String("pair", tokenIn.Symbol+"/"+tokenOut.Symbol),
			zap.Error(err))
		return nil, &venue.UnavailableError{Venue: a.name, Err: err}
	}

	return amm.ConstantProductQuote(
		tokenIn, tokenOut, a.name,
		amountIn, reserves.ReserveA, reserves.ReserveB,
		a.feeBps,
	)
}
