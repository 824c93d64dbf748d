// Package gas tracks chain fee levels and sizes trade transactions.
package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Gas limits by trade shape, measured from representative executions.
const (
	// FlashTradeGas covers a two hop round trip funded by an Aave loan.
	FlashTradeGas uint64 = 450_000

	// VaultTradeGas covers a two hop round trip funded by the Balancer
	// vault, which skips the premium accounting.
	VaultTradeGas uint64 = 400_000

	// DirectTradeGas covers a two hop round trip from own inventory.
	DirectTradeGas uint64 = 250_000
)

// FeeReader exposes the two chain fee components the estimator tracks.
type FeeReader interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Estimator keeps a fresh view of base and priority fees and converts
// gas limits into raw native-token costs.
type Estimator struct {
	client      FeeReader
	logger      *zap.Logger
	mu          sync.RWMutex
	gasPrice    *big.Int
	priorityFee *big.Int
	interval    time.Duration
}

// NewEstimator creates an estimator that refreshes on demand. Call
// Refresh before the first estimate or run Watch in the background.
func NewEstimator(client FeeReader, logger *zap.Logger) *Estimator {
	return &Estimator{
		client:   client,
		logger:   logger,
		interval: 3 * time.Second,
	}
}

// Refresh fetches the latest fee levels from the node.
func (e *Estimator) Refresh(ctx context.Context) error {
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get gas price: %w", err)
	}
	tip, err := e.client.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("failed to get priority fee: %w", err)
	}

	e.mu.Lock()
	e.gasPrice = gasPrice
	e.priorityFee = tip
	e.mu.Unlock()
	return nil
}

// Watch refreshes fee levels on a fixed interval until ctx is done.
func (e *Estimator) Watch(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Refresh(ctx); err != nil {
				e.logger.Warn("gas refresh failed", zap.Error(err))
			}
		}
	}
}

// GasPrice returns the last observed gas price including tip.
func (e *Estimator) GasPrice() (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.gasPrice == nil {
		return nil, fmt.Errorf("gas price not yet observed")
	}
	total := new(big.Int).Set(e.gasPrice)
	if e.priorityFee != nil {
		total.Add(total, e.priorityFee)
	}
	return total, nil
}

// EstimateCost converts a gas limit into a raw native-token cost at the
// last observed price.
func (e *Estimator) EstimateCost(gasLimit uint64) (*big.Int, error) {
	price, err := e.GasPrice()
	if err != nil {
		return nil, err
	}
	return price.Mul(price, new(big.Int).SetUint64(gasLimit)), nil
}

// TradeGas returns the gas limit for a two hop trade financed through
// the named provider. Unknown providers get the conservative limit.
func TradeGas(provider string) uint64 {
	switch provider {
	case "balancer":
		return VaultTradeGas
	case "":
		return DirectTradeGas
	default:
		return FlashTradeGas
	}
}
