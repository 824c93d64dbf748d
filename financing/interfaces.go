package financing

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantfall/arbscan/types"
)

var (
	// ErrNoProvider is returned when no provider can fund the requested amount.
	ErrNoProvider = errors.New("financing: no provider available")

	// ErrInvalidAmount is returned for nil, zero or negative loan amounts.
	ErrInvalidAmount = errors.New("financing: invalid loan amount")
)

// Provider is a source of flash liquidity for a single trade.
type Provider interface {
	// Name identifies the provider in logs, metrics and plans.
	Name() string

	// Address is the on-chain contract the loan call is sent to.
	Address() common.Address

	// FeeBps is the provider's flash fee in basis points.
	FeeBps() int64

	// Liquidity reports how much of token the provider can lend right now.
	Liquidity(ctx context.Context, token common.Address) (*big.Int, error)

	// LoanCallData builds the calldata that opens a loan of amount token,
	// delivering it to receiver along with the opaque params payload.
	LoanCallData(receiver, token common.Address, amount *big.Int, params []byte) ([]byte, error)
}

// Plan is a fully costed financing decision for one trade.
type Plan struct {
	Token    types.Token
	Amount   *big.Int
	Provider Provider
	// Cost is the flash fee owed on repayment, rounded up so the plan
	// never understates what the provider will collect.
	Cost *big.Int
}

// Evaluation is the profitability verdict for an opportunity under a plan.
type Evaluation struct {
	Plan       *Plan
	NetProfit  *big.Int
	Profitable bool
}

// LoanCost returns the flash fee for borrowing amount at feeBps, rounded
// up to the next raw unit. A zero-fee provider costs exactly zero.
func LoanCost(amount *big.Int, feeBps int64) *big.Int {
	if feeBps == 0 {
		return new(big.Int)
	}
	cost := new(big.Int).Mul(amount, big.NewInt(feeBps))
	cost.Add(cost, big.NewInt(9999))
	return cost.Div(cost, big.NewInt(10000))
}
