// Package amm prices swaps against automated market maker curves. All
// arithmetic is raw-integer or arbitrary-precision decimal; the output side
// of every formula floors, because a pool cannot be asked to emit more than
// the curve allows.
package amm

import (
	"errors"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfall/arbscan/fixedpoint"
	"github.com/quantfall/arbscan/types"
)

const bpsDenominator = 10000

var (
	// ErrInvalidAmount is returned for a zero or negative input amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrIlliquidPool is returned when either reserve is empty.
	ErrIlliquidPool = errors.New("illiquid pool")
)

// Quote is the result of pricing a single swap on one venue. Price is
// output-per-input on the pre-fee input amount; AmountOut already has the
// venue fee baked in.
type Quote struct {
	TokenIn   types.Token
	TokenOut  types.Token
	Price     decimal.Decimal
	AmountIn  *big.Int
	AmountOut *big.Int
	Venue     string
	Timestamp time.Time
}

// AmountOut applies the constant-product formula with a proportional fee in
// basis points:
//
//	out = floor(afterFee * reserveOut / (reserveIn * 10000 + afterFee))
//
// where afterFee = amountIn * (10000 - feeBps).
func AmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps int64) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if feeBps < 0 || feeBps >= bpsDenominator {
		return nil, ErrInvalidAmount
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, ErrIlliquidPool
	}

	afterFee := new(big.Int).Mul(amountIn, big.NewInt(bpsDenominator-feeBps))
	numerator := new(big.Int).Mul(afterFee, reserveOut)
	denominator := new(big.Int).Add(
		new(big.Int).Mul(reserveIn, big.NewInt(bpsDenominator)),
		afterFee,
	)
	return numerator.Div(numerator, denominator), nil
}

// NewQuote derives the effective price from a swap's raw amounts and wraps
// them into a Quote. AmountIn is the pre-fee input.
func NewQuote(tokenIn, tokenOut types.Token, venueName string, amountIn, amountOut *big.Int) (*Quote, error) {
	price, err := fixedpoint.Price(amountIn, amountOut, tokenIn.Decimals, tokenOut.Decimals)
	if err != nil {
		return nil, err
	}
	return &Quote{
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		Price:     price,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		Venue:     venueName,
		Timestamp: time.Now(),
	}, nil
}

// ConstantProductQuote prices a swap against a constant-product pool.
func ConstantProductQuote(tokenIn, tokenOut types.Token, venueName string, amountIn, reserveIn, reserveOut *big.Int, feeBps int64) (*Quote, error) {
	amountOut, err := AmountOut(amountIn, reserveIn, reserveOut, feeBps)
	if err != nil {
		return nil, err
	}
	return NewQuote(tokenIn, tokenOut, venueName, amountIn, amountOut)
}

// SqrtPriceQuote derives the spot price of token1 in terms of token0 from a
// concentrated-liquidity pool's sqrtPriceX96, adjusted for token decimals.
func SqrtPriceQuote(sqrtPriceX96 *big.Int, decimals0, decimals1 int32) (decimal.Decimal, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero, ErrIlliquidPool
	}

	q96 := new(big.Int).Lsh(big.NewInt(1), 96)
	ratio := decimal.NewFromBigInt(sqrtPriceX96, 0).Div(decimal.NewFromBigInt(q96, 0))
	raw := ratio.Mul(ratio)

	// Raw price is token1-units per token0-unit; shift by the decimals gap
	// to get the human-scale price.
	return raw.Mul(decimal.New(1, decimals0-decimals1)), nil
}
