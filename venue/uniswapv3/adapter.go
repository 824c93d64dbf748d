// Package uniswapv3 implements the concentrated-liquidity venue family.
// Quotes are spot-price based: the pool's sqrtPriceX96 gives the marginal
// price and the fee is applied to the input leg. Tick-crossing depth is not
// modeled, which overstates output for trades large relative to in-range
// liquidity; the pre-flight simulation catches those before submission.
package uniswapv3

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantfall/arbscan/amm"
	"github.com/quantfall/arbscan/fixedpoint"
	"github.com/quantfall/arbscan/types"
	"github.com/quantfall/arbscan/venue"
)

const slot0ABIJson = `[{
	"inputs": [],
	"name": "slot0",
	"outputs": [
		{"name": "sqrtPriceX96", "type": "uint160"},
		{"name": "tick", "type": "int24"},
		{"name": "observationIndex", "type": "uint16"},
		{"name": "observationCardinality", "type": "uint16"},
		{"name": "observationCardinalityNext", "type": "uint16"},
		{"name": "feeProtocol", "type": "uint8"},
		{"name": "unlocked", "type": "bool"}
	],
	"stateMutability": "view",
	"type": "function"
}]`

const bpsDenominator = 10000

// PriceSource supplies a pool's current sqrtPriceX96.
type PriceSource interface {
	SqrtPriceX96(ctx context.Context, pool common.Address) (*big.Int, error)
}

// SlotSource reads slot0 over an RPC client.
type SlotSource struct {
	client  *ethclient.Client
	poolABI abi.ABI
	timeout time.Duration
}

// NewSlotSource creates an on-chain price source.
func NewSlotSource(client *ethclient.Client, timeout time.Duration) (*SlotSource, error) {
	parsedABI, err := abi.JSON(strings.NewReader(slot0ABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse slot0 ABI: %w", err)
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &SlotSource{client: client, poolABI: parsedABI, timeout: timeout}, nil
}

func (s *SlotSource) SqrtPriceX96(ctx context.Context, pool common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	callData, err := s.poolABI.Pack("slot0")
	if err != nil {
		return nil, fmt.Errorf("failed to pack slot0: %w", err)
	}
	raw, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("slot0 call failed: %w", err)
	}
	out, err := s.poolABI.Unpack("slot0", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack slot0: %w", err)
	}
	sqrtPrice, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected sqrtPriceX96 type from pool %s", pool.Hex())
	}
	return sqrtPrice, nil
}

// Adapter quotes swaps for one concentrated-liquidity pool.
type Adapter struct {
	name   string
	feeBps int64
	pool   common.Address
	token0 common.Address
	source PriceSource
	logger *zap.Logger
}

// New creates a concentrated-liquidity adapter. token0 identifies which
// side of the pool the sqrt price is denominated against.
func New(name string, feeBps int64, pool common.Address, token0 common.Address, source PriceSource, logger *zap.Logger) *Adapter {
	return &Adapter{
		name:   name,
		feeBps: feeBps,
		pool:   pool,
		token0: token0,
		source: source,
		logger: logger.With(zap.String("venue", name)),
	}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) FeeBps() int64 { return a.feeBps }

// Quote derives the pool spot price and applies it to the fee-reduced input.
func (a *Adapter) Quote(ctx context.Context, tokenIn, tokenOut types.Token, amountIn *big.Int) (*amm.Quote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, amm.ErrInvalidAmount
	}

	sqrtPrice, err := a.source.SqrtPriceX96(ctx, a.pool)
	if err != nil {
		return nil, &venue.UnavailableError{Venue: a.name, Err: err}
	}

	var price decimal.Decimal
	if tokenIn.Address == a.token0 {
		price, err = amm.SqrtPriceQuote(sqrtPrice, tokenIn.Decimals, tokenOut.Decimals)
	} else {
		price, err = amm.SqrtPriceQuote(sqrtPrice, tokenOut.Decimals, tokenIn.Decimals)
		if err == nil {
			if price.IsZero() {
				return nil, amm.ErrIlliquidPool
			}
			price = decimal.NewFromInt(1).Div(price)
		}
	}
	if err != nil {
		return nil, err
	}

	// Fee comes off the input leg before the price is applied.
	afterFee := new(big.Int).Mul(amountIn, big.NewInt(bpsDenominator-a.feeBps))
	afterFee.Div(afterFee, big.NewInt(bpsDenominator))

	amountOut := fixedpoint.OutputFromPrice(afterFee, price, tokenIn.Decimals, tokenOut.Decimals)
	if amountOut.Sign() == 0 {
		return nil, amm.ErrIlliquidPool
	}

	return amm.NewQuote(tokenIn, tokenOut, a.name, amountIn, amountOut)
}
