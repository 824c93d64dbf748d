// Package curve implements the stable-swap venue family. Quotes come from
// the pool's own get_dy view, which already applies the pool fee and the
// amplified invariant; no curve math is reproduced here.
package curve

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
	"go.uber.org/zap"

	"github.com/quantfall/arbscan/amm"
	"github.com/quantfall/arbscan/types"
	"github.com/quantfall/arbscan/venue"
)

const poolABIJson = `[{
	"stateMutability": "view",
	"type": "function",
	"name": "get_dy",
	"inputs": [
		{"name": "i", "type": "int128"},
		{"name": "j", "type": "int128"},
		{"name": "dx", "type": "uint256"}
	],
	"outputs": [{"name": "", "type": "uint256"}]
}]`

// Caller abstracts the eth_call transport so the adapter can be tested
// without a live node. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Adapter quotes swaps against a single stable-swap pool.
type Adapter struct {
	name    string
	feeBps  int64
	pool    common.Address
	coins   map[common.Address]int64
	caller  Caller
	poolABI abi.ABI
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a stable-swap adapter for one pool. coins lists the pool's
// coin addresses in index order.
func New(name string, feeBps int64, pool common.Address, coins []common.Address, caller Caller, timeout time.Duration, logger *zap.Logger) (*Adapter, error) {
	parsedABI, err := abi.JSON(strings.NewReader(poolABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	index := make(map[common.Address]int64, len(coins))
	for i, coin := range coins {
		index[coin] = int64(i)
	}

	return &Adapter{
		name:    name,
		feeBps:  feeBps,
		pool:    pool,
		coins:   index,
		caller:  caller,
		poolABI: parsedABI,
		timeout: timeout,
		logger:  logger.With(zap.String("venue", name)),
	}, nil
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) FeeBps() int64 { return a.feeBps }

// Quote asks the pool for the output of swapping amountIn of tokenIn.
func (a *Adapter) Quote(ctx context.Context, tokenIn, tokenOut types.Token, amountIn *big.Int) (*amm.Quote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, amm.ErrInvalidAmount
	}

	i, okIn := a.coins[tokenIn.Address]
	j, okOut := a.coins[tokenOut.Address]
	if !okIn || !okOut {
		return nil, fmt.Errorf("pool %s does not trade %s/%s", a.pool.Hex(), tokenIn.Symbol, tokenOut.Symbol)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	callData, err := a.poolABI.Pack("get_dy", big.NewInt(i), big.NewInt(j), amountIn)
	if err != nil {
		return nil, fmt.Errorf("failed to pack get_dy: %w", err)
	}

	raw, err := a.caller.CallContract(ctx, ethereum.CallMsg{To: &a.pool, Data: callData}, nil)
	if err != nil {
		return nil, &venue.UnavailableError{Venue: a.name, Err: err}
	}

	out, err := a.poolABI.Unpack("get_dy", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack get_dy: %w", err)
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected get_dy return type from pool %s", a.pool.Hex())
	}
	if amountOut.Sign() == 0 {
		return nil, amm.ErrIlliquidPool
	}

	return amm.NewQuote(tokenIn, tokenOut, a.name, amountIn, amountOut)
}

var _ Caller = (*ethclient.Client)(nil)
