// Package aave funds trades with Aave V3 flash loans.
package aave

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// FeeBps is the Aave V3 flash loan premium in basis points.
const FeeBps = 9

const poolABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "receiverAddress", "type": "address"},
			{"internalType": "address", "name": "asset", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "bytes", "name": "params", "type": "bytes"},
			{"internalType": "uint16", "name": "referralCode", "type": "uint16"}
		],
		"name": "flashLoanSimple",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "asset", "type": "address"}
		],
		"name": "getReserveData",
		"outputs": [
			{"internalType": "uint256", "name": "availableLiquidity", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Caller is the read-only chain access the provider needs.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Provider implements financing.Provider against an Aave V3 pool.
type Provider struct {
	metrics struct {
		liquidityChecks prometheus.Counter
		errors          prometheus.Counter
		latency         prometheus.Histogram
	}
	caller  Caller
	pool    common.Address
	abi     abi.ABI
	timeout time.Duration
	logger  *zap.Logger
}

// New creates an Aave provider over the pool contract at pool.
func New(caller Caller, pool common.Address, logger *zap.Logger) (*Provider, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	parsed, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}

	p := &Provider{
		caller:  caller,
		pool:    pool,
		abi:     parsed,
		timeout: 3 * time.Second,
		logger:  logger,
	}

	p.metrics.liquidityChecks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "financing_aave_liquidity_checks_total",
		Help: "Number of Aave reserve liquidity reads",
	})
	p.metrics.errors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "financing_aave_errors_total",
		Help: "Number of Aave provider errors",
	})
	p.metrics.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "financing_aave_call_latency_seconds",
		Help:    "Latency of Aave read calls",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})

	return p, nil
}

func (p *Provider) Name() string { return "aave" }

func (p *Provider) Address() common.Address { return p.pool }

func (p *Provider) FeeBps() int64 { return FeeBps }

// Liquidity reads the reserve's available liquidity for token.
func (p *Provider) Liquidity(ctx context.Context, token common.Address) (*big.Int, error) {
	start := time.Now()
	defer func() {
		p.metrics.latency.Observe(time.Since(start).Seconds())
	}()
	p.metrics.liquidityChecks.Inc()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	input, err := p.abi.Pack("getReserveData", token)
	if err != nil {
		p.metrics.errors.Inc()
		return nil, fmt.Errorf("failed to pack getReserveData: %w", err)
	}

	output, err := p.caller.CallContract(ctx, ethereum.CallMsg{To: &p.pool, Data: input}, nil)
	if err != nil {
		p.metrics.errors.Inc()
		return nil, fmt.Errorf("getReserveData call failed: %w", err)
	}

	results, err := p.abi.Unpack("getReserveData", output)
	if err != nil || len(results) != 1 {
		p.metrics.errors.Inc()
		return nil, fmt.Errorf("failed to decode reserve data: %w", err)
	}

	liquidity, ok := results[0].(*big.Int)
	if !ok {
		p.metrics.errors.Inc()
		return nil, fmt.Errorf("unexpected reserve data type %T", results[0])
	}
	return liquidity, nil
}

// LoanCallData packs a flashLoanSimple call delivering amount of token
// to receiver.
func (p *Provider) LoanCallData(receiver, token common.Address, amount *big.Int, params []byte) ([]byte, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid loan amount")
	}
	data, err := p.abi.Pack("flashLoanSimple", receiver, token, amount, params, uint16(0))
	if err != nil {
		p.metrics.errors.Inc()
		return nil, fmt.Errorf("failed to pack flashLoanSimple: %w", err)
	}
	return data, nil
}
