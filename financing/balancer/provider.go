// Package balancer funds trades with fee-free Balancer vault flash loans.
package balancer

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

const vaultABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "recipient", "type": "address"},
			{"internalType": "address[]", "name": "tokens", "type": "address[]"},
			{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"},
			{"internalType": "bytes", "name": "userData", "type": "bytes"}
		],
		"name": "flashLoan",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

const erc20ABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "account", "type": "address"}
		],
		"name": "balanceOf",
		"outputs": [
			{"internalType": "uint256", "name": "", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Caller is the read-only chain access the provider needs.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Provider implements financing.Provider against the Balancer V2 vault.
// The vault charges no flash loan fee.
type Provider struct {
	metrics struct {
		liquidityChecks prometheus.Counter
		errors          prometheus.Counter
	}
	caller   Caller
	vault    common.Address
	vaultABI abi.ABI
	tokenABI abi.ABI
	timeout  time.Duration
	logger   *zap.Logger
}

// New creates a Balancer provider over the vault contract at vault.
func New(caller Caller, vault common.Address, logger *zap.Logger) (*Provider, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	parsedVault, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse vault ABI: %w", err)
	}
	parsedToken, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token ABI: %w", err)
	}

	p := &Provider{
		caller:   caller,
		vault:    vault,
		vaultABI: parsedVault,
		tokenABI: parsedToken,
		timeout:  3 * time.Second,
		logger:   logger,
	}

	p.metrics.liquidityChecks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "financing_balancer_liquidity_checks_total",
		Help: "Number of Balancer vault balance reads",
	})
	p.metrics.errors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "financing_balancer_errors_total",
		Help: "Number of Balancer provider errors",
	})

	return p, nil
}

func (p *Provider) Name() string { return "balancer" }

func (p *Provider) Address() common.Address { return p.vault }

func (p *Provider) FeeBps() int64 { return 0 }

// Liquidity reports the vault's balance of token, which bounds how much
// a single flash loan can borrow.
func (p *Provider) Liquidity(ctx context.Context, token common.Address) (*big.Int, error) {
	p.metrics.liquidityChecks.Inc()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	input, err := p.tokenABI.Pack("balanceOf", p.vault)
	if err != nil {
		p.metrics.errors.Inc()
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	output, err := p.caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: input}, nil)
	if err != nil {
		p.metrics.errors.Inc()
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}

	results, err := p.tokenABI.Unpack("balanceOf", output)
	if err != nil || len(results) != 1 {
		p.metrics.errors.Inc()
		return nil, fmt.Errorf("failed to decode vault balance: %w", err)
	}

	balance, ok := results[0].(*big.Int)
	if !ok {
		p.metrics.errors.Inc()
		return nil, fmt.Errorf("unexpected balance type %T", results[0])
	}
	return balance, nil
}

// LoanCallData packs a single-token vault flashLoan call.
func (p *Provider) LoanCallData(receiver, token common.Address, amount *big.Int, params []byte) ([]byte, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid loan amount")
	}
	data, err := p.vaultABI.Pack("flashLoan",
		receiver,
		[]common.Address{token},
		[]*big.Int{amount},
		params,
	)
	if err != nil {
		p.metrics.errors.Inc()
		return nil, fmt.Errorf("failed to pack flashLoan: %w", err)
	}
	return data, nil
}
