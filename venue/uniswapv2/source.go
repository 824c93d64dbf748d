package uniswapv2

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quantfall/arbscan/venue"
)

const pairABIJson = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"name": "reserve0", "type": "uint112"},
		{"name": "reserve1", "type": "uint112"},
		{"name": "blockTimestampLast", "type": "uint32"}
	],
	"stateMutability": "view",
	"type": "function"
}]`

const pairCacheSize = 1024

// PairSource resolves pair contracts off a V2 factory and reads their
// reserves over an RPC client. Pair address derivation is pure CREATE2 math
// and cached in an LRU; reserve values themselves are never cached, every
// call hits the chain.
type PairSource struct {
	client   *ethclient.Client
	factory  common.Address
	initCode []byte
	pairABI  abi.ABI
	pairs    *lru.Cache
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *zap.Logger
}

// PairSourceConfig configures a PairSource. RequestsPerSecond and Burst
// bound the RPC call rate; Timeout is the per-request timeout, the only
// cancellation primitive the scanner relies on.
type PairSourceConfig struct {
	Factory           common.Address
	InitCodeHash      string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// NewPairSource creates an on-chain reserve source for a V2-style factory.
func NewPairSource(client *ethclient.Client, cfg PairSourceConfig, logger *zap.Logger) (*PairSource, error) {
	if client == nil {
		return nil, fmt.Errorf("ethclient cannot be nil")
	}
	parsedABI, err := abi.JSON(strings.NewReader(pairABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}
	cache, err := lru.New(pairCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create pair cache: %w", err)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 50
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &PairSource{
		client:   client,
		factory:  cfg.Factory,
		initCode: common.FromHex(cfg.InitCodeHash),
		pairABI:  parsedABI,
		pairs:    cache,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		timeout:  timeout,
		logger:   logger,
	}, nil
}

// GetReserves returns fresh reserves aligned to the (tokenA, tokenB)
// argument order.
func (s *PairSource) GetReserves(ctx context.Context, tokenA, tokenB common.Address) (*venue.Reserves, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pairAddr := s.pairFor(tokenA, tokenB)

	callData, err := s.pairABI.Pack("getReserves")
	if err != nil {
		return nil, fmt.Errorf("failed to pack getReserves: %w", err)
	}

	raw, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &pairAddr, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("getReserves call failed: %w", err)
	}

	out, err := s.pairABI.Unpack("getReserves", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack reserves: %w", err)
	}
	reserve0, ok0 := out[0].(*big.Int)
	reserve1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, fmt.Errorf("unexpected reserve types from pair %s", pairAddr.Hex())
	}

	// Pair contracts store reserves in token0 < token1 address order.
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		reserve0, reserve1 = reserve1, reserve0
	}

	return &venue.Reserves{ReserveA: reserve0, ReserveB: reserve1}, nil
}

// pairFor derives the pair contract address via CREATE2. Derivations are
// deterministic, so they are cached.
func (s *PairSource) pairFor(tokenA, tokenB common.Address) common.Address {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		tokenA, tokenB = tokenB, tokenA
	}

	key := tokenA.Hex() + tokenB.Hex()
	if cached, ok := s.pairs.Get(key); ok {
		return cached.(common.Address)
	}

	salt := crypto.Keccak256(tokenA.Bytes(), tokenB.Bytes())
	addr := common.BytesToAddress(crypto.Keccak256(
		[]byte{0xff}, s.factory.Bytes(), salt, s.initCode,
	))

	s.pairs.Add(key, addr)
	return addr
}
