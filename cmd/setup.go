package cmd

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/quantfall/arbscan/config"
	"github.com/quantfall/arbscan/financing"
	"github.com/quantfall/arbscan/financing/aave"
	"github.com/quantfall/arbscan/financing/balancer"
	"github.com/quantfall/arbscan/types"
	"github.com/quantfall/arbscan/venue"
	"github.com/quantfall/arbscan/venue/curve"
	"github.com/quantfall/arbscan/venue/uniswapv2"
	"github.com/quantfall/arbscan/venue/uniswapv3"
)

// universe is everything the commands build from config: the token set,
// the pairs to scan and the venue registry over a live client.
type universe struct {
	client   *ethclient.Client
	tokens   map[string]types.Token
	pairs    []types.TokenPair
	registry *venue.Registry
}

func buildUniverse(cfg *config.Config, log *zap.Logger) (*universe, error) {
	client, err := ethclient.Dial(cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node: %w", err)
	}

	tokens := make(map[string]types.Token, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		tokens[t.Symbol] = types.Token{
			Address:  common.HexToAddress(t.Address),
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
		}
	}

	pairs := make([]types.TokenPair, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		pairs = append(pairs, types.TokenPair{A: tokens[p.TokenA], B: tokens[p.TokenB]})
	}

	adapters := make([]venue.Adapter, 0, len(cfg.Venues))
	for _, v := range cfg.Venues {
		adapter, err := buildAdapter(client, v, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", v.Name, err)
		}
		adapters = append(adapters, adapter)
	}

	registry, err := venue.NewRegistry(adapters...)
	if err != nil {
		return nil, err
	}

	return &universe{
		client:   client,
		tokens:   tokens,
		pairs:    pairs,
		registry: registry,
	}, nil
}

// pairGroup is a batch of pairs whose base tokens share one scale, so a
// single raw probe amount is valid for the whole batch.
type pairGroup struct {
	decimals int32
	pairs    []types.TokenPair
}

// pairGroups buckets pairs by base-token decimals, ordered by scale so
// sweeps visit groups in a stable order.
func pairGroups(pairs []types.TokenPair) []pairGroup {
	byScale := make(map[int32][]types.TokenPair)
	for _, p := range pairs {
		byScale[p.A.Decimals] = append(byScale[p.A.Decimals], p)
	}

	scales := make([]int32, 0, len(byScale))
	for d := range byScale {
		scales = append(scales, d)
	}
	sort.Slice(scales, func(i, j int) bool { return scales[i] < scales[j] })

	groups := make([]pairGroup, 0, len(scales))
	for _, d := range scales {
		groups = append(groups, pairGroup{decimals: d, pairs: byScale[d]})
	}
	return groups
}

func buildAdapter(client *ethclient.Client, v config.VenueConfig, cfg *config.Config, log *zap.Logger) (venue.Adapter, error) {
	switch venue.Type(v.Type) {
	case venue.TypeConstantProduct:
		source, err := uniswapv2.NewPairSource(client, uniswapv2.PairSourceConfig{
			Factory:           common.HexToAddress(v.Factory),
			InitCodeHash:      v.InitCodeHash,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.BurstSize,
			Timeout:           cfg.QuoteTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return uniswapv2.New(v.Name, v.FeeBps, source, log), nil

	case venue.TypeStableSwap:
		coins := make([]common.Address, 0, len(v.Coins))
		for _, c := range v.Coins {
			coins = append(coins, common.HexToAddress(c))
		}
		return curve.New(v.Name, v.FeeBps, common.HexToAddress(v.Pool), coins, client, cfg.QuoteTimeout, log)

	case venue.TypeConcentratedLiquidity:
		source, err := uniswapv3.NewSlotSource(client, cfg.QuoteTimeout)
		if err != nil {
			return nil, err
		}
		return uniswapv3.New(v.Name, v.FeeBps, common.HexToAddress(v.Pool), common.HexToAddress(v.Token0), source, log), nil

	default:
		return nil, fmt.Errorf("unknown venue type %q", v.Type)
	}
}

func buildProviders(cfg *config.Config, client *ethclient.Client, log *zap.Logger) ([]financing.Provider, error) {
	providers := make([]financing.Provider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		switch p.Name {
		case "aave":
			provider, err := aave.New(client, common.HexToAddress(p.Address), log)
			if err != nil {
				return nil, err
			}
			providers = append(providers, provider)
		case "balancer":
			provider, err := balancer.New(client, common.HexToAddress(p.Address), log)
			if err != nil {
				return nil, err
			}
			providers = append(providers, provider)
		default:
			return nil, fmt.Errorf("unknown financing provider %q", p.Name)
		}
	}
	return providers, nil
}
