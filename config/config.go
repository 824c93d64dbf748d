package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	yaml "gopkg.in/yaml.v2"
)

// Config is the full scanner configuration, loadable from JSON or YAML.
type Config struct {
	// Chain and network settings
	ChainID     uint64 `json:"chain_id" yaml:"chain_id"`
	RPCEndpoint string `json:"rpc_endpoint" yaml:"rpc_endpoint"`
	RelayURL    string `json:"relay_url" yaml:"relay_url"`

	// Scan behavior. MinProfitPercent is kept as a string because the
	// decimal type has no yaml support; MinProfit parses it.
	MinProfitPercent string `json:"min_profit_percent" yaml:"min_profit_percent"`
	// MinProfitRaw is an absolute profit floor in raw units of the traded
	// token, applied after financing and gas costs. Empty means zero.
	MinProfitRaw string        `json:"min_profit_raw,omitempty" yaml:"min_profit_raw,omitempty"`
	BatchSize    int           `json:"batch_size" yaml:"batch_size"`
	QuoteTimeout time.Duration `json:"quote_timeout" yaml:"quote_timeout"`
	ScanInterval time.Duration `json:"scan_interval" yaml:"scan_interval"`
	// ScanAmounts are whole-token probe sizes, smallest first.
	ScanAmounts []string `json:"scan_amounts" yaml:"scan_amounts"`

	// RPC throttling
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// Universe
	Tokens    []TokenConfig    `json:"tokens" yaml:"tokens"`
	Venues    []VenueConfig    `json:"venues" yaml:"venues"`
	Providers []ProviderConfig `json:"providers" yaml:"providers"`
	Pairs     []PairConfig     `json:"pairs" yaml:"pairs"`
}

type TokenConfig struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Address  string `json:"address" yaml:"address"`
	Decimals int32  `json:"decimals" yaml:"decimals"`
}

// VenueConfig describes one liquidity venue. Fields beyond Name, Type
// and FeeBps depend on the venue type: factory and init code hash for
// pair-factory venues, a pool address for the rest.
type VenueConfig struct {
	Name         string   `json:"name" yaml:"name"`
	Type         string   `json:"type" yaml:"type"`
	FeeBps       int64    `json:"fee_bps" yaml:"fee_bps"`
	Factory      string   `json:"factory,omitempty" yaml:"factory,omitempty"`
	InitCodeHash string   `json:"init_code_hash,omitempty" yaml:"init_code_hash,omitempty"`
	Pool         string   `json:"pool,omitempty" yaml:"pool,omitempty"`
	Token0       string   `json:"token0,omitempty" yaml:"token0,omitempty"`
	Coins        []string `json:"coins,omitempty" yaml:"coins,omitempty"`
}

type ProviderConfig struct {
	Name    string `json:"name" yaml:"name"`
	Address string `json:"address" yaml:"address"`
}

type PairConfig struct {
	TokenA string `json:"token_a" yaml:"token_a"`
	TokenB string `json:"token_b" yaml:"token_b"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int     `json:"burst_size" yaml:"burst_size"`
}

// DefaultConfig returns the settings used when a field is absent.
func DefaultConfig() *Config {
	return &Config{
		ChainID:          1,
		MinProfitPercent: "0.5",
		BatchSize:        10,
		QuoteTimeout:     3 * time.Second,
		ScanInterval:     5 * time.Second,
		ScanAmounts:      []string{"1", "10", "100"},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			BurstSize:         10,
		},
	}
}

// LoadConfig reads path, decoding by extension. Unset fields fall back
// to defaults; the result is validated before it is returned.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse json config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config extension %q", ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MinProfit returns the parsed profit threshold. Call Validate first;
// an unparseable value falls back to the default threshold.
func (c *Config) MinProfit() decimal.Decimal {
	min, err := decimal.NewFromString(c.MinProfitPercent)
	if err != nil {
		return decimal.RequireFromString("0.5")
	}
	return min
}

// MinProfitFloor returns the raw absolute profit floor, zero when unset.
func (c *Config) MinProfitFloor() *big.Int {
	if c.MinProfitRaw == "" {
		return new(big.Int)
	}
	floor, ok := new(big.Int).SetString(c.MinProfitRaw, 10)
	if !ok {
		return new(big.Int)
	}
	return floor
}

// Validate collects every problem in the config instead of stopping at
// the first one.
func (c *Config) Validate() error {
	var problems []string

	if c.ChainID == 0 {
		problems = append(problems, "chain_id must be specified")
	}
	if c.RPCEndpoint == "" {
		problems = append(problems, "rpc_endpoint must be specified")
	}
	if c.MinProfitRaw != "" {
		if _, ok := new(big.Int).SetString(c.MinProfitRaw, 10); !ok {
			problems = append(problems, fmt.Sprintf("min_profit_raw %q is not an integer", c.MinProfitRaw))
		}
	}
	if min, err := decimal.NewFromString(c.MinProfitPercent); err != nil {
		problems = append(problems, fmt.Sprintf("min_profit_percent %q is not a decimal", c.MinProfitPercent))
	} else if min.Sign() < 0 {
		problems = append(problems, "min_profit_percent cannot be negative")
	}
	if c.BatchSize <= 0 {
		problems = append(problems, "batch_size must be positive")
	}
	if c.QuoteTimeout <= 0 {
		problems = append(problems, "quote_timeout must be positive")
	}
	if len(c.Tokens) == 0 {
		problems = append(problems, "at least one token is required")
	}
	if len(c.Venues) < 2 {
		problems = append(problems, "at least two venues are required to arbitrage")
	}
	if len(c.Pairs) == 0 {
		problems = append(problems, "at least one pair is required")
	}

	tokens := make(map[string]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		if !common.IsHexAddress(t.Address) {
			problems = append(problems, fmt.Sprintf("token %s has invalid address %q", t.Symbol, t.Address))
		}
		if t.Decimals < 0 {
			problems = append(problems, fmt.Sprintf("token %s has negative decimals", t.Symbol))
		}
		tokens[t.Symbol] = true
	}

	venues := make(map[string]bool, len(c.Venues))
	for _, v := range c.Venues {
		if venues[v.Name] {
			problems = append(problems, fmt.Sprintf("duplicate venue %q", v.Name))
		}
		venues[v.Name] = true
		if v.FeeBps < 0 || v.FeeBps >= 10000 {
			problems = append(problems, fmt.Sprintf("venue %s fee_bps out of range", v.Name))
		}
	}

	for _, p := range c.Pairs {
		if !tokens[p.TokenA] || !tokens[p.TokenB] {
			problems = append(problems, fmt.Sprintf("pair %s/%s references unknown token", p.TokenA, p.TokenB))
		}
		if p.TokenA == p.TokenB {
			problems = append(problems, fmt.Sprintf("pair %s/%s is degenerate", p.TokenA, p.TokenB))
		}
	}

	for _, pr := range c.Providers {
		if !common.IsHexAddress(pr.Address) {
			problems = append(problems, fmt.Sprintf("provider %s has invalid address %q", pr.Name, pr.Address))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
