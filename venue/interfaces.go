// Package venue defines the capability interface a trading venue exposes to
// the scanner and the read-only registry venues are served from. Concrete
// AMM families live in subpackages.
package venue

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantfall/arbscan/amm"
	"github.com/quantfall/arbscan/types"
)

// Type identifies the AMM family an adapter implements.
type Type string

const (
	TypeConstantProduct       Type = "constant-product"
	TypeStableSwap            Type = "stable-swap"
	TypeConcentratedLiquidity Type = "concentrated-liquidity"
)

// ErrUnavailable marks a transient failure or timeout contacting a venue.
// The scanner excludes the venue from the current cycle and carries on.
var ErrUnavailable = errors.New("venue unavailable")

// UnavailableError wraps the underlying failure with the venue name. It
// matches ErrUnavailable under errors.Is.
type UnavailableError struct {
	Venue string
	Err   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("venue %s unavailable: %v", e.Venue, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Adapter supplies quotes for one trading venue.
type Adapter interface {
	// Name returns the configured venue name.
	Name() string

	// FeeBps returns the venue's proportional fee in basis points.
	FeeBps() int64

	// Quote prices a single swap of amountIn raw units of tokenIn.
	Quote(ctx context.Context, tokenIn, tokenOut types.Token, amountIn *big.Int) (*amm.Quote, error)
}

// Reserves holds a pool's reserves aligned to the (tokenA, tokenB) order of
// the request that produced them.
type Reserves struct {
	ReserveA    *big.Int
	ReserveB    *big.Int
	BlockNumber uint64
}

// ReserveSource is the venue-query collaborator: the only source of
// on-chain pool state. Implementations must not serve stale reserves.
type ReserveSource interface {
	GetReserves(ctx context.Context, tokenA, tokenB common.Address) (*Reserves, error)
}

// Registry is the immutable set of configured venue adapters. It is built
// once at startup and shared read-only by concurrent scans.
type Registry struct {
	adapters []Adapter
	byName   map[string]Adapter
}

// NewRegistry builds a registry. Adapters are held in name order so that
// iteration is deterministic regardless of construction order.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	byName := make(map[string]Adapter, len(adapters))
	ordered := make([]Adapter, 0, len(adapters))
	for _, a := range adapters {
		if _, dup := byName[a.Name()]; dup {
			return nil, fmt.Errorf("duplicate venue name %q", a.Name())
		}
		byName[a.Name()] = a
		ordered = append(ordered, a)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name() < ordered[j].Name() })
	return &Registry{adapters: ordered, byName: byName}, nil
}

// Adapters returns the adapters in name order. Callers must not mutate the
// returned slice.
func (r *Registry) Adapters() []Adapter { return r.adapters }

// Lookup returns the adapter with the given name.
func (r *Registry) Lookup(name string) (Adapter, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// Len returns the number of configured venues.
func (r *Registry) Len() int { return len(r.adapters) }
