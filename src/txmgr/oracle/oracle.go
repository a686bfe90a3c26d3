// Package oracle supplies fee quotes for a requested priority. Like fee,
// chain, and store, it defines its own types instead of importing the root
// txmgr package to keep the import graph acyclic.
package oracle

import (
	"context"
	"math/big"

	"github.com/arcsign/txmgr/chain"
)

// Priority mirrors txmgr.Priority's ordering; the oracle's quote is
// monotonic in Priority for fixed market conditions.
type Priority int

const (
	PriorityLowest Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
)

// Quote mirrors fee.Quote / txmgr.FeeQuote.
type Quote struct {
	GasPrice       *big.Int
	MaxFee         *big.Int
	MaxPriorityFee *big.Int
}

// Oracle supplies a fresh fee quote for priority on the given chain.
type Oracle interface {
	Quote(ctx context.Context, priority Priority, isLegacy bool) (Quote, error)
}

// multiplier is a num/den pair applied to a chain fee component. Five
// strictly increasing steps keep the quote monotonic in Priority.
type multiplier struct{ num, den int64 }

var priorityMultipliers = map[Priority]multiplier{
	PriorityLowest:  {100, 100},
	PriorityLow:     {125, 100},
	PriorityNormal:  {150, 100},
	PriorityHigh:    {200, 100},
	PriorityHighest: {300, 100},
}

func scale(val *big.Int, m multiplier) *big.Int {
	if val == nil {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(val, big.NewInt(m.num))
	return scaled.Div(scaled, big.NewInt(m.den))
}

// DefaultOracle derives quotes from the chain's own fee market data: base
// fee plus eth_feeHistory priority percentile for EIP-1559 chains,
// eth_gasPrice for legacy ones.
type DefaultOracle struct {
	chain chain.Adapter
}

// NewDefaultOracle builds a DefaultOracle backed by adapter's fee-market
// reads.
func NewDefaultOracle(adapter chain.Adapter) *DefaultOracle {
	return &DefaultOracle{chain: adapter}
}

func (o *DefaultOracle) Quote(ctx context.Context, priority Priority, isLegacy bool) (Quote, error) {
	m, ok := priorityMultipliers[priority]
	if !ok {
		m = priorityMultipliers[PriorityNormal]
	}

	if isLegacy {
		gasPrice, err := o.chain.SuggestGasPrice(ctx)
		if err != nil {
			return Quote{}, err
		}
		return Quote{GasPrice: scale(gasPrice, m)}, nil
	}

	baseFee, err := o.chain.BaseFee(ctx)
	if err != nil {
		return Quote{}, err
	}
	priorityFee, err := o.chain.SuggestPriorityFee(ctx)
	if err != nil {
		return Quote{}, err
	}

	scaledPriority := scale(priorityFee, m)
	maxFee := new(big.Int).Add(scale(baseFee, m), scaledPriority)
	return Quote{MaxFee: maxFee, MaxPriorityFee: scaledPriority}, nil
}

var _ Oracle = (*DefaultOracle)(nil)

// StaticOracle is a scripted Oracle for tests: callers preload the Quote
// (or Err) to return regardless of priority.
type StaticOracle struct {
	Quotes map[Priority]Quote
	Err    error
}

// NewStaticOracle returns a StaticOracle that always returns quote for
// every priority.
func NewStaticOracle(quote Quote) *StaticOracle {
	quotes := make(map[Priority]Quote, 5)
	for p := PriorityLowest; p <= PriorityHighest; p++ {
		quotes[p] = quote
	}
	return &StaticOracle{Quotes: quotes}
}

func (s *StaticOracle) Quote(ctx context.Context, priority Priority, isLegacy bool) (Quote, error) {
	if s.Err != nil {
		return Quote{}, s.Err
	}
	return s.Quotes[priority], nil
}

var _ Oracle = (*StaticOracle)(nil)
