// Package fee implements the resubmission bump policy: given the previous
// attempt's fees and a fresh oracle quote, decide the next attempt's fees
// and whether they constitute a real bump worth broadcasting.
//
// This package defines its own Quote type rather than importing the root
// txmgr package, the same way chain and store do — it keeps the dependency
// graph a tree instead of a cycle, since the root package imports this one.
package fee

import (
	"math/big"
	"strconv"
)

// Quote mirrors the shape of txmgr.FeeQuote. A nil GasPrice means this is
// an EIP-1559 quote; a non-nil GasPrice means legacy.
type Quote struct {
	GasPrice       *big.Int
	MaxFee         *big.Int
	MaxPriorityFee *big.Int
}

// IsLegacy reports whether q carries a single gas price rather than the
// EIP-1559 pair.
func (q Quote) IsLegacy() bool {
	return q.GasPrice != nil
}

// Decision is the policy's verdict on whether a computed candidate is worth
// broadcasting as a new attempt.
type Decision int

const (
	// Submit: the candidate strictly bumps the previous attempt (or there
	// was no previous attempt); broadcast it.
	Submit Decision = iota
	// HoldPrevious: the candidate did not clear the minimum bump over the
	// previous attempt; keep waiting on the existing attempt.
	HoldPrevious
)

func (d Decision) String() string {
	if d == Submit {
		return "Submit"
	}
	return "HoldPrevious"
}

// DefaultMinBumpFactor is the default minimum multiplicative fee bump:
// +10% per component, rounded up.
const DefaultMinBumpFactor = 1.10

// Policy computes the fees for each successive attempt under a fixed nonce.
type Policy struct {
	// MinBumpFactor is the minimum multiplicative bump a resubmission must
	// clear over the previous attempt, e.g. 1.10 for +10%.
	MinBumpFactor float64
}

// NewPolicy builds a Policy. A minBumpFactor <= 1.0 is replaced with
// DefaultMinBumpFactor since a bump factor at or below 1.0 would never
// evict the prior variant from a node's mempool.
func NewPolicy(minBumpFactor float64) *Policy {
	if minBumpFactor <= 1.0 {
		minBumpFactor = DefaultMinBumpFactor
	}
	return &Policy{MinBumpFactor: minBumpFactor}
}

// Next computes the next attempt's fees.
//
//   - previous == nil: first attempt, take oracleQuote directly (still
//     normalized so max_priority_fee <= max_fee holds).
//   - previous != nil: candidate is the component-wise max of oracleQuote
//     and previous scaled up by MinBumpFactor (rounded up). If the
//     candidate doesn't differ from previous after normalization, the
//     decision is HoldPrevious and the previous fees are returned
//     unchanged — callers must not broadcast in that case.
//
// baseFee is used only for EIP-1559 normalization and may be nil for
// legacy chains.
func (p *Policy) Next(isLegacy bool, baseFee *big.Int, previous *Quote, oracleQuote Quote) (Quote, Decision) {
	if previous == nil {
		return normalize(isLegacy, baseFee, oracleQuote), Submit
	}

	bumped := bump(isLegacy, *previous, p.MinBumpFactor)
	candidate := normalize(isLegacy, baseFee, maxQuote(isLegacy, oracleQuote, bumped))

	if equalQuote(isLegacy, candidate, *previous) {
		return *previous, HoldPrevious
	}
	return candidate, Submit
}

func bump(isLegacy bool, prev Quote, factor float64) Quote {
	if isLegacy {
		return Quote{GasPrice: scaleUp(prev.GasPrice, factor)}
	}
	return Quote{
		MaxFee:         scaleUp(prev.MaxFee, factor),
		MaxPriorityFee: scaleUp(prev.MaxPriorityFee, factor),
	}
}

// scaleUp multiplies val by factor and rounds up, so a 10% bump of an odd
// number never rounds back down to the original value. factor is taken at
// its shortest decimal form (1.10 is exactly 11/10), so an exact product
// such as 100 * 1.10 stays 110.
func scaleUp(val *big.Int, factor float64) *big.Int {
	if val == nil {
		return nil
	}
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(factor, 'f', -1, 64))
	if !ok {
		r = new(big.Rat).SetFloat64(factor)
	}
	prod := new(big.Rat).Mul(new(big.Rat).SetInt(val), r)
	i, rem := new(big.Int).QuoRem(prod.Num(), prod.Denom(), new(big.Int))
	if rem.Sign() > 0 {
		i.Add(i, big.NewInt(1))
	}
	return i
}

func maxQuote(isLegacy bool, a, b Quote) Quote {
	if isLegacy {
		return Quote{GasPrice: bigMax(a.GasPrice, b.GasPrice)}
	}
	return Quote{
		MaxFee:         bigMax(a.MaxFee, b.MaxFee),
		MaxPriorityFee: bigMax(a.MaxPriorityFee, b.MaxPriorityFee),
	}
}

func bigMax(a, b *big.Int) *big.Int {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// normalize enforces max_priority_fee <= max_fee: if the
// oracle's priority tip alone, plus the current base fee, would exceed
// max_fee, max_fee is raised to match rather than silently admitting an
// invalid quote.
func normalize(isLegacy bool, baseFee *big.Int, q Quote) Quote {
	if isLegacy {
		return q
	}
	if q.MaxPriorityFee != nil && q.MaxFee != nil && q.MaxPriorityFee.Cmp(q.MaxFee) > 0 {
		q.MaxFee = new(big.Int).Set(q.MaxPriorityFee)
	}
	if baseFee != nil && q.MaxPriorityFee != nil {
		floor := new(big.Int).Add(baseFee, q.MaxPriorityFee)
		if q.MaxFee == nil || floor.Cmp(q.MaxFee) > 0 {
			q.MaxFee = floor
		}
	}
	return q
}

func equalQuote(isLegacy bool, a, b Quote) bool {
	if isLegacy {
		return bigEqual(a.GasPrice, b.GasPrice)
	}
	return bigEqual(a.MaxFee, b.MaxFee) && bigEqual(a.MaxPriorityFee, b.MaxPriorityFee)
}

func bigEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}
