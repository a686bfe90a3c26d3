package txmgr

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Priority is an ordered request priority. The fee policy is monotonic in
// Priority: a higher Priority never produces a lower fee quote than a lower
// one for the same market conditions.
type Priority int

const (
	PriorityLowest Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
)

func (p Priority) String() string {
	switch p {
	case PriorityLowest:
		return "lowest"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityHighest:
		return "highest"
	default:
		return "unknown"
	}
}

// ChainDescriptor identifies the target chain and its fee capability.
type ChainDescriptor struct {
	ChainID  uint64
	IsLegacy bool // true: single gas_price; false: EIP-1559 max_fee/max_priority_fee
}

// Request is the caller-supplied transaction request. It is immutable for
// the lifetime of one submission.
type Request struct {
	From     common.Address
	To       *common.Address // nil for contract creation
	Value    *big.Int
	CallData []byte
}

// FeeQuote is a fee policy output, opaque to everything but the policy and
// the chain adapter that turns it into wire fields.
type FeeQuote struct {
	// Legacy chain
	GasPrice *big.Int

	// EIP-1559 chain; invariant MaxPriorityFee <= MaxFee
	MaxFee         *big.Int
	MaxPriorityFee *big.Int
}

// IsLegacy reports whether q carries a single gas price rather than the
// EIP-1559 pair.
func (q FeeQuote) IsLegacy() bool {
	return q.GasPrice != nil
}

// Attempt is one signed-and-broadcast variant of the record's fixed nonce.
type Attempt struct {
	TxHash      common.Hash
	Fees        FeeQuote
	SubmittedAt time.Time
	GasLimit    uint64
}

// Record is the persisted state for exactly one in-flight transaction for
// one sender. Invariants:
//   - at most one Record per sender exists
//   - Attempts is non-empty while a Record exists
//   - every Attempt was submitted under the same Nonce
//   - each successive Attempt strictly bumps the previous one's fees
type Record struct {
	Request       Request
	Chain         ChainDescriptor
	Confirmations uint64
	Priority      Priority
	Nonce         uint64
	Attempts      []Attempt
}

// Latest returns the most recently appended attempt. Callers must only
// invoke this on a non-empty Record (construction invariant guarantees
// Attempts is never empty once a Record exists).
func (r *Record) Latest() Attempt {
	return r.Attempts[len(r.Attempts)-1]
}

// Append adds a new attempt to the record, preserving append order.
func (r *Record) Append(a Attempt) {
	r.Attempts = append(r.Attempts, a)
}

// HasHash reports whether hash belongs to one of this record's attempts,
// and returns the matching attempt if so.
func (r *Record) HasHash(hash common.Hash) (Attempt, bool) {
	for _, a := range r.Attempts {
		if a.TxHash == hash {
			return a, true
		}
	}
	return Attempt{}, false
}
