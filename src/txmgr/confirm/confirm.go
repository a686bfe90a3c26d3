// Package confirm implements the confirmation waiter: once a
// receipt has been observed for one of a record's attempts, re-check on
// every tick that the same hash is still part of the canonical chain and
// report once it has been buried under the requested depth.
package confirm

import (
	"context"

	"github.com/arcsign/txmgr/chain"
	"github.com/ethereum/go-ethereum/common"
)

// Outcome is the result of one confirmation-wait tick.
type Outcome int

const (
	// StillWaiting: the receipt is present but hasn't reached the target depth.
	StillWaiting Outcome = iota
	// Reorged: the receipt that was previously observed for this hash has
	// vanished. The caller should return to Submitting rather than treat this as a
	// new attempt.
	Reorged
	// Confirmed: head - receipt block >= the requested confirmation depth.
	Confirmed
)

func (o Outcome) String() string {
	switch o {
	case StillWaiting:
		return "StillWaiting"
	case Reorged:
		return "Reorged"
	case Confirmed:
		return "Confirmed"
	default:
		return "Unknown"
	}
}

// Waiter drives the confirmation-depth check for one mined transaction hash.
type Waiter struct {
	chain chain.Adapter
}

// NewWaiter builds a Waiter over adapter.
func NewWaiter(adapter chain.Adapter) *Waiter {
	return &Waiter{chain: adapter}
}

// Check re-fetches the receipt for txHash and classifies the current state
// of the confirmation wait. A transient read error is returned as err with
// Outcome left at its zero value (StillWaiting) so the caller retries the
// same tick without treating it as a reorg.
func (w *Waiter) Check(ctx context.Context, txHash common.Hash, confirmations uint64) (Outcome, *chain.Receipt, error) {
	receipt, ok, err := w.chain.GetReceipt(ctx, txHash)
	if err != nil {
		return StillWaiting, nil, err
	}
	if !ok {
		return Reorged, nil, nil
	}

	head, err := w.chain.BlockNumber(ctx)
	if err != nil {
		return StillWaiting, receipt, err
	}
	if head < receipt.BlockNumber {
		return StillWaiting, receipt, nil
	}
	if head-receipt.BlockNumber >= confirmations {
		return Confirmed, receipt, nil
	}
	return StillWaiting, receipt, nil
}
