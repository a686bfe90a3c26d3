// Package store provides crash-safe persistence for exactly one in-flight
// Record per sender. It knows nothing about submission semantics; it only
// guarantees that a Save that returns nil has durably landed on disk (or in
// the backing medium) before the caller broadcasts anything further.
package store

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Attempt is the on-disk shape of one broadcast variant of a Record's fixed
// nonce. hexutil.Big/hexutil.Bytes give JSON-safe encoding for the
// arbitrary-precision fee fields, the same encoding geth's own RPC
// transaction type uses.
type Attempt struct {
	TxHash         common.Hash  `json:"txHash"`
	GasPrice       *hexutil.Big `json:"gasPrice,omitempty"`
	MaxFee         *hexutil.Big `json:"maxFee,omitempty"`
	MaxPriorityFee *hexutil.Big `json:"maxPriorityFee,omitempty"`
	SubmittedAt    time.Time    `json:"submittedAt"`
	GasLimit       uint64       `json:"gasLimit"`
}

// Record is the on-disk shape of a submission-manager Record, keyed by
// sender address. Exactly one Record may exist per sender at a time.
type Record struct {
	From          common.Address  `json:"from"`
	To            *common.Address `json:"to,omitempty"`
	Value         *hexutil.Big    `json:"value"`
	CallData      hexutil.Bytes   `json:"callData,omitempty"`
	ChainID       uint64          `json:"chainId"`
	IsLegacy      bool            `json:"isLegacy"`
	Confirmations uint64          `json:"confirmations"`
	Priority      int             `json:"priority"`
	Nonce         uint64          `json:"nonce"`
	Attempts      []Attempt       `json:"attempts"`
}

// Store persists at most one Record per sender address. Implementations
// MUST be safe for concurrent use and MUST make Save crash-safe: a process
// killed mid-Save must leave either the old Record or the new one on disk,
// never a partial write.
type Store interface {
	// Load returns the Record for sender, or ok=false if none exists.
	Load(sender common.Address) (record *Record, ok bool, err error)

	// Save persists record, replacing any existing Record for the same
	// sender. MUST NOT return nil until the write is durable.
	Save(record *Record) error

	// Clear removes the Record for sender, if any. Idempotent.
	Clear(sender common.Address) error
}
