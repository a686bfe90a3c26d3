// Package chain adapts the generic rpc.Client into the handful of
// Ethereum-specific operations the submission manager needs: reading the
// pending nonce, estimating gas, reading fee market data, broadcasting a
// raw transaction, and polling for its receipt.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/arcsign/txmgr/classify"
	"github.com/arcsign/txmgr/rpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/singleflight"
)

// CallMsg is the minimal eth_call/eth_estimateGas message shape this
// package needs; it intentionally omits gas/fee fields since those are
// inputs to estimation, not outputs of it.
type CallMsg struct {
	From  common.Address
	To    *common.Address
	Value *big.Int
	Data  []byte
}

// Receipt is the subset of an Ethereum transaction receipt the
// confirmation waiter cares about.
type Receipt struct {
	BlockNumber uint64
	BlockHash   common.Hash
	Status      uint64 // 1 success, 0 reverted
	GasUsed     uint64
}

// Fees is the wire-level fee parameters of one send: either GasPrice
// (legacy) or the MaxFee/MaxPriorityFee pair (EIP-1559), never both.
type Fees struct {
	GasPrice       *big.Int
	MaxFee         *big.Int
	MaxPriorityFee *big.Int
}

// SendParams is everything Send needs to ask the signing middleware to
// sign and forward one transaction variant. The manager never holds a
// private key: Send issues an unsigned eth_sendTransaction, and the
// signing RPC middleware in front of the node signs it before relaying
// eth_sendRawTransaction to the real chain.
type SendParams struct {
	From     common.Address
	To       *common.Address
	Value    *big.Int
	Data     []byte
	Nonce    uint64
	GasLimit uint64
	Fees     Fees
}

// Error wraps a chain RPC failure with the retry disposition and any
// internal signal classify recognized in the underlying message.
type Error struct {
	Err            error
	Classification classify.Classification
	Signal         classify.Signal
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func classifyErr(err error) *Error {
	result := classify.Classify(err.Error())
	return &Error{Err: err, Classification: result.Classification, Signal: result.Signal}
}

// Adapter is the chain-facing surface the state machine drives. Every
// method is safe to call concurrently.
type Adapter interface {
	// PendingNonce returns the next nonce the node would assign addr,
	// including transactions still in the mempool.
	PendingNonce(ctx context.Context, addr common.Address) (uint64, error)

	// BlockNumber returns the current head block number.
	BlockNumber(ctx context.Context) (uint64, error)

	// BaseFee returns the current block's base fee. Zero on pre-London chains.
	BaseFee(ctx context.Context) (*big.Int, error)

	// SuggestPriorityFee returns a priority fee based on recent block history.
	SuggestPriorityFee(ctx context.Context) (*big.Int, error)

	// SuggestGasPrice returns a single gas price suggestion, for legacy
	// (pre-EIP-1559) chains.
	SuggestGasPrice(ctx context.Context) (*big.Int, error)

	// EstimateGas estimates the gas limit for msg. A NonRetryable Error
	// here (e.g. execution reverted) means the transaction cannot succeed
	// regardless of fee.
	EstimateGas(ctx context.Context, msg CallMsg) (uint64, error)

	// Send asks the signing middleware to sign and broadcast params,
	// returning the resulting transaction hash.
	Send(ctx context.Context, params SendParams) (common.Hash, error)

	// GetReceipt returns the receipt for txHash, or ok=false if the
	// transaction has not been mined (or has vanished from a reorg).
	GetReceipt(ctx context.Context, txHash common.Hash) (receipt *Receipt, ok bool, err error)

	// TransactionInMempool reports whether the node still has txHash
	// pending. Used to detect silent mempool eviction.
	TransactionInMempool(ctx context.Context, txHash common.Hash) (bool, error)
}

// RPCAdapter implements Adapter over an rpc.Client. Identical concurrent
// calls for the same read (e.g. two goroutines both asking for the current
// block number at once) are collapsed into a single RPC round trip.
type RPCAdapter struct {
	client rpc.Client
	group  singleflight.Group
}

// NewRPCAdapter wraps client.
func NewRPCAdapter(client rpc.Client) *RPCAdapter {
	return &RPCAdapter{client: client}
}

func (a *RPCAdapter) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	v, err, _ := a.group.Do("pending_nonce:"+addr.Hex(), func() (interface{}, error) {
		result, err := a.client.Call(ctx, "eth_getTransactionCount", []interface{}{addr.Hex(), "pending"})
		if err != nil {
			return nil, classifyErr(err)
		}
		return decodeUint64(result)
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

func (a *RPCAdapter) BlockNumber(ctx context.Context) (uint64, error) {
	v, err, _ := a.group.Do("block_number", func() (interface{}, error) {
		result, err := a.client.Call(ctx, "eth_blockNumber", nil)
		if err != nil {
			return nil, classifyErr(err)
		}
		return decodeUint64(result)
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

func (a *RPCAdapter) BaseFee(ctx context.Context) (*big.Int, error) {
	v, err, _ := a.group.Do("base_fee", func() (interface{}, error) {
		result, err := a.client.Call(ctx, "eth_getBlockByNumber", []interface{}{"latest", false})
		if err != nil {
			return nil, classifyErr(err)
		}

		var block struct {
			BaseFeePerGas string `json:"baseFeePerGas"`
		}
		if err := json.Unmarshal(result, &block); err != nil {
			return nil, &Error{Err: fmt.Errorf("parse block: %w", err), Classification: classify.NonRetryable}
		}
		if block.BaseFeePerGas == "" {
			return big.NewInt(0), nil
		}

		baseFee, err := hexutil.DecodeBig(block.BaseFeePerGas)
		if err != nil {
			return nil, &Error{Err: fmt.Errorf("decode base fee: %w", err), Classification: classify.NonRetryable}
		}
		return baseFee, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*big.Int), nil
}

func (a *RPCAdapter) SuggestPriorityFee(ctx context.Context) (*big.Int, error) {
	result, err := a.client.Call(ctx, "eth_feeHistory", []interface{}{
		hexutil.EncodeUint64(10),
		"latest",
		[]int{50},
	})
	if err != nil {
		return nil, classifyErr(err)
	}

	var history struct {
		Reward [][]string `json:"reward"`
	}
	if err := json.Unmarshal(result, &history); err != nil {
		return nil, &Error{Err: fmt.Errorf("parse fee history: %w", err), Classification: classify.NonRetryable}
	}

	sum := big.NewInt(0)
	count := 0
	for _, rewards := range history.Reward {
		if len(rewards) == 0 {
			continue
		}
		fee, err := hexutil.DecodeBig(rewards[0])
		if err != nil {
			continue
		}
		sum.Add(sum, fee)
		count++
	}
	if count == 0 {
		return big.NewInt(1e9), nil // 1 Gwei fallback
	}
	return sum.Div(sum, big.NewInt(int64(count))), nil
}

func (a *RPCAdapter) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	result, err := a.client.Call(ctx, "eth_gasPrice", nil)
	if err != nil {
		return nil, classifyErr(err)
	}
	return decodeBig(result)
}

func (a *RPCAdapter) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	callObj := map[string]interface{}{
		"from": msg.From.Hex(),
	}
	if msg.To != nil {
		callObj["to"] = msg.To.Hex()
	}
	if msg.Value != nil && msg.Value.Sign() > 0 {
		callObj["value"] = hexutil.EncodeBig(msg.Value)
	}
	if len(msg.Data) > 0 {
		callObj["data"] = hexutil.Encode(msg.Data)
	}

	result, err := a.client.Call(ctx, "eth_estimateGas", []interface{}{callObj})
	if err != nil {
		return 0, classifyErr(err)
	}
	return decodeUint64(result)
}

func (a *RPCAdapter) Send(ctx context.Context, params SendParams) (common.Hash, error) {
	txObj := map[string]interface{}{
		"from":    params.From.Hex(),
		"nonce":   hexutil.EncodeUint64(params.Nonce),
		"gas":     hexutil.EncodeUint64(params.GasLimit),
	}
	if params.To != nil {
		txObj["to"] = params.To.Hex()
	}
	if params.Value != nil && params.Value.Sign() > 0 {
		txObj["value"] = hexutil.EncodeBig(params.Value)
	}
	if len(params.Data) > 0 {
		txObj["data"] = hexutil.Encode(params.Data)
	}
	if params.Fees.GasPrice != nil {
		txObj["gasPrice"] = hexutil.EncodeBig(params.Fees.GasPrice)
	} else {
		if params.Fees.MaxFee != nil {
			txObj["maxFeePerGas"] = hexutil.EncodeBig(params.Fees.MaxFee)
		}
		if params.Fees.MaxPriorityFee != nil {
			txObj["maxPriorityFeePerGas"] = hexutil.EncodeBig(params.Fees.MaxPriorityFee)
		}
	}

	result, err := a.client.Call(ctx, "eth_sendTransaction", []interface{}{txObj})
	if err != nil {
		return common.Hash{}, classifyErr(err)
	}

	var hashHex string
	if err := json.Unmarshal(result, &hashHex); err != nil {
		return common.Hash{}, &Error{Err: fmt.Errorf("parse tx hash: %w", err), Classification: classify.NonRetryable}
	}
	return common.HexToHash(hashHex), nil
}

func (a *RPCAdapter) GetReceipt(ctx context.Context, txHash common.Hash) (*Receipt, bool, error) {
	v, err, _ := a.group.Do("receipt:"+txHash.Hex(), func() (interface{}, error) {
		result, err := a.client.Call(ctx, "eth_getTransactionReceipt", []interface{}{txHash.Hex()})
		if err != nil {
			return nil, classifyErr(err)
		}
		if string(result) == "null" || len(result) == 0 {
			return (*Receipt)(nil), nil
		}

		var raw struct {
			BlockNumber string `json:"blockNumber"`
			BlockHash   string `json:"blockHash"`
			Status      string `json:"status"`
			GasUsed     string `json:"gasUsed"`
		}
		if err := json.Unmarshal(result, &raw); err != nil {
			return nil, &Error{Err: fmt.Errorf("parse receipt: %w", err), Classification: classify.NonRetryable}
		}

		blockNumber, err := hexutil.DecodeUint64(raw.BlockNumber)
		if err != nil {
			return nil, &Error{Err: fmt.Errorf("decode receipt block number: %w", err), Classification: classify.NonRetryable}
		}
		status, err := hexutil.DecodeUint64(raw.Status)
		if err != nil {
			return nil, &Error{Err: fmt.Errorf("decode receipt status: %w", err), Classification: classify.NonRetryable}
		}
		gasUsed, err := hexutil.DecodeUint64(raw.GasUsed)
		if err != nil {
			return nil, &Error{Err: fmt.Errorf("decode receipt gas used: %w", err), Classification: classify.NonRetryable}
		}

		return &Receipt{
			BlockNumber: blockNumber,
			BlockHash:   common.HexToHash(raw.BlockHash),
			Status:      status,
			GasUsed:     gasUsed,
		}, nil
	})
	if err != nil {
		return nil, false, err
	}
	receipt, _ := v.(*Receipt)
	return receipt, receipt != nil, nil
}

func (a *RPCAdapter) TransactionInMempool(ctx context.Context, txHash common.Hash) (bool, error) {
	result, err := a.client.Call(ctx, "eth_getTransactionByHash", []interface{}{txHash.Hex()})
	if err != nil {
		return false, classifyErr(err)
	}
	return string(result) != "null" && len(result) > 0, nil
}

func decodeBig(result json.RawMessage) (*big.Int, error) {
	var hex string
	if err := json.Unmarshal(result, &hex); err != nil {
		return nil, &Error{Err: fmt.Errorf("parse big.Int result: %w", err), Classification: classify.NonRetryable}
	}
	v, err := hexutil.DecodeBig(hex)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("decode big.Int hex: %w", err), Classification: classify.NonRetryable}
	}
	return v, nil
}

func decodeUint64(result json.RawMessage) (uint64, error) {
	var hex string
	if err := json.Unmarshal(result, &hex); err != nil {
		return 0, &Error{Err: fmt.Errorf("parse uint64 result: %w", err), Classification: classify.NonRetryable}
	}
	v, err := hexutil.DecodeUint64(hex)
	if err != nil {
		return 0, &Error{Err: fmt.Errorf("decode uint64 hex: %w", err), Classification: classify.NonRetryable}
	}
	return v, nil
}

var _ Adapter = (*RPCAdapter)(nil)
