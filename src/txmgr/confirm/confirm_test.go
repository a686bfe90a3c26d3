package confirm

import (
	"context"
	"errors"
	"testing"

	"github.com/arcsign/txmgr/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	chain.Adapter
	receipt     *chain.Receipt
	receiptOK   bool
	receiptErr  error
	blockNumber uint64
	blockErr    error
}

func (f *fakeAdapter) GetReceipt(ctx context.Context, txHash common.Hash) (*chain.Receipt, bool, error) {
	return f.receipt, f.receiptOK, f.receiptErr
}

func (f *fakeAdapter) BlockNumber(ctx context.Context) (uint64, error) {
	return f.blockNumber, f.blockErr
}

func TestWaiter_Confirmed(t *testing.T) {
	a := &fakeAdapter{receipt: &chain.Receipt{BlockNumber: 100}, receiptOK: true, blockNumber: 103}
	w := NewWaiter(a)

	outcome, receipt, err := w.Check(context.Background(), common.HexToHash("0x1"), 3)

	require.NoError(t, err)
	assert.Equal(t, Confirmed, outcome)
	assert.Equal(t, uint64(100), receipt.BlockNumber)
}

func TestWaiter_StillWaitingBelowDepth(t *testing.T) {
	a := &fakeAdapter{receipt: &chain.Receipt{BlockNumber: 100}, receiptOK: true, blockNumber: 101}
	w := NewWaiter(a)

	outcome, _, err := w.Check(context.Background(), common.HexToHash("0x1"), 3)

	require.NoError(t, err)
	assert.Equal(t, StillWaiting, outcome)
}

func TestWaiter_ReorgedWhenReceiptVanishes(t *testing.T) {
	a := &fakeAdapter{receiptOK: false}
	w := NewWaiter(a)

	outcome, receipt, err := w.Check(context.Background(), common.HexToHash("0x1"), 1)

	require.NoError(t, err)
	assert.Equal(t, Reorged, outcome)
	assert.Nil(t, receipt)
}

func TestWaiter_TransientReadErrorIsNotAReorg(t *testing.T) {
	a := &fakeAdapter{receiptErr: errors.New("connection refused")}
	w := NewWaiter(a)

	outcome, _, err := w.Check(context.Background(), common.HexToHash("0x1"), 1)

	require.Error(t, err)
	assert.Equal(t, StillWaiting, outcome)
}
