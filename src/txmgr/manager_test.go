package txmgr

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arcsign/txmgr/chain"
	"github.com/arcsign/txmgr/classify"
	"github.com/arcsign/txmgr/metrics"
	"github.com/arcsign/txmgr/oracle"
	"github.com/arcsign/txmgr/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChain is a scripted chain.Adapter. Each test configures only the
// methods its scenario exercises; everything else returns harmless zero
// values.
type fakeChain struct {
	mu sync.Mutex

	nonce    uint64
	nonceErr error

	block   uint64
	baseFee *big.Int

	gasLimit    uint64
	estimateErr error

	sendFunc func(params chain.SendParams) (common.Hash, error)
	sendErr  error

	mempoolFunc func(txHash common.Hash) (bool, error)

	receipts map[common.Hash]*chain.Receipt
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		nonce:    1,
		block:    100,
		baseFee:  big.NewInt(10e9),
		gasLimit: 21000,
		receipts: make(map[common.Hash]*chain.Receipt),
	}
}

func (f *fakeChain) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	return f.nonce, f.nonceErr
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.block, nil
}

func (f *fakeChain) BaseFee(ctx context.Context) (*big.Int, error) { return f.baseFee, nil }

func (f *fakeChain) SuggestPriorityFee(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}

func (f *fakeChain) EstimateGas(ctx context.Context, msg chain.CallMsg) (uint64, error) {
	return f.gasLimit, f.estimateErr
}

func (f *fakeChain) Send(ctx context.Context, params chain.SendParams) (common.Hash, error) {
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	return f.sendFunc(params)
}

func (f *fakeChain) GetReceipt(ctx context.Context, txHash common.Hash) (*chain.Receipt, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[txHash]
	return r, ok, nil
}

func (f *fakeChain) TransactionInMempool(ctx context.Context, txHash common.Hash) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mempoolFunc != nil {
		return f.mempoolFunc(txHash)
	}
	return true, nil
}

func (f *fakeChain) setReceipt(hash common.Hash, r *chain.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[hash] = r
}

func (f *fakeChain) setBlock(n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = n
}

var _ chain.Adapter = (*fakeChain)(nil)

func testRequest() Request {
	return Request{
		From:  common.HexToAddress("0xbeef"),
		To:    addrPtr(common.HexToAddress("0xcafe")),
		Value: big.NewInt(1e9),
	}
}

func addrPtr(a common.Address) *common.Address { return &a }

func fastConfig() Config {
	return Config{
		PollInterval:             time.Millisecond,
		TransactionMiningTimeout: time.Minute,
		BlockTime:                time.Millisecond,
		MinBumpFactor:            1.10,
		ProviderRetryBudget:      5,
	}
}

func TestSubmit_HappyPath(t *testing.T) {
	fc := newFakeChain()
	hash := common.HexToHash("0xaaa1")
	fc.setReceipt(hash, &chain.Receipt{BlockNumber: 100, Status: 1})
	fc.setBlock(101) // already one block past the mined block
	fc.sendFunc = func(params chain.SendParams) (common.Hash, error) { return hash, nil }

	orc := oracle.NewStaticOracle(oracle.Quote{MaxFee: big.NewInt(50e9), MaxPriorityFee: big.NewInt(2e9)})
	st := store.NewMemoryStore()
	m := newManager(common.HexToAddress("0xbeef"), ChainDescriptor{ChainID: 1337}, fc, orc, st, &metrics.NoOpMetrics{}, nil, fastConfig())

	receipt, err := m.Submit(context.Background(), testRequest(), 1, PriorityNormal)

	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, hash, receipt.TxHash)

	_, ok, loadErr := st.Load(common.HexToAddress("0xbeef"))
	require.NoError(t, loadErr)
	assert.False(t, ok, "record must be cleared after a successful submission")
}

func TestSubmit_PriceBumpEmitsSecondAttempt(t *testing.T) {
	fc := newFakeChain()
	hash2 := common.HexToHash("0xaaa2")
	fc.setReceipt(hash2, &chain.Receipt{BlockNumber: 100, Status: 1})
	fc.setBlock(101)

	var calls atomic.Int32
	fc.sendFunc = func(params chain.SendParams) (common.Hash, error) {
		n := calls.Add(1)
		if n == 1 {
			return common.HexToHash("0xaaa1"), nil
		}
		return hash2, nil
	}

	base := oracle.Quote{MaxFee: big.NewInt(50e9), MaxPriorityFee: big.NewInt(2e9)}
	bumped := oracle.Quote{MaxFee: big.NewInt(150e9), MaxPriorityFee: big.NewInt(6e9)}
	orc := &scriptedOracle{quotes: []oracle.Quote{base, bumped}}

	st := store.NewMemoryStore()
	m := newManager(common.HexToAddress("0xbeef"), ChainDescriptor{ChainID: 1337}, fc, orc, st, &metrics.NoOpMetrics{}, nil, fastConfig())

	receipt, err := m.Submit(context.Background(), testRequest(), 1, PriorityNormal)

	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, hash2, receipt.TxHash)
	assert.Equal(t, int32(2), calls.Load(), "the market move must have produced a second attempt")
}

func TestSubmit_ExecutionRevertOnEstimateNeverBroadcasts(t *testing.T) {
	fc := newFakeChain()
	fc.estimateErr = &chain.Error{Err: errors.New("execution reverted: custom error"), Classification: classify.NonRetryable}
	fc.sendFunc = func(params chain.SendParams) (common.Hash, error) {
		t.Fatal("Send must not be called when estimate-gas reverts")
		return common.Hash{}, nil
	}

	orc := oracle.NewStaticOracle(oracle.Quote{MaxFee: big.NewInt(50e9), MaxPriorityFee: big.NewInt(2e9)})
	st := store.NewMemoryStore()
	m := newManager(common.HexToAddress("0xbeef"), ChainDescriptor{ChainID: 1337}, fc, orc, st, &metrics.NoOpMetrics{}, nil, fastConfig())

	_, err := m.Submit(context.Background(), testRequest(), 1, PriorityNormal)

	require.Error(t, err)
	assert.Equal(t, CodeExecutionRevert, CodeOf(err))
	_, ok, _ := st.Load(common.HexToAddress("0xbeef"))
	assert.False(t, ok, "no record should exist when the estimate reverts before broadcast")
}

func TestSubmit_InsufficientFundsIsTerminalAndUnpersisted(t *testing.T) {
	fc := newFakeChain()
	fc.sendErr = &chain.Error{Err: errors.New("insufficient funds for gas * price + value"), Classification: classify.NonRetryable}

	orc := oracle.NewStaticOracle(oracle.Quote{MaxFee: big.NewInt(50e9), MaxPriorityFee: big.NewInt(2e9)})
	st := store.NewMemoryStore()
	m := newManager(common.HexToAddress("0xbeef"), ChainDescriptor{ChainID: 1337}, fc, orc, st, &metrics.NoOpMetrics{}, nil, fastConfig())

	_, err := m.Submit(context.Background(), testRequest(), 1, PriorityNormal)

	require.Error(t, err)
	assert.Equal(t, CodeInsufficientFunds, CodeOf(err))
	_, ok, _ := st.Load(common.HexToAddress("0xbeef"))
	assert.False(t, ok)
}

func TestSubmit_NonceOverwrittenClearsRecord(t *testing.T) {
	fc := newFakeChain()
	fc.sendFunc = func(params chain.SendParams) (common.Hash, error) { return common.HexToHash("0xaaa1"), nil }

	base := oracle.Quote{MaxFee: big.NewInt(50e9), MaxPriorityFee: big.NewInt(2e9)}
	orc := &scriptedOracle{quotes: []oracle.Quote{base}, repeatLast: true}

	st := store.NewMemoryStore()
	m := newManager(common.HexToAddress("0xbeef"), ChainDescriptor{ChainID: 1337}, fc, orc, st, &metrics.NoOpMetrics{}, nil, fastConfig())

	// After the first attempt is persisted, every resubmission attempt is
	// told the nonce is already spent by something outside this record.
	first := true
	origSend := fc.sendFunc
	fc.sendFunc = func(params chain.SendParams) (common.Hash, error) {
		if first {
			first = false
			return origSend(params)
		}
		return common.Hash{}, &chain.Error{Err: errors.New("nonce too low"), Classification: classify.NonRetryable, Signal: classify.SignalNonceTooLow}
	}

	_, err := m.Submit(context.Background(), testRequest(), 1, PriorityNormal)

	require.Error(t, err)
	assert.Equal(t, CodeNonceOverwritten, CodeOf(err))
	_, ok, _ := st.Load(common.HexToAddress("0xbeef"))
	assert.False(t, ok)
}

func TestSubmit_MiningTimeoutRetainsRecord(t *testing.T) {
	fc := newFakeChain()
	fc.sendFunc = func(params chain.SendParams) (common.Hash, error) { return common.HexToHash("0xaaa1"), nil }

	orc := oracle.NewStaticOracle(oracle.Quote{MaxFee: big.NewInt(50e9), MaxPriorityFee: big.NewInt(2e9)})
	st := store.NewMemoryStore()
	cfg := fastConfig()
	cfg.TransactionMiningTimeout = time.Nanosecond
	m := newManager(common.HexToAddress("0xbeef"), ChainDescriptor{ChainID: 1337}, fc, orc, st, &metrics.NoOpMetrics{}, nil, cfg)

	_, err := m.Submit(context.Background(), testRequest(), 1, PriorityNormal)

	require.Error(t, err)
	assert.Equal(t, CodeMiningTimeout, CodeOf(err))
	_, ok, _ := st.Load(common.HexToAddress("0xbeef"))
	assert.True(t, ok, "a MiningTimeout must retain the record for manual resolution")
}

func TestSubmit_BusyRejectsConcurrentCall(t *testing.T) {
	fc := newFakeChain()
	hash := common.HexToHash("0xbbb1")
	fc.setReceipt(hash, &chain.Receipt{BlockNumber: 100, Status: 1})
	fc.setBlock(101)
	fc.sendFunc = func(params chain.SendParams) (common.Hash, error) { return hash, nil }

	gate := make(chan struct{})
	calledOnce := make(chan struct{}, 1)

	blockingChain := &blockingNonceChain{fakeChain: fc, gate: gate, signaled: calledOnce}
	orc := oracle.NewStaticOracle(oracle.Quote{MaxFee: big.NewInt(50e9), MaxPriorityFee: big.NewInt(2e9)})
	st := store.NewMemoryStore()
	m := newManager(common.HexToAddress("0xbeef"), ChainDescriptor{ChainID: 1337}, blockingChain, orc, st, &metrics.NoOpMetrics{}, nil, fastConfig())

	go func() {
		_, _ = m.Submit(context.Background(), testRequest(), 1, PriorityNormal)
	}()

	<-calledOnce // wait until the first Submit is blocked inside PendingNonce
	_, err := m.Submit(context.Background(), testRequest(), 1, PriorityNormal)
	require.Error(t, err)
	assert.Equal(t, CodeBusy, CodeOf(err))

	close(gate)
}

func TestNew_RecoversAlreadyMinedRecord(t *testing.T) {
	fc := newFakeChain()
	hash := common.HexToHash("0xaaa1")
	fc.setReceipt(hash, &chain.Receipt{BlockNumber: 100, Status: 1})
	fc.setBlock(102)

	sender := common.HexToAddress("0xbeef")
	st := store.NewMemoryStore()
	require.NoError(t, st.Save(&store.Record{
		From:          sender,
		Value:         bigToHex(big.NewInt(1e9)),
		ChainID:       1337,
		Confirmations: 1,
		Nonce:         1,
		Attempts: []store.Attempt{{
			TxHash:      hash,
			MaxFee:      bigToHex(big.NewInt(50e9)),
			SubmittedAt: time.Now(),
			GasLimit:    21000,
		}},
	}))

	orc := oracle.NewStaticOracle(oracle.Quote{MaxFee: big.NewInt(50e9), MaxPriorityFee: big.NewInt(2e9)})
	m, receipt, err := New(context.Background(), sender, ChainDescriptor{ChainID: 1337}, fc, orc, st, &metrics.NoOpMetrics{}, nil, fastConfig())

	require.NoError(t, err)
	require.NotNil(t, m)
	require.NotNil(t, receipt)
	assert.Equal(t, hash, receipt.TxHash)

	_, ok, _ := st.Load(sender)
	assert.False(t, ok)
}

func TestNewAndClear_DiscardsPriorRecord(t *testing.T) {
	sender := common.HexToAddress("0xbeef")
	st := store.NewMemoryStore()
	require.NoError(t, st.Save(&store.Record{From: sender, Value: bigToHex(big.NewInt(1)), Nonce: 1, Attempts: []store.Attempt{{TxHash: common.HexToHash("0x1"), SubmittedAt: time.Now()}}}))

	fc := newFakeChain()
	orc := oracle.NewStaticOracle(oracle.Quote{MaxFee: big.NewInt(50e9), MaxPriorityFee: big.NewInt(2e9)})

	m, err := NewAndClear(context.Background(), sender, ChainDescriptor{ChainID: 1337}, fc, orc, st, &metrics.NoOpMetrics{}, nil, fastConfig())

	require.NoError(t, err)
	require.NotNil(t, m)
	_, ok, _ := st.Load(sender)
	assert.False(t, ok)
}

func TestSubmit_ReorgReturnsToSubmittingAndFinishes(t *testing.T) {
	fc := newFakeChain()
	hash := common.HexToHash("0xaaa1")
	minedReceipt := &chain.Receipt{BlockNumber: 100, Status: 1}
	fc.setBlock(101)
	fc.sendFunc = func(params chain.SendParams) (common.Hash, error) { return hash, nil }

	// First scan sees the receipt, the confirmation check sees it vanish
	// (reorg), the next scan sees it re-mined, and it confirms from there.
	sc := &scriptedReceiptChain{fakeChain: fc, script: []*chain.Receipt{minedReceipt, nil, minedReceipt, minedReceipt}}

	orc := oracle.NewStaticOracle(oracle.Quote{MaxFee: big.NewInt(50e9), MaxPriorityFee: big.NewInt(2e9)})
	st := store.NewMemoryStore()
	m := newManager(common.HexToAddress("0xbeef"), ChainDescriptor{ChainID: 1337}, sc, orc, st, &metrics.NoOpMetrics{}, nil, fastConfig())

	receipt, err := m.Submit(context.Background(), testRequest(), 1, PriorityNormal)

	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, hash, receipt.TxHash)
	assert.True(t, sc.done(), "the scripted reorg sequence must have been fully consumed")

	_, ok, _ := st.Load(common.HexToAddress("0xbeef"))
	assert.False(t, ok)
}

func TestSubmit_CancellationRetainsRecord(t *testing.T) {
	fc := newFakeChain()
	fc.sendFunc = func(params chain.SendParams) (common.Hash, error) { return common.HexToHash("0xaaa1"), nil }

	orc := oracle.NewStaticOracle(oracle.Quote{MaxFee: big.NewInt(50e9), MaxPriorityFee: big.NewInt(2e9)})
	st := store.NewMemoryStore()
	m := newManager(common.HexToAddress("0xbeef"), ChainDescriptor{ChainID: 1337}, fc, orc, st, &metrics.NoOpMetrics{}, nil, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before the first tick's sleep

	_, err := m.Submit(ctx, testRequest(), 1, PriorityNormal)

	require.Error(t, err)
	assert.Equal(t, CodeCancelledPending, CodeOf(err))
	rec, ok, _ := st.Load(common.HexToAddress("0xbeef"))
	require.True(t, ok, "cancellation must leave the record for the next construction to resume")
	assert.NotEmpty(t, rec.Attempts)
}

func TestSubmit_EvictedVariantIsRebroadcast(t *testing.T) {
	// A zero-fee dev chain: the policy holds the previous attempt every
	// tick, so only the mempool probe can notice the variant was evicted.
	fc := newFakeChain()
	fc.baseFee = big.NewInt(0)
	hash := common.HexToHash("0xaaa1")

	var sends atomic.Int32
	fc.sendFunc = func(params chain.SendParams) (common.Hash, error) {
		if sends.Add(1) == 2 {
			// The rebroadcast landed; let it mine.
			fc.setReceipt(hash, &chain.Receipt{BlockNumber: 100, Status: 1})
			fc.setBlock(101)
		}
		return hash, nil
	}
	fc.mempoolFunc = func(txHash common.Hash) (bool, error) { return false, nil }

	orc := oracle.NewStaticOracle(oracle.Quote{MaxFee: big.NewInt(0), MaxPriorityFee: big.NewInt(0)})
	st := store.NewMemoryStore()
	m := newManager(common.HexToAddress("0xbeef"), ChainDescriptor{ChainID: 1337}, fc, orc, st, &metrics.NoOpMetrics{}, nil, fastConfig())

	receipt, err := m.Submit(context.Background(), testRequest(), 1, PriorityNormal)

	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.GreaterOrEqual(t, sends.Load(), int32(2), "the evicted variant must have been re-sent")
}

func TestSubmit_InsufficientFundsAtEstimateNeverBroadcasts(t *testing.T) {
	fc := newFakeChain()
	fc.estimateErr = &chain.Error{Err: errors.New("insufficient funds for gas * price + value"), Classification: classify.NonRetryable}
	fc.sendFunc = func(params chain.SendParams) (common.Hash, error) {
		t.Fatal("Send must not be called when estimate-gas fails on balance")
		return common.Hash{}, nil
	}

	orc := oracle.NewStaticOracle(oracle.Quote{MaxFee: big.NewInt(50e9), MaxPriorityFee: big.NewInt(2e9)})
	st := store.NewMemoryStore()
	m := newManager(common.HexToAddress("0xbeef"), ChainDescriptor{ChainID: 1337}, fc, orc, st, &metrics.NoOpMetrics{}, nil, fastConfig())

	_, err := m.Submit(context.Background(), testRequest(), 1, PriorityNormal)

	require.Error(t, err)
	assert.Equal(t, CodeInsufficientFunds, CodeOf(err), "a balance failure at estimate time must not be reported as a revert")
	_, ok, _ := st.Load(common.HexToAddress("0xbeef"))
	assert.False(t, ok)
}

func TestSubmit_HeadFeedWakesLoopBetweenTicks(t *testing.T) {
	fc := newFakeChain()
	hash := common.HexToHash("0xaaa1")
	fc.setReceipt(hash, &chain.Receipt{BlockNumber: 100, Status: 1})
	fc.setBlock(100) // mined but not yet buried one block deep
	fc.sendFunc = func(params chain.SendParams) (common.Hash, error) { return hash, nil }

	orc := oracle.NewStaticOracle(oracle.Quote{MaxFee: big.NewInt(50e9), MaxPriorityFee: big.NewInt(2e9)})
	st := store.NewMemoryStore()
	cfg := fastConfig()
	cfg.PollInterval = time.Hour // only a head push can advance the loop
	m := newManager(common.HexToAddress("0xbeef"), ChainDescriptor{ChainID: 1337}, fc, orc, st, &metrics.NoOpMetrics{}, nil, cfg)

	heads := make(chan json.RawMessage, 1)
	m.WatchHeads(heads)
	go func() {
		fc.setBlock(101)
		heads <- json.RawMessage(`{"number":"0x65"}`)
	}()

	done := make(chan struct{})
	var receipt *Receipt
	var err error
	go func() {
		receipt, err = m.Submit(context.Background(), testRequest(), 1, PriorityNormal)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("head push did not wake the poll loop")
	}
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, hash, receipt.TxHash)
}

// scriptedOracle returns successive Quotes from the configured script,
// sticking on the last entry once exhausted (unless repeatLast is false, in
// which case it errors to surface unexpected extra calls clearly).
type scriptedOracle struct {
	mu         sync.Mutex
	quotes     []oracle.Quote
	calls      int
	repeatLast bool
}

func (s *scriptedOracle) Quote(ctx context.Context, priority oracle.Priority, isLegacy bool) (oracle.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.quotes) {
		if !s.repeatLast {
			s.calls++
			return oracle.Quote{}, errors.New("scriptedOracle: quote script exhausted")
		}
		idx = len(s.quotes) - 1
	}
	s.calls++
	return s.quotes[idx], nil
}

var _ oracle.Oracle = (*scriptedOracle)(nil)

// scriptedReceiptChain serves GetReceipt answers from a fixed script (nil
// means "not mined"), falling back to the embedded fakeChain's receipt map
// once the script is exhausted.
type scriptedReceiptChain struct {
	*fakeChain
	mu     sync.Mutex
	script []*chain.Receipt
	calls  int
}

func (s *scriptedReceiptChain) GetReceipt(ctx context.Context, txHash common.Hash) (*chain.Receipt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls < len(s.script) {
		r := s.script[s.calls]
		s.calls++
		return r, r != nil, nil
	}
	return s.fakeChain.GetReceipt(ctx, txHash)
}

func (s *scriptedReceiptChain) done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls >= len(s.script)
}

// blockingNonceChain blocks the first PendingNonce call on gate so a test
// can assert that a second, concurrent Submit observes CodeBusy.
type blockingNonceChain struct {
	*fakeChain
	gate     chan struct{}
	signaled chan struct{}
	once     sync.Once
}

func (b *blockingNonceChain) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	b.once.Do(func() {
		b.signaled <- struct{}{}
		<-b.gate
	})
	return b.fakeChain.PendingNonce(ctx, addr)
}
