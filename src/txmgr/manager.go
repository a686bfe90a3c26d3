package txmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/arcsign/txmgr/chain"
	"github.com/arcsign/txmgr/classify"
	"github.com/arcsign/txmgr/confirm"
	"github.com/arcsign/txmgr/fee"
	"github.com/arcsign/txmgr/metrics"
	"github.com/arcsign/txmgr/oracle"
	"github.com/arcsign/txmgr/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// State is the submission state machine's current phase.
type State int

const (
	StateBegin State = iota
	StateSubmitting
	StateMined
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBegin:
		return "Begin"
	case StateSubmitting:
		return "Submitting"
	case StateMined:
		return "Mined"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// EventKind labels one entry on the Manager's Updates channel.
type EventKind int

const (
	EventSubmitting EventKind = iota
	EventAttemptBroadcast
	EventMined
	EventConfirming
	EventDone
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventSubmitting:
		return "Submitting"
	case EventAttemptBroadcast:
		return "AttemptBroadcast"
	case EventMined:
		return "Mined"
	case EventConfirming:
		return "Confirming"
	case EventDone:
		return "Done"
	case EventFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Event is one observation of the state machine's progress, pushed to
// Updates(). It is a supplementary observability channel, not a substitute
// for Submit's return value: this channel only ever reports on the one
// in-flight submission a Manager owns, never a queue or batch of them.
type Event struct {
	Kind   EventKind
	At     time.Time
	Record *Record
	Err    error
}

// Receipt is the caller-facing evidence that a transaction was mined and
// buried under the requested confirmation depth.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	BlockHash   common.Hash
	Status      uint64
	GasUsed     uint64
}

// Config holds the submission manager's tunables.
type Config struct {
	// PollInterval is the delay between poll ticks. Defaults to BlockTime.
	PollInterval time.Duration
	// TransactionMiningTimeout bounds how long the loop waits for a first receipt
	// before failing with MiningTimeout.
	TransactionMiningTimeout time.Duration
	// BlockTime is the chain's nominal block time; used as the PollInterval
	// default and the confirmation-wait cadence.
	BlockTime time.Duration
	// MinBumpFactor is the minimum multiplicative fee bump a resubmission
	// must clear, e.g. 1.10 for +10%.
	MinBumpFactor float64
	// ProviderRetryBudget bounds the transient collaborator errors tolerated
	// before they're escalated to ProviderUnavailable. The count resets when
	// Submit starts and after each newly persisted attempt, not after every
	// successful call.
	ProviderRetryBudget int
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:             12 * time.Second,
		TransactionMiningTimeout: 10 * time.Minute,
		BlockTime:                12 * time.Second,
		MinBumpFactor:            fee.DefaultMinBumpFactor,
		ProviderRetryBudget:      10,
	}
}

func (c Config) normalized() Config {
	if c.BlockTime <= 0 {
		c.BlockTime = 12 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = c.BlockTime
	}
	if c.TransactionMiningTimeout <= 0 {
		c.TransactionMiningTimeout = 10 * time.Minute
	}
	if c.MinBumpFactor <= 1.0 {
		c.MinBumpFactor = fee.DefaultMinBumpFactor
	}
	if c.ProviderRetryBudget <= 0 {
		c.ProviderRetryBudget = 10
	}
	return c
}

// Manager drives exactly one in-flight transaction for one sender through
// the submission state machine. The zero value is not usable; construct one
// with New or NewAndClear.
//
// Single-in-flight discipline: Submit takes an exclusive lock for its
// duration, so two concurrent Submit calls on the same Manager cannot both
// be in flight; the second fails with CodeBusy instead of interleaving with
// the first.
type Manager struct {
	sender    common.Address
	chainDesc ChainDescriptor
	chain     chain.Adapter
	oracle    oracle.Oracle
	store     store.Store
	policy    *fee.Policy
	waiter    *confirm.Waiter
	metrics   metrics.Metrics
	logger    *log.Logger
	cfg       Config

	mu               sync.Mutex
	providerFailures int
	state            State
	updates          chan Event
	heads            <-chan json.RawMessage
}

func newManager(sender common.Address, chainDesc ChainDescriptor, adapter chain.Adapter, orc oracle.Oracle, st store.Store, met metrics.Metrics, logger *log.Logger, cfg Config) *Manager {
	if met == nil {
		met = &metrics.NoOpMetrics{}
	}
	if logger == nil {
		logger = log.New(log.Writer(), "txmgr: ", log.LstdFlags)
	}
	cfg = cfg.normalized()
	return &Manager{
		sender:    sender,
		chainDesc: chainDesc,
		chain:     adapter,
		oracle:    orc,
		store:     st,
		policy:    fee.NewPolicy(cfg.MinBumpFactor),
		waiter:    confirm.NewWaiter(adapter),
		metrics:   met,
		logger:    logger,
		cfg:       cfg,
		state:     StateBegin,
		updates:   make(chan Event, 16),
	}
}

// New constructs a Manager for sender and runs the recovery
// step: if a Record is already persisted, it is driven to completion (a
// confirmed Receipt) or to a terminal failure before New returns. A freshly
// constructed Manager therefore never has a transaction outstanding — any
// non-nil Receipt returned here is evidence recovery surfaced a previously
// mined transaction, not the result of a new submission.
func New(ctx context.Context, sender common.Address, chainDesc ChainDescriptor, adapter chain.Adapter, orc oracle.Oracle, st store.Store, met metrics.Metrics, logger *log.Logger, cfg Config) (*Manager, *Receipt, error) {
	m := newManager(sender, chainDesc, adapter, orc, st, met, logger, cfg)

	dto, ok, err := st.Load(sender)
	if err != nil {
		return m, nil, NewTerminalError(CodePersistence, "load persisted record", err)
	}
	if !ok {
		return m, nil, nil
	}

	rec := fromStoreRecord(dto)
	m.logger.Printf("recovering in-flight record for %s at nonce %d (%d attempts)", sender.Hex(), rec.Nonce, len(rec.Attempts))
	m.emit(EventSubmitting, rec, nil)

	receipt, err := m.run(ctx, rec)
	return m, receipt, err
}

// NewAndClear is the "construct-with-clear" entry point: it discards any
// persisted record for sender before constructing, so a caller that knows
// its prior transaction is unrecoverable (e.g. after manual on-chain
// intervention) can force a clean start.
func NewAndClear(ctx context.Context, sender common.Address, chainDesc ChainDescriptor, adapter chain.Adapter, orc oracle.Oracle, st store.Store, met metrics.Metrics, logger *log.Logger, cfg Config) (*Manager, error) {
	if err := st.Clear(sender); err != nil {
		return nil, NewTerminalError(CodePersistence, "clear persisted record", err)
	}
	m := newManager(sender, chainDesc, adapter, orc, st, met, logger, cfg)
	return m, nil
}

// Updates returns the channel Manager pushes Event observations to. It is
// unbuffered beyond a small internal queue; a slow or absent reader causes
// events to be dropped (logged), never to block the submission loop.
func (m *Manager) Updates() <-chan Event {
	return m.updates
}

// Submit drives a new transaction for req from nonce acquisition through
// confirmation, returning once it is mined and buried under confirmations
// blocks, or a typed *Error on terminal failure.
//
// Submit honors ctx cancellation only between suspension points;
// on cancellation it returns Cancelled(Pending) and leaves any persisted
// record in place for a future Manager construction to resume.
func (m *Manager) Submit(ctx context.Context, req Request, confirmations uint64, priority Priority) (*Receipt, error) {
	if !m.mu.TryLock() {
		return nil, NewTerminalError(CodeBusy, "manager already has a submission in flight", nil)
	}
	defer m.mu.Unlock()

	if req.Value == nil {
		req.Value = big.NewInt(0)
	}
	m.providerFailures = 0

	for {
		nonce, err := m.chain.PendingNonce(ctx, req.From)
		if err != nil {
			if ferr := m.retryOrFail(ctx, err); ferr != nil {
				return nil, ferr
			}
			continue
		}

		quote, err := m.oracle.Quote(ctx, oraclePriority(priority), m.chainDesc.IsLegacy)
		if err != nil {
			if ferr := m.retryOrFail(ctx, err); ferr != nil {
				return nil, ferr
			}
			continue
		}

		var baseFee *big.Int
		if !m.chainDesc.IsLegacy {
			baseFee, err = m.chain.BaseFee(ctx)
			if err != nil {
				if ferr := m.retryOrFail(ctx, err); ferr != nil {
					return nil, ferr
				}
				continue
			}
		}

		fq, _ := m.policy.Next(m.chainDesc.IsLegacy, baseFee, nil, oracleToFeeQuote(quote))

		gasLimit, err := m.chain.EstimateGas(ctx, chain.CallMsg{From: req.From, To: req.To, Value: req.Value, Data: req.CallData})
		if err != nil {
			var ce *chain.Error
			if errors.As(err, &ce) && ce.Classification == classify.NonRetryable {
				// Nodes surface both reverts and insufficient balance at
				// eth_estimateGas; distinguish them the same way the send
				// path does.
				return nil, NewTerminalError(terminalSendCode(ce.Error()), ce.Error(), err)
			}
			if ferr := m.retryOrFail(ctx, err); ferr != nil {
				return nil, ferr
			}
			continue
		}

		hash, err := m.chain.Send(ctx, chain.SendParams{
			From: req.From, To: req.To, Value: req.Value, Data: req.CallData,
			Nonce: nonce, GasLimit: gasLimit, Fees: feesFromQuote(fq),
		})
		if err != nil {
			var ce *chain.Error
			if errors.As(err, &ce) {
				if ce.Signal == classify.SignalNonceTooLow || ce.Signal == classify.SignalAlreadyKnown {
					// Either the account advanced independently of us, or a
					// prior crashed run's identical send already landed (the
					// chain may be ahead of the record). Nothing was
					// persisted for this attempt; restart with a
					// refreshed nonce.
					m.logger.Printf("nonce %d unusable at first submission (signal %d), refreshing", nonce, ce.Signal)
					continue
				}
				if ce.Classification == classify.NonRetryable {
					return nil, NewTerminalError(terminalSendCode(ce.Error()), ce.Error(), err)
				}
			}
			if ferr := m.retryOrFail(ctx, err); ferr != nil {
				return nil, ferr
			}
			continue
		}

		rec := &Record{
			Request: req, Chain: m.chainDesc, Confirmations: confirmations, Priority: priority, Nonce: nonce,
			Attempts: []Attempt{{TxHash: hash, Fees: quoteToFeeQuote(fq), SubmittedAt: time.Now(), GasLimit: gasLimit}},
		}
		if err := m.persist(rec); err != nil {
			return nil, NewTerminalError(CodePersistence, "persist first attempt", err)
		}
		m.metrics.RecordAttempt(chainIDString(m.chainDesc.ChainID), 0, true)
		m.emit(EventSubmitting, rec, nil)

		m.providerFailures = 0
		return m.run(ctx, rec)
	}
}

// run drives rec from Submitting through Mined to Done or Failed. It is
// the shared tail of both Submit (a fresh record) and New's recovery path
// (a record loaded from the store).
func (m *Manager) run(ctx context.Context, rec *Record) (*Receipt, error) {
	m.state = StateSubmitting
	firstSubmittedAt := rec.Attempts[0].SubmittedAt
	var minedHash common.Hash

	for {
		switch m.state {
		case StateSubmitting:
			if receipt, hash, found := m.scanAttempts(ctx, rec); found {
				minedHash = hash
				m.logger.Printf("attempt %s mined in block %d", hash.Hex(), receipt.BlockNumber)
				m.emit(EventMined, rec, nil)
				m.state = StateMined
				continue
			}

			if time.Since(firstSubmittedAt) > m.cfg.TransactionMiningTimeout {
				return nil, m.terminalFailure(rec, NewTerminalError(CodeMiningTimeout, "no receipt observed within the mining timeout", nil))
			}

			if err := m.tryBump(ctx, rec); err != nil {
				return nil, m.terminalFailure(rec, err)
			}

		case StateMined:
			outcome, receipt, err := m.waiter.Check(ctx, minedHash, rec.Confirmations)
			if err != nil {
				if ferr := m.retryOrFail(ctx, err); ferr != nil {
					return nil, m.terminalFailure(rec, ferr)
				}
				continue
			}
			switch outcome {
			case confirm.Reorged:
				m.logger.Printf("receipt for %s vanished, returning to Submitting", minedHash.Hex())
				m.state = StateSubmitting
				continue
			case confirm.Confirmed:
				out := &Receipt{TxHash: minedHash, BlockNumber: receipt.BlockNumber, BlockHash: receipt.BlockHash, Status: receipt.Status, GasUsed: receipt.GasUsed}
				if err := m.clearRecord(rec.Request.From); err != nil {
					return nil, NewTerminalError(CodePersistence, "clear record after confirmation", err)
				}
				m.state = StateDone
				m.metrics.RecordConfirmation(chainIDString(m.chainDesc.ChainID), time.Since(firstSubmittedAt))
				m.emit(EventDone, rec, nil)
				return out, nil
			default:
				m.emit(EventConfirming, rec, nil)
			}
		}

		if !m.sleepTick(ctx) {
			return nil, NewTerminalError(CodeCancelledPending, "cancelled between ticks", ctx.Err())
		}
	}
}

// scanAttempts checks every attempt newest-first for a receipt. A transient
// read error on one attempt is swallowed — it yields no information, not a
// negative result — so a slow endpoint on one lookup doesn't mask a receipt
// found on another.
func (m *Manager) scanAttempts(ctx context.Context, rec *Record) (*chain.Receipt, common.Hash, bool) {
	for i := len(rec.Attempts) - 1; i >= 0; i-- {
		hash := rec.Attempts[i].TxHash
		receipt, ok, err := m.chain.GetReceipt(ctx, hash)
		if err != nil {
			continue
		}
		if ok {
			return receipt, hash, true
		}
	}
	return nil, common.Hash{}, false
}

// tryBump runs one resubmission cycle of the fee policy. It returns nil
// when the tick produced no terminal condition (whether that means a new
// attempt was broadcast, the candidate didn't clear the bump threshold, or
// a retryable collaborator error was already slept through), and a
// terminal *Error otherwise.
func (m *Manager) tryBump(ctx context.Context, rec *Record) error {
	quote, err := m.oracle.Quote(ctx, oraclePriority(rec.Priority), rec.Chain.IsLegacy)
	if err != nil {
		return m.retryOrFail(ctx, err)
	}

	var baseFee *big.Int
	if !rec.Chain.IsLegacy {
		baseFee, err = m.chain.BaseFee(ctx)
		if err != nil {
			return m.retryOrFail(ctx, err)
		}
	}

	previous := feeQuoteToQuote(rec.Latest().Fees)
	next, decision := m.policy.Next(rec.Chain.IsLegacy, baseFee, &previous, oracleToFeeQuote(quote))
	if decision == fee.HoldPrevious {
		return m.rebroadcastIfEvicted(ctx, rec)
	}

	hash, err := m.chain.Send(ctx, chain.SendParams{
		From: rec.Request.From, To: rec.Request.To, Value: rec.Request.Value, Data: rec.Request.CallData,
		Nonce: rec.Nonce, GasLimit: rec.Latest().GasLimit, Fees: feesFromQuote(next),
	})
	if err != nil {
		return m.handleBumpSendError(ctx, rec, err)
	}

	rec.Append(Attempt{TxHash: hash, Fees: quoteToFeeQuote(next), SubmittedAt: time.Now(), GasLimit: rec.Latest().GasLimit})
	if err := m.persist(rec); err != nil {
		return NewTerminalError(CodePersistence, "persist bumped attempt", err)
	}
	m.metrics.RecordBump(chainIDString(rec.Chain.ChainID))
	m.emit(EventAttemptBroadcast, rec, nil)
	m.providerFailures = 0
	return nil
}

// rebroadcastIfEvicted probes whether the current variant is still in the
// node's mempool on a tick where the fee policy held the previous attempt.
// A variant silently evicted (restart, pool pressure) would otherwise sit
// unmined forever at a fee the policy considers sufficient; re-sending the
// identical variant restores it without appending a new attempt. AlreadyKnown
// from the node means the probe raced a re-announcement and is fine.
func (m *Manager) rebroadcastIfEvicted(ctx context.Context, rec *Record) error {
	latest := rec.Latest()
	inPool, err := m.chain.TransactionInMempool(ctx, latest.TxHash)
	if err != nil || inPool {
		// An error here is "no information", not evidence of eviction.
		return nil
	}
	if _, ok, _ := m.chain.GetReceipt(ctx, latest.TxHash); ok {
		return nil
	}

	m.logger.Printf("attempt %s absent from mempool, re-broadcasting", latest.TxHash.Hex())
	_, err = m.chain.Send(ctx, chain.SendParams{
		From: rec.Request.From, To: rec.Request.To, Value: rec.Request.Value, Data: rec.Request.CallData,
		Nonce: rec.Nonce, GasLimit: latest.GasLimit, Fees: feesFromQuote(feeQuoteToQuote(latest.Fees)),
	})
	if err != nil {
		return m.handleBumpSendError(ctx, rec, err)
	}
	return nil
}

// handleBumpSendError classifies a failed resubmission.
func (m *Manager) handleBumpSendError(ctx context.Context, rec *Record, err error) error {
	var ce *chain.Error
	if !errors.As(err, &ce) {
		return m.retryOrFail(ctx, err)
	}

	switch ce.Signal {
	case classify.SignalAlreadyKnown:
		// The node already has this exact variant; nothing new to append.
		return nil
	case classify.SignalReplacementUnderpriced:
		// The candidate didn't clear the node's own minimum bump. The next
		// tick's oracle quote plus our own minimum bump will usually clear
		// it; log and let the next tick try again.
		m.logger.Printf("resubmission underpriced for nonce %d, retrying next tick", rec.Nonce)
		return nil
	case classify.SignalNonceTooLow:
		// The chain believes this nonce is already used. We already
		// confirmed none of our own attempts have a receipt this tick
		// (tryBump is only called after scanAttempts found nothing), so
		// this nonce was taken by a transaction outside this record.
		if receipt, hash, found := m.scanAttempts(ctx, rec); found {
			// Race: a receipt landed between the scan and this send.
			m.logger.Printf("attempt %s mined in block %d (observed after nonce-too-low)", hash.Hex(), receipt.BlockNumber)
			return nil
		}
		return NewTerminalError(CodeNonceOverwritten, "nonce advanced by a transaction outside this record", err)
	}

	if ce.Classification == classify.NonRetryable {
		return NewTerminalError(terminalSendCode(ce.Error()), ce.Error(), err)
	}
	return m.retryOrFail(ctx, err)
}

// retryOrFail accounts one transient collaborator failure and sleeps a
// poll interval before the caller retries. Once ProviderRetryBudget is
// exhausted it returns a terminal ProviderUnavailable instead of sleeping.
// A nil return means "slept, try again"; ctx cancellation during the sleep
// itself surfaces as Cancelled(Pending).
func (m *Manager) retryOrFail(ctx context.Context, err error) error {
	m.providerFailures++
	if m.providerFailures > m.cfg.ProviderRetryBudget {
		return NewTerminalError(CodeProviderUnavail, "provider retry budget exhausted", err)
	}
	if !m.sleepTick(ctx) {
		return NewTerminalError(CodeCancelledPending, "cancelled while retrying a transient error", ctx.Err())
	}
	return nil
}

// WatchHeads gives the poll loop a new-head notification feed (typically a
// WSClient "newHeads" subscription). A head arriving between ticks wakes
// the loop immediately instead of waiting out the full PollInterval, which
// tightens both receipt scanning and the confirmation wait; the interval
// timer stays as the fallback when the feed goes quiet. Call before Submit;
// a nil or absent feed leaves the loop purely interval-driven.
func (m *Manager) WatchHeads(heads <-chan json.RawMessage) {
	m.heads = heads
}

func (m *Manager) sleepTick(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(m.cfg.PollInterval):
		return true
	case _, ok := <-m.heads:
		if !ok {
			// Feed torn down (transport closed); fall back to the interval.
			m.heads = nil
		}
		return true
	}
}

// terminalFailure transitions to Failed, clearing the persisted record only
// when the transaction is provably not in flight: MiningTimeout,
// ProviderUnavailable, Cancelled, and PersistenceError all retain the
// record so a future construction can resume; logical and integrity
// failures clear it.
func (m *Manager) terminalFailure(rec *Record, err error) error {
	m.state = StateFailed
	if shouldClearOnTerminal(CodeOf(err)) {
		if cerr := m.clearRecord(rec.Request.From); cerr != nil {
			m.logger.Printf("failed to clear record after terminal error %v: %v", err, cerr)
		}
	}
	m.emit(EventFailed, rec, err)
	return err
}

func (m *Manager) persist(rec *Record) error {
	return m.store.Save(toStoreRecord(rec))
}

func (m *Manager) clearRecord(sender common.Address) error {
	return m.store.Clear(sender)
}

func (m *Manager) emit(kind EventKind, rec *Record, err error) {
	ev := Event{Kind: kind, At: time.Now(), Err: err}
	if rec != nil {
		cp := *rec
		cp.Attempts = append([]Attempt(nil), rec.Attempts...)
		ev.Record = &cp
	}
	select {
	case m.updates <- ev:
	default:
		m.logger.Printf("dropped %s event, no receiver on Updates()", kind)
	}
}

// shouldClearOnTerminal decides whether
// a terminal error leaves the persisted record in place for a future
// Manager construction to resume. Ambiguous-state codes (the transaction
// might still be in flight) retain the record; provably-not-in-flight
// codes clear it.
func shouldClearOnTerminal(code string) bool {
	switch code {
	case CodeMiningTimeout, CodeProviderUnavail, CodeCancelledPending, CodePersistence:
		return false
	default:
		return true
	}
}

// terminalSendCode maps a NonRetryable send-time error's message to a
// caller-facing code: an over-budget value/gas*fee against the account's
// balance surfaces as InsufficientFunds; a contract call that can never
// succeed surfaces as ExecutionRevert.
func terminalSendCode(msg string) string {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "revert") || strings.Contains(lower, "always failing") || strings.Contains(lower, "out of gas") {
		return CodeExecutionRevert
	}
	return CodeInsufficientFunds
}

func chainIDString(id uint64) string {
	return fmt.Sprintf("%d", id)
}

// --- conversions between the record/fee/oracle packages' near-identical
// shapes. Each subpackage defines its own Quote type to keep the import
// graph a tree (see fee/oracle package docs); these helpers are the seams.

func oraclePriority(p Priority) oracle.Priority {
	return oracle.Priority(p)
}

func oracleToFeeQuote(q oracle.Quote) fee.Quote {
	return fee.Quote{GasPrice: q.GasPrice, MaxFee: q.MaxFee, MaxPriorityFee: q.MaxPriorityFee}
}

func feeQuoteToQuote(q FeeQuote) fee.Quote {
	return fee.Quote{GasPrice: q.GasPrice, MaxFee: q.MaxFee, MaxPriorityFee: q.MaxPriorityFee}
}

func quoteToFeeQuote(q fee.Quote) FeeQuote {
	return FeeQuote{GasPrice: q.GasPrice, MaxFee: q.MaxFee, MaxPriorityFee: q.MaxPriorityFee}
}

func feesFromQuote(q fee.Quote) chain.Fees {
	return chain.Fees{GasPrice: q.GasPrice, MaxFee: q.MaxFee, MaxPriorityFee: q.MaxPriorityFee}
}

func bigToHex(v *big.Int) *hexutil.Big {
	if v == nil {
		return nil
	}
	hb := hexutil.Big(*v)
	return &hb
}

func hexToBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return nil
	}
	b := big.Int(*v)
	return &b
}

func toStoreRecord(rec *Record) *store.Record {
	attempts := make([]store.Attempt, len(rec.Attempts))
	for i, a := range rec.Attempts {
		attempts[i] = store.Attempt{
			TxHash:         a.TxHash,
			GasPrice:       bigToHex(a.Fees.GasPrice),
			MaxFee:         bigToHex(a.Fees.MaxFee),
			MaxPriorityFee: bigToHex(a.Fees.MaxPriorityFee),
			SubmittedAt:    a.SubmittedAt,
			GasLimit:       a.GasLimit,
		}
	}
	return &store.Record{
		From:          rec.Request.From,
		To:            rec.Request.To,
		Value:         bigToHex(rec.Request.Value),
		CallData:      hexutil.Bytes(rec.Request.CallData),
		ChainID:       rec.Chain.ChainID,
		IsLegacy:      rec.Chain.IsLegacy,
		Confirmations: rec.Confirmations,
		Priority:      int(rec.Priority),
		Nonce:         rec.Nonce,
		Attempts:      attempts,
	}
}

func fromStoreRecord(dto *store.Record) *Record {
	attempts := make([]Attempt, len(dto.Attempts))
	for i, a := range dto.Attempts {
		attempts[i] = Attempt{
			TxHash:      a.TxHash,
			Fees:        FeeQuote{GasPrice: hexToBig(a.GasPrice), MaxFee: hexToBig(a.MaxFee), MaxPriorityFee: hexToBig(a.MaxPriorityFee)},
			SubmittedAt: a.SubmittedAt,
			GasLimit:    a.GasLimit,
		}
	}
	return &Record{
		Request: Request{
			From:     dto.From,
			To:       dto.To,
			Value:    hexToBig(dto.Value),
			CallData: []byte(dto.CallData),
		},
		Chain:         ChainDescriptor{ChainID: dto.ChainID, IsLegacy: dto.IsLegacy},
		Confirmations: dto.Confirmations,
		Priority:      Priority(dto.Priority),
		Nonce:         dto.Nonce,
		Attempts:      attempts,
	}
}
