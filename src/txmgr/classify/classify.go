// Package classify turns a raw JSON-RPC error message into a classification
// and, where the message carries one, an internal signal the state machine
// acts on directly (replacement underpriced, already known, nonce too low).
// Error string formats are not standardized across clients; the patterns
// below are the ones geth, Erigon, and Besu actually emit.
package classify

import "strings"

// Classification is the retry disposition of a raw RPC error.
type Classification int

const (
	// Retryable errors are transient; the caller should retry after a delay.
	Retryable Classification = iota
	// NonRetryable errors are terminal.
	NonRetryable
)

// Signal is an internal meaning attached to specific NonRetryable (or
// sometimes Retryable) messages that the state machine branches on, rather
// than surfacing to the caller of Submit.
type Signal int

const (
	SignalNone Signal = iota
	// SignalAlreadyKnown: the node already has this exact transaction in its
	// mempool (same hash). Treat as a successful submit, not a failure.
	SignalAlreadyKnown
	// SignalReplacementUnderpriced: a bump attempt's fee did not clear the
	// node's minimum replacement bump over the attempt it is replacing.
	SignalReplacementUnderpriced
	// SignalNonceTooLow: the node believes this nonce has already been
	// mined. Usually means the pending attempt landed; confirm by receipt.
	SignalNonceTooLow
)

// Result is the outcome of classifying one error message.
type Result struct {
	Classification Classification
	Signal         Signal
}

// patterns maps a lowercase substring to the Result it signals. Longest/most
// specific patterns are checked first since "nonce too low" would otherwise
// also match a generic "nonce" substring search.
var patterns = []struct {
	substr string
	result Result
}{
	{"already known", Result{NonRetryable, SignalAlreadyKnown}},
	{"alreadyknown", Result{NonRetryable, SignalAlreadyKnown}},
	{"known transaction", Result{NonRetryable, SignalAlreadyKnown}},

	{"replacement transaction underpriced", Result{NonRetryable, SignalReplacementUnderpriced}},
	{"replacement underpriced", Result{NonRetryable, SignalReplacementUnderpriced}},

	{"nonce too low", Result{NonRetryable, SignalNonceTooLow}},
	{"nonce too small", Result{NonRetryable, SignalNonceTooLow}},
	{"invalid nonce", Result{NonRetryable, SignalNonceTooLow}},

	{"insufficient funds", Result{NonRetryable, SignalNone}},
	{"insufficient balance", Result{NonRetryable, SignalNone}},
	{"gas required exceeds allowance", Result{NonRetryable, SignalNone}},

	{"execution reverted", Result{NonRetryable, SignalNone}},
	{"always failing transaction", Result{NonRetryable, SignalNone}},
	{"out of gas", Result{NonRetryable, SignalNone}},

	{"intrinsic gas too low", Result{NonRetryable, SignalNone}},
	{"transaction underpriced", Result{NonRetryable, SignalNone}},

	{"rate limit", Result{Retryable, SignalNone}},
	{"timeout", Result{Retryable, SignalNone}},
	{"connection refused", Result{Retryable, SignalNone}},
	{"EOF", Result{Retryable, SignalNone}},
	{"too many requests", Result{Retryable, SignalNone}},
	{"service unavailable", Result{Retryable, SignalNone}},
}

// Classify maps msg to a Result. Unrecognized messages default to
// Retryable/SignalNone: a provider returning a message this package has
// never seen is treated as a transient provider hiccup rather than assumed
// terminal, since a false NonRetryable classification abandons a
// transaction that might have succeeded with a retry.
func Classify(msg string) Result {
	lower := strings.ToLower(msg)
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p.substr)) {
			return p.result
		}
	}
	return Result{Retryable, SignalNone}
}
