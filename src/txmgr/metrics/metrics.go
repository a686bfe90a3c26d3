// Package metrics provides observability for the submission manager: RPC
// call health plus the lifecycle events of the state machine itself (fee
// bumps, attempts broadcast, confirmations reached).
package metrics

import (
	"time"
)

// Metrics defines the interface for recording and querying submission
// manager metrics.
//
// Contract:
//   - every Record* method MUST be safe to call concurrently
//   - GetHealthStatus MUST report Degraded once the configured thresholds
//     are exceeded
//   - Export MUST return Prometheus-compatible text
type Metrics interface {
	// RecordRPCCall records a single JSON-RPC call with its duration and
	// success status.
	RecordRPCCall(method string, duration time.Duration, success bool)

	// RecordAttempt records one submit (send) of an attempt for chainID.
	RecordAttempt(chainID string, duration time.Duration, success bool)

	// RecordBump records one fee-bump resubmission (a new attempt at the same nonce).
	RecordBump(chainID string)

	// RecordConfirmation records that a record reached Done, with
	// duration measured from the first attempt's SubmittedAt.
	RecordConfirmation(chainID string, duration time.Duration)

	// GetMetrics returns aggregated metrics for all recorded operations.
	GetMetrics() *AggregatedMetrics

	// GetRPCMetrics returns aggregated metrics for a specific RPC method,
	// or nil if no data exists for it.
	GetRPCMetrics(method string) *MethodMetrics

	// GetHealthStatus reports OK, Degraded, or Down based on RPC call
	// history.
	//
	// Degraded criteria:
	//   - success rate < 90%
	//   - average response time > 5 seconds
	//   - no successful call in the last 5 minutes
	GetHealthStatus() HealthStatus

	// Export returns metrics in Prometheus text format.
	Export() string

	// Reset clears all recorded metrics.
	Reset()
}

// AggregatedMetrics contains aggregated metrics across all operations.
type AggregatedMetrics struct {
	TotalRPCCalls      int64
	SuccessfulRPCCalls int64
	FailedRPCCalls     int64
	RPCSuccessRate     float64
	AvgRPCDuration     time.Duration
	LastSuccessfulCall time.Time

	TotalAttempts      int64
	SuccessfulAttempts int64
	FailedAttempts     int64
	AttemptSuccessRate float64
	AvgAttemptDuration time.Duration

	TotalBumps int64

	TotalConfirmations      int64
	AvgConfirmationDuration time.Duration
}

// MethodMetrics contains metrics for a specific RPC method.
type MethodMetrics struct {
	Method             string
	TotalCalls         int64
	SuccessfulCalls    int64
	FailedCalls        int64
	SuccessRate        float64
	AvgDuration        time.Duration
	MinDuration        time.Duration
	MaxDuration        time.Duration
	LastSuccessfulCall time.Time
	LastFailedCall     time.Time
}

// HealthStatus represents the health of the chain RPC connection.
type HealthStatus struct {
	Status    string // "OK", "Degraded", or "Down"
	Message   string
	CheckedAt time.Time

	LowSuccessRate  bool
	HighLatency     bool
	NoRecentSuccess bool
}

func (h *HealthStatus) IsHealthy() bool {
	return h.Status == "OK"
}

func (h *HealthStatus) IsDegraded() bool {
	return h.Status == "Degraded"
}

func (h *HealthStatus) IsDown() bool {
	return h.Status == "Down"
}

// NoOpMetrics discards everything. The default when a caller constructs a
// manager without a metrics.Metrics.
type NoOpMetrics struct{}

func (n *NoOpMetrics) RecordRPCCall(method string, duration time.Duration, success bool)    {}
func (n *NoOpMetrics) RecordAttempt(chainID string, duration time.Duration, success bool)   {}
func (n *NoOpMetrics) RecordBump(chainID string)                                            {}
func (n *NoOpMetrics) RecordConfirmation(chainID string, duration time.Duration)            {}
func (n *NoOpMetrics) GetMetrics() *AggregatedMetrics                                        { return &AggregatedMetrics{} }
func (n *NoOpMetrics) GetRPCMetrics(method string) *MethodMetrics                            { return nil }
func (n *NoOpMetrics) GetHealthStatus() HealthStatus {
	return HealthStatus{Status: "OK", Message: "metrics disabled", CheckedAt: time.Now()}
}
func (n *NoOpMetrics) Export() string { return "" }
func (n *NoOpMetrics) Reset()         {}

var _ Metrics = (*NoOpMetrics)(nil)
