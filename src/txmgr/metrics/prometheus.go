// Package metrics - Prometheus-compatible metrics exporter
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// PrometheusMetrics implements Metrics with Prometheus-compatible export.
// Thread-safe via sync.RWMutex.
type PrometheusMetrics struct {
	mu sync.RWMutex

	rpcMetrics map[string]*methodStats

	attemptStats      *operationStats
	bumpCount         int64
	confirmationStats *operationStats

	totalRPCCalls      int64
	successfulRPCCalls int64
	failedRPCCalls     int64
	lastSuccessfulCall time.Time
}

type methodStats struct {
	totalCalls         int64
	successfulCalls    int64
	failedCalls        int64
	totalDuration      time.Duration
	minDuration        time.Duration
	maxDuration        time.Duration
	lastSuccessfulCall time.Time
	lastFailedCall     time.Time
}

// operationStats tracks a simple counter+duration pair for a manager-level event.
type operationStats struct {
	totalCalls      int64
	successfulCalls int64
	failedCalls     int64
	totalDuration   time.Duration
}

// NewPrometheusMetrics creates a new Prometheus-compatible metrics recorder.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		rpcMetrics:        make(map[string]*methodStats),
		attemptStats:      &operationStats{},
		confirmationStats: &operationStats{},
	}
}

func (p *PrometheusMetrics) RecordRPCCall(method string, duration time.Duration, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalRPCCalls++
	if success {
		p.successfulRPCCalls++
		p.lastSuccessfulCall = time.Now()
	} else {
		p.failedRPCCalls++
	}

	stats, exists := p.rpcMetrics[method]
	if !exists {
		stats = &methodStats{minDuration: duration, maxDuration: duration}
		p.rpcMetrics[method] = stats
	}

	stats.totalCalls++
	stats.totalDuration += duration

	if success {
		stats.successfulCalls++
		stats.lastSuccessfulCall = time.Now()
	} else {
		stats.failedCalls++
		stats.lastFailedCall = time.Now()
	}

	if duration < stats.minDuration || stats.minDuration == 0 {
		stats.minDuration = duration
	}
	if duration > stats.maxDuration {
		stats.maxDuration = duration
	}
}

// RecordAttempt records one broadcast of an attempt. chainID is accepted for
// parity with RecordConfirmation/RecordBump but not yet broken out per-chain.
func (p *PrometheusMetrics) RecordAttempt(chainID string, duration time.Duration, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attemptStats.totalCalls++
	p.attemptStats.totalDuration += duration
	if success {
		p.attemptStats.successfulCalls++
	} else {
		p.attemptStats.failedCalls++
	}
}

func (p *PrometheusMetrics) RecordBump(chainID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bumpCount++
}

func (p *PrometheusMetrics) RecordConfirmation(chainID string, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.confirmationStats.totalCalls++
	p.confirmationStats.successfulCalls++
	p.confirmationStats.totalDuration += duration
}

func (p *PrometheusMetrics) GetMetrics() *AggregatedMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var totalRPCDuration time.Duration
	for _, stats := range p.rpcMetrics {
		totalRPCDuration += stats.totalDuration
	}

	rpcSuccessRate := 0.0
	if p.totalRPCCalls > 0 {
		rpcSuccessRate = float64(p.successfulRPCCalls) / float64(p.totalRPCCalls)
	}

	avgRPCDuration := time.Duration(0)
	if p.totalRPCCalls > 0 {
		avgRPCDuration = totalRPCDuration / time.Duration(p.totalRPCCalls)
	}

	attemptSuccessRate := 0.0
	if p.attemptStats.totalCalls > 0 {
		attemptSuccessRate = float64(p.attemptStats.successfulCalls) / float64(p.attemptStats.totalCalls)
	}
	avgAttemptDuration := time.Duration(0)
	if p.attemptStats.totalCalls > 0 {
		avgAttemptDuration = p.attemptStats.totalDuration / time.Duration(p.attemptStats.totalCalls)
	}

	avgConfirmationDuration := time.Duration(0)
	if p.confirmationStats.totalCalls > 0 {
		avgConfirmationDuration = p.confirmationStats.totalDuration / time.Duration(p.confirmationStats.totalCalls)
	}

	return &AggregatedMetrics{
		TotalRPCCalls:      p.totalRPCCalls,
		SuccessfulRPCCalls: p.successfulRPCCalls,
		FailedRPCCalls:     p.failedRPCCalls,
		RPCSuccessRate:     rpcSuccessRate,
		AvgRPCDuration:     avgRPCDuration,
		LastSuccessfulCall: p.lastSuccessfulCall,

		TotalAttempts:      p.attemptStats.totalCalls,
		SuccessfulAttempts: p.attemptStats.successfulCalls,
		FailedAttempts:     p.attemptStats.failedCalls,
		AttemptSuccessRate: attemptSuccessRate,
		AvgAttemptDuration: avgAttemptDuration,

		TotalBumps: p.bumpCount,

		TotalConfirmations:      p.confirmationStats.totalCalls,
		AvgConfirmationDuration: avgConfirmationDuration,
	}
}

func (p *PrometheusMetrics) GetRPCMetrics(method string) *MethodMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats, exists := p.rpcMetrics[method]
	if !exists {
		return nil
	}

	successRate := 0.0
	if stats.totalCalls > 0 {
		successRate = float64(stats.successfulCalls) / float64(stats.totalCalls)
	}

	avgDuration := time.Duration(0)
	if stats.totalCalls > 0 {
		avgDuration = stats.totalDuration / time.Duration(stats.totalCalls)
	}

	return &MethodMetrics{
		Method:             method,
		TotalCalls:         stats.totalCalls,
		SuccessfulCalls:    stats.successfulCalls,
		FailedCalls:        stats.failedCalls,
		SuccessRate:        successRate,
		AvgDuration:        avgDuration,
		MinDuration:        stats.minDuration,
		MaxDuration:        stats.maxDuration,
		LastSuccessfulCall: stats.lastSuccessfulCall,
		LastFailedCall:     stats.lastFailedCall,
	}
}

// GetHealthStatus checks whether the RPC connection looks healthy.
//
// Degraded criteria:
//   - success rate < 90%
//   - average response time > 5 seconds
//   - no successful call in the last 5 minutes
func (p *PrometheusMetrics) GetHealthStatus() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthStatusLocked()
}

func (p *PrometheusMetrics) healthStatusLocked() HealthStatus {
	status := HealthStatus{CheckedAt: time.Now()}

	successRate := 0.0
	if p.totalRPCCalls > 0 {
		successRate = float64(p.successfulRPCCalls) / float64(p.totalRPCCalls)
	}

	var totalDuration time.Duration
	for _, stats := range p.rpcMetrics {
		totalDuration += stats.totalDuration
	}
	avgDuration := time.Duration(0)
	if p.totalRPCCalls > 0 {
		avgDuration = totalDuration / time.Duration(p.totalRPCCalls)
	}

	status.LowSuccessRate = successRate < 0.90 && p.totalRPCCalls > 0
	status.HighLatency = avgDuration > 5*time.Second
	status.NoRecentSuccess = !p.lastSuccessfulCall.IsZero() &&
		time.Since(p.lastSuccessfulCall) > 5*time.Minute

	if p.totalRPCCalls == 0 {
		status.Status = "OK"
		status.Message = "no RPC calls recorded yet"
		return status
	}

	if status.LowSuccessRate || status.HighLatency || status.NoRecentSuccess {
		status.Status = "Degraded"
		var messages []string
		if status.LowSuccessRate {
			messages = append(messages, fmt.Sprintf("low success rate (%.1f%%)", successRate*100))
		}
		if status.HighLatency {
			messages = append(messages, fmt.Sprintf("high latency (%v)", avgDuration))
		}
		if status.NoRecentSuccess {
			messages = append(messages, fmt.Sprintf("no recent success (%v ago)", time.Since(p.lastSuccessfulCall)))
		}
		status.Message = strings.Join(messages, ", ")
		return status
	}

	status.Status = "OK"
	status.Message = fmt.Sprintf("success rate: %.1f%%, avg latency: %v", successRate*100, avgDuration)
	return status
}

// Export returns metrics in Prometheus text format.
func (p *PrometheusMetrics) Export() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var sb strings.Builder

	sb.WriteString("# HELP txmgr_rpc_calls_total Total number of RPC calls\n")
	sb.WriteString("# TYPE txmgr_rpc_calls_total counter\n")
	for method, stats := range p.rpcMetrics {
		sb.WriteString(fmt.Sprintf("txmgr_rpc_calls_total{method=%q,status=\"success\"} %d\n", method, stats.successfulCalls))
		sb.WriteString(fmt.Sprintf("txmgr_rpc_calls_total{method=%q,status=\"failure\"} %d\n", method, stats.failedCalls))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP txmgr_rpc_duration_seconds RPC call duration in seconds\n")
	sb.WriteString("# TYPE txmgr_rpc_duration_seconds summary\n")
	for method, stats := range p.rpcMetrics {
		if stats.totalCalls > 0 {
			avgSec := stats.totalDuration.Seconds() / float64(stats.totalCalls)
			sb.WriteString(fmt.Sprintf("txmgr_rpc_duration_seconds{method=%q,quantile=\"avg\"} %.6f\n", method, avgSec))
			sb.WriteString(fmt.Sprintf("txmgr_rpc_duration_seconds{method=%q,quantile=\"min\"} %.6f\n", method, stats.minDuration.Seconds()))
			sb.WriteString(fmt.Sprintf("txmgr_rpc_duration_seconds{method=%q,quantile=\"max\"} %.6f\n", method, stats.maxDuration.Seconds()))
		}
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP txmgr_attempts_total Total number of attempts broadcast\n")
	sb.WriteString("# TYPE txmgr_attempts_total counter\n")
	sb.WriteString(fmt.Sprintf("txmgr_attempts_total{status=\"success\"} %d\n", p.attemptStats.successfulCalls))
	sb.WriteString(fmt.Sprintf("txmgr_attempts_total{status=\"failure\"} %d\n", p.attemptStats.failedCalls))
	sb.WriteString("\n")

	sb.WriteString("# HELP txmgr_fee_bumps_total Total number of fee bumps applied\n")
	sb.WriteString("# TYPE txmgr_fee_bumps_total counter\n")
	sb.WriteString(fmt.Sprintf("txmgr_fee_bumps_total %d\n", p.bumpCount))
	sb.WriteString("\n")

	sb.WriteString("# HELP txmgr_confirmations_total Total number of records reaching Done\n")
	sb.WriteString("# TYPE txmgr_confirmations_total counter\n")
	sb.WriteString(fmt.Sprintf("txmgr_confirmations_total %d\n", p.confirmationStats.totalCalls))
	sb.WriteString("\n")

	health := p.healthStatusLocked()
	healthValue := 0.0
	switch health.Status {
	case "OK":
		healthValue = 1.0
	case "Degraded":
		healthValue = 0.5
	}
	sb.WriteString("# HELP txmgr_health_status Health status (1=OK, 0.5=Degraded, 0=Down)\n")
	sb.WriteString("# TYPE txmgr_health_status gauge\n")
	sb.WriteString(fmt.Sprintf("txmgr_health_status %.1f\n", healthValue))

	return sb.String()
}

// Reset clears all recorded metrics.
func (p *PrometheusMetrics) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rpcMetrics = make(map[string]*methodStats)
	p.attemptStats = &operationStats{}
	p.confirmationStats = &operationStats{}
	p.bumpCount = 0
	p.totalRPCCalls = 0
	p.successfulRPCCalls = 0
	p.failedRPCCalls = 0
	p.lastSuccessfulCall = time.Time{}
}

var _ Metrics = (*PrometheusMetrics)(nil)
