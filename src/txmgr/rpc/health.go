// Package rpc - endpoint health tracking
package rpc

import (
	"sync"
	"time"
)

// SimpleHealthTracker implements HealthTracker with a per-endpoint circuit
// breaker. The circuit opens after failureThreshold consecutive failures and
// half-opens once circuitOpenWindow has elapsed since the last failure; it
// closes again after successThreshold consecutive successes.
type SimpleHealthTracker struct {
	mu    sync.RWMutex
	stats map[string]*endpointState

	failureThreshold  int
	successThreshold  int
	circuitOpenWindow time.Duration
}

type endpointState struct {
	EndpointHealth

	consecFailures  int
	consecSuccesses int
}

// NewSimpleHealthTracker returns a tracker with the default breaker
// thresholds: open after 3 consecutive failures, close after 2 consecutive
// successes, retry an open circuit after 30 seconds.
func NewSimpleHealthTracker() *SimpleHealthTracker {
	return &SimpleHealthTracker{
		stats:             make(map[string]*endpointState),
		failureThreshold:  3,
		successThreshold:  2,
		circuitOpenWindow: 30 * time.Second,
	}
}

// RecordSuccess records a successful RPC call against endpoint.
func (t *SimpleHealthTracker) RecordSuccess(endpoint string, durationMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(endpoint)
	s.TotalCalls++
	s.SuccessfulCalls++
	s.LastSuccess = time.Now().Unix()
	s.consecSuccesses++
	s.consecFailures = 0

	// Weighted rolling average keeps one slow call from dominating.
	if s.AvgLatencyMs == 0 {
		s.AvgLatencyMs = durationMs
	} else {
		s.AvgLatencyMs = (s.AvgLatencyMs*9 + durationMs) / 10
	}

	if s.CircuitOpen && s.consecSuccesses >= t.successThreshold {
		s.CircuitOpen = false
	}
}

// RecordFailure records a failed RPC call against endpoint.
func (t *SimpleHealthTracker) RecordFailure(endpoint string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(endpoint)
	s.TotalCalls++
	s.FailedCalls++
	s.LastFailure = time.Now().Unix()
	s.consecFailures++
	s.consecSuccesses = 0

	if s.consecFailures >= t.failureThreshold {
		s.CircuitOpen = true
	}
}

// IsHealthy reports whether endpoint's circuit is closed, or open long
// enough that a probe call is allowed through.
func (t *SimpleHealthTracker) IsHealthy(endpoint string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.healthyLocked(endpoint)
}

func (t *SimpleHealthTracker) healthyLocked(endpoint string) bool {
	s, exists := t.stats[endpoint]
	if !exists {
		return true
	}
	if s.CircuitOpen {
		sinceFailure := time.Now().Unix() - s.LastFailure
		return sinceFailure >= int64(t.circuitOpenWindow.Seconds())
	}
	return true
}

// GetBestEndpoint returns the healthiest endpoint from endpoints, scoring by
// success rate and average latency. An endpoint with no history wins
// outright; with every circuit open, the first endpoint is returned so the
// caller still has something to probe.
func (t *SimpleHealthTracker) GetBestEndpoint(endpoints []string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best string
	bestScore := -1.0

	for _, endpoint := range endpoints {
		if !t.healthyLocked(endpoint) {
			continue
		}
		s, exists := t.stats[endpoint]
		if !exists {
			return endpoint
		}

		successRate := float64(s.SuccessfulCalls) / float64(s.TotalCalls)
		latencyFactor := 1.0 / (float64(s.AvgLatencyMs) + 1.0)
		score := successRate*0.7 + latencyFactor*0.3

		if score > bestScore {
			bestScore = score
			best = endpoint
		}
	}

	if best == "" && len(endpoints) > 0 {
		return endpoints[0]
	}
	return best
}

// Reset discards all history for endpoint, closing its circuit.
func (t *SimpleHealthTracker) Reset(endpoint string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.stats, endpoint)
}

// GetHealth returns a snapshot of endpoint's call history.
func (t *SimpleHealthTracker) GetHealth(endpoint string) *EndpointHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, exists := t.stats[endpoint]
	if !exists {
		return &EndpointHealth{Endpoint: endpoint}
	}
	snapshot := s.EndpointHealth
	return &snapshot
}

// state returns the mutable state for endpoint, creating it on first use.
// Callers must hold the write lock.
func (t *SimpleHealthTracker) state(endpoint string) *endpointState {
	s, exists := t.stats[endpoint]
	if !exists {
		s = &endpointState{EndpointHealth: EndpointHealth{Endpoint: endpoint}}
		t.stats[endpoint] = s
	}
	return s
}

var _ HealthTracker = (*SimpleHealthTracker)(nil)
