package rpc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthTracker_OpensAfterConsecutiveFailures(t *testing.T) {
	tr := NewSimpleHealthTracker()
	ep := "http://node-a:8545"

	tr.RecordFailure(ep, errors.New("connection refused"))
	tr.RecordFailure(ep, errors.New("connection refused"))
	assert.True(t, tr.IsHealthy(ep), "two failures must not open the circuit")

	tr.RecordFailure(ep, errors.New("connection refused"))
	assert.False(t, tr.IsHealthy(ep), "three consecutive failures must open the circuit")
}

func TestHealthTracker_SuccessResetsFailureStreak(t *testing.T) {
	tr := NewSimpleHealthTracker()
	ep := "http://node-a:8545"

	tr.RecordFailure(ep, errors.New("timeout"))
	tr.RecordFailure(ep, errors.New("timeout"))
	tr.RecordSuccess(ep, 10)
	tr.RecordFailure(ep, errors.New("timeout"))
	tr.RecordFailure(ep, errors.New("timeout"))

	assert.True(t, tr.IsHealthy(ep), "an intervening success must reset the consecutive-failure count")
}

func TestHealthTracker_ClosesAfterConsecutiveSuccesses(t *testing.T) {
	tr := NewSimpleHealthTracker()
	tr.circuitOpenWindow = 0 // half-open immediately
	ep := "http://node-a:8545"

	for i := 0; i < 3; i++ {
		tr.RecordFailure(ep, errors.New("timeout"))
	}
	tr.RecordSuccess(ep, 10)
	tr.RecordSuccess(ep, 10)

	h := tr.GetHealth(ep)
	assert.False(t, h.CircuitOpen, "two consecutive successes must close the circuit")
}

func TestHealthTracker_GetBestEndpointPrefersUntried(t *testing.T) {
	tr := NewSimpleHealthTracker()
	tr.RecordSuccess("http://node-a:8545", 50)

	best := tr.GetBestEndpoint([]string{"http://node-a:8545", "http://node-b:8545"})
	assert.Equal(t, "http://node-b:8545", best, "an endpoint with no history should be probed first")
}

func TestHealthTracker_GetBestEndpointFallsBackWhenAllOpen(t *testing.T) {
	tr := NewSimpleHealthTracker()
	eps := []string{"http://node-a:8545", "http://node-b:8545"}
	for _, ep := range eps {
		for i := 0; i < 3; i++ {
			tr.RecordFailure(ep, errors.New("timeout"))
		}
	}

	assert.Equal(t, eps[0], tr.GetBestEndpoint(eps))
}

func TestHealthTracker_ResetClearsHistory(t *testing.T) {
	tr := NewSimpleHealthTracker()
	ep := "http://node-a:8545"
	for i := 0; i < 3; i++ {
		tr.RecordFailure(ep, errors.New("timeout"))
	}
	tr.Reset(ep)

	assert.True(t, tr.IsHealthy(ep))
	assert.Equal(t, int64(0), tr.GetHealth(ep).TotalCalls)
}
