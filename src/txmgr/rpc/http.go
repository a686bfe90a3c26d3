// Package rpc - HTTP JSON-RPC transport
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// HTTPClient implements Client over HTTP with round-robin failover across a
// fixed endpoint list and a per-endpoint rate limiter.
type HTTPClient struct {
	endpoints     []string
	currentIndex  int
	healthTracker HealthTracker
	httpClient    *http.Client
	requestID     atomic.Int64
	mu            sync.RWMutex

	limiters map[string]*rate.Limiter
}

// NewHTTPClient builds an HTTP RPC client with failover support.
//
// ratePerSecond <= 0 disables rate limiting; otherwise each endpoint gets
// its own limiter allowing ratePerSecond calls per second with a burst of 1.
func NewHTTPClient(endpoints []string, timeout time.Duration, healthTracker HealthTracker, ratePerSecond float64) (*HTTPClient, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}

	if healthTracker == nil {
		healthTracker = NewSimpleHealthTracker()
	}

	limiters := make(map[string]*rate.Limiter, len(endpoints))
	for _, ep := range endpoints {
		if ratePerSecond > 0 {
			limiters[ep] = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
		}
	}

	return &HTTPClient{
		endpoints:     endpoints,
		healthTracker: healthTracker,
		httpClient:    &http.Client{Timeout: timeout},
		limiters:      limiters,
	}, nil
}

// Call executes a single JSON-RPC method call with automatic failover.
func (c *HTTPClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	request := Request{Method: method, Params: params}

	var lastErr error
	attempted := make(map[string]bool)

	for len(attempted) < len(c.endpoints) {
		endpoint := c.getNextHealthyEndpoint(attempted)
		if endpoint == "" {
			break
		}
		attempted[endpoint] = true

		if err := c.wait(ctx, endpoint); err != nil {
			lastErr = err
			continue
		}

		result, err := c.callEndpoint(ctx, endpoint, request)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("all RPC endpoints failed, last error: %w", lastErr)
}

// Close releases idle HTTP connections.
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) wait(ctx context.Context, endpoint string) error {
	lim, ok := c.limiters[endpoint]
	if !ok {
		return nil
	}
	return lim.Wait(ctx)
}

func (c *HTTPClient) callEndpoint(ctx context.Context, endpoint string, request Request) (json.RawMessage, error) {
	startTime := time.Now()

	reqID := c.requestID.Add(1)
	rpcReq := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      reqID,
		"method":  request.Method,
		"params":  request.Params,
	}

	reqBody, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.healthTracker.RecordFailure(endpoint, err)
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.healthTracker.RecordFailure(endpoint, err)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.healthTracker.RecordFailure(endpoint, fmt.Errorf("HTTP %d", resp.StatusCode))
		return nil, fmt.Errorf("HTTP error: %d, body: %s", resp.StatusCode, string(body))
	}

	var rpcResp Response
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		c.healthTracker.RecordFailure(endpoint, err)
		return nil, fmt.Errorf("failed to parse JSON-RPC response: %w", err)
	}

	if rpcResp.Error != nil {
		c.healthTracker.RecordFailure(endpoint, rpcResp.Error)
		return nil, fmt.Errorf("JSON-RPC error: %s", rpcResp.Error.Message)
	}

	duration := time.Since(startTime).Milliseconds()
	c.healthTracker.RecordSuccess(endpoint, duration)

	return rpcResp.Result, nil
}

// getNextHealthyEndpoint selects the next healthy endpoint using round-robin + health check.
func (c *HTTPClient) getNextHealthyEndpoint(attempted map[string]bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < len(c.endpoints); i++ {
		idx := (c.currentIndex + i) % len(c.endpoints)
		endpoint := c.endpoints[idx]

		if attempted[endpoint] {
			continue
		}

		if c.healthTracker.IsHealthy(endpoint) {
			c.currentIndex = (idx + 1) % len(c.endpoints)
			return endpoint
		}
	}

	for _, endpoint := range c.endpoints {
		if !attempted[endpoint] {
			return endpoint
		}
	}

	return ""
}

var _ Client = (*HTTPClient)(nil)
