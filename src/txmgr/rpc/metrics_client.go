// Package rpc - metrics-recording Client wrapper
package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arcsign/txmgr/metrics"
)

// MetricsClient wraps a Client and records call duration and success/failure
// for every method through a metrics.Metrics sink.
type MetricsClient struct {
	client  Client
	metrics metrics.Metrics
}

// NewMetricsClient wraps client so every call is also recorded to m.
func NewMetricsClient(client Client, m metrics.Metrics) *MetricsClient {
	return &MetricsClient{client: client, metrics: m}
}

func (m *MetricsClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	start := time.Now()
	result, err := m.client.Call(ctx, method, params)
	m.metrics.RecordRPCCall(method, time.Since(start), err == nil)
	return result, err
}

func (m *MetricsClient) Close() error {
	return m.client.Close()
}

var _ Client = (*MetricsClient)(nil)
