// Package rpc - in-memory Client for tests
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockClient is a scripted Client for unit tests: callers preload responses
// or errors per method and assert on call counts afterward.
type MockClient struct {
	mu            sync.RWMutex
	responses     map[string]interface{}
	errors        map[string]error
	callCount     map[string]int
	notifications chan json.RawMessage
}

// NewMockClient returns an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		responses: make(map[string]interface{}),
		errors:    make(map[string]error),
		callCount: make(map[string]int),
	}
}

func (m *MockClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount[method]++

	if err, exists := m.errors[method]; exists {
		return nil, err
	}

	response, exists := m.responses[method]
	if !exists {
		return nil, fmt.Errorf("no mock response configured for method: %s", method)
	}

	data, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mock response: %w", err)
	}

	return json.RawMessage(data), nil
}

// Subscribe returns a channel the test can push scripted notifications
// into via PushNotification.
func (m *MockClient) Subscribe(ctx context.Context, method string, params interface{}) (<-chan json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notifications == nil {
		m.notifications = make(chan json.RawMessage, 16)
	}
	return m.notifications, nil
}

// PushNotification delivers one scripted push notification to the channel
// Subscribe returned.
func (m *MockClient) PushNotification(msg json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notifications != nil {
		m.notifications <- msg
	}
}

// SetResponse configures the value Call returns for method.
func (m *MockClient) SetResponse(method string, response interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[method] = response
}

// SetError configures the error Call returns for method.
func (m *MockClient) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[method] = err
}

// CallCount returns how many times method has been called.
func (m *MockClient) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount[method]
}

func (m *MockClient) Close() error {
	return nil
}

// Reset clears all configured responses, errors, and call counts.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = make(map[string]interface{})
	m.errors = make(map[string]error)
	m.callCount = make(map[string]int)
}

var _ Client = (*MockClient)(nil)
var _ Subscriber = (*MockClient)(nil)
