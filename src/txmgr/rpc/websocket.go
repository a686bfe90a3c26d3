// Package rpc - WebSocket JSON-RPC transport
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient implements Client over a WebSocket connection and additionally
// supports eth_subscribe-style push notifications; a newHeads subscription
// handed to Manager.WatchHeads wakes the poll loop ahead of its interval
// timer.
type WSClient struct {
	url           string
	conn          *websocket.Conn
	connMu        sync.RWMutex
	requestID     atomic.Int64
	pendingCalls  map[int64]chan *Response
	pendingMu     sync.RWMutex
	subscriptions map[string]chan json.RawMessage
	subsMu        sync.RWMutex
	reconnecting  atomic.Bool
	closed        atomic.Bool
	closeChan     chan struct{}

	maxReconnectInterval time.Duration
	reconnectBackoff     time.Duration
}

// NewWSClient dials url and starts the background read loop.
func NewWSClient(url string) (*WSClient, error) {
	client := &WSClient{
		url:                  url,
		pendingCalls:         make(map[int64]chan *Response),
		subscriptions:        make(map[string]chan json.RawMessage),
		closeChan:            make(chan struct{}),
		maxReconnectInterval: 60 * time.Second,
		reconnectBackoff:     1 * time.Second,
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	go client.readLoop()

	return client, nil
}

// Call executes a single JSON-RPC method call via the open connection.
func (c *WSClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("WebSocket client is closed")
	}

	reqID := c.requestID.Add(1)

	respChan := make(chan *Response, 1)
	c.pendingMu.Lock()
	c.pendingCalls[reqID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pendingCalls, reqID)
		c.pendingMu.Unlock()
	}()

	rpcReq := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      reqID,
		"method":  method,
		"params":  params,
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return nil, fmt.Errorf("WebSocket not connected")
	}

	if err := conn.WriteJSON(rpcReq); err != nil {
		go c.reconnect()
		return nil, fmt.Errorf("failed to send WebSocket request: %w", err)
	}

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, fmt.Errorf("JSON-RPC error: %s", resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closeChan:
		return nil, fmt.Errorf("WebSocket client closed")
	}
}

// Subscribe issues an eth_subscribe-style call and returns the channel that
// receives its push notifications. The submission manager feeds a
// "newHeads" subscription into its poll loop via Manager.WatchHeads.
func (c *WSClient) Subscribe(ctx context.Context, method string, params interface{}) (<-chan json.RawMessage, error) {
	result, err := c.Call(ctx, method, params)
	if err != nil {
		return nil, fmt.Errorf("subscription failed: %w", err)
	}

	var subID string
	if err := json.Unmarshal(result, &subID); err != nil {
		return nil, fmt.Errorf("failed to parse subscription ID: %w", err)
	}

	notifChan := make(chan json.RawMessage, 100)

	c.subsMu.Lock()
	c.subscriptions[subID] = notifChan
	c.subsMu.Unlock()

	return notifChan, nil
}

// Close tears down the connection and stops the read loop.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.closeChan)

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *WSClient) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	return nil
}

// reconnect retries with exponential backoff up to maxReconnectInterval.
func (c *WSClient) reconnect() {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer c.reconnecting.Store(false)

	backoff := c.reconnectBackoff

	for {
		select {
		case <-c.closeChan:
			return
		case <-time.After(backoff):
			if err := c.connect(); err != nil {
				backoff *= 2
				if backoff > c.maxReconnectInterval {
					backoff = c.maxReconnectInterval
				}
				continue
			}
			go c.readLoop()
			return
		}
	}
}

func (c *WSClient) readLoop() {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return
	}

	for {
		select {
		case <-c.closeChan:
			return
		default:
			var msg json.RawMessage
			if err := conn.ReadJSON(&msg); err != nil {
				go c.reconnect()
				return
			}

			var partial struct {
				ID     *int64          `json:"id"`
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			}
			if err := json.Unmarshal(msg, &partial); err != nil {
				continue
			}

			if partial.ID != nil {
				var resp Response
				if err := json.Unmarshal(msg, &resp); err != nil {
					continue
				}

				c.pendingMu.RLock()
				respChan, exists := c.pendingCalls[*partial.ID]
				c.pendingMu.RUnlock()

				if exists {
					respChan <- &resp
				}
			} else if partial.Method != "" {
				var notification struct {
					Params struct {
						Subscription string          `json:"subscription"`
						Result       json.RawMessage `json:"result"`
					} `json:"params"`
				}
				if err := json.Unmarshal(msg, &notification); err != nil {
					continue
				}

				c.subsMu.RLock()
				notifChan, exists := c.subscriptions[notification.Params.Subscription]
				c.subsMu.RUnlock()

				if exists {
					select {
					case notifChan <- notification.Params.Result:
					default:
					}
				}
			}
		}
	}
}

var _ Client = (*WSClient)(nil)
var _ Subscriber = (*WSClient)(nil)
