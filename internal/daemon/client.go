package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Client connects to the serving process over its Unix socket.
type Client struct {
	socketPath string
	timeout    time.Duration
	clientID   string
	requestID  atomic.Uint64
}

// NewClient creates a daemon client. clientID is the admission
// identity sent with every call; empty means the server default.
func NewClient(cfg Config, clientID string) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    timeout,
		clientID:   clientID,
	}
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var result PingResult
	if err := c.call(ctx, MethodPing, nil, &result); err != nil {
		return err
	}
	if !result.Pong {
		return fmt.Errorf("unexpected ping response")
	}
	return nil
}

// Search runs a search through the daemon.
func (c *Client) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	params := SearchParams{Query: query, K: k, ClientID: c.clientID}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	var results []SearchResult
	if err := c.call(ctx, MethodSearch, params, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Resync queues a resync run.
func (c *Client) Resync(ctx context.Context, full bool) error {
	var result ResyncResult
	return c.call(ctx, MethodResync, ResyncParams{Full: full, ClientID: c.clientID}, &result)
}

// Status retrieves daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var status StatusResult
	if err := c.call(ctx, MethodStatus, StatusParams{ClientID: c.clientID}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn, nil
}

// call runs one request-response exchange on a fresh connection.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	conn, err := c.connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID(),
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("failed to receive response: %w", err)
	}
	if resp.Error != nil {
		return &RPCError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if result == nil {
		return nil
	}

	// Result came through as loosely-typed JSON; re-marshal into the
	// caller's type.
	data, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

func (c *Client) nextID() string {
	return fmt.Sprintf("req-%d", c.requestID.Add(1))
}

// RPCError is a server-side failure surfaced to the client with its
// protocol code intact, so callers can tell rate limiting from an
// unbuilt index.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("daemon error %d: %s", e.Code, e.Message)
}
