package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Client is the CLI side of the daemon's Unix-socket RPC: one
// connection per call, newline-delimited JSON both ways.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient builds a client for the daemon at cfg.SocketPath.
func NewClient(cfg Config) *Client {
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    cfg.Timeout,
	}
}

// Connect dials the daemon socket.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn, nil
}

// IsRunning reports whether anything is accepting connections on the
// socket. The CLI uses it to pick daemon search over local search.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// call runs one request/response exchange: dial, bound by the earlier of
// the client timeout and ctx's deadline, send, receive. Every RPC method
// goes through here.
func (c *Client) call(ctx context.Context, method string, params any) (*Response, error) {
	conn, err := c.Connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      fmt.Sprintf("req-%d", c.requestID.Add(1)),
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to receive response: %w", err)
	}
	return &resp, nil
}

// decodeResult re-marshals a response's untyped Result into out. The
// result arrived as map[string]any from the generic JSON decode; going
// back through the marshaller is the plain way to re-type it.
func decodeResult(resp *Response, out any) error {
	resultData, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(resultData, out); err != nil {
		return fmt.Errorf("failed to decode results: %w", err)
	}
	return nil
}

// Ping verifies the daemon answers RPC, not just accepts connections.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.call(ctx, MethodPing, nil)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("ping failed: %s", resp.Error.Message)
	}
	return nil
}

// Search runs a search on the daemon's warm pipeline for params.RootPath.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	resp, err := c.call(ctx, MethodSearch, params)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("search failed: %s (code: %d)", resp.Error.Message, resp.Error.Code)
	}

	var results []SearchResult
	if err := decodeResult(resp, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Status fetches the daemon's status snapshot.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	resp, err := c.call(ctx, MethodStatus, nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("status failed: %s", resp.Error.Message)
	}

	var status StatusResult
	if err := decodeResult(resp, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
