// Package daemon queries a peer-to-peer daemon's JSON-RPC interface for its
// current connections.
package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// DefaultTimeout bounds one get_connections call.
const DefaultTimeout = 10 * time.Second

// ErrRPC is wrapped by errors the daemon reports inside a JSON-RPC response.
var ErrRPC = errors.New("daemon rpc error")

// Connection is one peer connection as reported by the daemon.
type Connection struct {
	Address string `json:"ip"`
	Port    Port   `json:"port"`
	State   string `json:"state"`
}

// Port decodes a port reported either as a JSON number or a string.
type Port int

// UnmarshalJSON accepts 18080, "18080" and null; an empty string or null
// leaves the port at zero.
func (p *Port) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid port %s: %w", data, err)
	}
	*p = Port(n)
	return nil
}

// Source yields the daemon's current peer connections.
type Source interface {
	GetConnections(ctx context.Context) ([]Connection, error)
}

// Client talks to http://{host}:{port}/json_rpc.
type Client struct {
	endpoint string
	client   *http.Client
	log      logr.Logger
}

// NewClient returns a client for the daemon at host:port. A zero timeout
// selects DefaultTimeout.
func NewClient(log logr.Logger, host string, port int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: fmt.Sprintf("http://%s/json_rpc", net.JoinHostPort(host, strconv.Itoa(port))),
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

// Endpoint returns the JSON-RPC URL.
func (c *Client) Endpoint() string { return c.endpoint }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type connectionsResponse struct {
	Result *struct {
		Connections []Connection `json:"connections"`
		Status      string       `json:"status"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

// GetConnections calls get_connections. Any transport failure, non-2xx
// status or malformed payload is returned as an error; callers decide how to
// degrade.
func (c *Client) GetConnections(ctx context.Context) ([]Connection, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: uuid.New().String(), Method: "get_connections"})
	if err != nil {
		return nil, fmt.Errorf("daemon: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("daemon: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon: POST %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("daemon: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("daemon: get_connections returned status %d", resp.StatusCode)
	}
	c.log.V(1).Info("get_connections response", "body", string(data))

	var cr connectionsResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return nil, fmt.Errorf("daemon: decode get_connections response: %w", err)
	}
	if cr.Error != nil {
		return nil, fmt.Errorf("daemon: get_connections: [%d] %s: %w", cr.Error.Code, cr.Error.Message, ErrRPC)
	}
	if cr.Result == nil {
		return nil, fmt.Errorf("daemon: get_connections response has no result")
	}
	return cr.Result.Connections, nil
}
