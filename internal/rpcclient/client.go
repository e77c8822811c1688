// Package rpcclient talks JSON-RPC 2.0 to a tokengated daemon.
package rpcclient

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/monte1s/tokengate/pkg/crypto"
)

const defaultTimeout = 10 * time.Second

// Client issues JSON-RPC calls over HTTP. Request ids increment per
// client so responses can be matched during debugging.
type Client struct {
	endpoint string
	http     *http.Client
	nextID   atomic.Int64
}

// New returns a client for the given endpoint URL with the default timeout.
func New(endpoint string) *Client {
	return NewWithTimeout(endpoint, defaultTimeout)
}

// NewWithTimeout returns a client with a custom HTTP timeout.
func NewWithTimeout(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	Auth    *authParam      `json:"auth,omitempty"`
	ID      int64           `json:"id"`
}

type authParam struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// RPCError is the error object a daemon returns for a failed call.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call invokes method with params and decodes the result into result.
// A nil result discards the response payload. Errors reported by the
// daemon come back as *RPCError.
func (c *Client) Call(method string, params, result interface{}) error {
	return c.call(method, params, nil, result)
}

// CallAs invokes a mutating method signed by key. The daemon recovers
// the signer from a signature over the method and the params bytes, so
// the params are marshalled exactly once here and sent verbatim.
func (c *Client) CallAs(key *crypto.PrivateKey, method string, params, result interface{}) error {
	return c.call(method, params, key, result)
}

func (c *Client) call(method string, params interface{}, key *crypto.PrivateKey, result interface{}) error {
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		ID:      c.nextID.Add(1),
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal %s params: %w", method, err)
		}
		req.Params = raw
	}
	if key != nil {
		sig := key.Sign(crypto.RequestDigest(method, req.Params))
		req.Auth = &authParam{
			Signer:    key.Address().String(),
			Signature: hex.EncodeToString(sig),
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	resp, err := c.http.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var reply response
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if reply.Error != nil {
		return reply.Error
	}
	if result != nil && reply.Result != nil {
		if err := json.Unmarshal(reply.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}
