package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

const saleRequestLimit = 1 << 20 // 1 MiB

// rpcClient forwards requests to the sale daemon's JSON-RPC endpoint.
type rpcClient struct {
	endpoint  string
	authToken string
	http      *http.Client
	nextID    atomic.Uint64
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func newRPCClient(target *url.URL, authToken string) (*rpcClient, error) {
	if target == nil {
		return nil, fmt.Errorf("nil sale daemon target")
	}
	return &rpcClient{
		endpoint:  target.String(),
		authToken: authToken,
		http:      &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// call issues a single JSON-RPC request. authorized attaches the bearer token
// configured for administrative methods.
func (c *rpcClient) call(ctx context.Context, method string, params interface{}, authorized bool) (json.RawMessage, error) {
	payload := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
	}
	if params != nil {
		payload.Params = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authorized && c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, saleRequestLimit))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var decoded rpcResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return nil, decoded.Error
	}
	return decoded.Result, nil
}
