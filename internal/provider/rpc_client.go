package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"shopbridge/pkg/logging"
)

// rpcClient speaks the fixed-shape remote-call envelope the tool providers
// expose: JSON-RPC 2.0 over a single HTTP POST endpoint with the methods
// tools/list and tools/call.
type rpcClient struct {
	endpoint   string
	httpClient *http.Client
	requestID  atomic.Int64
}

func newRPCClient(endpoint string) *rpcClient {
	return &rpcClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// call POSTs one envelope and returns the raw result member. Failures are
// classified: 401/403 -> ErrUnauthenticated, other non-2xx -> UpstreamError,
// JSON-RPC error member -> RPCError.
func (c *rpcClient) call(ctx context.Context, method string, params interface{}, credential string) (json.RawMessage, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (status %d)", ErrUnauthenticated, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	var envelope rpcResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse response envelope: %w", err)
	}

	if envelope.Error != nil {
		return nil, &RPCError{Code: envelope.Error.Code, Message: envelope.Error.Message}
	}

	return envelope.Result, nil
}

// listTools fetches and decodes the provider catalog.
func (c *rpcClient) listTools(ctx context.Context, credential string) ([]mcp.Tool, error) {
	result, err := c.call(ctx, "tools/list", map[string]interface{}{}, credential)
	if err != nil {
		return nil, err
	}

	var listing struct {
		Tools []mcp.Tool `json:"tools"`
	}
	if err := json.Unmarshal(result, &listing); err != nil {
		return nil, fmt.Errorf("failed to parse tool listing: %w", err)
	}

	logging.Debug("Provider", "Listed %d tools from %s", len(listing.Tools), c.endpoint)
	return listing.Tools, nil
}

// callTool invokes one named tool with structured arguments.
func (c *rpcClient) callTool(ctx context.Context, name string, args map[string]interface{}, credential string) (json.RawMessage, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	return c.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	}, credential)
}
