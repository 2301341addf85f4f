package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"shopbridge/internal/aggregator"
	"shopbridge/internal/credential"
	"shopbridge/internal/provider"
	"shopbridge/pkg/logging"
)

// protocolVersion is the wire protocol revision announced on initialize.
const protocolVersion = "2025-03-26"

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *rpcErrorBody `json:"error,omitempty"`
}

func rpcError(id interface{}, code int, msg string) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcErrorBody{Code: code, Message: msg}}
}

func rpcOK(id interface{}, result interface{}) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

// Dispatcher validates JSON-RPC envelopes and routes method names to
// handlers. Both transports funnel into Dispatch; the transport layer only
// decides where the response bytes go.
type Dispatcher struct {
	aggregator *aggregator.Aggregator
	resolver   *credential.Resolver
	shopKey    string

	serverName    string
	serverVersion string
}

// NewDispatcher creates the method router.
func NewDispatcher(agg *aggregator.Aggregator, resolver *credential.Resolver, shopKey, serverName, serverVersion string) *Dispatcher {
	return &Dispatcher{
		aggregator:    agg,
		resolver:      resolver,
		shopKey:       shopKey,
		serverName:    serverName,
		serverVersion: serverVersion,
	}
}

// Dispatch handles one raw inbound message. A nil response means the
// message was a notification and nothing is emitted. authRequired reports
// that the result carries an authentication challenge, so the sync
// transport can set its status code accordingly.
func (d *Dispatcher) Dispatch(ctx context.Context, session *Session, raw []byte) (resp *rpcResponse, authRequired bool) {
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return rpcError(nil, codeParseError, "parse error"), false
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return rpcError(req.ID, codeInvalidRequest, "invalid request"), false
	}

	logging.Debug("Gateway", "Dispatching method=%s session=%s", req.Method, logging.TruncateSessionID(session.ID))

	switch req.Method {
	case "initialize":
		return rpcOK(req.ID, d.initializeResult()), false

	case "notifications/initialized":
		return nil, false

	case "tools/list":
		return rpcOK(req.ID, d.listTools(ctx)), false

	case "tools/call":
		return d.callTool(ctx, session, &req)

	default:
		if req.ID == nil {
			// Notifications never get a response object, not even for
			// unknown methods.
			return nil, false
		}
		return rpcError(req.ID, codeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method)), false
	}
}

func (d *Dispatcher) initializeResult() map[string]interface{} {
	return map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{
				"listChanged": false,
			},
		},
		"serverInfo": map[string]interface{}{
			"name":    d.serverName,
			"version": d.serverVersion,
		},
	}
}

// listTools returns the aggregate catalog, refreshing it first when empty.
func (d *Dispatcher) listTools(ctx context.Context) map[string]interface{} {
	if d.aggregator.Empty() {
		d.aggregator.RefreshAll(ctx)
	}
	return map[string]interface{}{
		"tools": d.aggregator.Tools(),
	}
}

type callParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`

	// AccessToken is an explicit per-call credential. It outranks every
	// stored credential, including the stream's bound one.
	AccessToken string `json:"accessToken,omitempty"`
}

func (d *Dispatcher) callTool(ctx context.Context, session *Session, req *rpcRequest) (*rpcResponse, bool) {
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return rpcError(req.ID, codeInvalidParams, "invalid tool call parameters"), false
	}

	explicit := params.AccessToken
	if explicit == "" {
		explicit = session.BoundCredential
	}

	cred, _ := d.resolver.Resolve(credential.CallContext{
		Explicit:   explicit,
		SessionKey: session.ID,
		ShopKey:    d.shopKey,
	})

	callCtx := provider.WithSessionKey(ctx, session.ID)
	result, err := d.aggregator.CallTool(callCtx, params.Name, params.Arguments, cred)
	if err != nil {
		var authErr *provider.AuthRequiredError
		if errors.As(err, &authErr) {
			return rpcOK(req.ID, json.RawMessage(authErr.Result())), true
		}

		logging.Error("Gateway", err, "Tool call failed for %s", params.Name)
		return rpcError(req.ID, codeInternalError, err.Error()), false
	}

	return rpcOK(req.ID, json.RawMessage(result)), false
}
