package provider

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"shopbridge/pkg/logging"
)

type contextKey string

// sessionKeyContextKey carries the caller's session key through a tool call
// so the auth-required path can mint an authorization URL bound to it.
const sessionKeyContextKey contextKey = "shopbridge.sessionKey"

// WithSessionKey returns a context carrying the caller's session key.
func WithSessionKey(ctx context.Context, sessionKey string) context.Context {
	return context.WithValue(ctx, sessionKeyContextKey, sessionKey)
}

// SessionKeyFromContext extracts the caller's session key, if any.
func SessionKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionKeyContextKey).(string); ok {
		return v
	}
	return ""
}

// Authorizer mints authorization URLs for sessions that still need to log
// in. Implemented by the OAuth lifecycle manager.
type Authorizer interface {
	BeginAuthorization(sessionKey, shopKey string) (authURL, state string, err error)
}

// Customer exposes the authenticated customer-account tools. Every call
// requires a resolved credential; calls without one produce an auth-required
// result rather than a transport failure, so the calling agent can relay the
// login link without aborting the exchange.
type Customer struct {
	name       string
	rpc        *rpcClient
	authorizer Authorizer
	shopKey    string
}

// NewCustomer creates a customer-account provider.
func NewCustomer(endpoint string, authorizer Authorizer, shopKey string) *Customer {
	return &Customer{
		name:       "customer",
		rpc:        newRPCClient(endpoint),
		authorizer: authorizer,
		shopKey:    shopKey,
	}
}

// Name implements Provider.
func (c *Customer) Name() string { return c.name }

// ListTools implements Provider. The catalog itself is public; only tool
// invocation needs a credential.
func (c *Customer) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return c.rpc.listTools(ctx, "")
}

// CallTool implements Provider.
func (c *Customer) CallTool(ctx context.Context, name string, args map[string]interface{}, credential string) (json.RawMessage, error) {
	if credential == "" {
		return nil, c.authRequired(ctx)
	}

	result, err := c.rpc.callTool(ctx, name, args, credential)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, c.authRequired(ctx)
		}
		return nil, err
	}

	// Some upstreams signal auth failure inside a nominally successful
	// response. Reclassify by the documented phrase heuristic.
	if looksLikeAuthChallenge(result) {
		logging.Debug("Provider", "Reclassified customer response as auth challenge for tool=%s", name)
		return nil, c.authRequired(ctx)
	}

	return result, nil
}

// authRequired builds the structured auth-required failure carrying a fresh
// authorization URL for the calling session.
func (c *Customer) authRequired(ctx context.Context) error {
	sessionKey := SessionKeyFromContext(ctx)

	authURL, _, err := c.authorizer.BeginAuthorization(sessionKey, c.shopKey)
	if err != nil {
		logging.Error("Provider", err, "Failed to mint authorization URL")
		return &AuthRequiredError{}
	}

	return &AuthRequiredError{AuthURL: authURL}
}
