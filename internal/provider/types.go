package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Provider is one upstream tool provider: it can enumerate its tools and
// invoke one by name. Implementations classify their failures so the
// recovery and dispatch layers can react without parsing provider payloads.
type Provider interface {
	// Name identifies the provider in the aggregate catalog.
	Name() string

	// ListTools returns the provider's current tool catalog.
	ListTools(ctx context.Context) ([]mcp.Tool, error)

	// CallTool invokes a named tool. credential may be empty for providers
	// that do not require one.
	CallTool(ctx context.Context, name string, args map[string]interface{}, credential string) (json.RawMessage, error)
}

// ErrUnauthenticated indicates the upstream rejected the call for lack of a
// valid credential.
var ErrUnauthenticated = errors.New("provider rejected call as unauthenticated")

// RPCError is a JSON-RPC level error returned by a provider.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("provider rpc error %d: %s", e.Code, e.Message)
}

// UpstreamError is a transport-level failure: network error body or a
// non-2xx HTTP response from a provider.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.Status)
}

// AuthRequiredError signals that the caller must complete an authorization
// flow before the tool can run. It is relayed to the calling agent as a
// first-class result shape, not as a protocol fault.
type AuthRequiredError struct {
	AuthURL string
}

func (e *AuthRequiredError) Error() string {
	return "authentication required"
}

// Result renders the structured auth-required payload the calling agent can
// relay conversationally.
func (e *AuthRequiredError) Result() json.RawMessage {
	payload, _ := json.Marshal(map[string]interface{}{
		"error": map[string]string{
			"type":     "auth_required",
			"auth_url": e.AuthURL,
		},
	})
	return payload
}

// sessionTerminatedSignatures is the fixed set of phrases upstream providers
// use when a server-side session has gone away. Matching is case-insensitive
// substring match over error text.
var sessionTerminatedSignatures = []string{
	"session terminated",
	"session expired",
	"session not found",
	"invalid session",
	"session closed",
}

// IsSessionTerminated reports whether an error carries an upstream
// session-expiry signature. Only these failures are worth a reconnect.
func IsSessionTerminated(err error) bool {
	if err == nil {
		return false
	}

	var text string
	var rpcErr *RPCError
	var upErr *UpstreamError
	switch {
	case errors.As(err, &rpcErr):
		text = rpcErr.Message
	case errors.As(err, &upErr):
		text = upErr.Body
	default:
		text = err.Error()
	}

	text = strings.ToLower(text)
	for _, sig := range sessionTerminatedSignatures {
		if strings.Contains(text, sig) {
			return true
		}
	}
	return false
}

// authChallengePhrases is the documented heuristic for providers that signal
// an auth failure inside a nominally successful response. False positives on
// legitimate content mentioning login are possible and accepted.
var authChallengePhrases = []string{
	"please log in",
	"login required",
	"log in to continue",
	"sign in to continue",
	"please sign in",
	"authentication required",
	"please authenticate",
	"must be authenticated",
}

// looksLikeAuthChallenge reports whether a response body reads like an
// authentication prompt.
func looksLikeAuthChallenge(body []byte) bool {
	text := strings.ToLower(string(body))
	for _, phrase := range authChallengePhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
