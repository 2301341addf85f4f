package credential

import (
	"strings"

	"shopbridge/internal/store"
	"shopbridge/pkg/logging"
)

// CallContext carries everything a single tool call knows about who is
// asking. Fields may be empty; the resolver decides what wins.
type CallContext struct {
	// Explicit is a credential supplied directly in the call parameters.
	Explicit string

	// SessionKey scopes store lookups to the caller's session.
	SessionKey string

	// ShopKey scopes the fallback lookup to the configured shop.
	ShopKey string
}

// Resolver picks the single best credential for a call. All token-presence
// branching in the bridge lives here; callers only consume its output.
type Resolver struct {
	credentials store.CredentialStore

	// instanceToken is the statically configured process-level credential,
	// the last resort of the precedence chain.
	instanceToken string
}

// NewResolver creates a resolver over the given credential store.
func NewResolver(credentials store.CredentialStore, instanceToken string) *Resolver {
	return &Resolver{
		credentials:   credentials,
		instanceToken: instanceToken,
	}
}

// Resolve returns the best credential for the call context, first match
// wins: explicit > session-scoped store > shop-scoped store > static
// instance token. Absence is an expected outcome, not an error.
func (r *Resolver) Resolve(ctx CallContext) (string, bool) {
	if ctx.Explicit != "" {
		return normalize(ctx.Explicit), true
	}

	if ctx.SessionKey != "" {
		if credential, ok := r.credentials.GetBySession(ctx.SessionKey); ok {
			logging.Debug("Credential", "Resolved session credential for session=%s",
				logging.TruncateSessionID(ctx.SessionKey))
			return normalize(credential.AccessToken), true
		}
	}

	if ctx.ShopKey != "" {
		if credential, ok := r.credentials.GetByShop(ctx.ShopKey); ok {
			logging.Debug("Credential", "Resolved shop credential for shop=%s", ctx.ShopKey)
			return normalize(credential.AccessToken), true
		}
	}

	if r.instanceToken != "" {
		return normalize(r.instanceToken), true
	}

	return "", false
}

// normalize ensures the token carries the authorization scheme prefix the
// transport expects. The scheme comparison is case-insensitive so a
// caller-supplied "bearer abc" is not double-prefixed.
func normalize(token string) string {
	const scheme = "Bearer "
	if len(token) >= len(scheme) && strings.EqualFold(token[:len(scheme)], scheme) {
		return token
	}
	return scheme + token
}
