package oauth

import (
	"errors"
	"fmt"
)

// ErrInvalidState is returned when an authorization callback carries a state
// that is unknown, expired, or already consumed.
var ErrInvalidState = errors.New("invalid or expired authorization state")

// TokenExchangeError is returned when the provider's token endpoint rejects
// the authorization-code exchange. It carries the upstream status and body so
// the callback surface can report what actually went wrong.
type TokenExchangeError struct {
	Status int
	Body   string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed with status %d", e.Status)
}

// tokenResponse is the provider token endpoint's success payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// authState is the data carried through the OAuth flow inside the state
// parameter. The callback has no other session affinity, so both keys ride
// along; the nonce makes each state unique and unguessable.
type authState struct {
	SessionKey string `json:"session_key"`
	ShopKey    string `json:"shop_key"`
	Nonce      string `json:"nonce"`
}

// ShopEndpoints are the derived OAuth endpoints for one shop.
type ShopEndpoints struct {
	AuthorizeURL string
	TokenURL     string
}
