package store

import (
	"time"

	"golang.org/x/oauth2"
)

// credentialExpiryMargin is the margin used when checking credential expiry.
// This accounts for clock skew between systems and network latency.
const credentialExpiryMargin = 30 * time.Second

// PKCEChallenge is a short-lived record binding an OAuth state parameter to
// the PKCE code verifier generated for it. It is single use: the consuming
// lookup deletes it, so a replayed state can never be redeemed twice.
type PKCEChallenge struct {
	// State doubles as the lookup key. It encodes the session and shop keys
	// so the callback can recover both.
	State string `json:"state"`

	// Verifier is the PKCE code verifier, held server-side only.
	Verifier string `json:"-"`

	// ExpiresAt is when the challenge stops being redeemable.
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the challenge is past its wall-clock expiry.
func (c *PKCEChallenge) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// CustomerCredential is a customer-account access token obtained through the
// authorization-code flow, scoped to a session and a shop.
type CustomerCredential struct {
	SessionKey   string    `json:"session_key"`
	ShopKey      string    `json:"shop_key"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`

	// UpdatedAt orders shop-scoped lookups: the most recently written
	// non-expired record wins.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired checks credential expiry with the default clock-skew margin.
// Credentials without an expiry never expire.
func (c *CustomerCredential) IsExpired() bool {
	return c.IsExpiredWithMargin(credentialExpiryMargin)
}

// IsExpiredWithMargin reports whether the credential is expired or will
// expire within the given margin.
func (c *CustomerCredential) IsExpiredWithMargin(margin time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(c.ExpiresAt)
}

// ToOAuth2Token converts the credential to an oauth2.Token for compatibility
// with golang.org/x/oauth2 consumers.
func (c *CustomerCredential) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
		Expiry:       c.ExpiresAt,
	}
}
