package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shopbridge/internal/config"
	"shopbridge/internal/store"
	"shopbridge/pkg/logging"
)

// Manager coordinates the client side of the customer authorization-code +
// PKCE flow: it issues authorization URLs, redeems callbacks, and writes the
// resulting credentials into the credential store.
type Manager struct {
	cfg       config.OAuthConfig
	publicURL string

	challenges  *store.ChallengeStore
	credentials store.CredentialStore
	endpoints   *endpointCache

	httpClient *http.Client
}

// NewManager creates a new OAuth lifecycle manager.
func NewManager(cfg config.OAuthConfig, publicURL string, challenges *store.ChallengeStore, credentials store.CredentialStore) *Manager {
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = "/oauth/callback"
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 10 * time.Minute
	}

	return &Manager{
		cfg:         cfg,
		publicURL:   publicURL,
		challenges:  challenges,
		credentials: credentials,
		endpoints:   newEndpointCache(),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// RedirectURI returns the full redirect URI for OAuth callbacks.
func (m *Manager) RedirectURI() string {
	return strings.TrimSuffix(m.publicURL, "/") + m.cfg.CallbackPath
}

// BeginAuthorization issues a provider authorization URL for the given
// session and shop. The returned state is embedded in the URL and keyed in
// the challenge store; it must come back unchanged on the callback.
func (m *Manager) BeginAuthorization(sessionKey, shopKey string) (authURL, state string, err error) {
	verifier, challenge, err := generatePKCE()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate PKCE: %w", err)
	}

	state, err = encodeState(sessionKey, shopKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}

	m.challenges.Put(&store.PKCEChallenge{
		State:     state,
		Verifier:  verifier,
		ExpiresAt: time.Now().Add(m.cfg.ChallengeTTL),
	})

	eps := m.endpoints.ForShop(shopKey)
	u, err := url.Parse(eps.AuthorizeURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	query := u.Query()
	query.Set("response_type", "code")
	query.Set("client_id", m.cfg.ClientID)
	query.Set("redirect_uri", m.RedirectURI())
	query.Set("state", state)
	query.Set("code_challenge", challenge)
	query.Set("code_challenge_method", "S256")
	if len(m.cfg.Scopes) > 0 {
		query.Set("scope", strings.Join(m.cfg.Scopes, " "))
	}
	u.RawQuery = query.Encode()

	logging.Debug("OAuth", "Generated auth URL for session=%s shop=%s",
		logging.TruncateSessionID(sessionKey), shopKey)

	return u.String(), state, nil
}

// CompleteAuthorization redeems an authorization code. The challenge for the
// state is consumed in the process, so calling this twice with the same state
// fails the second time with ErrInvalidState.
func (m *Manager) CompleteAuthorization(ctx context.Context, code, state string) (*store.CustomerCredential, error) {
	challenge, ok := m.challenges.Consume(state)
	if !ok {
		return nil, ErrInvalidState
	}

	keys, err := decodeState(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	token, err := m.exchangeCode(ctx, keys.ShopKey, code, challenge.Verifier)
	if err != nil {
		return nil, err
	}

	credential := &store.CustomerCredential{
		SessionKey:   keys.SessionKey,
		ShopKey:      keys.ShopKey,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		UpdatedAt:    time.Now(),
	}
	if token.ExpiresIn > 0 {
		credential.ExpiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}

	m.credentials.Put(credential)

	logging.Info("OAuth", "Completed authorization for session=%s shop=%s",
		logging.TruncateSessionID(keys.SessionKey), keys.ShopKey)

	return credential, nil
}

// exchangeCode performs the authorization-code token exchange against the
// shop's token endpoint.
func (m *Manager) exchangeCode(ctx context.Context, shopKey, code, verifier string) (*tokenResponse, error) {
	eps := m.endpoints.ForShop(shopKey)

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", m.RedirectURI())
	data.Set("client_id", m.cfg.ClientID)
	data.Set("code_verifier", verifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, eps.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logging.Debug("OAuth", "Token exchange failed: status=%d body=%s", resp.StatusCode, string(body))
		return nil, &TokenExchangeError{Status: resp.StatusCode, Body: string(body)}
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	logging.Debug("OAuth", "Exchanged code for token (shop=%s, expires_in=%d)", shopKey, token.ExpiresIn)
	return &token, nil
}

// Status reports whether a session currently holds a valid credential.
func (m *Manager) Status(sessionKey string) (authenticated bool, expiresAt time.Time) {
	credential, ok := m.credentials.GetBySession(sessionKey)
	if !ok {
		return false, time.Time{}
	}
	return true, credential.ExpiresAt
}
