package config

import "time"

// Config is the top-level configuration structure for shopbridge.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Shop      ShopConfig      `yaml:"shop"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig defines where the gateway listens and how it introduces itself.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"` // Host to bind to (default: localhost)
	Port int    `yaml:"port,omitempty"` // Port for the gateway endpoints (default: 8080)

	// PublicURL is the externally reachable base URL, used when composing the
	// message-submission endpoint announced over the event stream and the
	// OAuth redirect URI. Defaults to http://{host}:{port}.
	PublicURL string `yaml:"publicUrl,omitempty"`

	// SessionTimeout evicts idle stream sessions (default: 30m).
	SessionTimeout time.Duration `yaml:"sessionTimeout,omitempty"`
}

// ShopConfig identifies the shop all providers are scoped to.
type ShopConfig struct {
	// Domain is the shop identifier, e.g. "demo-store.myshopify.com".
	// Provider and OAuth endpoints are derived from it.
	Domain string `yaml:"domain"`

	// AdminToken is the statically configured instance credential. It sits at
	// the bottom of the credential precedence chain.
	AdminToken string `yaml:"adminToken,omitempty"`

	// AdminAPIVersion selects the admin GraphQL API version (default: 2025-01).
	AdminAPIVersion string `yaml:"adminApiVersion,omitempty"`
}

// OAuthConfig configures the client side of the customer authorization-code
// + PKCE flow.
type OAuthConfig struct {
	ClientID     string   `yaml:"clientId"`
	CallbackPath string   `yaml:"callbackPath,omitempty"` // default: /oauth/callback
	Scopes       []string `yaml:"scopes,omitempty"`

	// ChallengeTTL bounds how long an issued PKCE challenge stays redeemable
	// (default: 10m).
	ChallengeTTL time.Duration `yaml:"challengeTtl,omitempty"`
}

// ProvidersConfig allows per-provider endpoint overrides. When empty the
// endpoints are derived from the shop domain.
type ProvidersConfig struct {
	StorefrontURL string `yaml:"storefrontUrl,omitempty"`
	CustomerURL   string `yaml:"customerUrl,omitempty"`
	AdminURL      string `yaml:"adminUrl,omitempty"`
}

// GetEffectiveStorefrontURL returns the storefront provider endpoint,
// deriving it from the shop domain when no override is configured.
func (p ProvidersConfig) GetEffectiveStorefrontURL(shopDomain string) string {
	if p.StorefrontURL != "" {
		return p.StorefrontURL
	}
	return "https://" + shopDomain + "/api/mcp"
}

// GetEffectiveCustomerURL returns the customer-account provider endpoint,
// deriving it from the shop domain when no override is configured.
func (p ProvidersConfig) GetEffectiveCustomerURL(shopDomain string) string {
	if p.CustomerURL != "" {
		return p.CustomerURL
	}
	return "https://" + shopDomain + "/customer/api/mcp"
}

// GetDefaultConfig returns the default configuration for shopbridge.
func GetDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:           "localhost",
			Port:           8080,
			SessionTimeout: 30 * time.Minute,
		},
		Shop: ShopConfig{
			AdminAPIVersion: "2025-01",
		},
		OAuth: OAuthConfig{
			CallbackPath: "/oauth/callback",
			ChallengeTTL: 10 * time.Minute,
		},
	}
}
