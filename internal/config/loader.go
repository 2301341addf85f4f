package config

import (
	"errors"
	"fmt"
	"os"

	"shopbridge/pkg/logging"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from the given file path, layering yaml
// values over the defaults and environment overrides over both. A missing
// file is not an error; the defaults plus environment are used.
func LoadConfig(configPath string) (Config, error) {
	cfg := GetDefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config file at %s, using defaults", configPath)
			applyEnvOverrides(&cfg)
			return cfg, validate(cfg)
		}
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configPath, err)
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s", configPath)

	applyEnvOverrides(&cfg)
	return cfg, validate(cfg)
}

// applyEnvOverrides lets deployment environments inject secrets without
// writing them into the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHOPBRIDGE_SHOP_DOMAIN"); v != "" {
		cfg.Shop.Domain = v
	}
	if v := os.Getenv("SHOPBRIDGE_ADMIN_TOKEN"); v != "" {
		cfg.Shop.AdminToken = v
	}
	if v := os.Getenv("SHOPBRIDGE_OAUTH_CLIENT_ID"); v != "" {
		cfg.OAuth.ClientID = v
	}
	if v := os.Getenv("SHOPBRIDGE_PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
}

func validate(cfg Config) error {
	if cfg.Shop.Domain == "" {
		return fmt.Errorf("shop.domain is required (or set SHOPBRIDGE_SHOP_DOMAIN)")
	}
	return nil
}

// GetEffectivePublicURL resolves the externally reachable base URL, falling
// back to the bind address when no public URL is configured.
func (s ServerConfig) GetEffectivePublicURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return fmt.Sprintf("http://%s:%d", s.Host, s.Port)
}
