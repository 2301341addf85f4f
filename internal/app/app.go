package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"shopbridge/internal/aggregator"
	"shopbridge/internal/config"
	"shopbridge/internal/credential"
	"shopbridge/internal/gateway"
	"shopbridge/internal/oauth"
	"shopbridge/internal/provider"
	"shopbridge/internal/store"
	"shopbridge/pkg/logging"
)

// Application wires the bridge together: stores, OAuth lifecycle, providers,
// aggregator and the transport gateway, all behind one HTTP server.
type Application struct {
	cfg     *config.Config
	version string

	challenges  *store.ChallengeStore
	credentials store.CredentialStore
	registry    *gateway.SessionRegistry
	aggregator  *aggregator.Aggregator
	server      *http.Server
}

// New builds a fully wired application from configuration.
func New(cfg *config.Config, version string) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	shopKey := cfg.Shop.Domain

	challenges := store.NewChallengeStore()
	credentials := store.NewMemoryCredentialStore()

	manager := oauth.NewManager(cfg.OAuth, cfg.Server.GetEffectivePublicURL(), challenges, credentials)

	storefront := provider.NewStorefront(cfg.Providers.GetEffectiveStorefrontURL(shopKey))
	customer := provider.NewCustomer(cfg.Providers.GetEffectiveCustomerURL(shopKey), manager, shopKey)

	adminClient := provider.NewGraphQLAdminClient(cfg.Shop.AdminAPIVersion)
	adminClient.SetEndpointOverride(cfg.Providers.AdminURL)
	admin := provider.NewAdmin(cfg.Shop.Domain, adminClient)

	agg := aggregator.New(storefront, customer, admin)
	resolver := credential.NewResolver(credentials, cfg.Shop.AdminToken)

	registry := gateway.NewSessionRegistry(cfg.Server.SessionTimeout)
	dispatcher := gateway.NewDispatcher(agg, resolver, shopKey, "shopbridge", version)
	gw := gateway.New(registry, dispatcher)

	mux := http.NewServeMux()
	gw.Register(mux)
	oauth.NewHandler(manager, shopKey).Register(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "ok",
			"sessions": registry.Count(),
		})
	})

	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{
		cfg:         cfg,
		version:     version,
		challenges:  challenges,
		credentials: credentials,
		registry:    registry,
		aggregator:  agg,
		server:      server,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// everything down in order.
func (a *Application) Run(ctx context.Context) error {
	// Warm the tool catalog before accepting traffic. A provider being
	// down is tolerated; the catalog refreshes again on demand.
	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	tools := a.aggregator.RefreshAll(warmCtx)
	cancel()
	logging.Info("App", "Aggregated %d tools across providers", len(tools))

	errCh := make(chan error, 1)
	go func() {
		logging.Info("App", "Listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.stop()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logging.Info("App", "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logging.Warn("App", "Graceful shutdown incomplete: %v", err)
	}

	a.stop()
	return nil
}

func (a *Application) stop() {
	a.registry.Stop()
	a.challenges.Stop()
	a.credentials.Stop()
}
