package oauth

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// endpointCache memoizes the per-shop endpoint derivation. Concurrent first
// lookups for the same shop collapse into one derivation.
type endpointCache struct {
	mu        sync.RWMutex
	endpoints map[string]*ShopEndpoints
	group     singleflight.Group
}

func newEndpointCache() *endpointCache {
	return &endpointCache{
		endpoints: make(map[string]*ShopEndpoints),
	}
}

// ForShop returns the OAuth endpoints for a shop identifier, deriving and
// caching them on first use.
func (ec *endpointCache) ForShop(shopKey string) *ShopEndpoints {
	ec.mu.RLock()
	if eps, ok := ec.endpoints[shopKey]; ok {
		ec.mu.RUnlock()
		return eps
	}
	ec.mu.RUnlock()

	result, _, _ := ec.group.Do(shopKey, func() (interface{}, error) {
		eps := deriveEndpoints(shopKey)
		ec.mu.Lock()
		ec.endpoints[shopKey] = eps
		ec.mu.Unlock()
		return eps, nil
	})

	return result.(*ShopEndpoints)
}

// deriveEndpoints maps a shop identifier to its customer authorization and
// token endpoints.
func deriveEndpoints(shopKey string) *ShopEndpoints {
	base := "https://" + normalizeShopDomain(shopKey) + "/authentication/oauth"
	return &ShopEndpoints{
		AuthorizeURL: base + "/authorize",
		TokenURL:     base + "/token",
	}
}

// normalizeShopDomain accepts "demo.myshopify.com", "https://demo.myshopify.com/"
// or a bare handle "demo" and returns the canonical shop domain.
func normalizeShopDomain(shopKey string) string {
	domain := strings.TrimSuffix(shopKey, "/")
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	if !strings.Contains(domain, ".") {
		domain = fmt.Sprintf("%s.myshopify.com", domain)
	}
	return domain
}
