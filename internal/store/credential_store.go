package store

import (
	"sync"
	"time"

	"shopbridge/pkg/logging"
)

// CredentialStore is the durable home for customer credentials. The bridge
// only depends on this interface; the in-memory implementation below is the
// default, a database-backed one can be swapped in without touching callers.
type CredentialStore interface {
	// Put creates or replaces the credential for its session key.
	Put(credential *CustomerCredential)

	// GetBySession returns the non-expired credential for a session key.
	GetBySession(sessionKey string) (*CustomerCredential, bool)

	// GetByShop returns the most recently updated non-expired credential
	// for a shop key.
	GetByShop(shopKey string) (*CustomerCredential, bool)

	// Stop releases background resources.
	Stop()
}

// MemoryCredentialStore is a thread-safe in-memory CredentialStore with a
// secondary shop-key index and a periodic expiry sweep.
type MemoryCredentialStore struct {
	mu          sync.RWMutex
	bySession   map[string]*CustomerCredential
	shopIndex   map[string]map[string]struct{} // shopKey -> set of sessionKeys
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewMemoryCredentialStore creates the in-memory store and starts its expiry
// sweep. Callers must call Stop when done.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	ms := &MemoryCredentialStore{
		bySession:   make(map[string]*CustomerCredential),
		shopIndex:   make(map[string]map[string]struct{}),
		stopCleanup: make(chan struct{}),
	}

	go ms.cleanupLoop()

	return ms
}

// Put stores the credential, keeping at most one record per session key.
func (ms *MemoryCredentialStore) Put(credential *CustomerCredential) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if credential.UpdatedAt.IsZero() {
		credential.UpdatedAt = time.Now()
	}

	if prior, exists := ms.bySession[credential.SessionKey]; exists && prior.ShopKey != credential.ShopKey {
		ms.dropFromShopIndex(prior.ShopKey, credential.SessionKey)
	}

	ms.bySession[credential.SessionKey] = credential
	sessions, ok := ms.shopIndex[credential.ShopKey]
	if !ok {
		sessions = make(map[string]struct{})
		ms.shopIndex[credential.ShopKey] = sessions
	}
	sessions[credential.SessionKey] = struct{}{}

	logging.Debug("Store", "Stored credential for session=%s shop=%s (expires: %v)",
		logging.TruncateSessionID(credential.SessionKey), credential.ShopKey, credential.ExpiresAt)
}

// GetBySession returns the credential for a session key, treating expired
// records as absent.
func (ms *MemoryCredentialStore) GetBySession(sessionKey string) (*CustomerCredential, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	credential, exists := ms.bySession[sessionKey]
	if !exists || credential.IsExpired() {
		return nil, false
	}
	return credential, true
}

// GetByShop returns the most recently updated non-expired credential for a
// shop key.
func (ms *MemoryCredentialStore) GetByShop(shopKey string) (*CustomerCredential, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var newest *CustomerCredential
	for sessionKey := range ms.shopIndex[shopKey] {
		credential, exists := ms.bySession[sessionKey]
		if !exists || credential.IsExpired() {
			continue
		}
		if newest == nil || credential.UpdatedAt.After(newest.UpdatedAt) {
			newest = credential
		}
	}

	if newest == nil {
		return nil, false
	}
	return newest, true
}

// Count returns the number of stored credentials, expired ones included.
func (ms *MemoryCredentialStore) Count() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.bySession)
}

// Stop stops the background cleanup goroutine.
func (ms *MemoryCredentialStore) Stop() {
	ms.stopOnce.Do(func() { close(ms.stopCleanup) })
}

// dropFromShopIndex must be called with the write lock held.
func (ms *MemoryCredentialStore) dropFromShopIndex(shopKey, sessionKey string) {
	if sessions, ok := ms.shopIndex[shopKey]; ok {
		delete(sessions, sessionKey)
		if len(sessions) == 0 {
			delete(ms.shopIndex, shopKey)
		}
	}
}

func (ms *MemoryCredentialStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ms.cleanup()
		case <-ms.stopCleanup:
			return
		}
	}
}

func (ms *MemoryCredentialStore) cleanup() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	count := 0
	for sessionKey, credential := range ms.bySession {
		if credential.IsExpiredWithMargin(0) {
			delete(ms.bySession, sessionKey)
			ms.dropFromShopIndex(credential.ShopKey, sessionKey)
			count++
		}
	}

	if count > 0 {
		logging.Debug("Store", "Cleaned up %d expired credentials", count)
	}
}
