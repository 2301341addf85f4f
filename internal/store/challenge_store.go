package store

import (
	"sync"
	"time"

	"shopbridge/pkg/logging"
)

// ChallengeStore provides thread-safe storage for pending PKCE challenges,
// keyed by the OAuth state parameter.
type ChallengeStore struct {
	mu         sync.RWMutex
	challenges map[string]*PKCEChallenge

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewChallengeStore creates a new challenge store and starts a background
// sweep of expired entries. Callers must call Stop when done.
func NewChallengeStore() *ChallengeStore {
	cs := &ChallengeStore{
		challenges:  make(map[string]*PKCEChallenge),
		stopCleanup: make(chan struct{}),
	}

	go cs.cleanupLoop()

	return cs
}

// Put stores a challenge under its state key, replacing any prior entry.
func (cs *ChallengeStore) Put(challenge *PKCEChallenge) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.challenges[challenge.State] = challenge
	logging.Debug("Store", "Stored PKCE challenge (expires: %v)", challenge.ExpiresAt)
}

// Consume looks up a challenge by state and deletes it in the same critical
// section. The second lookup for the same state always misses, which is what
// prevents authorization-code replay. Expired entries are treated as absent.
func (cs *ChallengeStore) Consume(state string) (*PKCEChallenge, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	challenge, exists := cs.challenges[state]
	if !exists {
		return nil, false
	}

	delete(cs.challenges, state)

	if challenge.IsExpired() {
		logging.Debug("Store", "PKCE challenge expired before consumption")
		return nil, false
	}

	return challenge, true
}

// Count returns the number of pending challenges.
func (cs *ChallengeStore) Count() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.challenges)
}

// Stop stops the background cleanup goroutine.
func (cs *ChallengeStore) Stop() {
	cs.stopOnce.Do(func() { close(cs.stopCleanup) })
}

// cleanupLoop periodically removes expired challenges. Correctness does not
// depend on the sweep; Consume checks expiry itself.
func (cs *ChallengeStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cs.cleanup()
		case <-cs.stopCleanup:
			return
		}
	}
}

func (cs *ChallengeStore) cleanup() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	count := 0
	for state, challenge := range cs.challenges {
		if challenge.IsExpired() {
			delete(cs.challenges, state)
			count++
		}
	}

	if count > 0 {
		logging.Debug("Store", "Cleaned up %d expired PKCE challenges", count)
	}
}
