package gateway

import (
	"fmt"
	"sync"
	"time"

	"shopbridge/pkg/logging"
)

const (
	// MaxSessionIDLength caps session identifier length. This prevents
	// memory exhaustion using extremely long session IDs.
	MaxSessionIDLength = 256

	// DefaultMaxSessions limits concurrent sessions for DoS protection.
	DefaultMaxSessions = 10000

	// eventBufferSize is the per-session outbound event queue depth.
	eventBufferSize = 16
)

// TransportKind distinguishes how a session talks to the gateway.
type TransportKind string

const (
	// TransportSync is plain request/response over a single POST.
	TransportSync TransportKind = "sync"

	// TransportStream is a long-lived event stream paired with a
	// message-submission channel correlated by session ID.
	TransportStream TransportKind = "stream"
)

// Session is one client connection's state. The gateway is the sole
// creator and destroyer of sessions.
type Session struct {
	ID        string
	Transport TransportKind
	CreatedAt time.Time

	// Events carries serialized responses to the stream writer. Nil for
	// sync sessions.
	Events chan []byte

	// BoundCredential is the credential snapshot captured when the stream
	// was opened. Empty when the client sent none.
	BoundCredential string

	mu           sync.Mutex
	lastActivity time.Time
	done         chan struct{}
	closeOnce    sync.Once
}

func newSession(id string, transport TransportKind, boundCredential string) *Session {
	now := time.Now()
	s := &Session{
		ID:              id,
		Transport:       transport,
		CreatedAt:       now,
		BoundCredential: boundCredential,
		lastActivity:    now,
		done:            make(chan struct{}),
	}
	if transport == TransportStream {
		s.Events = make(chan []byte, eventBufferSize)
	}
	return s
}

// Done is closed when the session is removed from the registry. Stream
// writers use it to terminate their loop on eviction.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// SessionRegistry is the concurrency-safe session table. Only the gateway
// mutates it; everything else gets read access through Lookup.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	sessionTimeout time.Duration
	maxSessions    int
	stopCleanup    chan struct{}
	stopOnce       sync.Once
}

// NewSessionRegistry creates a registry with idle eviction. Sessions idle
// longer than sessionTimeout are removed by a background loop.
func NewSessionRegistry(sessionTimeout time.Duration) *SessionRegistry {
	r := &SessionRegistry{
		sessions:       make(map[string]*Session),
		sessionTimeout: sessionTimeout,
		maxSessions:    DefaultMaxSessions,
		stopCleanup:    make(chan struct{}),
	}
	go r.cleanupLoop()
	return r
}

// Register adds a session to the table.
func (r *SessionRegistry) Register(s *Session) error {
	if s.ID == "" || len(s.ID) > MaxSessionIDLength {
		return fmt.Errorf("invalid session ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= r.maxSessions {
		return fmt.Errorf("session limit reached (%d)", r.maxSessions)
	}
	if _, exists := r.sessions[s.ID]; exists {
		return fmt.Errorf("session %s already registered", logging.TruncateSessionID(s.ID))
	}

	r.sessions[s.ID] = s
	logging.Debug("Gateway", "Registered %s session %s", s.Transport, logging.TruncateSessionID(s.ID))
	return nil
}

// Lookup fetches a session by ID and refreshes its activity timestamp.
func (r *SessionRegistry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		s.touch()
	}
	return s, ok
}

// Remove drops a session and wakes anything waiting on it.
func (r *SessionRegistry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if ok {
		s.close()
		logging.Debug("Gateway", "Removed session %s", logging.TruncateSessionID(id))
	}
}

// Count returns the current session count.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stop terminates the eviction loop and closes every session.
func (r *SessionRegistry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCleanup) })

	r.mu.Lock()
	for id, s := range r.sessions {
		delete(r.sessions, id)
		s.close()
	}
	r.mu.Unlock()
}

func (r *SessionRegistry) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.stopCleanup:
			return
		}
	}
}

func (r *SessionRegistry) evictIdle() {
	cutoff := time.Now().Add(-r.sessionTimeout)

	r.mu.Lock()
	var evicted []*Session
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			delete(r.sessions, id)
			evicted = append(evicted, s)
		}
	}
	r.mu.Unlock()

	for _, s := range evicted {
		s.close()
		logging.Info("Gateway", "Evicted idle session %s", logging.TruncateSessionID(s.ID))
	}
}
