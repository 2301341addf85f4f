package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"shopbridge/pkg/logging"
)

// keepAliveInterval is how often the stream writer emits an SSE comment to
// keep intermediaries from timing out an idle connection.
const keepAliveInterval = 15 * time.Second

// dispatchTimeout bounds handling of a single stream-delivered message.
const dispatchTimeout = 60 * time.Second

// Gateway exposes the two transport styles and maps both onto the same
// dispatcher: a long-lived event stream with a paired message endpoint, and
// a plain synchronous endpoint.
type Gateway struct {
	registry   *SessionRegistry
	dispatcher *Dispatcher
}

// New creates the transport gateway.
func New(registry *SessionRegistry, dispatcher *Dispatcher) *Gateway {
	return &Gateway{registry: registry, dispatcher: dispatcher}
}

// Register mounts the transport endpoints on the mux.
func (g *Gateway) Register(mux *http.ServeMux) {
	mux.HandleFunc("/sse", g.HandleSSE)
	mux.HandleFunc("/message", g.HandleMessage)
	mux.HandleFunc("/mcp", g.HandleSync)
}

// HandleSSE opens a stream session. The first event tells the client where
// to POST its messages, carrying the session ID as the correlation key.
func (g *Gateway) HandleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	session := newSession(uuid.NewString(), TransportStream, r.Header.Get("Authorization"))
	if err := g.registry.Register(session); err != nil {
		logging.Warn("Gateway", "Stream session rejected: %v", err)
		http.Error(w, "too many sessions", http.StatusServiceUnavailable)
		return
	}
	defer g.registry.Remove(session.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprintf(w, "event: endpoint\ndata: /message?sessionId=%s\n\n", session.ID)
	flusher.Flush()

	logging.Info("Gateway", "Stream session %s opened", logging.TruncateSessionID(session.ID))

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logging.Info("Gateway", "Stream session %s disconnected", logging.TruncateSessionID(session.ID))
			return
		case <-session.Done():
			return
		case payload := <-session.Events:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
			flusher.Flush()
		case <-ticker.C:
			_, _ = io.WriteString(w, ":\n\n")
			flusher.Flush()
		}
	}
}

// HandleMessage accepts one inbound message for a stream session. Receipt is
// acknowledged immediately; the response travels over the session's event
// stream, not this HTTP exchange.
func (g *Gateway) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	session, ok := g.registry.Lookup(sessionID)
	if !ok || session.Transport != TransportStream {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})

	go g.dispatchToStream(session, body)
}

// dispatchToStream runs one message through the dispatcher and queues the
// response on the session's event channel. Responses for sessions that went
// away in the meantime are dropped.
func (g *Gateway) dispatchToStream(session *Session, body []byte) {
	// The delivering HTTP request is already gone; give the dispatch its
	// own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	resp, _ := g.dispatcher.Dispatch(ctx, session, body)
	if resp == nil {
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		logging.Error("Gateway", err, "Failed to marshal response for session %s", logging.TruncateSessionID(session.ID))
		return
	}

	select {
	case session.Events <- payload:
	case <-session.Done():
	}
}

// HandleSync serves the request/response transport. Each request gets a
// transient session; the response comes back on the same HTTP exchange.
func (g *Gateway) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	session := newSession(syncSessionID(r), TransportSync, r.Header.Get("Authorization"))

	resp, authRequired := g.dispatcher.Dispatch(r.Context(), session, body)
	if resp == nil {
		// Notification: nothing to return beyond the ack.
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
		return
	}

	status := http.StatusOK
	if authRequired {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, resp)
}

// syncSessionID derives a stable session key for a sync request. Clients
// that send a session header keep their credential affinity across calls;
// the rest get a throwaway key.
func syncSessionID(r *http.Request) string {
	if id := r.Header.Get("Mcp-Session-Id"); id != "" && len(id) <= MaxSessionIDLength {
		return id
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
