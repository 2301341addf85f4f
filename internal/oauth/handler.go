package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"

	"shopbridge/pkg/logging"
)

// Handler provides the collaborator-facing HTTP surface of the OAuth flow:
// authorization initiation, the provider callback, a status check, and a
// URL-only variant for callers that render the link themselves.
type Handler struct {
	manager *Manager
	shopKey string
}

// NewHandler creates the OAuth HTTP handler bound to the configured shop.
func NewHandler(manager *Manager, shopKey string) *Handler {
	return &Handler{manager: manager, shopKey: shopKey}
}

// Register attaches the OAuth endpoints to the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/oauth/authorize", h.HandleAuthorize)
	mux.HandleFunc("/oauth/authorize-url", h.HandleAuthorizeURL)
	mux.HandleFunc(h.manager.cfg.CallbackPath, h.HandleCallback)
	mux.HandleFunc("/oauth/status", h.HandleStatus)
}

// HandleAuthorize starts the flow by redirecting the browser to the
// provider's authorization endpoint.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	sessionKey := r.URL.Query().Get("session_id")
	if sessionKey == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}

	authURL, _, err := h.manager.BeginAuthorization(sessionKey, h.shopKey)
	if err != nil {
		logging.Error("OAuth", err, "Failed to begin authorization")
		http.Error(w, "failed to begin authorization", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleAuthorizeURL is the URL-only variant: it returns the authorization
// URL as JSON instead of redirecting.
func (h *Handler) HandleAuthorizeURL(w http.ResponseWriter, r *http.Request) {
	sessionKey := r.URL.Query().Get("session_id")
	if sessionKey == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}

	authURL, state, err := h.manager.BeginAuthorization(sessionKey, h.shopKey)
	if err != nil {
		logging.Error("OAuth", err, "Failed to begin authorization")
		http.Error(w, "failed to begin authorization", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"auth_url": authURL,
		"state":    state,
	})
}

// HandleCallback processes the provider redirect: it exchanges the code,
// persists the credential, and renders a result page.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	stateParam := r.URL.Query().Get("state")
	errorParam := r.URL.Query().Get("error")
	errorDesc := r.URL.Query().Get("error_description")

	if errorParam != "" {
		logging.Warn("OAuth", "Callback received error: %s - %s", errorParam, errorDesc)
		h.renderErrorPage(w, fmt.Sprintf("Authentication failed: %s", errorDesc))
		return
	}

	if code == "" || stateParam == "" {
		logging.Warn("OAuth", "Callback missing code or state parameter")
		h.renderErrorPage(w, "Invalid callback: missing required parameters")
		return
	}

	if _, err := h.manager.CompleteAuthorization(r.Context(), code, stateParam); err != nil {
		switch {
		case errors.Is(err, ErrInvalidState):
			logging.Warn("OAuth", "Callback with invalid or expired state")
			h.renderErrorPage(w, "Authentication session expired. Please try again.")
		default:
			var exchangeErr *TokenExchangeError
			if errors.As(err, &exchangeErr) {
				logging.Warn("OAuth", "Token exchange rejected: status=%d", exchangeErr.Status)
			} else {
				logging.Error("OAuth", err, "Failed to complete authorization")
			}
			h.renderErrorPage(w, "Failed to complete authentication. Please try again.")
		}
		return
	}

	h.renderSuccessPage(w)
}

// HandleStatus reports whether the session holds a valid credential.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	sessionKey := r.URL.Query().Get("session_id")
	if sessionKey == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}

	authenticated, expiresAt := h.manager.Status(sessionKey)
	payload := map[string]interface{}{
		"authenticated": authenticated,
	}
	if authenticated && !expiresAt.IsZero() {
		payload["expires_at"] = expiresAt
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

// setSecurityHeaders sets recommended security headers for HTML responses.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
}

func (h *Handler) renderSuccessPage(w http.ResponseWriter) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, resultPage, "Authentication Successful",
		"You are signed in. You can close this window and return to your conversation.")
}

func (h *Handler) renderErrorPage(w http.ResponseWriter, message string) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)

	fmt.Fprintf(w, resultPage, "Authentication Failed", html.EscapeString(message))
}

const resultPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex; align-items: center; justify-content: center;
            min-height: 100vh; margin: 0; background: #f6f6f7; color: #202223;
        }
        .card {
            background: #fff; border-radius: 12px; padding: 2.5rem;
            box-shadow: 0 1px 3px rgba(0,0,0,0.15); max-width: 420px; text-align: center;
        }
        h1 { font-size: 1.4rem; margin: 0 0 0.75rem; }
        p { color: #6d7175; line-height: 1.5; margin: 0; }
    </style>
</head>
<body>
    <div class="card">
        <h1>%[1]s</h1>
        <p>%[2]s</p>
    </div>
</body>
</html>`
