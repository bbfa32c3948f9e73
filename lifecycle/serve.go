package lifecycle

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/Seann-Moser/integrations/integration"
	"github.com/Seann-Moser/integrations/session"
)

// Server exposes the lifecycle API over HTTP. Every route requires a signed-in
// session; the user id always comes from the session, never from the request.
type Server struct {
	Manager       *Manager
	SessionSecret []byte
}

// NewServer creates a new Server instance.
func NewServer(manager *Manager, sessionSecret []byte) *Server {
	return &Server{Manager: manager, SessionSecret: sessionSecret}
}

// writeJSON helper sends a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error writing JSON response: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// writeError helper sends a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes attaches the lifecycle endpoints to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /integrations/connect", session.RequireUser(s.SessionSecret, http.HandlerFunc(s.ConnectHandler)))
	mux.Handle("POST /integrations/disconnect", session.RequireUser(s.SessionSecret, http.HandlerFunc(s.DisconnectHandler)))
	mux.Handle("GET /integrations/status", session.RequireUser(s.SessionSecret, http.HandlerFunc(s.StatusHandler)))
}

// ConnectHandler stores a completed authorization as the session user's
// integration.
func (s *Server) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	ses, err := session.GetSession(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var in ConnectInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status, err := s.Manager.Connect(r.Context(), ses.UserID, in)
	if err != nil {
		log.Printf("Connect failed for user %s provider %s: %v", ses.UserID, in.Provider, err)
		if errors.Is(err, ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to connect integration")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// DisconnectHandler removes the session user's integration for the provider.
func (s *Server) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	ses, err := session.GetSession(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	providerName := r.URL.Query().Get("provider")
	if providerName == "" {
		var body struct {
			Provider string `json:"provider"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			providerName = body.Provider
		}
	}
	if providerName == "" {
		writeError(w, http.StatusBadRequest, "provider is required")
		return
	}
	if err := s.Manager.Disconnect(r.Context(), ses.UserID, providerName); err != nil {
		log.Printf("Disconnect failed for user %s provider %s: %v", ses.UserID, providerName, err)
		writeError(w, http.StatusInternalServerError, "failed to disconnect integration")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// StatusHandler reports the state of the session user's integration.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	ses, err := session.GetSession(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	providerName := r.URL.Query().Get("provider")
	if providerName == "" {
		writeError(w, http.StatusBadRequest, "provider is required")
		return
	}
	status, err := s.Manager.GetStatus(r.Context(), ses.UserID, providerName)
	if err != nil {
		if errors.Is(err, integration.ErrNotFound) {
			writeJSON(w, http.StatusOK, &Status{Provider: providerName})
			return
		}
		log.Printf("Status failed for user %s provider %s: %v", ses.UserID, providerName, err)
		writeError(w, http.StatusInternalServerError, "failed to load integration status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}
