package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shuttle-pass/backend/internal/api/middleware"
	"github.com/shuttle-pass/backend/internal/portal"
	"github.com/shuttle-pass/backend/internal/storage"
)

// LoginRequest carries the rider's portal credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionResponse describes the rider session state.
type SessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	Name          string `json:"name,omitempty"`
	Department    string `json:"department,omitempty"`
}

// Login replaces the stored credentials and authenticates against the
// portal. On success the credentials are persisted for silent re-login.
func Login(client *portal.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "invalid request body")
			return
		}
		if req.Username == "" || req.Password == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "username and password are required")
			return
		}

		client.SetCredentials(req.Username, req.Password)
		if err := client.Authenticate(r.Context()); err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SessionResponse{Authenticated: true, Username: req.Username})
	}
}

// Logout drops the live portal session. Stored credentials are kept so
// the next request can re-authenticate silently.
func Logout(client *portal.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client.Invalidate()
		writeJSON(w, http.StatusOK, SessionResponse{Authenticated: false})
	}
}

// Session reports whether a rider session is live, with the identity
// metadata observed so far.
func Session(client *portal.Client, creds *storage.CredentialRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := SessionResponse{
			Authenticated: client.Authenticated(),
			Username:      client.Username(),
		}
		if resp.Username != "" {
			if id, err := creds.Identity(r.Context(), resp.Username); err == nil {
				resp.Name = id.Name
				resp.Department = id.Department
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
