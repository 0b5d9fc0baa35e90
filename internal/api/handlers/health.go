package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shuttle-pass/backend/internal/portal"
	"github.com/shuttle-pass/backend/internal/reservation"
	"github.com/shuttle-pass/backend/internal/storage"
	"github.com/shuttle-pass/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.Ping() == nil

		status := "healthy"
		if !dbConnected {
			status = "degraded"
		}

		response := HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
		}

		w.Header().Set("Content-Type", "application/json")
		if status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(response)
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	Authenticated    bool   `json:"authenticated"`
	Username         string `json:"username,omitempty"`
	ActivePass       bool   `json:"active_pass"`
	PassRoute        string `json:"pass_route,omitempty"`
	ConnectedClients int    `json:"connected_clients"`
}

// Status returns a handler that provides system status information.
func Status(client *portal.Client, orch *reservation.Orchestrator, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Authenticated:    client.Authenticated(),
			Username:         client.Username(),
			ConnectedClients: hub.ClientCount(),
		}
		if cur := orch.Current(); cur != nil {
			resp.ActivePass = true
			resp.PassRoute = cur.RouteName
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
