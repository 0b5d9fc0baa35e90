// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shuttle-pass/backend/internal/api/handlers"
	"github.com/shuttle-pass/backend/internal/api/middleware"
	"github.com/shuttle-pass/backend/internal/history"
	"github.com/shuttle-pass/backend/internal/portal"
	"github.com/shuttle-pass/backend/internal/reservation"
	"github.com/shuttle-pass/backend/internal/schedule"
	"github.com/shuttle-pass/backend/internal/storage"
	"github.com/shuttle-pass/backend/internal/websocket"
)

// Services bundles the components the API exposes.
type Services struct {
	DB           *storage.DB
	Hub          *websocket.Hub
	Portal       *portal.Client
	Orchestrator *reservation.Orchestrator
	Schedule     *schedule.Fetcher
	History      *history.SyncService
	Credentials  *storage.CredentialRepository
	Settings     *storage.SettingsRepository
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services, staticDir string) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API subrouter
	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(s.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(s.Portal, s.Orchestrator, s.Hub)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub)).Methods("GET")

	// Session endpoints
	api.HandleFunc("/login", handlers.Login(s.Portal)).Methods("POST")
	api.HandleFunc("/logout", handlers.Logout(s.Portal)).Methods("POST")
	api.HandleFunc("/session", handlers.Session(s.Portal, s.Credentials)).Methods("GET")

	// Boarding pass endpoints
	api.HandleFunc("/pass", handlers.GetPass(s.Orchestrator)).Methods("GET")
	api.HandleFunc("/pass/reverse", handlers.ReversePass(s.Orchestrator)).Methods("POST")
	api.HandleFunc("/pass/cancel", handlers.CancelPass(s.Orchestrator)).Methods("POST")

	// Schedule endpoints
	api.HandleFunc("/schedule", handlers.GetSchedule(s.Schedule)).Methods("GET")
	api.HandleFunc("/schedule/refresh", handlers.RefreshSchedule(s.Orchestrator)).Methods("POST")

	// Ride history endpoint
	api.HandleFunc("/history", handlers.GetHistory(s.History)).Methods("GET")

	// Settings endpoints
	api.HandleFunc("/settings", handlers.GetSettings(s.Orchestrator)).Methods("GET")
	api.HandleFunc("/settings", handlers.UpdateSettings(s.Orchestrator, s.Settings)).Methods("PUT")

	// Serve static frontend files
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))

	return r
}
