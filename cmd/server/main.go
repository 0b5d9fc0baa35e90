// Package main is the entry point for the shuttle boarding pass server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shuttle-pass/backend/internal/api"
	"github.com/shuttle-pass/backend/internal/config"
	"github.com/shuttle-pass/backend/internal/history"
	"github.com/shuttle-pass/backend/internal/portal"
	"github.com/shuttle-pass/backend/internal/reservation"
	"github.com/shuttle-pass/backend/internal/schedule"
	"github.com/shuttle-pass/backend/internal/storage"
	"github.com/shuttle-pass/backend/internal/storage/models"
	"github.com/shuttle-pass/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

// riderIdentitySink persists identity metadata observed in portal
// responses under the active rider's username.
type riderIdentitySink struct {
	repo   *storage.CredentialRepository
	client *portal.Client
}

func (s *riderIdentitySink) SaveIdentity(ctx context.Context, id models.RiderIdentity) error {
	username := s.client.Username()
	if username == "" {
		return nil
	}
	return s.repo.PutIdentity(ctx, username, id)
}

func main() {
	// Parse command-line flags
	addr := flag.String("addr", ":8088", "HTTP server address")
	dataDir := flag.String("data", "/data", "Data directory for SQLite database")
	staticDir := flag.String("static", "./static", "Directory for static frontend files")
	configPath := flag.String("config", "", "Optional YAML config file")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(*addr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	log.Printf("Starting shuttle boarding pass server (version: %s)...", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory %q: %v", *dataDir, err)
	}
	dbPath := *dataDir + "/shuttle-pass.db"
	db, err := storage.NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := storage.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations complete")

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()

	// Initialize repositories
	credRepo := storage.NewCredentialRepository(db)
	scheduleRepo := storage.NewScheduleCacheRepository(db)
	historyRepo := storage.NewRideHistoryRepository(db)
	settingsRepo := storage.NewSettingsRepository(db)

	// Portal client; credentials come from the store, or from the
	// environment on first run.
	client := portal.NewClient(cfg.Remote, credRepo)
	if user := os.Getenv("SHUTTLE_USERNAME"); user != "" {
		client.SetCredentials(user, os.Getenv("SHUTTLE_PASSWORD"))
	}

	// Stored settings override the config file's decision tunables.
	decision, err := settingsRepo.LoadDecision(context.Background(), cfg.Decision)
	if err != nil {
		log.Printf("Warning: Failed to load stored settings, using config defaults: %v", err)
		decision = cfg.Decision
	}

	fetcher := schedule.NewFetcher(client, scheduleRepo)
	broadcaster := websocket.NewEventBroadcaster(hub)
	sink := &riderIdentitySink{repo: credRepo, client: client}
	orch := reservation.New(client, fetcher, decision, sink, broadcaster)
	historySvc := history.NewSyncService(client, historyRepo)

	// Idle schedule refresh
	refreshScheduler := schedule.NewRefreshScheduler(orch, cfg.RefreshInterval)
	refreshScheduler.Start()

	// Initialize HTTP router with services
	router := api.NewRouter(api.Services{
		DB:           db,
		Hub:          hub,
		Portal:       client,
		Orchestrator: orch,
		Schedule:     fetcher,
		History:      historySvc,
		Credentials:  credRepo,
		Settings:     settingsRepo,
	}, *staticDir)

	// Create HTTP server
	server := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("Server listening on %s", *addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	refreshScheduler.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %s", resp.Status)
	}
	return nil
}
