package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/shuttle-pass/backend/internal/api/middleware"
	"github.com/shuttle-pass/backend/internal/reservation"
	"github.com/shuttle-pass/backend/internal/storage"
)

// GetSettings returns the decision tunables currently in effect.
func GetSettings(orch *reservation.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, orch.Decision())
	}
}

// UpdateSettings applies and persists decision tunable overrides.
// Fields omitted from the body keep their current values.
func UpdateSettings(orch *reservation.Orchestrator, repo *storage.SettingsRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := orch.Decision()
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "invalid request body")
			return
		}
		if err := cfg.Validate(); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		if err := repo.SaveDecision(r.Context(), cfg); err != nil {
			writeServiceError(w, err)
			return
		}
		orch.SetDecision(cfg)
		writeJSON(w, http.StatusOK, cfg)
	}
}
