package handlers

import (
	"net/http"

	"github.com/shuttle-pass/backend/internal/history"
	"github.com/shuttle-pass/backend/internal/storage/models"
)

// HistoryResponse is the rider's merged ride history, newest first.
type HistoryResponse struct {
	Rides []models.RideHistoryEntry `json:"rides"`
}

// GetHistory returns the cached ride history. ?fetch=true pulls new
// rides from the portal and merges them in first.
func GetHistory(svc *history.SyncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			rides []models.RideHistoryEntry
			err   error
		)
		if r.URL.Query().Get("fetch") == "true" {
			rides, err = svc.Fetch(r.Context())
		} else {
			rides, err = svc.Cached(r.Context())
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, HistoryResponse{Rides: rides})
	}
}
