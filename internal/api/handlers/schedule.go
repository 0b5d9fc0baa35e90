package handlers

import (
	"net/http"

	"github.com/shuttle-pass/backend/internal/reservation"
	"github.com/shuttle-pass/backend/internal/schedule"
	"github.com/shuttle-pass/backend/internal/storage/models"
)

// ScheduleResponse is today's route schedule.
type ScheduleResponse struct {
	Date   string            `json:"date"`
	Routes []models.Resource `json:"routes"`
}

// GetSchedule returns today's schedule, served from the cache when a
// row for the current service date exists.
func GetSchedule(fetcher *schedule.Fetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routes, err := fetcher.Today(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ScheduleResponse{
			Date:   schedule.ServiceNow().Format("2006-01-02"),
			Routes: routes,
		})
	}
}

// RefreshSchedule forces a fetch from the portal, superseding any
// refresh already in flight.
func RefreshSchedule(orch *reservation.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routes, err := orch.RefreshSchedule(r.Context(), true)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ScheduleResponse{
			Date:   schedule.ServiceNow().Format("2006-01-02"),
			Routes: routes,
		})
	}
}
