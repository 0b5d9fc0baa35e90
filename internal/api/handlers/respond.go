// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shuttle-pass/backend/internal/api/middleware"
	"github.com/shuttle-pass/backend/internal/portal"
	"github.com/shuttle-pass/backend/internal/reservation"
	"github.com/shuttle-pass/backend/internal/selection"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeServiceError maps domain errors onto API error responses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, portal.ErrAuth):
		middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, err.Error())
	case errors.Is(err, selection.ErrNoMatch):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNoRoute, err.Error())
	case errors.Is(err, reservation.ErrNoActivePass):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNoPass, err.Error())
	case errors.Is(err, reservation.ErrRefreshSuperseded):
		middleware.WriteError(w, http.StatusConflict, middleware.ErrSuperseded, err.Error())
	case errors.Is(err, portal.ErrNetwork),
		errors.Is(err, portal.ErrRemoteRejection),
		errors.Is(err, portal.ErrDecode):
		middleware.WriteError(w, http.StatusBadGateway, middleware.ErrRemote, err.Error())
	default:
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, err.Error())
	}
}
