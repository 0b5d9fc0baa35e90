package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shuttle-pass/backend/internal/api/middleware"
	"github.com/shuttle-pass/backend/internal/reservation"
	"github.com/shuttle-pass/backend/internal/selection"
)

// PassResponse wraps a boarding pass for the API.
type PassResponse struct {
	Pass         *reservation.BoardingPass `json:"pass"`
	CancelFailed bool                      `json:"cancel_failed,omitempty"`
}

// parseDirection maps the optional ?direction= query parameter onto a
// forced direction, nil when absent.
func parseDirection(raw string) (*selection.Direction, error) {
	switch raw {
	case "":
		return nil, nil
	case "inbound":
		d := selection.Inbound
		return &d, nil
	case "outbound":
		d := selection.Outbound
		return &d, nil
	default:
		return nil, fmt.Errorf("unknown direction %q", raw)
	}
}

// GetPass returns the rider's boarding pass, issuing one when none is
// held yet. ?direction= forces a direction (and always issues fresh);
// ?renew=true reissues even when a pass is already held.
func GetPass(orch *reservation.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		forced, err := parseDirection(r.URL.Query().Get("direction"))
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, err.Error())
			return
		}

		renew := r.URL.Query().Get("renew") == "true"
		if forced == nil && !renew {
			if cur := orch.Current(); cur != nil {
				writeJSON(w, http.StatusOK, PassResponse{Pass: cur})
				return
			}
		}

		pass, err := orch.BoardNow(r.Context(), forced)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, PassResponse{Pass: pass})
	}
}

// ReversePass issues a pass for the opposite direction and then
// withdraws the previous reservation. A failed withdrawal is reported
// alongside the new pass rather than failing the request.
func ReversePass(orch *reservation.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pass, err := orch.Reverse(r.Context())
		if err != nil {
			if errors.Is(err, reservation.ErrCancellationFailure) && pass != nil {
				writeJSON(w, http.StatusOK, PassResponse{Pass: pass, CancelFailed: true})
				return
			}
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, PassResponse{Pass: pass})
	}
}

// CancelPass withdraws the reservation behind the current pass and
// drops the pass.
func CancelPass(orch *reservation.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := orch.CancelCurrent(r.Context()); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}
