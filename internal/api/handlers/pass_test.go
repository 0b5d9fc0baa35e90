package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shuttle-pass/backend/internal/config"
	"github.com/shuttle-pass/backend/internal/portal"
	"github.com/shuttle-pass/backend/internal/reservation"
	"github.com/shuttle-pass/backend/internal/storage/models"
)

type stubPortal struct {
	cancelErr error
	launches  int
}

func (s *stubPortal) Launch(ctx context.Context, resourceID int, date string, period int) error {
	s.launches++
	return nil
}

func (s *stubPortal) MyReservations(ctx context.Context) ([]portal.Appointment, error) {
	return []portal.Appointment{
		{ID: 9001, ResourceID: 2, AppointmentTime: "2025-03-10 08:40:00", DataID: 77},
		{ID: 9002, ResourceID: 6, AppointmentTime: "2025-03-10 08:50:00", DataID: 88},
	}, nil
}

func (s *stubPortal) TempQRCode(ctx context.Context, resourceID int, startTime string) (portal.QRPayload, error) {
	return portal.QRPayload{Code: "QR-TEMP"}, nil
}

func (s *stubPortal) BoundQRCode(ctx context.Context, appointmentID, dataID int) (portal.QRPayload, error) {
	return portal.QRPayload{Code: "QR-BOUND"}, nil
}

func (s *stubPortal) CancelReservation(ctx context.Context, appointmentID, dataID int) error {
	return s.cancelErr
}

type stubSchedule struct{}

func (stubSchedule) Today(ctx context.Context) ([]models.Resource, error) {
	return []models.Resource{
		{ID: 2, Name: "燕园-新校区", Slots: []models.TimeSlot{
			{SlotID: 101, Date: "2025-03-10", StartTime: "08:40", Margin: 5},
		}},
		{ID: 6, Name: "新校区-燕园", Slots: []models.TimeSlot{
			{SlotID: 201, Date: "2025-03-10", StartTime: "08:50", Margin: 3},
		}},
	}, nil
}

func (s stubSchedule) Refresh(ctx context.Context) ([]models.Resource, error) {
	return s.Today(ctx)
}

func testOrchestrator(p *stubPortal) *reservation.Orchestrator {
	cfg := config.Default().Decision
	clock := func() time.Time {
		return time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)
	}
	return reservation.NewWithClock(p, stubSchedule{}, cfg, nil, nil, clock)
}

func decodePass(t *testing.T, rr *httptest.ResponseRecorder) PassResponse {
	t.Helper()
	var resp PassResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

func TestGetPassIssuesAndThenServesCurrent(t *testing.T) {
	p := &stubPortal{}
	orch := testOrchestrator(p)
	handler := GetPass(orch)

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest("GET", "/api/pass", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	first := decodePass(t, rr)
	if first.Pass == nil || first.Pass.Code != "QR-BOUND" {
		t.Fatalf("pass = %+v", first.Pass)
	}

	// A second plain GET returns the held pass without reissuing.
	rr = httptest.NewRecorder()
	handler(rr, httptest.NewRequest("GET", "/api/pass", nil))
	second := decodePass(t, rr)
	if second.Pass == nil || second.Pass.Code != first.Pass.Code {
		t.Error("second GET did not serve the held pass")
	}
	if p.launches != 1 {
		t.Errorf("launches = %d, want 1 (held pass must not be reissued)", p.launches)
	}
}

func TestGetPassBadDirection(t *testing.T) {
	rr := httptest.NewRecorder()
	GetPass(testOrchestrator(&stubPortal{}))(rr, httptest.NewRequest("GET", "/api/pass?direction=sideways", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestReversePassReportsFailedCancel(t *testing.T) {
	p := &stubPortal{}
	orch := testOrchestrator(p)

	rr := httptest.NewRecorder()
	GetPass(orch)(rr, httptest.NewRequest("GET", "/api/pass", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("issuing pass: %d", rr.Code)
	}

	p.cancelErr = errors.New("portal said no")
	rr = httptest.NewRecorder()
	ReversePass(orch)(rr, httptest.NewRequest("POST", "/api/pass/reverse", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with warning", rr.Code)
	}
	resp := decodePass(t, rr)
	if !resp.CancelFailed {
		t.Error("cancel_failed not set")
	}
	if resp.Pass == nil || resp.Pass.RouteID != 6 {
		t.Errorf("pass = %+v, want the opposite-direction one", resp.Pass)
	}
}

func TestCancelPassWithoutPass(t *testing.T) {
	rr := httptest.NewRecorder()
	CancelPass(testOrchestrator(&stubPortal{}))(rr, httptest.NewRequest("POST", "/api/pass/cancel", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
