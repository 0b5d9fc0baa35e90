// Package reservation drives the remote call sequences that turn a
// selected shuttle run into a boarding credential, and the cancel and
// reverse operations on top of them.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shuttle-pass/backend/internal/config"
	"github.com/shuttle-pass/backend/internal/credential"
	"github.com/shuttle-pass/backend/internal/observability"
	"github.com/shuttle-pass/backend/internal/portal"
	"github.com/shuttle-pass/backend/internal/schedule"
	"github.com/shuttle-pass/backend/internal/selection"
	"github.com/shuttle-pass/backend/internal/storage/models"
)

// ErrCancellationFailure marks a reverse whose new reservation was
// secured but whose predecessor could not be cancelled. The new pass is
// still returned alongside it and must not be discarded.
var ErrCancellationFailure = errors.New("previous reservation could not be cancelled")

// ErrNoActivePass is returned by cancel and reverse when the rider is
// not holding a credential.
var ErrNoActivePass = errors.New("no active boarding pass")

// Reservation is the remote handle of a booked future run. Temp codes
// for departed runs have no reservation record.
type Reservation struct {
	AppointmentID int `json:"appointment_id"`
	DataID        int `json:"data_id"`
}

// BoardingPass is a materialized boarding credential plus the metadata
// a front end needs to render it.
type BoardingPass struct {
	Code        string                `json:"code"`
	RouteID     int                   `json:"route_id"`
	RouteName   string                `json:"route_name"`
	Date        string                `json:"date"`
	StartTime   string                `json:"start_time"`
	IsPast      bool                  `json:"is_past"`
	Identity    models.RiderIdentity  `json:"identity"`
	Reservation *Reservation          `json:"reservation,omitempty"`
	IssuedAt    time.Time             `json:"issued_at"`
}

// PortalAPI is the slice of the portal client the orchestrator uses.
type PortalAPI interface {
	Launch(ctx context.Context, resourceID int, date string, period int) error
	MyReservations(ctx context.Context) ([]portal.Appointment, error)
	TempQRCode(ctx context.Context, resourceID int, startTime string) (portal.QRPayload, error)
	BoundQRCode(ctx context.Context, appointmentID, dataID int) (portal.QRPayload, error)
	CancelReservation(ctx context.Context, appointmentID, dataID int) error
}

// ScheduleSource provides today's resources, cached or fresh.
type ScheduleSource interface {
	Today(ctx context.Context) ([]models.Resource, error)
	Refresh(ctx context.Context) ([]models.Resource, error)
}

// IdentitySink receives rider identity metadata observed in portal
// responses. Persistence failures are logged, never fatal.
type IdentitySink interface {
	SaveIdentity(ctx context.Context, id models.RiderIdentity) error
}

// Notifier receives state-change events for connected front ends.
type Notifier interface {
	PassIssued(pass *BoardingPass)
	PassReversed(pass *BoardingPass, cancelFailed bool)
	PassCancelled()
	ScheduleRefreshed(routes int, trigger string)
	RefreshFailed(trigger string, err error)
}

// Orchestrator coordinates session, schedule, selection and the remote
// reservation sequences for a single rider.
type Orchestrator struct {
	portal   PortalAPI
	schedule ScheduleSource
	identity IdentitySink
	notify   Notifier
	now      func() time.Time

	cfgMu sync.RWMutex
	cfg   config.Decision

	mu      sync.Mutex
	current *BoardingPass

	refreshMu       sync.Mutex
	refreshInflight bool
	refreshGen      uint64
}

// New creates an orchestrator. identity and notify may be nil.
func New(p PortalAPI, s ScheduleSource, cfg config.Decision, identity IdentitySink, notify Notifier) *Orchestrator {
	return NewWithClock(p, s, cfg, identity, notify, schedule.ServiceNow)
}

// NewWithClock creates an orchestrator with an injected clock.
func NewWithClock(p PortalAPI, s ScheduleSource, cfg config.Decision, identity IdentitySink, notify Notifier, now func() time.Time) *Orchestrator {
	return &Orchestrator{
		portal:   p,
		schedule: s,
		cfg:      cfg,
		identity: identity,
		notify:   notify,
		now:      now,
	}
}

// Decision returns the decision parameters currently in effect.
func (o *Orchestrator) Decision() config.Decision {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.cfg
}

// SetDecision replaces the decision parameters. Subsequent selections
// use the new values; a pass already held is unaffected.
func (o *Orchestrator) SetDecision(cfg config.Decision) {
	o.cfgMu.Lock()
	o.cfg = cfg
	o.cfgMu.Unlock()
}

// Current returns the pass the rider is holding, or nil.
func (o *Orchestrator) Current() *BoardingPass {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// BoardNow answers "what should I board right now": select a run for
// the current time and materialize a credential for it. forced, when
// non-nil, overrides direction inference.
func (o *Orchestrator) BoardNow(ctx context.Context, forced *selection.Direction) (*BoardingPass, error) {
	resources, err := o.schedule.Today(ctx)
	if err != nil {
		return nil, err
	}

	sel, err := selection.Select(resources, o.now(), o.Decision(), forced)
	if err != nil {
		return nil, err
	}

	pass, err := o.materialize(ctx, sel)
	if err != nil {
		return nil, err
	}

	o.setCurrent(pass)
	if o.notify != nil {
		o.notify.PassIssued(pass)
	}
	return pass, nil
}

// materialize executes the remote sequence matching the selection's
// classification and returns the resulting pass.
func (o *Orchestrator) materialize(ctx context.Context, sel selection.Result) (*BoardingPass, error) {
	if sel.Class == selection.Past {
		return o.materializeTemp(ctx, sel)
	}
	return o.materializeReserved(ctx, sel)
}

// materializeTemp fetches a temporary code for an already-departed run.
// The portal issues these without creating a reservation record.
func (o *Orchestrator) materializeTemp(ctx context.Context, sel selection.Result) (*BoardingPass, error) {
	payload, err := o.portal.TempQRCode(ctx, sel.ResourceID, sel.StartTime)
	if err != nil {
		return nil, err
	}

	cred, err := credential.Decode(payload)
	if err != nil {
		return nil, err
	}
	o.saveIdentity(ctx, cred.Identity)

	observability.PassesIssued.WithLabelValues("temp").Inc()
	log.Printf("Issued temp code for route %q departing %s", sel.ResourceName, sel.StartTime)
	return o.newPass(sel, cred, nil), nil
}

// materializeReserved books the slot, finds the resulting reservation
// in the rider's listing, and fetches the bound QR code.
func (o *Orchestrator) materializeReserved(ctx context.Context, sel selection.Result) (*BoardingPass, error) {
	if err := o.portal.Launch(ctx, sel.ResourceID, sel.Date, sel.SlotID); err != nil {
		return nil, err
	}

	apps, err := o.portal.MyReservations(ctx)
	if err != nil {
		return nil, err
	}

	app, ok := findAppointment(apps, sel)
	if !ok {
		return nil, fmt.Errorf("%w: launched reservation missing from listing", portal.ErrDecode)
	}
	o.saveIdentity(ctx, credential.FromAppointment(app))

	payload, err := o.portal.BoundQRCode(ctx, app.ID, app.DataID)
	if err != nil {
		return nil, err
	}

	cred, err := credential.Decode(payload)
	if err != nil {
		return nil, err
	}

	observability.PassesIssued.WithLabelValues("reserved").Inc()
	log.Printf("Reserved route %q departing %s (appointment %d)", sel.ResourceName, sel.StartTime, app.ID)
	return o.newPass(sel, cred, &Reservation{AppointmentID: app.ID, DataID: app.DataID}), nil
}

// findAppointment locates the listing entry created by the launch call:
// same route, scheduled today at the selected departure time.
func findAppointment(apps []portal.Appointment, sel selection.Result) (portal.Appointment, bool) {
	want := sel.Date + " " + sel.StartTime
	for _, app := range apps {
		if app.ResourceID != sel.ResourceID {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(app.AppointmentTime), want) {
			return app, true
		}
	}
	return portal.Appointment{}, false
}

// Cancel cancels the given reservation remotely.
func (o *Orchestrator) Cancel(ctx context.Context, res Reservation) error {
	return o.portal.CancelReservation(ctx, res.AppointmentID, res.DataID)
}

// CancelCurrent cancels the pass the rider is holding. Temp codes have
// nothing to cancel and just clear the held state.
func (o *Orchestrator) CancelCurrent(ctx context.Context) error {
	cur := o.Current()
	if cur == nil {
		return ErrNoActivePass
	}

	if cur.Reservation != nil {
		if err := o.Cancel(ctx, *cur.Reservation); err != nil {
			return err
		}
	}

	o.setCurrent(nil)
	if o.notify != nil {
		o.notify.PassCancelled()
	}
	log.Printf("Cancelled pass for route %q departing %s", cur.RouteName, cur.StartTime)
	return nil
}

// Reverse trades the current pass for one in the opposite direction.
// The new credential is created first; only then is the old reservation
// cancelled. If that cancel fails the new pass is kept and returned
// together with ErrCancellationFailure; a secured reservation is never
// rolled back because its predecessor would not die.
func (o *Orchestrator) Reverse(ctx context.Context) (*BoardingPass, error) {
	cur := o.Current()
	if cur == nil {
		return nil, ErrNoActivePass
	}

	dir, ok := selection.DirectionOf(cur.RouteID, o.Decision())
	if !ok {
		return nil, fmt.Errorf("route %d belongs to no direction partition", cur.RouteID)
	}
	opposite := dir.Opposite()

	resources, err := o.schedule.Today(ctx)
	if err != nil {
		return nil, err
	}

	sel, err := selection.Select(resources, o.now(), o.Decision(), &opposite)
	if err != nil {
		return nil, err
	}

	newPass, err := o.materialize(ctx, sel)
	if err != nil {
		return nil, err
	}
	o.setCurrent(newPass)

	var cancelErr error
	if cur.Reservation != nil {
		cancelErr = o.Cancel(ctx, *cur.Reservation)
	}

	if o.notify != nil {
		o.notify.PassReversed(newPass, cancelErr != nil)
	}

	if cancelErr != nil {
		log.Printf("Reverse kept new pass but old appointment %d survived: %v",
			cur.Reservation.AppointmentID, cancelErr)
		return newPass, fmt.Errorf("%w: %v", ErrCancellationFailure, cancelErr)
	}

	log.Printf("Reversed to route %q departing %s", newPass.RouteName, newPass.StartTime)
	return newPass, nil
}

func (o *Orchestrator) newPass(sel selection.Result, cred credential.Credential, res *Reservation) *BoardingPass {
	return &BoardingPass{
		Code:        cred.Code,
		RouteID:     sel.ResourceID,
		RouteName:   sel.ResourceName,
		Date:        sel.Date,
		StartTime:   sel.StartTime,
		IsPast:      sel.Class == selection.Past,
		Identity:    cred.Identity,
		Reservation: res,
		IssuedAt:    o.now(),
	}
}

func (o *Orchestrator) setCurrent(pass *BoardingPass) {
	o.mu.Lock()
	o.current = pass
	o.mu.Unlock()
}

func (o *Orchestrator) saveIdentity(ctx context.Context, id models.RiderIdentity) {
	if o.identity == nil || id == (models.RiderIdentity{}) {
		return
	}
	if err := o.identity.SaveIdentity(ctx, id); err != nil {
		log.Printf("Warning: failed to persist rider identity: %v", err)
	}
}
