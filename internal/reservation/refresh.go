package reservation

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shuttle-pass/backend/internal/observability"
	"github.com/shuttle-pass/backend/internal/storage/models"
)

// ErrRefreshSuperseded is returned to a refresh whose result arrived
// after a newer manual refresh had started. The underlying fetch ran to
// completion; only its result is discarded, never merged.
var ErrRefreshSuperseded = errors.New("refresh superseded by a newer one")

// autoRefreshTimeout bounds the background fetch so a hung portal call
// cannot pile up cron firings.
const autoRefreshTimeout = 2 * time.Minute

// RefreshSchedule re-fetches today's schedule. Manual and automatic
// refreshes are mutually exclusive: an automatic refresh is skipped
// while any refresh is in flight, while a manual one always proceeds
// and supersedes whatever was running; the stale in-flight result is
// discarded when it eventually lands.
func (o *Orchestrator) RefreshSchedule(ctx context.Context, manual bool) ([]models.Resource, error) {
	trigger := "auto"
	if manual {
		trigger = "manual"
	}

	o.refreshMu.Lock()
	if o.refreshInflight && !manual {
		o.refreshMu.Unlock()
		observability.ScheduleRefreshes.WithLabelValues(trigger, "skipped").Inc()
		return nil, nil
	}
	o.refreshGen++
	gen := o.refreshGen
	o.refreshInflight = true
	o.refreshMu.Unlock()

	resources, err := o.schedule.Refresh(ctx)

	o.refreshMu.Lock()
	superseded := gen != o.refreshGen
	if !superseded {
		o.refreshInflight = false
	}
	o.refreshMu.Unlock()

	if superseded {
		observability.ScheduleRefreshes.WithLabelValues(trigger, "superseded").Inc()
		return nil, ErrRefreshSuperseded
	}

	if err != nil {
		observability.ScheduleRefreshes.WithLabelValues(trigger, "error").Inc()
		if o.notify != nil {
			o.notify.RefreshFailed(trigger, err)
		}
		return nil, err
	}

	observability.ScheduleRefreshes.WithLabelValues(trigger, "ok").Inc()
	if o.notify != nil {
		o.notify.ScheduleRefreshed(len(resources), trigger)
	}
	return resources, nil
}

// AutoRefresh is the cron entry point for idle refresh.
func (o *Orchestrator) AutoRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), autoRefreshTimeout)
	defer cancel()

	if _, err := o.RefreshSchedule(ctx, false); err != nil && !errors.Is(err, ErrRefreshSuperseded) {
		log.Printf("Idle schedule refresh failed: %v", err)
	}
}
