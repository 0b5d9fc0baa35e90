package schedule

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher is the single-flight refresh entry point the scheduler
// drives. Automatic refreshes yield to any manual one in flight.
type Refresher interface {
	AutoRefresh()
}

// RefreshScheduler periodically refreshes the cached schedule while the
// service is idle, so a rider opening a front end sees current data.
type RefreshScheduler struct {
	cron      *cron.Cron
	refresher Refresher
	interval  time.Duration
}

// NewRefreshScheduler creates a scheduler. A non-positive interval
// disables it.
func NewRefreshScheduler(refresher Refresher, interval time.Duration) *RefreshScheduler {
	return &RefreshScheduler{
		cron:      cron.New(),
		refresher: refresher,
		interval:  interval,
	}
}

// Start begins periodic refresh.
func (s *RefreshScheduler) Start() {
	if s.interval <= 0 {
		log.Println("Idle schedule refresh disabled")
		return
	}

	s.cron.AddFunc("@every "+s.interval.String(), func() {
		s.refresher.AutoRefresh()
	})
	s.cron.Start()
	log.Printf("Idle schedule refresh started (every %s)", s.interval)
}

// Stop gracefully shuts down the scheduler.
func (s *RefreshScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Idle schedule refresh stopped")
}
