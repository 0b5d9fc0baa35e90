// Package history fetches the rider's ride history incrementally and
// keeps the locally merged, deduplicated set up to date.
package history

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/shuttle-pass/backend/internal/portal"
	"github.com/shuttle-pass/backend/internal/schedule"
	"github.com/shuttle-pass/backend/internal/storage/models"
)

// Portal is the listing surface the sync service needs.
type Portal interface {
	RideHistory(ctx context.Context, dateStart, dateEnd string) ([]portal.Appointment, error)
}

// Repository is the persistent merged history set plus its fetch
// watermark.
type Repository interface {
	List(ctx context.Context) ([]models.RideHistoryEntry, error)
	Merge(ctx context.Context, entries []models.RideHistoryEntry) ([]models.RideHistoryEntry, error)
	LastFetchDate(ctx context.Context) (time.Time, error)
	SetLastFetchDate(ctx context.Context, date time.Time) error
}

// SyncService fetches ride history for the window since the last fetch
// (minus one day of overlap, so boundary rides are never missed) and
// merges it by id into the stored set.
type SyncService struct {
	portal Portal
	repo   Repository
	now    func() time.Time
}

// NewSyncService creates a history sync service.
func NewSyncService(p Portal, repo Repository) *SyncService {
	return &SyncService{portal: p, repo: repo, now: schedule.ServiceNow}
}

// Cached returns the stored merged set without touching the network.
func (s *SyncService) Cached(ctx context.Context) ([]models.RideHistoryEntry, error) {
	return s.repo.List(ctx)
}

// Fetch retrieves new rides from the portal and returns the merged set.
// Rides the rider revoked are dropped before merging. The merge is
// idempotent, so overlapping windows are harmless.
func (s *SyncService) Fetch(ctx context.Context) ([]models.RideHistoryEntry, error) {
	today := s.now()

	last, err := s.repo.LastFetchDate(ctx)
	if err != nil {
		return nil, err
	}

	start := today.AddDate(-1, 0, 0)
	if !last.IsZero() {
		start = last.AddDate(0, 0, -1)
	}

	apps, err := s.portal.RideHistory(ctx, start.Format("2006-01-02"), today.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}

	entries := make([]models.RideHistoryEntry, 0, len(apps))
	for _, app := range apps {
		if app.StatusName == models.RideStatusRevoked {
			continue
		}
		entries = append(entries, models.RideHistoryEntry{
			ID:              app.ID,
			StatusName:      app.StatusName,
			RouteName:       app.ResourceName,
			AppointmentTime: strings.TrimSpace(app.AppointmentTime),
		})
	}

	merged, err := s.repo.Merge(ctx, entries)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetLastFetchDate(ctx, today); err != nil {
		log.Printf("Warning: failed to record history fetch date: %v", err)
	}

	log.Printf("Ride history fetch merged %d new entries (total %d)", len(entries), len(merged))
	return merged, nil
}
