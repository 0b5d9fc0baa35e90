// Package schedule fetches and caches the day's shuttle timetable.
package schedule

import (
	"context"
	"log"
	"time"

	"github.com/shuttle-pass/backend/internal/storage/models"
)

// serviceZone is the portal's fixed time zone (UTC+8, no DST). "Today"
// is always evaluated in this zone, whatever the host is set to.
var serviceZone = time.FixedZone("CST", 8*60*60)

// ServiceNow returns the current time in the portal's time zone.
func ServiceNow() time.Time {
	return time.Now().In(serviceZone)
}

// Lister is the portal surface the fetcher needs.
type Lister interface {
	ListResources(ctx context.Context, date string) ([]models.Resource, error)
}

// Cache is the persistent day-schedule cache.
type Cache interface {
	GetFor(ctx context.Context, date string) ([]models.Resource, error)
	Put(ctx context.Context, date string, resources []models.Resource) error
}

// Fetcher returns today's schedule, from cache when it is still dated
// today, from the portal otherwise. Decode failures are surfaced and
// never cached.
type Fetcher struct {
	portal Lister
	cache  Cache
	now    func() time.Time
}

// NewFetcher creates a fetcher. cache may be nil, which disables
// caching entirely (used by tests).
func NewFetcher(portal Lister, cache Cache) *Fetcher {
	return &Fetcher{portal: portal, cache: cache, now: ServiceNow}
}

// Today returns the schedule for the current service-zone date.
func (f *Fetcher) Today(ctx context.Context) ([]models.Resource, error) {
	date := f.now().Format("2006-01-02")

	if f.cache != nil {
		cached, err := f.cache.GetFor(ctx, date)
		if err != nil {
			// A broken cache read falls through to the network rather
			// than failing the whole request.
			log.Printf("Warning: schedule cache read failed: %v", err)
		}
		if len(cached) > 0 {
			return cached, nil
		}
	}

	return f.Refresh(ctx)
}

// Refresh fetches today's schedule from the portal unconditionally and
// replaces the cached entry. Used by manual and idle refresh.
func (f *Fetcher) Refresh(ctx context.Context) ([]models.Resource, error) {
	date := f.now().Format("2006-01-02")

	resources, err := f.portal.ListResources(ctx, date)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		if err := f.cache.Put(ctx, date, resources); err != nil {
			log.Printf("Warning: schedule cache write failed: %v", err)
		}
	}
	return resources, nil
}
