package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shuttle-pass/backend/internal/storage/models"
)

// ScheduleCacheRepository stores the fetched day schedule keyed by
// calendar date. Only one date is ever relevant; older rows are pruned
// on write.
type ScheduleCacheRepository struct {
	BaseRepository
}

// NewScheduleCacheRepository creates a new schedule cache repository.
func NewScheduleCacheRepository(db *DB) *ScheduleCacheRepository {
	return &ScheduleCacheRepository{BaseRepository: NewBaseRepository(db)}
}

// GetFor returns the cached schedule for the given date, or nil when no
// entry for that exact date exists. A row for any other date is never
// returned, which is what forces a network refresh after date rollover.
func (r *ScheduleCacheRepository) GetFor(ctx context.Context, date string) ([]models.Resource, error) {
	var raw string
	err := r.DB().QueryRowContext(ctx,
		`SELECT resources FROM schedule_cache WHERE date = ?`, date,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying schedule cache: %w", err)
	}

	var resources []models.Resource
	if err := json.Unmarshal([]byte(raw), &resources); err != nil {
		return nil, fmt.Errorf("decoding cached schedule: %w", err)
	}
	return resources, nil
}

// Put stores the schedule for the given date, replacing any previous
// entry for that date and discarding rows for other (stale) dates.
func (r *ScheduleCacheRepository) Put(ctx context.Context, date string, resources []models.Resource) error {
	raw, err := json.Marshal(resources)
	if err != nil {
		return fmt.Errorf("encoding schedule: %w", err)
	}

	return r.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_cache WHERE date != ?`, date); err != nil {
			return fmt.Errorf("pruning stale schedule cache: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_cache (date, resources, fetched_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(date) DO UPDATE SET resources = excluded.resources, fetched_at = CURRENT_TIMESTAMP
		`, date, string(raw))
		if err != nil {
			return fmt.Errorf("storing schedule cache: %w", err)
		}
		return nil
	})
}
