package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shuttle-pass/backend/internal/storage/models"
)

const lastHistoryFetchKey = "ride_history_last_fetch"

// RideHistoryRepository stores the deduplicated ride history set and the
// watermark of the last fetch. The watermark drives the incremental date
// range of the next fetch; it is never invalidated by date rollover.
type RideHistoryRepository struct {
	BaseRepository
}

// NewRideHistoryRepository creates a new ride history repository.
func NewRideHistoryRepository(db *DB) *RideHistoryRepository {
	return &RideHistoryRepository{BaseRepository: NewBaseRepository(db)}
}

// List returns all stored rides, newest first.
func (r *RideHistoryRepository) List(ctx context.Context) ([]models.RideHistoryEntry, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, status_name, route_name, appointment_time
		FROM ride_history
		ORDER BY appointment_time DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying ride history: %w", err)
	}
	defer rows.Close()

	var rides []models.RideHistoryEntry
	for rows.Next() {
		var ride models.RideHistoryEntry
		if err := rows.Scan(&ride.ID, &ride.StatusName, &ride.RouteName, &ride.AppointmentTime); err != nil {
			return nil, fmt.Errorf("scanning ride: %w", err)
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// Merge upserts the given entries by id and returns the full merged set.
// Merging the same batch twice leaves the stored set unchanged.
func (r *RideHistoryRepository) Merge(ctx context.Context, entries []models.RideHistoryEntry) ([]models.RideHistoryEntry, error) {
	err := r.Transaction(func(tx *sql.Tx) error {
		for _, ride := range entries {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO ride_history (id, status_name, route_name, appointment_time, updated_at)
				VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT(id) DO UPDATE SET
					status_name = excluded.status_name,
					route_name = excluded.route_name,
					appointment_time = excluded.appointment_time,
					updated_at = CURRENT_TIMESTAMP
			`, ride.ID, ride.StatusName, ride.RouteName, ride.AppointmentTime)
			if err != nil {
				return fmt.Errorf("upserting ride %d: %w", ride.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r.List(ctx)
}

// LastFetchDate returns the date of the last successful history fetch,
// or the zero time when no fetch has happened yet.
func (r *RideHistoryRepository) LastFetchDate(ctx context.Context) (time.Time, error) {
	var raw string
	err := r.DB().QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, lastHistoryFetchKey,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("querying last fetch date: %w", err)
	}

	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing last fetch date %q: %w", raw, err)
	}
	return t, nil
}

// SetLastFetchDate records the date of a successful history fetch.
func (r *RideHistoryRepository) SetLastFetchDate(ctx context.Context, date time.Time) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, lastHistoryFetchKey, date.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("storing last fetch date: %w", err)
	}
	return nil
}
