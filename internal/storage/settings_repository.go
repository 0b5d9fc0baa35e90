package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shuttle-pass/backend/internal/config"
)

const decisionConfigKey = "decision_config"

// SettingsRepository stores free-form service settings, including the
// rider's decision config overrides.
type SettingsRepository struct {
	BaseRepository
}

func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{BaseRepository: NewBaseRepository(db)}
}

// Get returns the value for key, or an empty string when unset.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.DB().QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %q: %w", key, err)
	}
	return value, nil
}

// Set stores the value for key, replacing any previous value.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}
	return nil
}

// LoadDecision returns the stored decision config, or base when no
// override has been saved yet.
func (r *SettingsRepository) LoadDecision(ctx context.Context, base config.Decision) (config.Decision, error) {
	raw, err := r.Get(ctx, decisionConfigKey)
	if err != nil {
		return base, err
	}
	if raw == "" {
		return base, nil
	}

	cfg := base
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return base, fmt.Errorf("decoding stored decision config: %w", err)
	}
	return cfg, nil
}

// SaveDecision persists the decision config override.
func (r *SettingsRepository) SaveDecision(ctx context.Context, cfg config.Decision) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding decision config: %w", err)
	}
	return r.Set(ctx, decisionConfigKey, string(raw))
}
