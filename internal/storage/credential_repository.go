package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shuttle-pass/backend/internal/storage/models"
)

// CredentialRepository stores the rider's portal credentials for silent
// re-login, plus the identity metadata observed in portal responses.
// The session itself is never persisted; it is rebuilt from these
// credentials whenever it expires.
type CredentialRepository struct {
	BaseRepository
}

// NewCredentialRepository creates a new credential repository.
func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{BaseRepository: NewBaseRepository(db)}
}

// Get returns the stored credentials, or empty strings when none exist.
func (r *CredentialRepository) Get(ctx context.Context) (username, secret string, err error) {
	err = r.DB().QueryRowContext(ctx,
		`SELECT username, secret FROM credentials LIMIT 1`,
	).Scan(&username, &secret)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("querying credentials: %w", err)
	}
	return username, secret, nil
}

// Put stores the credentials, replacing any previous rider.
func (r *CredentialRepository) Put(ctx context.Context, username, secret string) error {
	return r.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE username != ?`, username); err != nil {
			return fmt.Errorf("pruning credentials: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO credentials (username, secret, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(username) DO UPDATE SET secret = excluded.secret, updated_at = CURRENT_TIMESTAMP
		`, username, secret)
		if err != nil {
			return fmt.Errorf("storing credentials: %w", err)
		}
		return nil
	})
}

// Identity returns the stored rider identity for the given username.
// All fields are empty when nothing has been observed yet.
func (r *CredentialRepository) Identity(ctx context.Context, username string) (models.RiderIdentity, error) {
	var id models.RiderIdentity
	err := r.DB().QueryRowContext(ctx,
		`SELECT name, rider_id, department FROM rider_identity WHERE username = ?`, username,
	).Scan(&id.Name, &id.RiderID, &id.Department)
	if err == sql.ErrNoRows {
		return models.RiderIdentity{}, nil
	}
	if err != nil {
		return models.RiderIdentity{}, fmt.Errorf("querying rider identity: %w", err)
	}
	return id, nil
}

// PutIdentity stores identity metadata observed in a portal response.
// Empty fields in the update do not overwrite previously observed ones.
func (r *CredentialRepository) PutIdentity(ctx context.Context, username string, id models.RiderIdentity) error {
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO rider_identity (username, name, rider_id, department, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(username) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE rider_identity.name END,
			rider_id = CASE WHEN excluded.rider_id != '' THEN excluded.rider_id ELSE rider_identity.rider_id END,
			department = CASE WHEN excluded.department != '' THEN excluded.department ELSE rider_identity.department END,
			updated_at = CURRENT_TIMESTAMP
	`, username, id.Name, id.RiderID, id.Department)
	if err != nil {
		return fmt.Errorf("storing rider identity: %w", err)
	}
	return nil
}
