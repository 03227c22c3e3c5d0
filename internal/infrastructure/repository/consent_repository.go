package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConsentRepository answers consent pre-flight checks from the consents
// table. A consent row counts only while it is granted and not revoked.
type ConsentRepository struct {
	db *pgxpool.Pool
}

// NewConsentRepository creates the repository.
func NewConsentRepository(db *pgxpool.Pool) *ConsentRepository {
	return &ConsentRepository{db: db}
}

// Verified reports whether the tenant holds active consent for the subject.
func (r *ConsentRepository) Verified(ctx context.Context, tenantID, subjectID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM consents
			WHERE tenant_id = $1 AND subject_id = $2
			  AND granted_at <= NOW()
			  AND revoked_at IS NULL
		)`
	if err := r.db.QueryRow(ctx, query, tenantID, subjectID).Scan(&exists); err != nil {
		return false, fmt.Errorf("consent lookup: %w", err)
	}
	return exists, nil
}

// Record stores a consent grant for a subject.
func (r *ConsentRepository) Record(ctx context.Context, tenantID, subjectID uuid.UUID, grantedAt time.Time) error {
	query := `
		INSERT INTO consents (tenant_id, subject_id, granted_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, subject_id) DO UPDATE
		SET granted_at = EXCLUDED.granted_at, revoked_at = NULL`
	if _, err := r.db.Exec(ctx, query, tenantID, subjectID, grantedAt); err != nil {
		return fmt.Errorf("record consent: %w", err)
	}
	return nil
}

// Revoke marks consent withdrawn; subsequent screenings fail pre-flight.
func (r *ConsentRepository) Revoke(ctx context.Context, tenantID, subjectID uuid.UUID) error {
	query := `UPDATE consents SET revoked_at = NOW() WHERE tenant_id = $1 AND subject_id = $2`
	if _, err := r.db.Exec(ctx, query, tenantID, subjectID); err != nil {
		return fmt.Errorf("revoke consent: %w", err)
	}
	return nil
}
