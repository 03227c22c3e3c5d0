// Package repository contains the postgres persistence layer for profile
// versions, entity relations, monitoring schedules, subjects and consent,
// plus in-memory equivalents used by tests and local wiring.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	domainerrors "github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// ProfileRepository persists profile versions in PostgreSQL.
type ProfileRepository struct {
	db *pgxpool.Pool
}

// NewProfileRepository creates the repository over a pgx pool.
func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

var _ profile.Store = (*ProfileRepository)(nil)

// Append inserts a new version. The (subject_id, version) primary key
// enforces append-only monotonicity; a duplicate insert is a conflict.
func (r *ProfileRepository) Append(ctx context.Context, v *profile.Version) error {
	findingsJSON, err := json.Marshal(v.Findings)
	if err != nil {
		return fmt.Errorf("marshal findings: %w", err)
	}
	riskJSON, err := json.Marshal(v.Risk)
	if err != nil {
		return fmt.Errorf("marshal risk: %w", err)
	}
	connectionsJSON, err := json.Marshal(v.Connections)
	if err != nil {
		return fmt.Errorf("marshal connections: %w", err)
	}
	staleJSON, err := json.Marshal(v.StaleDataUsed)
	if err != nil {
		return fmt.Errorf("marshal stale sources: %w", err)
	}

	query := `
		INSERT INTO profile_versions (
			subject_id, version, tenant_id, created_at, trigger,
			findings, risk, connections, data_sources_used, stale_data_used,
			acquisition_cost, previous_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.db.Exec(ctx, query,
		v.SubjectID, v.Version, v.TenantID, v.CreatedAt, string(v.Trigger),
		findingsJSON, riskJSON, connectionsJSON, v.DataSourcesUsed, staleJSON,
		v.AcquisitionCost.String(), v.PreviousVersion,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domainerrors.NewConflictError(
				fmt.Sprintf("profile version %d already exists for subject", v.Version))
		}
		return fmt.Errorf("insert profile version: %w", err)
	}
	return nil
}

// Latest returns the newest version for a subject, nil when the subject
// has no profile yet.
func (r *ProfileRepository) Latest(ctx context.Context, subjectID uuid.UUID) (*profile.Version, error) {
	return r.scanOne(ctx, `
		SELECT subject_id, version, tenant_id, created_at, trigger,
		       findings, risk, connections, data_sources_used, stale_data_used,
		       acquisition_cost, previous_version
		FROM profile_versions
		WHERE subject_id = $1
		ORDER BY version DESC
		LIMIT 1`, subjectID)
}

// Get returns one specific version, nil when absent.
func (r *ProfileRepository) Get(ctx context.Context, subjectID uuid.UUID, number int) (*profile.Version, error) {
	return r.scanOne(ctx, `
		SELECT subject_id, version, tenant_id, created_at, trigger,
		       findings, risk, connections, data_sources_used, stale_data_used,
		       acquisition_cost, previous_version
		FROM profile_versions
		WHERE subject_id = $1 AND version = $2`, subjectID, number)
}

// List returns all versions for a subject in ascending order.
func (r *ProfileRepository) List(ctx context.Context, subjectID uuid.UUID) ([]*profile.Version, error) {
	rows, err := r.db.Query(ctx, `
		SELECT subject_id, version, tenant_id, created_at, trigger,
		       findings, risk, connections, data_sources_used, stale_data_used,
		       acquisition_cost, previous_version
		FROM profile_versions
		WHERE subject_id = $1
		ORDER BY version ASC`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list profile versions: %w", err)
	}
	defer rows.Close()

	var out []*profile.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *ProfileRepository) scanOne(ctx context.Context, query string, args ...interface{}) (*profile.Version, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query profile version: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return scanVersion(rows)
}

func scanVersion(row pgx.Row) (*profile.Version, error) {
	var (
		v               profile.Version
		trigger         string
		findingsJSON    []byte
		riskJSON        []byte
		connectionsJSON []byte
		staleJSON       []byte
		cost            string
	)
	err := row.Scan(
		&v.SubjectID, &v.Version, &v.TenantID, &v.CreatedAt, &trigger,
		&findingsJSON, &riskJSON, &connectionsJSON, &v.DataSourcesUsed, &staleJSON,
		&cost, &v.PreviousVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("scan profile version: %w", err)
	}

	v.Trigger = profile.Trigger(trigger)
	if err := json.Unmarshal(findingsJSON, &v.Findings); err != nil {
		return nil, fmt.Errorf("unmarshal findings: %w", err)
	}
	if err := json.Unmarshal(riskJSON, &v.Risk); err != nil {
		return nil, fmt.Errorf("unmarshal risk: %w", err)
	}
	if len(connectionsJSON) > 0 {
		if err := json.Unmarshal(connectionsJSON, &v.Connections); err != nil {
			return nil, fmt.Errorf("unmarshal connections: %w", err)
		}
	}
	if err := json.Unmarshal(staleJSON, &v.StaleDataUsed); err != nil {
		v.StaleDataUsed = []screening.StaleSource{}
	}
	v.AcquisitionCost, err = decimal.NewFromString(cost)
	if err != nil {
		v.AcquisitionCost = decimal.Zero
	}
	return &v, nil
}
