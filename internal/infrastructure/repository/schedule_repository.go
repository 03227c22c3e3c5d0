package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// ScheduleRepository persists monitoring schedules, one row per subject.
type ScheduleRepository struct {
	db *pgxpool.Pool
}

// NewScheduleRepository creates the repository.
func NewScheduleRepository(db *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

var _ profile.ScheduleStore = (*ScheduleRepository)(nil)

// Upsert inserts or replaces the subject's schedule.
func (r *ScheduleRepository) Upsert(ctx context.Context, s *profile.MonitoringSchedule) error {
	query := `
		INSERT INTO monitoring_schedules (
			subject_id, tenant_id, vigilance, locale, role, tier,
			next_check_at, baseline_version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (subject_id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			vigilance = EXCLUDED.vigilance,
			locale = EXCLUDED.locale,
			role = EXCLUDED.role,
			tier = EXCLUDED.tier,
			next_check_at = EXCLUDED.next_check_at,
			baseline_version = EXCLUDED.baseline_version,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		s.SubjectID, s.TenantID, string(s.Vigilance), s.Locale, s.Role, string(s.Tier),
		s.NextCheckAt, s.BaselineVersion, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert monitoring schedule: %w", err)
	}
	return nil
}

// Get returns the subject's schedule, nil when not monitored.
func (r *ScheduleRepository) Get(ctx context.Context, subjectID uuid.UUID) (*profile.MonitoringSchedule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT subject_id, tenant_id, vigilance, locale, role, tier,
		       next_check_at, baseline_version, updated_at
		FROM monitoring_schedules
		WHERE subject_id = $1`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("query monitoring schedule: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanSchedule(rows)
}

// Delete removes the subject from monitoring.
func (r *ScheduleRepository) Delete(ctx context.Context, subjectID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM monitoring_schedules WHERE subject_id = $1`, subjectID)
	if err != nil {
		return fmt.Errorf("delete monitoring schedule: %w", err)
	}
	return nil
}

// Due lists schedules whose check time has passed, oldest first. The redis
// due-queue is the hot path; this query backs queue rebuilds.
func (r *ScheduleRepository) Due(ctx context.Context, limit int) ([]*profile.MonitoringSchedule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT subject_id, tenant_id, vigilance, locale, role, tier,
		       next_check_at, baseline_version, updated_at
		FROM monitoring_schedules
		WHERE next_check_at <= NOW()
		ORDER BY next_check_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query due schedules: %w", err)
	}
	defer rows.Close()

	var out []*profile.MonitoringSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSchedule(row interface{ Scan(...interface{}) error }) (*profile.MonitoringSchedule, error) {
	var (
		s         profile.MonitoringSchedule
		vigilance string
		tier      string
	)
	err := row.Scan(&s.SubjectID, &s.TenantID, &vigilance, &s.Locale, &s.Role, &tier,
		&s.NextCheckAt, &s.BaselineVersion, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan monitoring schedule: %w", err)
	}
	s.Vigilance = screening.Vigilance(vigilance)
	s.Tier = screening.ServiceTier(tier)
	return &s, nil
}
