package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/audit"
)

// AuditRepository persists audit events to Postgres. Emit is best-effort:
// a failed insert is logged, never propagated, so the audit trail cannot
// take a screening down with it.
type AuditRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewAuditRepository creates a Postgres-backed audit sink.
func NewAuditRepository(db *pgxpool.Pool, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

var _ audit.Sink = (*AuditRepository)(nil)

func (r *AuditRepository) Emit(ctx context.Context, event audit.Event) {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		r.logger.Error("audit detail marshal failed", zap.Error(err))
		detail = []byte("{}")
	}

	query := `
		INSERT INTO audit_events (id, type, correlation_id, tenant_id, subject_id, actor_id, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var subjectID *uuid.UUID
	if event.SubjectID != uuid.Nil {
		subjectID = &event.SubjectID
	}

	if _, err := r.db.Exec(ctx, query,
		event.ID, string(event.Type), event.CorrelationID, event.TenantID,
		subjectID, event.ActorID, detail, event.Timestamp,
	); err != nil {
		r.logger.Error("audit event persist failed",
			zap.String("event_id", event.ID.String()),
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

// List returns events for a correlation id, oldest first.
func (r *AuditRepository) List(ctx context.Context, correlationID uuid.UUID) ([]audit.Event, error) {
	query := `
		SELECT id, type, correlation_id, tenant_id, subject_id, actor_id, detail, occurred_at
		FROM audit_events
		WHERE correlation_id = $1
		ORDER BY occurred_at`

	rows, err := r.db.Query(ctx, query, correlationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			event     audit.Event
			eventType string
			subjectID *uuid.UUID
			detail    []byte
		)
		if err := rows.Scan(&event.ID, &eventType, &event.CorrelationID,
			&event.TenantID, &subjectID, &event.ActorID, &detail, &event.Timestamp); err != nil {
			return nil, err
		}
		event.Type = audit.EventType(eventType)
		if subjectID != nil {
			event.SubjectID = *subjectID
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &event.Detail); err != nil {
				return nil, err
			}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}
