package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// SubjectRepository persists screening subjects so monitoring re-screens
// can reload their declared identifiers.
type SubjectRepository struct {
	db *pgxpool.Pool
}

// NewSubjectRepository creates the repository.
func NewSubjectRepository(db *pgxpool.Pool) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// Save upserts the subject. Declared identifiers travel as one jsonb
// document; the indexed columns cover lookups.
func (r *SubjectRepository) Save(ctx context.Context, subject *screening.Subject) error {
	doc, err := json.Marshal(subject)
	if err != nil {
		return fmt.Errorf("marshal subject: %w", err)
	}

	query := `
		INSERT INTO subjects (id, tenant_id, kind, full_name, declared, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			declared = EXCLUDED.declared`

	_, err = r.db.Exec(ctx, query,
		subject.ID, subject.TenantID, string(subject.Kind), subject.FullName, doc, subject.CreatedAt)
	if err != nil {
		return fmt.Errorf("save subject: %w", err)
	}
	return nil
}

// Get returns a subject by id, nil when unknown.
func (r *SubjectRepository) Get(ctx context.Context, id uuid.UUID) (*screening.Subject, error) {
	rows, err := r.db.Query(ctx, `SELECT declared FROM subjects WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query subject: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var doc []byte
	if err := rows.Scan(&doc); err != nil {
		return nil, fmt.Errorf("scan subject: %w", err)
	}
	var subject screening.Subject
	if err := json.Unmarshal(doc, &subject); err != nil {
		return nil, fmt.Errorf("unmarshal subject: %w", err)
	}
	return &subject, nil
}
