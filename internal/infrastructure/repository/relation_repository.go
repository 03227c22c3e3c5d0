package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// RelationRepository persists network-expansion entities and relations.
type RelationRepository struct {
	db *pgxpool.Pool
}

// NewRelationRepository creates the repository.
func NewRelationRepository(db *pgxpool.Pool) *RelationRepository {
	return &RelationRepository{db: db}
}

var _ profile.RelationStore = (*RelationRepository)(nil)

// SaveEntity upserts an entity. The canonical name is the dedupe key, so
// name variants from different providers resolve to one row.
func (r *RelationRepository) SaveEntity(ctx context.Context, entity *profile.Entity) error {
	query := `
		INSERT INTO entities (id, kind, name, name_canonical)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET kind = EXCLUDED.kind, name = EXCLUDED.name, name_canonical = EXCLUDED.name_canonical`

	_, err := r.db.Exec(ctx, query,
		entity.ID, string(entity.Kind), entity.Name, screening.CanonicalValue(entity.Name))
	if err != nil {
		return fmt.Errorf("save entity: %w", err)
	}
	return nil
}

// SaveRelation records one edge. Repeated discoveries of the same edge
// keep the highest confidence.
func (r *RelationRepository) SaveRelation(ctx context.Context, rel *profile.Relation) error {
	query := `
		INSERT INTO entity_relations (from_id, to_id, relation_type, confidence, discovered_in, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (from_id, to_id, relation_type) DO UPDATE
		SET confidence = GREATEST(entity_relations.confidence, EXCLUDED.confidence)`

	_, err := r.db.Exec(ctx, query,
		rel.From, rel.To, rel.RelationType, rel.Confidence, rel.DiscoveredIn, rel.DiscoveredAt)
	if err != nil {
		return fmt.Errorf("save relation: %w", err)
	}
	return nil
}

// RelationsFrom returns the outbound edges of an entity.
func (r *RelationRepository) RelationsFrom(ctx context.Context, entityID uuid.UUID) ([]*profile.Relation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT from_id, to_id, relation_type, confidence, discovered_in, discovered_at
		FROM entity_relations
		WHERE from_id = $1
		ORDER BY relation_type, to_id`, entityID)
	if err != nil {
		return nil, fmt.Errorf("query relations: %w", err)
	}
	defer rows.Close()

	var out []*profile.Relation
	for rows.Next() {
		var rel profile.Relation
		if err := rows.Scan(&rel.From, &rel.To, &rel.RelationType, &rel.Confidence, &rel.DiscoveredIn, &rel.DiscoveredAt); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		out = append(out, &rel)
	}
	return out, rows.Err()
}

// FindEntityByName resolves an entity by canonical name, nil when unknown.
func (r *RelationRepository) FindEntityByName(ctx context.Context, name string) (*profile.Entity, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, kind, name FROM entities WHERE name_canonical = $1 LIMIT 1`,
		screening.CanonicalValue(name))
	if err != nil {
		return nil, fmt.Errorf("query entity by name: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanEntity(rows)
}

// GetEntity resolves an entity by id, nil when unknown.
func (r *RelationRepository) GetEntity(ctx context.Context, id uuid.UUID) (*profile.Entity, error) {
	rows, err := r.db.Query(ctx, `SELECT id, kind, name FROM entities WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query entity: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanEntity(rows)
}

func scanEntity(row interface{ Scan(...interface{}) error }) (*profile.Entity, error) {
	var (
		e    profile.Entity
		kind string
	)
	if err := row.Scan(&e.ID, &kind, &e.Name); err != nil {
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	e.Kind = screening.SubjectKind(kind)
	return &e, nil
}
