package profile

import (
	"context"

	"github.com/google/uuid"
)

// Store persists profile versions. Append must reject duplicate
// (subject_id, version) pairs; versions are never mutated.
type Store interface {
	Append(ctx context.Context, version *Version) error
	Latest(ctx context.Context, subjectID uuid.UUID) (*Version, error)
	Get(ctx context.Context, subjectID uuid.UUID, number int) (*Version, error)
	List(ctx context.Context, subjectID uuid.UUID) ([]*Version, error)
}

// RelationStore persists discovered entity relations for network
// expansion.
type RelationStore interface {
	SaveEntity(ctx context.Context, entity *Entity) error
	SaveRelation(ctx context.Context, relation *Relation) error
	RelationsFrom(ctx context.Context, entityID uuid.UUID) ([]*Relation, error)
	FindEntityByName(ctx context.Context, name string) (*Entity, error)
	GetEntity(ctx context.Context, id uuid.UUID) (*Entity, error)
}

// ScheduleStore persists monitoring schedules, exactly one per subject.
type ScheduleStore interface {
	Upsert(ctx context.Context, schedule *MonitoringSchedule) error
	Get(ctx context.Context, subjectID uuid.UUID) (*MonitoringSchedule, error)
	Delete(ctx context.Context, subjectID uuid.UUID) error
	Due(ctx context.Context, limit int) ([]*MonitoringSchedule, error)
}
