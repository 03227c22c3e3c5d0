package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// MemoryProfileStore is the in-memory profile.Store used in tests and
// sandbox wiring.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	versions map[uuid.UUID][]*profile.Version
}

// NewMemoryProfileStore creates an empty store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{versions: make(map[uuid.UUID][]*profile.Version)}
}

var _ profile.Store = (*MemoryProfileStore)(nil)

func (s *MemoryProfileStore) Append(_ context.Context, v *profile.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.versions[v.SubjectID] {
		if existing.Version == v.Version {
			return errors.NewConflictError("profile version already exists for subject")
		}
	}
	cp := *v
	s.versions[v.SubjectID] = append(s.versions[v.SubjectID], &cp)
	sort.Slice(s.versions[v.SubjectID], func(i, j int) bool {
		return s.versions[v.SubjectID][i].Version < s.versions[v.SubjectID][j].Version
	})
	return nil
}

func (s *MemoryProfileStore) Latest(_ context.Context, subjectID uuid.UUID) (*profile.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.versions[subjectID]
	if len(list) == 0 {
		return nil, nil
	}
	cp := *list[len(list)-1]
	return &cp, nil
}

func (s *MemoryProfileStore) Get(_ context.Context, subjectID uuid.UUID, number int) (*profile.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.versions[subjectID] {
		if v.Version == number {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryProfileStore) List(_ context.Context, subjectID uuid.UUID) ([]*profile.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.versions[subjectID]
	out := make([]*profile.Version, len(list))
	for i, v := range list {
		cp := *v
		out[i] = &cp
	}
	return out, nil
}

// MemoryRelationStore is the in-memory profile.RelationStore.
type MemoryRelationStore struct {
	mu        sync.RWMutex
	entities  map[uuid.UUID]*profile.Entity
	byName    map[string]uuid.UUID
	relations map[uuid.UUID][]*profile.Relation
}

// NewMemoryRelationStore creates an empty store.
func NewMemoryRelationStore() *MemoryRelationStore {
	return &MemoryRelationStore{
		entities:  make(map[uuid.UUID]*profile.Entity),
		byName:    make(map[string]uuid.UUID),
		relations: make(map[uuid.UUID][]*profile.Relation),
	}
}

var _ profile.RelationStore = (*MemoryRelationStore)(nil)

func (s *MemoryRelationStore) SaveEntity(_ context.Context, entity *profile.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entity
	s.entities[entity.ID] = &cp
	if canonical := screening.CanonicalValue(entity.Name); canonical != "" {
		s.byName[canonical] = entity.ID
	}
	return nil
}

func (s *MemoryRelationStore) SaveRelation(_ context.Context, rel *profile.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.relations[rel.From] {
		if existing.To == rel.To && existing.RelationType == rel.RelationType {
			if rel.Confidence > existing.Confidence {
				existing.Confidence = rel.Confidence
			}
			return nil
		}
	}
	cp := *rel
	s.relations[rel.From] = append(s.relations[rel.From], &cp)
	return nil
}

func (s *MemoryRelationStore) RelationsFrom(_ context.Context, entityID uuid.UUID) ([]*profile.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.relations[entityID]
	out := make([]*profile.Relation, len(list))
	for i, rel := range list {
		cp := *rel
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryRelationStore) FindEntityByName(_ context.Context, name string) (*profile.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[screening.CanonicalValue(name)]
	if !ok {
		return nil, nil
	}
	cp := *s.entities[id]
	return &cp, nil
}

func (s *MemoryRelationStore) GetEntity(_ context.Context, id uuid.UUID) (*profile.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

// MemoryScheduleStore is the in-memory profile.ScheduleStore.
type MemoryScheduleStore struct {
	mu        sync.RWMutex
	schedules map[uuid.UUID]*profile.MonitoringSchedule
}

// NewMemoryScheduleStore creates an empty store.
func NewMemoryScheduleStore() *MemoryScheduleStore {
	return &MemoryScheduleStore{schedules: make(map[uuid.UUID]*profile.MonitoringSchedule)}
}

var _ profile.ScheduleStore = (*MemoryScheduleStore)(nil)

func (s *MemoryScheduleStore) Upsert(_ context.Context, schedule *profile.MonitoringSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *schedule
	s.schedules[schedule.SubjectID] = &cp
	return nil
}

func (s *MemoryScheduleStore) Get(_ context.Context, subjectID uuid.UUID) (*profile.MonitoringSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[subjectID]
	if !ok {
		return nil, nil
	}
	cp := *sched
	return &cp, nil
}

func (s *MemoryScheduleStore) Delete(_ context.Context, subjectID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, subjectID)
	return nil
}

func (s *MemoryScheduleStore) Due(_ context.Context, limit int) ([]*profile.MonitoringSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*profile.MonitoringSchedule
	for _, sched := range s.schedules {
		cp := *sched
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextCheckAt.Before(out[j].NextCheckAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemorySubjectStore is the in-memory subject store.
type MemorySubjectStore struct {
	mu       sync.RWMutex
	subjects map[uuid.UUID]*screening.Subject
}

// NewMemorySubjectStore creates an empty store.
func NewMemorySubjectStore() *MemorySubjectStore {
	return &MemorySubjectStore{subjects: make(map[uuid.UUID]*screening.Subject)}
}

func (s *MemorySubjectStore) Save(_ context.Context, subject *screening.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *subject
	s.subjects[subject.ID] = &cp
	return nil
}

func (s *MemorySubjectStore) Get(_ context.Context, id uuid.UUID) (*screening.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subject, ok := s.subjects[id]
	if !ok {
		return nil, nil
	}
	cp := *subject
	return &cp, nil
}

// StaticConsent answers every consent check with a fixed verdict.
type StaticConsent struct {
	Granted bool
}

func (c StaticConsent) Verified(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return c.Granted, nil
}
