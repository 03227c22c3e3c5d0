package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the audit events the engine emits.
type EventType string

const (
	EventScreeningInitiated EventType = "SCREENING_INITIATED"
	EventScreeningCompleted EventType = "SCREENING_COMPLETED"
	EventScreeningFailed    EventType = "SCREENING_FAILED"
	EventProviderQuery      EventType = "PROVIDER_QUERY"
	EventCacheHit           EventType = "CACHE_HIT"
	EventCacheMiss          EventType = "CACHE_MISS"
	EventStaleDataUsed      EventType = "STALE_DATA_USED"
	EventFindingsExtracted  EventType = "FINDINGS_EXTRACTED"
	EventProfileCreated     EventType = "PROFILE_CREATED"
	EventAlertGenerated     EventType = "ALERT_GENERATED"
	EventConsentVerified    EventType = "CONSENT_VERIFIED"
)

// Event is one immutable audit record. The engine only emits events;
// persistence and integrity chains belong to the outer audit service.
type Event struct {
	ID            uuid.UUID              `json:"id"`
	Type          EventType              `json:"type"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID uuid.UUID              `json:"correlation_id"`
	TenantID      uuid.UUID              `json:"tenant_id"`
	SubjectID     uuid.UUID              `json:"subject_id,omitempty"`
	ActorID       string                 `json:"actor_id,omitempty"`
	Detail        map[string]interface{} `json:"detail,omitempty"`
}

// NewEvent stamps id and timestamp on a new audit event.
func NewEvent(eventType EventType, correlationID, tenantID uuid.UUID) Event {
	return Event{
		ID:            uuid.New(),
		Type:          eventType,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		TenantID:      tenantID,
		Detail:        make(map[string]interface{}),
	}
}

// WithSubject attaches the screened subject id.
func (e Event) WithSubject(subjectID uuid.UUID) Event {
	e.SubjectID = subjectID
	return e
}

// WithDetail adds one detail field.
func (e Event) WithDetail(key string, value interface{}) Event {
	if e.Detail == nil {
		e.Detail = make(map[string]interface{})
	}
	e.Detail[key] = value
	return e
}

// Sink receives audit events. Emission is best-effort and must never
// block the caller.
type Sink interface {
	Emit(ctx context.Context, event Event)
}
