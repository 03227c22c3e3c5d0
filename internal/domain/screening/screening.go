package screening

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearvet/screening-backend/internal/domain/errors"
)

// Status is the screening lifecycle status.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusRunning       Status = "RUNNING"
	StatusCompleted     Status = "COMPLETED"
	StatusFailedConsent Status = "FAILED_CONSENT"
	StatusFailedInternal Status = "FAILED_INTERNAL"
	StatusInsufficient  Status = "FAILED_INSUFFICIENT_DATA"
	StatusCancelled     Status = "CANCELLED"
)

// Request is the inbound screening request from the outer service layer.
type Request struct {
	Subject       *Subject      `json:"subject" validate:"required"`
	Config        ServiceConfig `json:"service_config"`
	TenantID      uuid.UUID     `json:"tenant_id" validate:"required"`
	UserID        uuid.UUID     `json:"user_id" validate:"required"`
	CorrelationID uuid.UUID     `json:"correlation_id" validate:"required"`
	Locale        string        `json:"locale" validate:"required"`
	Role          string        `json:"role" validate:"required"`
	Deadline      *time.Time    `json:"deadline,omitempty"`
}

// TypeOutcome is one entry of the user-visible per-type failure summary.
type TypeOutcome struct {
	InfoType InformationType `json:"info_type"`
	State    TypeState       `json:"terminal_state"`
	Reason   string          `json:"reason,omitempty"`
}

// Screening is the root aggregate for one investigation run. It exclusively
// owns its knowledge base and all transient SAR type state.
type Screening struct {
	ID            uuid.UUID     `json:"id"`
	SubjectID     uuid.UUID     `json:"subject_id"`
	TenantID      uuid.UUID     `json:"tenant_id"`
	CorrelationID uuid.UUID     `json:"correlation_id"`
	Config        ServiceConfig `json:"config"`
	Locale        string        `json:"locale"`
	Role          string        `json:"role"`
	Status        Status        `json:"status"`

	TypeStates map[InformationType]*SARTypeState `json:"type_states"`

	// Replayed marks an idempotent re-submission of a known correlation
	// id; only ID is meaningful on a replayed aggregate.
	Replayed bool `json:"replayed,omitempty"`

	// DataSourcesUsed is the distinct set of provider ids that contributed.
	DataSourcesUsed []string `json:"data_sources_used"`

	// StaleDataUsed lists stale cache entries consumed under STANDARD tier.
	StaleDataUsed []StaleSource `json:"stale_data_used"`

	// DataAcquisitionCost accumulates provider per-query cost.
	DataAcquisitionCost decimal.Decimal `json:"data_acquisition_cost"`

	Findings  []Finding  `json:"findings,omitempty"`
	Risk      *RiskScore `json:"risk,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewScreening creates a screening in PENDING with one PENDING state per
// information type.
func NewScreening(req Request) (*Screening, error) {
	if req.Subject == nil {
		return nil, errors.NewValidationError("MISSING_SUBJECT", "screening subject is required")
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	if req.CorrelationID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_CORRELATION_ID", "correlation id is required")
	}

	states := make(map[InformationType]*SARTypeState, len(AllInformationTypes()))
	for _, t := range AllInformationTypes() {
		states[t] = NewSARTypeState(t)
	}

	return &Screening{
		ID:                  uuid.New(),
		SubjectID:           req.Subject.ID,
		TenantID:            req.TenantID,
		CorrelationID:       req.CorrelationID,
		Config:              req.Config,
		Locale:              req.Locale,
		Role:                req.Role,
		Status:              StatusPending,
		TypeStates:          states,
		DataSourcesUsed:     []string{},
		StaleDataUsed:       []StaleSource{},
		DataAcquisitionCost: decimal.Zero,
		StartedAt:           time.Now().UTC(),
	}, nil
}

// RecordSource adds a provider id to the distinct data-sources set.
func (s *Screening) RecordSource(providerID string) {
	for _, id := range s.DataSourcesUsed {
		if id == providerID {
			return
		}
	}
	s.DataSourcesUsed = append(s.DataSourcesUsed, providerID)
}

// RecordStaleUse notes a stale cache entry consumed under STANDARD tier.
func (s *Screening) RecordStaleUse(src StaleSource) {
	for _, existing := range s.StaleDataUsed {
		if existing == src {
			return
		}
	}
	s.StaleDataUsed = append(s.StaleDataUsed, src)
}

// Successful reports whether at least one Foundation type completed.
func (s *Screening) Successful() bool {
	for _, t := range TypesInPhase(PhaseFoundation) {
		if st, ok := s.TypeStates[t]; ok && st.State == StateComplete {
			return true
		}
	}
	return false
}

// Outcomes returns the per-type terminal summary for the caller.
func (s *Screening) Outcomes() []TypeOutcome {
	out := make([]TypeOutcome, 0, len(s.TypeStates))
	for _, t := range AllInformationTypes() {
		st, ok := s.TypeStates[t]
		if !ok {
			continue
		}
		out = append(out, TypeOutcome{InfoType: t, State: st.State, Reason: st.Reason})
	}
	return out
}

// Finish stamps the terminal status and completion time.
func (s *Screening) Finish(status Status) {
	now := time.Now().UTC()
	s.Status = status
	s.FinishedAt = &now
}
