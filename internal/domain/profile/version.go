package profile

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// Trigger records what produced a profile version.
type Trigger string

const (
	TriggerScreening  Trigger = "SCREENING"
	TriggerMonitoring Trigger = "MONITORING"
	TriggerManual     Trigger = "MANUAL"
)

// Connection is one network edge carried on a profile version for D2/D3
// subjects.
type Connection struct {
	EntityName string  `json:"entity_name"`
	Relation   string  `json:"relation"`
	RiskLevel  screening.RiskLevel `json:"risk_level"`
	Confidence float64 `json:"confidence"`
}

// Version is an immutable snapshot of findings and risk for a subject at
// one point in time. Versions are append-only and per-subject monotonically
// increasing from 1.
type Version struct {
	Version   int       `json:"version"`
	SubjectID uuid.UUID `json:"subject_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	Trigger   Trigger   `json:"trigger"`

	Findings    []screening.Finding   `json:"findings"`
	Risk        screening.RiskScore   `json:"risk_score"`
	Connections []Connection          `json:"connections,omitempty"`

	DataSourcesUsed []string                 `json:"data_sources_used"`
	StaleDataUsed   []screening.StaleSource  `json:"stale_data_used"`
	AcquisitionCost decimal.Decimal          `json:"acquisition_cost"`

	PreviousVersion *int `json:"previous_version,omitempty"`
}

// NewVersion creates the next profile version after prev (nil for the
// first). Number monotonicity is validated here; uniqueness is the store's
// concern.
func NewVersion(subjectID, tenantID uuid.UUID, trigger Trigger, prev *Version) (*Version, error) {
	if subjectID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_SUBJECT_ID", "subject id is required")
	}
	next := 1
	var prevNum *int
	if prev != nil {
		if prev.SubjectID != subjectID {
			return nil, errors.NewValidationError("SUBJECT_MISMATCH", "previous version belongs to a different subject")
		}
		n := prev.Version
		prevNum = &n
		next = prev.Version + 1
	}
	return &Version{
		Version:         next,
		SubjectID:       subjectID,
		TenantID:        tenantID,
		CreatedAt:       time.Now().UTC(),
		Trigger:         trigger,
		Findings:        []screening.Finding{},
		DataSourcesUsed: []string{},
		StaleDataUsed:   []screening.StaleSource{},
		AcquisitionCost: decimal.Zero,
		PreviousVersion: prevNum,
	}, nil
}

// FindingByKey indexes the version's findings by their delta identity.
func (v *Version) FindingByKey() map[screening.FindingKey]screening.Finding {
	m := make(map[screening.FindingKey]screening.Finding, len(v.Findings))
	for _, f := range v.Findings {
		m[f.Key()] = f
	}
	return m
}
