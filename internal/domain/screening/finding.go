package screening

import (
	"time"

	"github.com/google/uuid"
)

// FindingCategory is the closed classification set for findings.
type FindingCategory string

const (
	CategoryCriminal     FindingCategory = "CRIMINAL"
	CategoryFinancial    FindingCategory = "FINANCIAL"
	CategoryRegulatory   FindingCategory = "REGULATORY"
	CategoryReputation   FindingCategory = "REPUTATION"
	CategoryVerification FindingCategory = "VERIFICATION"
	CategoryBehavioral   FindingCategory = "BEHAVIORAL"
	CategoryNetwork      FindingCategory = "NETWORK"
)

// AllFindingCategories lists every category in scoring-weight order.
func AllFindingCategories() []FindingCategory {
	return []FindingCategory{
		CategoryCriminal, CategoryRegulatory, CategoryVerification,
		CategoryFinancial, CategoryBehavioral, CategoryNetwork, CategoryReputation,
	}
}

// Severity grades a single finding.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities for comparison; higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// FindingStatus tracks the lifecycle of a finding across profile versions.
type FindingStatus string

const (
	FindingActive   FindingStatus = "active"
	FindingPendingReview FindingStatus = "pending_review"
	FindingDisputed FindingStatus = "disputed"
	FindingResolved FindingStatus = "resolved"
)

// Finding is a typed, scored conclusion drawn from accumulated facts.
type Finding struct {
	ID              uuid.UUID       `json:"id"`
	SubjectID       uuid.UUID       `json:"subject_id"`
	Category        FindingCategory `json:"category"`
	Severity        Severity        `json:"severity"`
	Confidence      float64         `json:"confidence"`
	RelevanceToRole float64         `json:"relevance_to_role"`
	Summary         string          `json:"summary"`
	Detail          string          `json:"detail,omitempty"`
	Sources         []string        `json:"sources"`
	Corroborated    bool            `json:"corroborated"`
	Status          FindingStatus   `json:"status"`
	FindingDate     *time.Time      `json:"finding_date,omitempty"`

	// AdverseActionUsable is false for findings sourced only from the
	// synthesis provider or other non-authoritative records.
	AdverseActionUsable bool `json:"adverse_action_usable"`
}

// Key identifies the same logical finding across profile versions for
// delta computation.
func (f Finding) Key() FindingKey {
	return FindingKey{Category: f.Category, Canonical: CanonicalValue(f.Summary)}
}

// FindingKey is the delta-detection identity of a finding.
type FindingKey struct {
	Category  FindingCategory
	Canonical string
}
