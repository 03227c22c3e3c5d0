package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// FindingBuilder builds test findings.
type FindingBuilder struct {
	subjectID uuid.UUID
	category  screening.FindingCategory
	severity  screening.Severity
	confidence float64
	summary   string
	sources   []string
	usable    bool
	date      *time.Time
}

// NewFindingBuilder creates a builder for a HIGH criminal finding.
func NewFindingBuilder() *FindingBuilder {
	return &FindingBuilder{
		subjectID:  uuid.New(),
		category:   screening.CategoryCriminal,
		severity:   screening.SeverityHigh,
		confidence: 0.9,
		summary:    "Felony case on record",
		sources:    []string{"sandbox-records"},
		usable:     true,
	}
}

func (b *FindingBuilder) WithSubject(subjectID uuid.UUID) *FindingBuilder {
	b.subjectID = subjectID
	return b
}

func (b *FindingBuilder) WithCategory(category screening.FindingCategory) *FindingBuilder {
	b.category = category
	return b
}

func (b *FindingBuilder) WithSeverity(severity screening.Severity) *FindingBuilder {
	b.severity = severity
	return b
}

func (b *FindingBuilder) WithConfidence(confidence float64) *FindingBuilder {
	b.confidence = confidence
	return b
}

func (b *FindingBuilder) WithSummary(summary string) *FindingBuilder {
	b.summary = summary
	return b
}

func (b *FindingBuilder) WithDate(date time.Time) *FindingBuilder {
	b.date = &date
	return b
}

func (b *FindingBuilder) NotAdverseActionUsable() *FindingBuilder {
	b.usable = false
	return b
}

// Build constructs the finding.
func (b *FindingBuilder) Build() screening.Finding {
	return screening.Finding{
		ID:                  uuid.New(),
		SubjectID:           b.subjectID,
		Category:            b.category,
		Severity:            b.severity,
		Confidence:          b.confidence,
		RelevanceToRole:     1.0,
		Summary:             b.summary,
		Sources:             b.sources,
		Status:              screening.FindingActive,
		FindingDate:         b.date,
		AdverseActionUsable: b.usable,
	}
}

// VersionBuilder builds profile versions.
type VersionBuilder struct {
	subjectID uuid.UUID
	tenantID  uuid.UUID
	trigger   profile.Trigger
	prev      *profile.Version
	findings  []screening.Finding
}

// NewVersionBuilder creates a builder for a screening-triggered baseline.
func NewVersionBuilder() *VersionBuilder {
	return &VersionBuilder{
		subjectID: uuid.New(),
		tenantID:  uuid.New(),
		trigger:   profile.TriggerScreening,
	}
}

func (b *VersionBuilder) WithSubject(subjectID uuid.UUID) *VersionBuilder {
	b.subjectID = subjectID
	return b
}

func (b *VersionBuilder) WithTenant(tenantID uuid.UUID) *VersionBuilder {
	b.tenantID = tenantID
	return b
}

func (b *VersionBuilder) WithTrigger(trigger profile.Trigger) *VersionBuilder {
	b.trigger = trigger
	return b
}

// After chains this version onto a previous one, carrying subject and
// tenant forward.
func (b *VersionBuilder) After(prev *profile.Version) *VersionBuilder {
	b.prev = prev
	if prev != nil {
		b.subjectID = prev.SubjectID
		b.tenantID = prev.TenantID
	}
	return b
}

func (b *VersionBuilder) WithFindings(findings ...screening.Finding) *VersionBuilder {
	b.findings = findings
	return b
}

// Build constructs the version.
func (b *VersionBuilder) Build(t *testing.T) *profile.Version {
	t.Helper()
	v, err := profile.NewVersion(b.subjectID, b.tenantID, b.trigger, b.prev)
	require.NoError(t, err)
	v.Findings = b.findings
	return v
}
