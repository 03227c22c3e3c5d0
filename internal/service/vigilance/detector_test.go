package vigilance

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
)

func versionWith(t *testing.T, subjectID uuid.UUID, number int, findings ...screening.Finding) *profile.Version {
	t.Helper()
	return &profile.Version{
		Version:   number,
		SubjectID: subjectID,
		TenantID:  uuid.New(),
		Findings:  findings,
	}
}

func criminalFinding(summary string, severity screening.Severity) screening.Finding {
	return screening.Finding{
		ID:       uuid.New(),
		Category: screening.CategoryCriminal,
		Severity: severity,
		Summary:  summary,
		Status:   screening.FindingActive,
	}
}

func TestDetect_NewFinding(t *testing.T) {
	subjectID := uuid.New()
	baseline := versionWith(t, subjectID, 1)
	current := versionWith(t, subjectID, 2, criminalFinding("Criminal case CR-1001", screening.SeverityHigh))

	delta := Detect(baseline, current)

	require.Len(t, delta.Changes, 1)
	assert.Equal(t, profile.ChangeNew, delta.Changes[0].Kind)
	assert.Equal(t, screening.SeverityHigh, delta.MaxSeverity())
	assert.Equal(t, 1, delta.BaselineVersion)
	assert.Equal(t, 2, delta.CurrentVersion)
}

func TestDetect_SameKeyDifferentWordingIsNotNew(t *testing.T) {
	subjectID := uuid.New()
	baseline := versionWith(t, subjectID, 1, criminalFinding("Criminal case CR-1001", screening.SeverityMedium))
	current := versionWith(t, subjectID, 2, criminalFinding("criminal  case cr-1001", screening.SeverityMedium))

	delta := Detect(baseline, current)
	assert.True(t, delta.Empty())
}

func TestDetect_Escalation(t *testing.T) {
	subjectID := uuid.New()
	baseline := versionWith(t, subjectID, 1, criminalFinding("Criminal case CR-1001", screening.SeverityMedium))
	current := versionWith(t, subjectID, 2, criminalFinding("Criminal case CR-1001", screening.SeverityHigh))

	delta := Detect(baseline, current)

	require.Len(t, delta.Changes, 1)
	change := delta.Changes[0]
	assert.Equal(t, profile.ChangeEscalated, change.Kind)
	assert.Equal(t, screening.SeverityMedium, change.Previous.Severity)
	assert.Equal(t, screening.SeverityHigh, change.Finding.Severity)
}

func TestDetect_StatusChange(t *testing.T) {
	subjectID := uuid.New()
	disputed := criminalFinding("Criminal case CR-1001", screening.SeverityMedium)
	disputed.Status = screening.FindingDisputed

	baseline := versionWith(t, subjectID, 1, criminalFinding("Criminal case CR-1001", screening.SeverityMedium))
	current := versionWith(t, subjectID, 2, disputed)

	delta := Detect(baseline, current)

	require.Len(t, delta.Changes, 1)
	assert.Equal(t, profile.ChangeStatusChanged, delta.Changes[0].Kind)
}

func TestDetect_Resolved(t *testing.T) {
	subjectID := uuid.New()
	baseline := versionWith(t, subjectID, 1, criminalFinding("Criminal case CR-1001", screening.SeverityHigh))
	current := versionWith(t, subjectID, 2)

	delta := Detect(baseline, current)

	require.Len(t, delta.Changes, 1)
	assert.Equal(t, profile.ChangeResolved, delta.Changes[0].Kind)
	// A purely resolved delta carries no alerting severity.
	assert.Equal(t, screening.Severity(""), delta.MaxSeverity())
}

func TestDetect_NetworkConnection(t *testing.T) {
	subjectID := uuid.New()
	baseline := versionWith(t, subjectID, 1)
	current := versionWith(t, subjectID, 2)
	current.Connections = []profile.Connection{{
		EntityName: "Shadow Holdings LLC",
		Relation:   "employer",
		RiskLevel:  screening.RiskHigh,
		Confidence: 0.8,
	}}

	delta := Detect(baseline, current)

	require.Len(t, delta.Changes, 1)
	assert.Equal(t, profile.ChangeNetwork, delta.Changes[0].Kind)
	assert.Equal(t, screening.SeverityHigh, delta.MaxSeverity())
}

func TestDetect_LowRiskConnectionIgnored(t *testing.T) {
	subjectID := uuid.New()
	baseline := versionWith(t, subjectID, 1)
	current := versionWith(t, subjectID, 2)
	current.Connections = []profile.Connection{
		{EntityName: "Neighborhood Bakery", Relation: "associate", RiskLevel: screening.RiskLow, Confidence: 0.9},
		{EntityName: "Civic Club", Relation: "associate", RiskLevel: screening.RiskModerate, Confidence: 0.9},
	}

	// Ordinary new connections are churn, not monitoring signal.
	assert.True(t, Detect(baseline, current).Empty())
}

func TestDetect_KnownConnectionNotRepeated(t *testing.T) {
	subjectID := uuid.New()
	conn := profile.Connection{EntityName: "Shadow Holdings LLC", Relation: "employer", RiskLevel: screening.RiskHigh}

	baseline := versionWith(t, subjectID, 1)
	baseline.Connections = []profile.Connection{conn}
	current := versionWith(t, subjectID, 2)
	current.Connections = []profile.Connection{conn}

	assert.True(t, Detect(baseline, current).Empty())
}

func TestDetect_NilBaselineAllNew(t *testing.T) {
	subjectID := uuid.New()
	current := versionWith(t, subjectID, 1,
		criminalFinding("Criminal case CR-1001", screening.SeverityMedium),
		criminalFinding("Criminal case CR-2002", screening.SeverityLow),
	)

	delta := Detect(nil, current)

	assert.Len(t, delta.Changes, 2)
	assert.Len(t, delta.ByKind(profile.ChangeNew), 2)
	assert.Zero(t, delta.BaselineVersion)
}
