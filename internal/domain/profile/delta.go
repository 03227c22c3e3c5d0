package profile

import (
	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// ChangeKind classifies one delta entry between two consecutive versions.
type ChangeKind string

const (
	ChangeNew           ChangeKind = "NEW"
	ChangeEscalated     ChangeKind = "ESCALATED"
	ChangeResolved      ChangeKind = "RESOLVED"
	ChangeStatusChanged ChangeKind = "STATUS_CHANGED"
	ChangeNetwork       ChangeKind = "NETWORK"
)

// Change is one entry in a delta.
type Change struct {
	Kind     ChangeKind          `json:"kind"`
	Finding  *screening.Finding  `json:"finding,omitempty"`
	Previous *screening.Finding  `json:"previous,omitempty"`
	Connection *Connection       `json:"connection,omitempty"`
	Detail   string              `json:"detail,omitempty"`
}

// Severity returns the severity attributable to this change; RESOLVED
// entries carry no alerting weight.
func (c Change) Severity() screening.Severity {
	if c.Kind == ChangeResolved {
		return ""
	}
	if c.Finding != nil {
		return c.Finding.Severity
	}
	if c.Kind == ChangeNetwork && c.Connection != nil {
		switch c.Connection.RiskLevel {
		case screening.RiskCritical:
			return screening.SeverityCritical
		case screening.RiskHigh:
			return screening.SeverityHigh
		default:
			return screening.SeverityMedium
		}
	}
	return ""
}

// Delta is the structured difference between two consecutive profile
// versions of one subject. Deltas are computed on demand, never stored.
type Delta struct {
	SubjectID       string   `json:"subject_id"`
	BaselineVersion int      `json:"baseline_version"`
	CurrentVersion  int      `json:"current_version"`
	Changes         []Change `json:"changes"`
}

// Empty reports whether the two versions are materially identical.
func (d Delta) Empty() bool {
	return len(d.Changes) == 0
}

// MaxSeverity returns the highest severity across all non-resolved changes.
func (d Delta) MaxSeverity() screening.Severity {
	var max screening.Severity
	for _, c := range d.Changes {
		if s := c.Severity(); s.Rank() > max.Rank() {
			max = s
		}
	}
	return max
}

// ByKind filters the delta's changes by kind.
func (d Delta) ByKind(kind ChangeKind) []Change {
	var out []Change
	for _, c := range d.Changes {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}
