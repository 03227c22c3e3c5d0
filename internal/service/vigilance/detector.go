package vigilance

import (
	"fmt"

	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// Detect computes the structured difference between a baseline profile
// version and the current one. Findings are matched by their delta
// identity (category plus canonical summary), so rewording from the same
// underlying record does not register as new.
func Detect(baseline, current *profile.Version) profile.Delta {
	delta := profile.Delta{
		SubjectID:      current.SubjectID.String(),
		CurrentVersion: current.Version,
	}
	if baseline != nil {
		delta.BaselineVersion = baseline.Version
	}

	var baseByKey map[screening.FindingKey]screening.Finding
	if baseline != nil {
		baseByKey = baseline.FindingByKey()
	} else {
		baseByKey = map[screening.FindingKey]screening.Finding{}
	}
	currByKey := current.FindingByKey()

	for _, f := range current.Findings {
		f := f
		prev, existed := baseByKey[f.Key()]
		if !existed {
			delta.Changes = append(delta.Changes, profile.Change{
				Kind:    profile.ChangeNew,
				Finding: &f,
				Detail:  "finding first observed",
			})
			continue
		}
		if f.Severity.Rank() > prev.Severity.Rank() {
			delta.Changes = append(delta.Changes, profile.Change{
				Kind:     profile.ChangeEscalated,
				Finding:  &f,
				Previous: &prev,
				Detail:   fmt.Sprintf("severity %s -> %s", prev.Severity, f.Severity),
			})
			continue
		}
		if f.Status != prev.Status {
			delta.Changes = append(delta.Changes, profile.Change{
				Kind:     profile.ChangeStatusChanged,
				Finding:  &f,
				Previous: &prev,
				Detail:   fmt.Sprintf("status %s -> %s", prev.Status, f.Status),
			})
		}
	}

	if baseline != nil {
		for _, prev := range baseline.Findings {
			prev := prev
			if _, still := currByKey[prev.Key()]; !still {
				delta.Changes = append(delta.Changes, profile.Change{
					Kind:     profile.ChangeResolved,
					Previous: &prev,
					Detail:   "finding no longer present",
				})
			}
		}
	}

	delta.Changes = append(delta.Changes, networkChanges(baseline, current)...)
	return delta
}

// networkChanges flags high-risk connections present in the current
// version but not the baseline. Benign new connections are ordinary churn
// and do not alert.
func networkChanges(baseline, current *profile.Version) []profile.Change {
	known := make(map[string]struct{})
	if baseline != nil {
		for _, c := range baseline.Connections {
			known[connectionKey(c)] = struct{}{}
		}
	}

	var changes []profile.Change
	for _, c := range current.Connections {
		c := c
		if !highRiskConnection(c) {
			continue
		}
		if _, seen := known[connectionKey(c)]; seen {
			continue
		}
		changes = append(changes, profile.Change{
			Kind:       profile.ChangeNetwork,
			Connection: &c,
			Detail:     fmt.Sprintf("new %s connection: %s", c.Relation, c.EntityName),
		})
	}
	return changes
}

func highRiskConnection(c profile.Connection) bool {
	switch c.RiskLevel {
	case screening.RiskHigh, screening.RiskCritical:
		return true
	}
	return false
}

func connectionKey(c profile.Connection) string {
	return screening.CanonicalValue(c.EntityName) + "|" + c.Relation
}
