package screening

// Assessment is the output of assessing one iteration's query results for
// one information type.
type Assessment struct {
	InfoType       InformationType `json:"info_type"`
	Iteration      int             `json:"iteration"`
	NewFacts       []Fact          `json:"new_facts"`
	TotalResults   int             `json:"total_results"`
	SuccessResults int             `json:"success_results"`
	Confidence     float64         `json:"confidence"`
	Gaps           []string        `json:"gaps,omitempty"`
	Inconsistencies []Inconsistency `json:"inconsistencies,omitempty"`
	DiscoveredEntities []DiscoveredEntity `json:"discovered_entities,omitempty"`
	StaleSources   []StaleSource   `json:"stale_sources,omitempty"`
}

// InfoGainRate is new facts per executed query; zero when nothing ran.
func (a Assessment) InfoGainRate() float64 {
	if a.TotalResults == 0 {
		return 0
	}
	return float64(len(a.NewFacts)) / float64(a.TotalResults)
}

// InconsistencySeverity grades how badly two sources disagree.
type InconsistencySeverity string

const (
	InconsistencyMinor    InconsistencySeverity = "minor"
	InconsistencyMaterial InconsistencySeverity = "material"
	InconsistencySevere   InconsistencySeverity = "severe"
)

// Inconsistency flags conflicting values within one fact-type group from
// independent sources.
type Inconsistency struct {
	Field          FactType              `json:"field"`
	Claimed        string                `json:"claimed"`
	Found          string                `json:"found"`
	Severity       InconsistencySeverity `json:"severity"`
	DeceptionScore float64               `json:"deception_score"`
}

// DiscoveredEntity is a candidate person or organization surfaced during
// assessment, used for D2/D3 network expansion.
type DiscoveredEntity struct {
	Name       string  `json:"name"`
	Kind       SubjectKind `json:"kind"`
	Relation   string  `json:"relation"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// StaleSource identifies a cache entry consumed past its fresh window.
type StaleSource struct {
	CheckType  CheckType `json:"check_type"`
	ProviderID string    `json:"provider_id"`
}
