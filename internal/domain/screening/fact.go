package screening

import (
	"strings"
	"time"
	"unicode"
)

// FactType classifies an extracted fact.
type FactType string

const (
	FactNameVariant   FactType = "name_variant"
	FactDateOfBirth   FactType = "date_of_birth"
	FactAddress       FactType = "address"
	FactEmployer      FactType = "employer"
	FactJobTitle      FactType = "job_title"
	FactEmploymentEnd FactType = "employment_end_date"
	FactSchool        FactType = "school"
	FactDegree        FactType = "degree"
	FactLicenseNumber FactType = "license_number"
	FactCriminalCase  FactType = "criminal_case"
	FactCivilCase     FactType = "civil_case"
	FactBankruptcy    FactType = "bankruptcy"
	FactLien          FactType = "lien"
	FactRegulatory    FactType = "regulatory_action"
	FactSanctionMatch FactType = "sanction_match"
	FactMediaMention  FactType = "media_mention"
	FactEmail         FactType = "email"
	FactUsername      FactType = "username"
	FactAssociate     FactType = "associate"
	FactOrganization  FactType = "organization"
)

// Fact is one piece of evidence attributed to an information type. Identity
// of a fact is (Type, canonical(Value)); facts with the same identity from
// different providers corroborate each other.
type Fact struct {
	Type         FactType  `json:"type"`
	Value        string    `json:"value"`
	Source       string    `json:"source_provider"`
	Confidence   float64   `json:"confidence"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Key returns the deduplication identity of the fact.
func (f Fact) Key() FactKey {
	return FactKey{Type: f.Type, Canonical: CanonicalValue(f.Value)}
}

// FactKey identifies a fact group across providers.
type FactKey struct {
	Type      FactType
	Canonical string
}

// CanonicalValue normalizes a fact value for identity comparison:
// lower-cased, punctuation stripped, whitespace collapsed.
func CanonicalValue(v string) string {
	var b strings.Builder
	b.Grow(len(v))
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(v)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '.' || r == ',' || r == '/':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
