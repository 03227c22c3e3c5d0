package sar

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// fieldFactTypes maps normalized record field names onto fact types.
// case_number is resolved per information type below.
var fieldFactTypes = map[string]screening.FactType{
	"name":                screening.FactNameVariant,
	"full_name":           screening.FactNameVariant,
	"alias":               screening.FactNameVariant,
	"date_of_birth":       screening.FactDateOfBirth,
	"dob":                 screening.FactDateOfBirth,
	"address":             screening.FactAddress,
	"employer":            screening.FactEmployer,
	"job_title":           screening.FactJobTitle,
	"employment_end_date": screening.FactEmploymentEnd,
	"school":              screening.FactSchool,
	"degree":              screening.FactDegree,
	"license_number":      screening.FactLicenseNumber,
	"bankruptcy":          screening.FactBankruptcy,
	"lien":                screening.FactLien,
	"regulatory_action":   screening.FactRegulatory,
	"sanction":            screening.FactSanctionMatch,
	"list_name":           screening.FactSanctionMatch,
	"headline":            screening.FactMediaMention,
	"email":               screening.FactEmail,
	"username":            screening.FactUsername,
	"associate":           screening.FactAssociate,
	"organization":        screening.FactOrganization,
}

// coreFactTypes lists, per information type, the fact types whose absence
// counts as a coverage gap.
var coreFactTypes = map[screening.InformationType][]screening.FactType{
	screening.TypeIdentity:         {screening.FactNameVariant, screening.FactDateOfBirth, screening.FactAddress},
	screening.TypeEmployment:       {screening.FactEmployer, screening.FactJobTitle},
	screening.TypeEducation:        {screening.FactSchool, screening.FactDegree},
	screening.TypeCriminal:         {screening.FactCriminalCase},
	screening.TypeCivil:            {screening.FactCivilCase},
	screening.TypeFinancial:        {screening.FactBankruptcy, screening.FactLien},
	screening.TypeLicenses:         {screening.FactLicenseNumber},
	screening.TypeRegulatory:       {screening.FactRegulatory},
	screening.TypeSanctions:        {screening.FactSanctionMatch},
	screening.TypeAdverseMedia:     {screening.FactMediaMention},
	screening.TypeDigitalFootprint: {screening.FactEmail, screening.FactUsername},
}

// Confidence formula weights. Completeness dominates, corroboration next;
// query success and per-fact confidence refine the tail.
const (
	weightCompleteness  = 0.35
	weightCorroboration = 0.30
	weightQuerySuccess  = 0.20
	weightFactConf      = 0.15
)

// Assessor turns raw query results into facts, confidence, gaps and
// discovered entities. It is the only writer into the knowledge base for
// its information type.
type Assessor struct {
	logger *zap.Logger
}

// NewAssessor creates the assessor.
func NewAssessor(logger *zap.Logger) *Assessor {
	return &Assessor{logger: logger}
}

// Assess extracts facts from one iteration's results, merges them into the
// knowledge base, and computes the iteration assessment.
func (a *Assessor) Assess(
	infoType screening.InformationType,
	iteration int,
	subject *screening.Subject,
	results []screening.QueryResult,
	kb *KnowledgeBase,
) screening.Assessment {
	assessment := screening.Assessment{
		InfoType:     infoType,
		Iteration:    iteration,
		TotalResults: len(results),
	}

	var extracted []screening.Fact
	for _, res := range results {
		if res.Status == screening.QuerySuccess {
			assessment.SuccessResults++
		}
		if res.Stale {
			assessment.StaleSources = append(assessment.StaleSources, screening.StaleSource{
				CheckType:  screening.CheckTypeFor(infoType),
				ProviderID: res.ProviderID,
			})
		}
		for _, rec := range res.Records {
			extracted = append(extracted, factsFromRecord(infoType, res.ProviderID, rec)...)
		}
	}

	assessment.NewFacts = kb.Add(infoType, extracted)
	// Non-novel sightings still corroborate, which the stats below reflect.

	assessment.Confidence = a.confidence(infoType, assessment, kb)
	assessment.Gaps = a.gaps(infoType, kb)
	assessment.Inconsistencies = DetectInconsistencies(subject, kb)
	assessment.DiscoveredEntities = discoveredEntities(assessment.NewFacts)

	a.logger.Debug("iteration assessed",
		zap.String("info_type", string(infoType)),
		zap.Int("iteration", iteration),
		zap.Int("new_facts", len(assessment.NewFacts)),
		zap.Float64("confidence", assessment.Confidence),
		zap.Strings("gaps", assessment.Gaps))

	return assessment
}

// factsFromRecord maps a normalized record's fields onto typed facts.
func factsFromRecord(infoType screening.InformationType, providerID string, rec screening.Record) []screening.Fact {
	now := time.Now().UTC()
	var facts []screening.Fact
	for field, value := range rec.Fields {
		if strings.TrimSpace(value) == "" {
			continue
		}
		factType, ok := factTypeForField(infoType, field)
		if !ok {
			continue
		}
		facts = append(facts, screening.Fact{
			Type:         factType,
			Value:        value,
			Source:       providerID,
			Confidence:   rec.Confidence,
			DiscoveredAt: now,
		})
	}
	return facts
}

func factTypeForField(infoType screening.InformationType, field string) (screening.FactType, bool) {
	field = strings.ToLower(strings.TrimSpace(field))
	if field == "case_number" {
		if infoType == screening.TypeCivil {
			return screening.FactCivilCase, true
		}
		return screening.FactCriminalCase, true
	}
	t, ok := fieldFactTypes[field]
	return t, ok
}

// confidence applies the weighted formula over completeness, corroboration,
// query success rate and average fact confidence.
func (a *Assessor) confidence(infoType screening.InformationType, asmt screening.Assessment, kb *KnowledgeBase) float64 {
	total, corroborated, avgConf := kb.TypeStats(infoType)

	completeness := 0.0
	if expected := screening.ExpectedFactCount(infoType); expected > 0 {
		completeness = float64(total) / float64(expected)
		if completeness > 1 {
			completeness = 1
		}
	}

	corroborationRate := 0.0
	if total > 0 {
		corroborationRate = float64(corroborated) / float64(total)
	}

	successRate := 0.0
	if asmt.TotalResults > 0 {
		successRate = float64(asmt.SuccessResults) / float64(asmt.TotalResults)
	}

	return weightCompleteness*completeness +
		weightCorroboration*corroborationRate +
		weightQuerySuccess*successRate +
		weightFactConf*avgConf
}

// gaps lists the core fact types still missing for the information type.
func (a *Assessor) gaps(infoType screening.InformationType, kb *KnowledgeBase) []string {
	var gaps []string
	for _, ft := range coreFactTypes[infoType] {
		if !kb.HasFactType(ft) {
			gaps = append(gaps, string(ft))
		}
	}
	return gaps
}

// DetectInconsistencies compares the subject's declared identifiers against
// what providers returned. A conflicting date of birth is severe; a declared
// employer or school absent from verified records is material. The findings
// extractor reuses this check at synthesis time.
func DetectInconsistencies(subject *screening.Subject, kb *KnowledgeBase) []screening.Inconsistency {
	var out []screening.Inconsistency
	if subject == nil {
		return out
	}

	if subject.DateOfBirth != nil {
		claimed := subject.DateOfBirth.Format("2006-01-02")
		claimedCanon := screening.CanonicalValue(claimed)
		for _, found := range kb.FactsOfType(screening.FactDateOfBirth) {
			if screening.CanonicalValue(found) != claimedCanon {
				out = append(out, screening.Inconsistency{
					Field:          screening.FactDateOfBirth,
					Claimed:        claimed,
					Found:          found,
					Severity:       screening.InconsistencySevere,
					DeceptionScore: 0.8,
				})
			}
		}
	}

	foundEmployers := kb.FactsOfType(screening.FactEmployer)
	if len(foundEmployers) > 0 {
		for _, claimed := range subject.ClaimedEmployers {
			if !containsCanonical(foundEmployers, claimed) {
				out = append(out, screening.Inconsistency{
					Field:          screening.FactEmployer,
					Claimed:        claimed,
					Found:          strings.Join(foundEmployers, "; "),
					Severity:       screening.InconsistencyMaterial,
					DeceptionScore: 0.5,
				})
			}
		}
	}

	foundSchools := kb.FactsOfType(screening.FactSchool)
	if len(foundSchools) > 0 {
		for _, claimed := range subject.ClaimedSchools {
			if !containsCanonical(foundSchools, claimed) {
				out = append(out, screening.Inconsistency{
					Field:          screening.FactSchool,
					Claimed:        claimed,
					Found:          strings.Join(foundSchools, "; "),
					Severity:       screening.InconsistencyMaterial,
					DeceptionScore: 0.5,
				})
			}
		}
	}

	return out
}

func containsCanonical(haystack []string, needle string) bool {
	canon := screening.CanonicalValue(needle)
	for _, h := range haystack {
		if screening.CanonicalValue(h) == canon {
			return true
		}
	}
	return false
}

// discoveredEntities surfaces people and organizations from the newly
// extracted facts for D2/D3 network expansion.
func discoveredEntities(facts []screening.Fact) []screening.DiscoveredEntity {
	var out []screening.DiscoveredEntity
	for _, f := range facts {
		switch f.Type {
		case screening.FactAssociate:
			out = append(out, screening.DiscoveredEntity{
				Name:       f.Value,
				Kind:       screening.SubjectIndividual,
				Relation:   "associate",
				Confidence: f.Confidence,
				Source:     f.Source,
			})
		case screening.FactOrganization:
			out = append(out, screening.DiscoveredEntity{
				Name:       f.Value,
				Kind:       screening.SubjectOrganization,
				Relation:   "affiliated_organization",
				Confidence: f.Confidence,
				Source:     f.Source,
			})
		case screening.FactEmployer:
			out = append(out, screening.DiscoveredEntity{
				Name:       f.Value,
				Kind:       screening.SubjectOrganization,
				Relation:   "employer",
				Confidence: f.Confidence,
				Source:     f.Source,
			})
		}
	}
	return out
}
