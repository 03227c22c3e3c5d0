package findings

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/provider"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/service/sar"
)

// RelevanceOracle weighs a finding category for the subject's role. A
// multiplier below 1 reduces the finding's relevance; 1 is neutral.
type RelevanceOracle interface {
	Relevance(category screening.FindingCategory, role string) float64
}

// NeutralRelevance treats every category as fully relevant.
type NeutralRelevance struct{}

func (NeutralRelevance) Relevance(screening.FindingCategory, string) float64 { return 1.0 }

// ProviderLookup resolves provider metadata for authoritativeness checks.
// The gateway registry satisfies it.
type ProviderLookup interface {
	Get(id string) (provider.Provider, bool)
}

// severe keywords promote a criminal case or media mention.
var felonyMarkers = []string{"felony", "aggravated", "homicide", "assault"}
var adverseMediaMarkers = []string{"fraud", "investigation", "charged", "indicted", "lawsuit", "embezzle", "scandal"}

// Extractor synthesizes typed findings from the accumulated knowledge base
// after all information types are terminal.
type Extractor struct {
	providers ProviderLookup
	relevance RelevanceOracle
	caps      config.VigilanceConfig
	logger    *zap.Logger
}

// NewExtractor creates the findings extractor.
func NewExtractor(providers ProviderLookup, relevance RelevanceOracle, caps config.VigilanceConfig, logger *zap.Logger) *Extractor {
	if relevance == nil {
		relevance = NeutralRelevance{}
	}
	return &Extractor{providers: providers, relevance: relevance, caps: caps, logger: logger}
}

// Extract walks the knowledge base and produces one finding per adverse
// fact identity, plus verification findings for declared-vs-found
// inconsistencies.
func (e *Extractor) Extract(scr *screening.Screening, subject *screening.Subject, kb *sar.KnowledgeBase) []screening.Finding {
	var out []screening.Finding

	for _, fact := range kb.AllFacts() {
		f, ok := e.findingFromFact(scr, fact, kb)
		if !ok {
			continue
		}
		out = append(out, f)
	}

	for _, inc := range sar.DetectInconsistencies(subject, kb) {
		out = append(out, e.findingFromInconsistency(scr, inc))
	}

	e.logger.Info("findings extracted",
		zap.String("screening_id", scr.ID.String()),
		zap.Int("findings", len(out)))
	return out
}

// findingFromFact classifies one fact; facts that are not adverse produce
// no finding.
func (e *Extractor) findingFromFact(scr *screening.Screening, fact screening.Fact, kb *sar.KnowledgeBase) (screening.Finding, bool) {
	var (
		category screening.FindingCategory
		severity screening.Severity
		summary  string
	)

	switch fact.Type {
	case screening.FactCriminalCase:
		category = screening.CategoryCriminal
		severity = screening.SeverityMedium
		if containsAny(fact.Value, felonyMarkers) {
			severity = screening.SeverityHigh
		}
		summary = "Criminal case " + fact.Value

	case screening.FactCivilCase:
		category = screening.CategoryFinancial
		severity = screening.SeverityLow
		summary = "Civil case " + fact.Value

	case screening.FactBankruptcy:
		category = screening.CategoryFinancial
		severity = screening.SeverityMedium
		summary = "Bankruptcy filing " + fact.Value

	case screening.FactLien:
		category = screening.CategoryFinancial
		severity = screening.SeverityLow
		summary = "Lien " + fact.Value

	case screening.FactRegulatory:
		category = screening.CategoryRegulatory
		severity = screening.SeverityHigh
		summary = "Regulatory action " + fact.Value

	case screening.FactSanctionMatch:
		category = screening.CategoryRegulatory
		severity = screening.SeverityCritical
		summary = "Sanctions or watchlist match: " + fact.Value

	case screening.FactMediaMention:
		category = screening.CategoryReputation
		severity = screening.SeverityLow
		if containsAny(fact.Value, adverseMediaMarkers) {
			severity = screening.SeverityMedium
		}
		summary = "Media mention: " + fact.Value

	default:
		return screening.Finding{}, false
	}

	key := fact.Key()
	sources := kb.Sources(key)
	corroborated := len(sources) >= 2

	confidence := fact.Confidence
	authoritative := e.anyAuthoritative(sources)
	if !authoritative {
		cap := e.synthesisCap(kb, key)
		if confidence > cap {
			confidence = cap
		}
	}

	discovered := fact.DiscoveredAt
	return screening.Finding{
		ID:                  uuid.New(),
		SubjectID:           scr.SubjectID,
		Category:            category,
		Severity:            severity,
		Confidence:          confidence,
		RelevanceToRole:     e.relevance.Relevance(category, scr.Role),
		Summary:             summary,
		Sources:             sources,
		Corroborated:        corroborated,
		Status:              screening.FindingActive,
		FindingDate:         &discovered,
		AdverseActionUsable: authoritative,
	}, true
}

// findingFromInconsistency maps a declared-vs-found conflict to a
// VERIFICATION finding.
func (e *Extractor) findingFromInconsistency(scr *screening.Screening, inc screening.Inconsistency) screening.Finding {
	severity := screening.SeverityMedium
	if inc.Severity == screening.InconsistencySevere {
		severity = screening.SeverityHigh
	}
	if inc.Severity == screening.InconsistencyMinor {
		severity = screening.SeverityLow
	}

	return screening.Finding{
		ID:              uuid.New(),
		SubjectID:       scr.SubjectID,
		Category:        screening.CategoryVerification,
		Severity:        severity,
		Confidence:      inc.DeceptionScore,
		RelevanceToRole: e.relevance.Relevance(screening.CategoryVerification, scr.Role),
		Summary:         fmt.Sprintf("Declared %s does not match records", inc.Field),
		Detail:          fmt.Sprintf("claimed %q, found %q", inc.Claimed, inc.Found),
		Sources:         nil,
		Status:          screening.FindingActive,
		// Verification mismatches come from authoritative comparisons.
		AdverseActionUsable: true,
	}
}

// anyAuthoritative reports whether at least one source provider is
// authoritative. Findings backed only by the synthesis tier may not be
// used for adverse action.
func (e *Extractor) anyAuthoritative(sources []string) bool {
	for _, id := range sources {
		p, ok := e.providers.Get(id)
		if ok && p.Info().Authoritative {
			return true
		}
	}
	return false
}

// synthesisCap resolves the confidence ceiling for a non-authoritative
// finding from the check type that recorded the underlying fact.
func (e *Extractor) synthesisCap(kb *sar.KnowledgeBase, key screening.FactKey) float64 {
	if infoType, ok := kb.InfoTypeOf(key); ok {
		return e.caps.ConfidenceCap(string(screening.CheckTypeFor(infoType)))
	}
	return e.caps.ConfidenceCap("")
}

func containsAny(value string, markers []string) bool {
	lower := strings.ToLower(value)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
