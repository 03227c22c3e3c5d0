package risk

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// severityBase is the pre-adjustment contribution per finding severity.
var severityBase = map[screening.Severity]float64{
	screening.SeverityLow:      10,
	screening.SeverityMedium:   25,
	screening.SeverityHigh:     50,
	screening.SeverityCritical: 75,
}

// categoryWeight scales each category's share of the composite.
var categoryWeight = map[screening.FindingCategory]float64{
	screening.CategoryCriminal:     1.5,
	screening.CategoryRegulatory:   1.3,
	screening.CategoryVerification: 1.2,
	screening.CategoryFinancial:    1.0,
	screening.CategoryBehavioral:   1.0,
	screening.CategoryNetwork:      0.9,
	screening.CategoryReputation:   0.8,
}

const corroborationBoost = 1.2

// Scorer computes the composite risk score from findings. Scoring is a
// pure function of the findings and the evaluation instant, so monitoring
// re-runs are reproducible.
type Scorer struct {
	logger *zap.Logger
}

// NewScorer creates the scorer.
func NewScorer(logger *zap.Logger) *Scorer {
	return &Scorer{logger: logger}
}

// Score evaluates the findings as of now.
func (s *Scorer) Score(findings []screening.Finding, now time.Time) *screening.RiskScore {
	perCategory := make(map[screening.FindingCategory]float64)
	var factors []screening.ContributingFactor

	for _, f := range findings {
		if f.Status == screening.FindingResolved {
			continue
		}
		contribution := contribution(f, now)
		perCategory[f.Category] += contribution
		factors = append(factors, screening.ContributingFactor{
			FindingID:    f.ID.String(),
			Category:     f.Category,
			Severity:     f.Severity,
			Summary:      f.Summary,
			Contribution: contribution,
		})
	}

	// Per-category scores saturate at 100 before weighting so one noisy
	// category cannot dominate the composite on volume alone.
	var weightedSum, weightSum float64
	for category, score := range perCategory {
		if score > 100 {
			score = 100
			perCategory[category] = 100
		}
		w := categoryWeight[category]
		weightedSum += score * w
		weightSum += w
	}

	overall := 0.0
	if weightSum > 0 {
		overall = weightedSum / weightSum
	}
	if overall > 100 {
		overall = 100
	}

	sort.Slice(factors, func(i, j int) bool {
		if factors[i].Contribution != factors[j].Contribution {
			return factors[i].Contribution > factors[j].Contribution
		}
		return factors[i].FindingID < factors[j].FindingID
	})

	level := screening.LevelForScore(overall)
	score := &screening.RiskScore{
		Overall:             overall,
		Level:               level,
		PerCategory:         perCategory,
		ContributingFactors: factors,
		Recommendation:      recommendationFor(level),
	}

	s.logger.Debug("risk scored",
		zap.Float64("overall", overall),
		zap.String("level", string(level)),
		zap.Int("findings", len(findings)))
	return score
}

// contribution applies recency, confidence, corroboration and role
// relevance to the severity base. Unset confidence or relevance is
// treated as neutral.
func contribution(f screening.Finding, now time.Time) float64 {
	c := severityBase[f.Severity]
	c *= recencyFactor(f.FindingDate, now)
	if f.Confidence > 0 {
		c *= f.Confidence
	}
	if f.Corroborated {
		c *= corroborationBoost
	}
	if f.RelevanceToRole > 0 {
		c *= f.RelevanceToRole
	}
	return c
}

// recencyFactor discounts older findings: full weight up to a year,
// tapering to half beyond seven; undated findings carry 0.8.
func recencyFactor(date *time.Time, now time.Time) float64 {
	if date == nil || date.IsZero() {
		return 0.8
	}
	age := now.Sub(*date)
	switch {
	case age <= 365*24*time.Hour:
		return 1.0
	case age <= 3*365*24*time.Hour:
		return 0.9
	case age <= 7*365*24*time.Hour:
		return 0.7
	default:
		return 0.5
	}
}

func recommendationFor(level screening.RiskLevel) screening.Recommendation {
	switch level {
	case screening.RiskLow:
		return screening.RecommendProceed
	case screening.RiskModerate:
		return screening.RecommendProceedWithCaution
	case screening.RiskHigh:
		return screening.RecommendReviewRequired
	default:
		return screening.RecommendDoNotProceed
	}
}
