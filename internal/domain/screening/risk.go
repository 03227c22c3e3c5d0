package screening

// RiskLevel buckets the overall composite score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Recommendation is the scorer's terminal advice.
type Recommendation string

const (
	RecommendProceed            Recommendation = "PROCEED"
	RecommendProceedWithCaution Recommendation = "PROCEED_WITH_CAUTION"
	RecommendReviewRequired     Recommendation = "REVIEW_REQUIRED"
	RecommendDoNotProceed       Recommendation = "DO_NOT_PROCEED"
)

// ContributingFactor explains one finding's contribution to the composite.
type ContributingFactor struct {
	FindingID    string          `json:"finding_id"`
	Category     FindingCategory `json:"category"`
	Severity     Severity        `json:"severity"`
	Summary      string          `json:"summary"`
	Contribution float64         `json:"contribution"`
}

// RiskScore is the composite output of the risk scorer.
type RiskScore struct {
	Overall             float64                     `json:"overall"`
	Level               RiskLevel                   `json:"level"`
	PerCategory         map[FindingCategory]float64 `json:"per_category"`
	ContributingFactors []ContributingFactor        `json:"contributing_factors"`
	Recommendation      Recommendation              `json:"recommendation"`
}

// LevelForScore maps an overall score onto a risk level:
// [0,25] LOW, (25,50] MODERATE, (50,75] HIGH, (75,100] CRITICAL.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score <= 25:
		return RiskLow
	case score <= 50:
		return RiskModerate
	case score <= 75:
		return RiskHigh
	default:
		return RiskCritical
	}
}
