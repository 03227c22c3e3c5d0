// Package compliance holds the jurisdiction and role policy consulted
// before any check type runs. The policy also weighs finding categories by
// role relevance for the risk scorer.
package compliance

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// Rule restricts a check type within a jurisdiction. A check matching the
// locale prefix is denied unless the subject's role is listed.
type Rule struct {
	CheckType    screening.CheckType
	LocalePrefix string
	AllowedRoles []string
	Reason       string
}

// Policy implements the compliance oracle over a static rule table plus a
// role-relevance matrix. Rules are evaluated in order; the first match
// decides.
type Policy struct {
	rules     []Rule
	relevance map[screening.FindingCategory]map[string]float64
	logger    *zap.Logger
}

// NewPolicy builds a policy from explicit rules. Most deployments start
// from DefaultRules and append tenant-specific restrictions.
func NewPolicy(rules []Rule, logger *zap.Logger) *Policy {
	return &Policy{
		rules:     rules,
		relevance: defaultRelevance(),
		logger:    logger,
	}
}

// DefaultRules is the built-in restriction set.
func DefaultRules() []Rule {
	return []Rule{
		{
			CheckType:    screening.CheckFinancial,
			LocalePrefix: "US",
			AllowedRoles: []string{"finance", "executive", "fiduciary"},
			Reason:       "credit history is limited to financially sensitive roles",
		},
		{
			CheckType:    screening.CheckCriminal,
			LocalePrefix: "EU",
			AllowedRoles: []string{"finance", "security", "childcare", "healthcare"},
			Reason:       "criminal record checks require a qualifying role in this jurisdiction",
		},
		{
			CheckType:    screening.CheckDigitalFootprint,
			LocalePrefix: "EU",
			AllowedRoles: nil,
			Reason:       "digital footprint collection is not permitted in this jurisdiction",
		},
	}
}

// Permitted reports whether the check type may run for the locale and role.
func (p *Policy) Permitted(_ context.Context, checkType screening.CheckType, locale, role string, _ screening.ServiceTier) (bool, string) {
	for _, rule := range p.rules {
		if rule.CheckType != checkType {
			continue
		}
		if !localeMatches(locale, rule.LocalePrefix) {
			continue
		}
		for _, allowed := range rule.AllowedRoles {
			if strings.EqualFold(allowed, role) {
				return true, ""
			}
		}
		return false, rule.Reason
	}
	return true, ""
}

// Relevance returns the role multiplier for a finding category; 1 is
// neutral.
func (p *Policy) Relevance(category screening.FindingCategory, role string) float64 {
	byRole, ok := p.relevance[category]
	if !ok {
		return 1.0
	}
	if weight, ok := byRole[strings.ToLower(role)]; ok {
		return weight
	}
	if weight, ok := byRole["*"]; ok {
		return weight
	}
	return 1.0
}

// defaultRelevance discounts categories with weak ties to the role.
// Financial findings matter less outside money-handling roles; reputation
// findings matter more for public-facing ones.
func defaultRelevance() map[screening.FindingCategory]map[string]float64 {
	return map[screening.FindingCategory]map[string]float64{
		screening.CategoryFinancial: {
			"finance":   1.0,
			"executive": 1.0,
			"fiduciary": 1.0,
			"*":         0.7,
		},
		screening.CategoryReputation: {
			"executive": 1.2,
			"spokesperson": 1.2,
			"*":         1.0,
		},
	}
}

// localeMatches treats locales hierarchically: "US" matches "US-NY".
func localeMatches(locale, prefix string) bool {
	if prefix == "" {
		return true
	}
	if strings.EqualFold(locale, prefix) {
		return true
	}
	return strings.HasPrefix(strings.ToUpper(locale), strings.ToUpper(prefix)+"-")
}
