package compliance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

func TestPolicy_PermittedMatchesLocaleHierarchy(t *testing.T) {
	p := NewPolicy(DefaultRules(), zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name      string
		checkType screening.CheckType
		locale    string
		role      string
		want      bool
	}{
		{"financial allowed for finance role", screening.CheckFinancial, "US-NY", "finance", true},
		{"financial denied for retail role", screening.CheckFinancial, "US-NY", "retail", false},
		{"financial rule scoped to US", screening.CheckFinancial, "UK-LON", "retail", true},
		{"criminal denied in EU without qualifying role", screening.CheckCriminal, "EU-DE", "retail", false},
		{"criminal allowed in EU for healthcare", screening.CheckCriminal, "EU-DE", "healthcare", true},
		{"criminal unrestricted in US", screening.CheckCriminal, "US-NY", "retail", true},
		{"digital footprint blocked in EU for any role", screening.CheckDigitalFootprint, "EU-FR", "executive", false},
		{"unlisted check always permitted", screening.CheckIdentity, "EU-FR", "retail", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := p.Permitted(ctx, tt.checkType, tt.locale, tt.role, screening.TierStandard)
			assert.Equal(t, tt.want, got)
			if !tt.want {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestPolicy_PermittedRoleCaseInsensitive(t *testing.T) {
	p := NewPolicy(DefaultRules(), zap.NewNop())

	got, _ := p.Permitted(context.Background(), screening.CheckFinancial, "US-CA", "Finance", screening.TierStandard)
	assert.True(t, got)
}

func TestPolicy_RelevanceFallsBackToWildcard(t *testing.T) {
	p := NewPolicy(DefaultRules(), zap.NewNop())

	assert.Equal(t, 1.0, p.Relevance(screening.CategoryFinancial, "finance"))
	assert.Equal(t, 0.7, p.Relevance(screening.CategoryFinancial, "retail"))
	assert.Equal(t, 1.2, p.Relevance(screening.CategoryReputation, "executive"))
	assert.Equal(t, 1.0, p.Relevance(screening.CategoryCriminal, "retail"))
}

func TestPolicy_FirstMatchingRuleDecides(t *testing.T) {
	rules := []Rule{
		{CheckType: screening.CheckCivil, LocalePrefix: "US-NY", AllowedRoles: []string{"legal"}, Reason: "state restriction"},
		{CheckType: screening.CheckCivil, LocalePrefix: "US", Reason: "country restriction"},
	}
	p := NewPolicy(rules, zap.NewNop())
	ctx := context.Background()

	got, reason := p.Permitted(ctx, screening.CheckCivil, "US-NY", "retail", screening.TierStandard)
	assert.False(t, got)
	assert.Equal(t, "state restriction", reason)

	got, reason = p.Permitted(ctx, screening.CheckCivil, "US-TX", "legal", screening.TierStandard)
	assert.False(t, got)
	assert.Equal(t, "country restriction", reason)
}
