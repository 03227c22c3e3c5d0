package sar

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/provider"
	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// staticProvider is a metadata-only provider for planner tests; its Query
// path is never reached.
type staticProvider struct {
	info provider.Info
}

func (p staticProvider) Info() provider.Info { return p.info }
func (p staticProvider) Query(context.Context, *screening.Subject, screening.CheckType, map[string]string) (*provider.RawResponse, error) {
	panic("planner tests do not dispatch")
}
func (p staticProvider) Normalize(*provider.RawResponse) ([]screening.Record, error) { return nil, nil }
func (p staticProvider) HealthCheck(context.Context) (*provider.HealthStatus, error) { return nil, nil }

type staticDirectory struct {
	providers map[screening.CheckType][]provider.Provider
}

func (d staticDirectory) ForCheckType(ct screening.CheckType) []provider.Provider {
	return d.providers[ct]
}

func directoryFor(ids []string, checks ...screening.CheckType) staticDirectory {
	d := staticDirectory{providers: make(map[screening.CheckType][]provider.Provider)}
	for _, ct := range checks {
		for i, id := range ids {
			d.providers[ct] = append(d.providers[ct], staticProvider{info: provider.Info{
				ID:              id,
				SupportedChecks: checks,
				TierCategory:    provider.TierPremium,
				Priority:        i,
				CostPerQuery:    decimal.Zero,
			}})
		}
	}
	return d
}

func newTestPlanner(dir ProviderDirectory) *Planner {
	return NewPlanner(dir, testSARConfig(), zap.NewNop())
}

func TestPlanner_CriminalCountyQueriesCapped(t *testing.T) {
	p := newTestPlanner(directoryFor([]string{"courts"}, screening.CheckCriminal))
	subject := testSubject(t)
	for _, county := range []string{"Kings", "Queens", "Essex", "Cook", "Travis", "Marin", "Wake"} {
		subject.Addresses = append(subject.Addresses, screening.Address{County: county, State: "XX"})
	}

	queries := p.Plan(screening.TypeCriminal, 1, subject, Snapshot{}, nil)

	require.Len(t, queries, 5, "county fan-out is capped")
	for _, q := range queries {
		assert.Equal(t, screening.TypeCriminal, q.InfoType)
		assert.NotEmpty(t, q.Params["county"])
	}
}

func TestPlanner_CriminalFallsBackToStatewide(t *testing.T) {
	p := newTestPlanner(directoryFor([]string{"courts"}, screening.CheckCriminal))
	subject := testSubject(t)
	subject.Addresses = []screening.Address{{State: "CA"}}

	queries := p.Plan(screening.TypeCriminal, 1, subject, Snapshot{}, nil)

	require.Len(t, queries, 1)
	assert.Equal(t, "statewide:CA", queries[0].Params["county"])
}

func TestPlanner_CriminalUsesConfirmedCounties(t *testing.T) {
	p := newTestPlanner(directoryFor([]string{"courts"}, screening.CheckCriminal))
	subject := testSubject(t)
	subject.Addresses = []screening.Address{{County: "Kings", State: "NY"}}

	// Earlier iterations confirmed an address in another county and a
	// bare statewide presence.
	snap := Snapshot{Counties: []string{"Cook"}, States: []string{"TX"}}
	queries := p.Plan(screening.TypeCriminal, 1, subject, snap, nil)

	counties := make(map[string]bool)
	for _, q := range queries {
		counties[q.Params["county"]] = true
	}
	assert.True(t, counties["Kings"], "declared county searched")
	assert.True(t, counties["Cook"], "confirmed county searched")
	assert.True(t, counties["statewide:TX"], "confirmed state searched statewide")
}

func TestPlanner_EnrichedQueriesUseConfirmedFacts(t *testing.T) {
	p := newTestPlanner(directoryFor([]string{"courts"}, screening.CheckCriminal))
	subject := testSubject(t)

	snap := Snapshot{
		Names:        []string{"Jordan A. Smith"},
		DatesOfBirth: []string{"1985-03-14"},
	}
	queries := p.Plan(screening.TypeCriminal, 1, subject, snap, nil)

	require.NotEmpty(t, queries)
	names := make(map[string]bool)
	for _, q := range queries {
		assert.Equal(t, screening.QueryEnriched, q.Kind)
		assert.Equal(t, "1985-03-14", q.Params["date_of_birth"], "confirmed DOB preferred over declared")
		names[q.Params["name"]] = true
	}
	assert.True(t, names["Jordan Smith"], "declared name still searched")
	assert.True(t, names["Jordan A. Smith"], "confirmed variant searched")
}

func TestPlanner_AdverseMediaTermsUnion(t *testing.T) {
	p := newTestPlanner(directoryFor([]string{"mediawatch"}, screening.CheckAdverseMedia))
	subject := testSubject(t)

	snap := Snapshot{
		Names:     []string{"Jordan A. Smith"},
		Employers: []string{"Initech"},
		Schools:   []string{"State University"},
	}
	queries := p.Plan(screening.TypeAdverseMedia, 1, subject, snap, nil)

	terms := make(map[string]bool)
	for _, q := range queries {
		terms[q.Params["search_term"]] = true
	}
	assert.True(t, terms["Initech"])
	assert.True(t, terms["State University"])
	assert.True(t, terms["Jordan Smith"])
}

func TestPlanner_DigitalFootprintUsesHandles(t *testing.T) {
	p := newTestPlanner(directoryFor([]string{"osint"}, screening.CheckDigitalFootprint))
	subject := testSubject(t)
	subject.Emails = []string{"jordan@example.com"}
	subject.Usernames = []string{"jsmith85"}

	queries := p.Plan(screening.TypeDigitalFootprint, 1, subject, Snapshot{}, nil)

	var emails, usernames int
	for _, q := range queries {
		if q.Params["email"] != "" {
			emails++
		}
		if q.Params["username"] != "" {
			usernames++
		}
	}
	assert.Equal(t, 1, emails)
	assert.Equal(t, 1, usernames)
}

func TestPlanner_IdentityFansOutToAllProviders(t *testing.T) {
	p := newTestPlanner(directoryFor([]string{"acme", "globex", "initrode"}, screening.CheckIdentity))
	queries := p.Plan(screening.TypeIdentity, 1, testSubject(t), Snapshot{}, nil)

	require.Len(t, queries, 3)
	providers := map[string]bool{}
	for _, q := range queries {
		providers[q.ProviderID] = true
	}
	assert.Len(t, providers, 3)
}

func TestPlanner_GapFillTargetsGaps(t *testing.T) {
	p := newTestPlanner(directoryFor([]string{"acme", "globex", "initrode"}, screening.CheckIdentity))
	last := &screening.Assessment{
		InfoType: screening.TypeIdentity,
		Gaps:     []string{"date_of_birth", "address"},
	}

	queries := p.Plan(screening.TypeIdentity, 2, testSubject(t), Snapshot{}, last)

	// One query per (gap, provider) pair.
	require.Len(t, queries, 6)
	for _, q := range queries {
		assert.Equal(t, screening.QueryGapFill, q.Kind)
		assert.NotEmpty(t, q.TargetedGap)
		assert.Equal(t, 2, q.Iteration)
	}
}

func TestPlanner_GapFillWithoutGapsReturnsNothing(t *testing.T) {
	p := newTestPlanner(directoryFor([]string{"acme"}, screening.CheckIdentity))

	assert.Empty(t, p.Plan(screening.TypeIdentity, 2, testSubject(t), Snapshot{}, nil))
	assert.Empty(t, p.Plan(screening.TypeIdentity, 2, testSubject(t), Snapshot{}, &screening.Assessment{}))
}

func TestPlanner_NoProvidersReturnsNothing(t *testing.T) {
	p := newTestPlanner(staticDirectory{providers: map[screening.CheckType][]provider.Provider{}})
	assert.Empty(t, p.Plan(screening.TypeIdentity, 1, testSubject(t), Snapshot{}, nil))
}

func TestPlanner_DedupeWithinIteration(t *testing.T) {
	p := newTestPlanner(directoryFor([]string{"sanctionsdb"}, screening.CheckSanctions))
	subject := testSubject(t)
	// Declared variants collapsing to the same canonical name.
	subject.OtherNames = []string{"jordan  smith", "JORDAN SMITH"}
	dob := time.Date(1985, 3, 14, 0, 0, 0, 0, time.UTC)
	subject.DateOfBirth = &dob

	queries := p.Plan(screening.TypeSanctions, 1, subject, Snapshot{}, nil)

	require.Len(t, queries, 1, "canonically identical queries collapse")
}
