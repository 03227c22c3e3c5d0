package sar

import (
	"strings"

	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/provider"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
)

// maxQueriesPerIteration bounds how many queries one information type may
// plan in a single iteration, across all providers and parameters.
const maxQueriesPerIteration = 12

// ProviderDirectory resolves the preference-ordered providers for a check
// type. The gateway registry satisfies it.
type ProviderDirectory interface {
	ForCheckType(ct screening.CheckType) []provider.Provider
}

// Planner builds the query set for each SAR iteration. The first iteration
// issues initial queries, enriched with facts confirmed by earlier phases;
// later iterations target the assessor's gaps.
type Planner struct {
	directory ProviderDirectory
	cfg       config.SARConfig
	logger    *zap.Logger
}

// NewPlanner creates the planner.
func NewPlanner(directory ProviderDirectory, cfg config.SARConfig, logger *zap.Logger) *Planner {
	return &Planner{directory: directory, cfg: cfg, logger: logger}
}

// Plan produces the next iteration's queries. It returns nil when nothing
// useful can be asked, which terminates the type's loop.
func (p *Planner) Plan(
	infoType screening.InformationType,
	iteration int,
	subject *screening.Subject,
	snap Snapshot,
	lastAssessment *screening.Assessment,
) []screening.SearchQuery {
	providers := p.directory.ForCheckType(screening.CheckTypeFor(infoType))
	if len(providers) == 0 {
		return nil
	}

	var queries []screening.SearchQuery
	if iteration <= 1 {
		queries = p.planInitial(infoType, subject, snap, providers)
	} else {
		queries = p.planGapFill(infoType, iteration, subject, snap, lastAssessment, providers)
	}

	queries = dedupe(queries)
	if len(queries) > maxQueriesPerIteration {
		queries = queries[:maxQueriesPerIteration]
	}

	p.logger.Debug("iteration planned",
		zap.String("info_type", string(infoType)),
		zap.Int("iteration", iteration),
		zap.Int("queries", len(queries)))
	return queries
}

// planInitial builds the first-iteration queries. Types that depend on
// earlier phases enrich their parameters from the knowledge snapshot;
// Foundation types work from declared identifiers alone.
func (p *Planner) planInitial(
	infoType screening.InformationType,
	subject *screening.Subject,
	snap Snapshot,
	providers []provider.Provider,
) []screening.SearchQuery {
	primary := providers[0].Info().ID
	names := confirmedNames(subject, snap)
	dob := confirmedDOB(subject, snap)

	kind := screening.QueryInitial
	var enrichedFrom []screening.InformationType
	if len(snap.Names) > 0 || len(snap.DatesOfBirth) > 0 {
		kind = screening.QueryEnriched
		enrichedFrom = append(enrichedFrom, screening.TypeIdentity)
	}

	var queries []screening.SearchQuery
	add := func(providerID string, params map[string]string) {
		q := screening.NewSearchQuery(infoType, kind, providerID, params, 1)
		q.EnrichedFrom = enrichedFrom
		queries = append(queries, q)
	}

	switch infoType {
	case screening.TypeIdentity:
		params := map[string]string{"name": subject.FullName}
		if dob != "" {
			params["date_of_birth"] = dob
		}
		if subject.TaxID != "" {
			params["tax_id"] = subject.TaxID
		}
		// Identity is the corroboration anchor; ask every available source.
		for _, pr := range providers {
			add(pr.Info().ID, cloneParams(params))
		}

	case screening.TypeCriminal:
		counties := subjectCounties(subject, snap, p.cfg.MaxCounties)
		for _, name := range names {
			if len(counties) == 0 {
				params := map[string]string{"name": name}
				if dob != "" {
					params["date_of_birth"] = dob
				}
				add(primary, params)
				continue
			}
			for _, county := range counties {
				params := map[string]string{"name": name, "county": county}
				if dob != "" {
					params["date_of_birth"] = dob
				}
				add(primary, params)
			}
		}

	case screening.TypeEmployment:
		employers := subject.ClaimedEmployers
		if len(employers) == 0 {
			employers = snap.Organizations
		}
		for _, employer := range employers {
			params := map[string]string{"name": subject.FullName, "employer": employer}
			if dob != "" {
				params["date_of_birth"] = dob
			}
			add(primary, params)
		}
		if len(employers) == 0 {
			add(primary, map[string]string{"name": subject.FullName})
		}

	case screening.TypeEducation:
		for _, school := range subject.ClaimedSchools {
			add(primary, map[string]string{"name": subject.FullName, "school": school})
		}
		if len(subject.ClaimedSchools) == 0 {
			add(primary, map[string]string{"name": subject.FullName})
		}

	case screening.TypeSanctions:
		for _, name := range names {
			params := map[string]string{"name": name}
			if dob != "" {
				params["date_of_birth"] = dob
			}
			add(primary, params)
		}

	case screening.TypeAdverseMedia:
		terms := append(append(append([]string{}, names...), snap.Employers...), snap.Schools...)
		for _, term := range terms {
			add(primary, map[string]string{"search_term": term})
		}

	case screening.TypeDigitalFootprint:
		for _, email := range append(subject.Emails, snap.Emails...) {
			add(primary, map[string]string{"email": email})
		}
		for _, username := range append(subject.Usernames, snap.Usernames...) {
			add(primary, map[string]string{"username": username})
		}
		for _, name := range names {
			add(primary, map[string]string{"name": name})
		}

	default:
		// CIVIL, FINANCIAL, LICENSES, REGULATORY share the name+dob shape.
		for _, name := range names {
			params := map[string]string{"name": name}
			if dob != "" {
				params["date_of_birth"] = dob
			}
			add(primary, params)
		}
	}

	return queries
}

// planGapFill targets the previous assessment's gaps. Each (gap, provider)
// pair becomes one query, across every provider serving the check type.
func (p *Planner) planGapFill(
	infoType screening.InformationType,
	iteration int,
	subject *screening.Subject,
	snap Snapshot,
	last *screening.Assessment,
	providers []provider.Provider,
) []screening.SearchQuery {
	if last == nil || len(last.Gaps) == 0 {
		return nil
	}

	dob := confirmedDOB(subject, snap)
	names := confirmedNames(subject, snap)

	var queries []screening.SearchQuery
	for _, gap := range last.Gaps {
		for _, pr := range providers {
			params := map[string]string{
				"name":     primaryName(names, subject),
				"targeted": gap,
			}
			if dob != "" {
				params["date_of_birth"] = dob
			}
			q := screening.NewSearchQuery(infoType, screening.QueryGapFill, pr.Info().ID, params, iteration)
			q.TargetedGap = gap
			queries = append(queries, q)
		}
	}
	return queries
}

// dedupe removes queries with identical provider+parameter identity within
// one iteration.
func dedupe(queries []screening.SearchQuery) []screening.SearchQuery {
	seen := make(map[string]struct{}, len(queries))
	out := queries[:0]
	for _, q := range queries {
		key := q.DedupeKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

// confirmedNames merges declared names with name variants confirmed by
// earlier iterations.
func confirmedNames(subject *screening.Subject, snap Snapshot) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, n := range append(subject.AllNames(), snap.Names...) {
		canon := screening.CanonicalValue(n)
		if canon == "" {
			continue
		}
		if _, dup := seen[canon]; dup {
			continue
		}
		seen[canon] = struct{}{}
		out = append(out, n)
	}
	return out
}

// confirmedDOB prefers a provider-confirmed date of birth over the declared
// one.
func confirmedDOB(subject *screening.Subject, snap Snapshot) string {
	if len(snap.DatesOfBirth) > 0 {
		return snap.DatesOfBirth[0]
	}
	if subject.DateOfBirth != nil {
		return subject.DateOfBirth.Format("2006-01-02")
	}
	return ""
}

func primaryName(names []string, subject *screening.Subject) string {
	if len(names) > 0 {
		return names[0]
	}
	return subject.FullName
}

// subjectCounties collects distinct counties from declared addresses and
// from addresses confirmed by earlier iterations, capped by configuration.
// Statewide markers are used where the county is unknown.
func subjectCounties(subject *screening.Subject, snap Snapshot, maxCounties int) []string {
	if maxCounties <= 0 {
		maxCounties = 5
	}
	var candidates []string
	for _, addr := range subject.Addresses {
		county := strings.TrimSpace(addr.County)
		if county == "" && addr.State != "" {
			county = "statewide:" + addr.State
		}
		candidates = append(candidates, county)
	}
	candidates = append(candidates, snap.Counties...)
	for _, state := range snap.States {
		candidates = append(candidates, "statewide:"+state)
	}

	seen := make(map[string]struct{})
	var out []string
	for _, county := range candidates {
		if county == "" {
			continue
		}
		canon := screening.CanonicalValue(county)
		if _, dup := seen[canon]; dup {
			continue
		}
		seen[canon] = struct{}{}
		out = append(out, county)
		if len(out) >= maxCounties {
			break
		}
	}
	return out
}

func cloneParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
