package screening

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QueryKind records how a search query was produced.
type QueryKind string

const (
	QueryInitial    QueryKind = "initial"
	QueryEnriched   QueryKind = "enriched"
	QueryGapFill    QueryKind = "gap_fill"
	QueryRefinement QueryKind = "refinement"
)

// SearchQuery is one unit of work for the query executor.
type SearchQuery struct {
	ID         uuid.UUID         `json:"query_id"`
	InfoType   InformationType   `json:"info_type"`
	Kind       QueryKind         `json:"kind"`
	ProviderID string            `json:"provider_id"`
	Params     map[string]string `json:"params"`
	Iteration  int               `json:"iteration"`

	// TargetedGap is set on gap_fill queries.
	TargetedGap string `json:"targeted_gap,omitempty"`

	// EnrichedFrom lists completed types whose facts supplied parameters.
	EnrichedFrom []InformationType `json:"enriched_from,omitempty"`
}

// NewSearchQuery builds a query with a fresh id.
func NewSearchQuery(infoType InformationType, kind QueryKind, providerID string, params map[string]string, iteration int) SearchQuery {
	if params == nil {
		params = make(map[string]string)
	}
	return SearchQuery{
		ID:         uuid.New(),
		InfoType:   infoType,
		Kind:       kind,
		ProviderID: providerID,
		Params:     params,
		Iteration:  iteration,
	}
}

// DedupeKey identifies duplicate queries within one iteration: same
// provider, same canonicalized parameters.
func (q SearchQuery) DedupeKey() string {
	keys := make([]string, 0, len(q.Params))
	for k := range q.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(q.ProviderID)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(CanonicalValue(q.Params[k]))
	}
	return b.String()
}

// QueryStatus is the terminal status of one executed query.
type QueryStatus string

const (
	QuerySuccess     QueryStatus = "SUCCESS"
	QueryFailed      QueryStatus = "FAILED"
	QueryTimeout     QueryStatus = "TIMEOUT"
	QueryRateLimited QueryStatus = "RATE_LIMITED"
)

// QueryResult is the outcome of dispatching one SearchQuery.
type QueryResult struct {
	QueryID    uuid.UUID   `json:"query_id"`
	ProviderID string      `json:"provider_id"`
	Status     QueryStatus `json:"status"`
	Records    []Record    `json:"records,omitempty"`
	FromCache  bool        `json:"from_cache"`
	Stale      bool        `json:"stale"`
	LatencyMS  int64       `json:"latency_ms"`
	RetryCount int         `json:"retry_count"`
	Error      string      `json:"error,omitempty"`
	ExecutedAt time.Time   `json:"executed_at"`
}

// Record is one normalized record returned by a provider for a query.
type Record struct {
	Kind       string            `json:"kind"`
	Fields     map[string]string `json:"fields"`
	Confidence float64           `json:"confidence"`
	RecordDate *time.Time        `json:"record_date,omitempty"`
}
