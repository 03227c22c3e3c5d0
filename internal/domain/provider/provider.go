package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// TierCategory ranks a provider's data quality class. Premium sources are
// preferred over standard ones; the synthesis provider ranks last and its
// findings are capped and never usable for adverse action.
type TierCategory string

const (
	TierPremium   TierCategory = "premium"
	TierStandard  TierCategory = "standard"
	TierSynthesis TierCategory = "synthesis"
)

// preference orders tier categories for registry ranking; lower is better.
func (t TierCategory) preference() int {
	switch t {
	case TierPremium:
		return 0
	case TierStandard:
		return 1
	case TierSynthesis:
		return 2
	default:
		return 3
	}
}

// Less reports whether t is preferred over other.
func (t TierCategory) Less(other TierCategory) bool {
	return t.preference() < other.preference()
}

// Info is the static metadata a provider declares at registration.
type Info struct {
	ID                 string                 `json:"id"`
	Name               string                 `json:"name"`
	SupportedChecks    []screening.CheckType  `json:"supported_check_types"`
	TierCategory       TierCategory           `json:"tier_category"`
	Priority           int                    `json:"priority"`
	CostPerQuery       decimal.Decimal        `json:"cost_per_query"`
	RateLimitPerMinute int                    `json:"rate_limit_per_minute"`
	Timeout            time.Duration          `json:"timeout"`

	// Authoritative is false for synthesis or aggregation sources whose
	// records may not back adverse-action decisions.
	Authoritative bool `json:"authoritative"`
}

// Supports reports whether the provider declares a check type.
func (i Info) Supports(ct screening.CheckType) bool {
	for _, c := range i.SupportedChecks {
		if c == ct {
			return true
		}
	}
	return false
}

// RawResponse is an unparsed provider payload plus transport metadata.
type RawResponse struct {
	ProviderID string            `json:"provider_id"`
	CheckType  screening.CheckType `json:"check_type"`
	Payload    []byte            `json:"payload"`
	StatusCode int               `json:"status_code"`
	ReceivedAt time.Time         `json:"received_at"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// HealthStatus is the result of a provider health probe.
type HealthStatus struct {
	Available bool          `json:"available"`
	Latency   time.Duration `json:"latency_ms"`
	ErrorRate float64       `json:"error_rate"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Provider is the abstract contract the engine consumes. Concrete
// transports live outside the core; the sandbox family under
// internal/service/providers implements it in-process.
type Provider interface {
	// Info returns static provider metadata. Must be cheap and constant.
	Info() Info

	// Query performs one lookup for a subject and check type. Failures are
	// categorized via *Error so the executor can decide on retry/fallback.
	Query(ctx context.Context, subject *screening.Subject, checkType screening.CheckType, params map[string]string) (*RawResponse, error)

	// Normalize parses a raw response into normalized records.
	Normalize(raw *RawResponse) ([]screening.Record, error)

	// HealthCheck probes provider availability.
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}
