// Package providers contains the in-process sandbox provider family. The
// sandbox serves deterministic canned records from a dataset, which makes
// it usable both for local wiring without external accounts and for
// engine-level tests.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clearvet/screening-backend/internal/domain/provider"
	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// SubjectRecords holds the canned records for one subject, per check type.
type SubjectRecords map[screening.CheckType][]screening.Record

// Dataset maps canonical subject names onto their records. Lookups go
// through screening.CanonicalValue so name variants resolve to the same
// subject.
type Dataset map[string]SubjectRecords

// Add registers records for a subject name and check type.
func (d Dataset) Add(name string, ct screening.CheckType, records ...screening.Record) {
	key := screening.CanonicalValue(name)
	if d[key] == nil {
		d[key] = make(SubjectRecords)
	}
	d[key][ct] = append(d[key][ct], records...)
}

// Lookup resolves records for a name and check type; unknown subjects get
// an empty result, not an error.
func (d Dataset) Lookup(name string, ct screening.CheckType) []screening.Record {
	subj, ok := d[screening.CanonicalValue(name)]
	if !ok {
		return nil
	}
	return subj[ct]
}

// Sandbox is a deterministic in-process provider. It answers queries from
// its dataset and never fails unless the context does.
type Sandbox struct {
	info provider.Info
	data Dataset
}

// NewSandbox creates a sandbox provider with the given metadata.
func NewSandbox(info provider.Info, data Dataset) *Sandbox {
	if info.Timeout == 0 {
		info.Timeout = 2 * time.Second
	}
	if info.RateLimitPerMinute == 0 {
		info.RateLimitPerMinute = 600
	}
	return &Sandbox{info: info, data: data}
}

func (s *Sandbox) Info() provider.Info { return s.info }

// Query resolves the queried name against the dataset. The search name
// comes from params when present so refined queries can target variants.
func (s *Sandbox) Query(ctx context.Context, subject *screening.Subject, checkType screening.CheckType, params map[string]string) (*provider.RawResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, provider.NewError(provider.ErrTimeout, s.info.ID, "sandbox query cancelled").WithCause(err)
	}

	name := params["name"]
	if name == "" && params["search_term"] != "" {
		name = params["search_term"]
	}
	if name == "" && subject != nil {
		name = subject.FullName
	}

	records := s.data.Lookup(name, checkType)
	payload, err := json.Marshal(records)
	if err != nil {
		return nil, provider.NewError(provider.ErrProviderError, s.info.ID, "sandbox payload marshal failed").WithCause(err)
	}

	return &provider.RawResponse{
		ProviderID: s.info.ID,
		CheckType:  checkType,
		Payload:    payload,
		StatusCode: 200,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// Normalize unmarshals the canned payload back into records. Synthesis
// tier records carry their dataset confidence; the findings layer applies
// the non-authoritative cap downstream.
func (s *Sandbox) Normalize(raw *provider.RawResponse) ([]screening.Record, error) {
	var records []screening.Record
	if err := json.Unmarshal(raw.Payload, &records); err != nil {
		return nil, fmt.Errorf("sandbox normalize: %w", err)
	}
	return records, nil
}

func (s *Sandbox) HealthCheck(ctx context.Context) (*provider.HealthStatus, error) {
	return &provider.HealthStatus{
		Available: true,
		Latency:   time.Millisecond,
		CheckedAt: time.Now().UTC(),
	}, nil
}

// Family builds the default sandbox trio over one dataset: a premium
// records source, a standard verification source, and the synthesis
// aggregator. Together they cover every check type.
func Family(data Dataset) []provider.Provider {
	return []provider.Provider{
		NewSandbox(provider.Info{
			ID:              "sandbox-records",
			Name:            "Sandbox Court & Watchlist Records",
			TierCategory:    provider.TierPremium,
			Priority:        10,
			CostPerQuery:    decimal.NewFromFloat(1.25),
			Authoritative:   true,
			SupportedChecks: []screening.CheckType{
				screening.CheckCriminal,
				screening.CheckCivil,
				screening.CheckFinancial,
				screening.CheckRegulatory,
				screening.CheckSanctions,
				screening.CheckLicenses,
			},
		}, data),
		NewSandbox(provider.Info{
			ID:              "sandbox-verify",
			Name:            "Sandbox Verification Bureau",
			TierCategory:    provider.TierStandard,
			Priority:        20,
			CostPerQuery:    decimal.NewFromFloat(0.40),
			Authoritative:   true,
			SupportedChecks: []screening.CheckType{
				screening.CheckIdentity,
				screening.CheckEmployment,
				screening.CheckEducation,
			},
		}, data),
		NewSandbox(provider.Info{
			ID:              "sandbox-synthesis",
			Name:            "Sandbox Open-Source Synthesis",
			TierCategory:    provider.TierSynthesis,
			Priority:        90,
			CostPerQuery:    decimal.NewFromFloat(0.05),
			Authoritative:   false,
			SupportedChecks: []screening.CheckType{
				screening.CheckIdentity,
				screening.CheckAdverseMedia,
				screening.CheckDigitalFootprint,
				screening.CheckSanctions,
			},
		}, data),
	}
}
