package gateway

import (
	"sort"

	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/provider"
	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// Registry maps provider ids and check types to providers. It is
// populated at startup and read-only thereafter, so lookups are safe
// under concurrent reads without locking.
type Registry struct {
	byID    map[string]provider.Provider
	byCheck map[screening.CheckType][]provider.Provider
}

// NewRegistry builds the registry from the providers discovered at
// startup. Per-check ordering is by tier category first, then declared
// priority.
func NewRegistry(logger *zap.Logger, providers ...provider.Provider) (*Registry, error) {
	r := &Registry{
		byID:    make(map[string]provider.Provider, len(providers)),
		byCheck: make(map[screening.CheckType][]provider.Provider),
	}

	for _, p := range providers {
		info := p.Info()
		if info.ID == "" {
			return nil, errors.NewValidationError("MISSING_PROVIDER_ID", "provider id is required")
		}
		if _, exists := r.byID[info.ID]; exists {
			return nil, errors.NewConflictError("duplicate provider id: " + info.ID)
		}
		r.byID[info.ID] = p
		for _, ct := range info.SupportedChecks {
			r.byCheck[ct] = append(r.byCheck[ct], p)
		}
		logger.Info("provider registered",
			zap.String("provider_id", info.ID),
			zap.String("tier_category", string(info.TierCategory)),
			zap.Int("check_types", len(info.SupportedChecks)))
	}

	for ct := range r.byCheck {
		list := r.byCheck[ct]
		sort.SliceStable(list, func(i, j int) bool {
			a, b := list[i].Info(), list[j].Info()
			if a.TierCategory != b.TierCategory {
				return a.TierCategory.Less(b.TierCategory)
			}
			return a.Priority < b.Priority
		})
	}

	return r, nil
}

// Get returns the provider registered under id.
func (r *Registry) Get(id string) (provider.Provider, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// ForCheckType returns providers supporting a check type in preference
// order. The returned slice is a copy; callers may filter it freely.
func (r *Registry) ForCheckType(ct screening.CheckType) []provider.Provider {
	list := r.byCheck[ct]
	out := make([]provider.Provider, len(list))
	copy(out, list)
	return out
}

// All returns every registered provider.
func (r *Registry) All() []provider.Provider {
	out := make([]provider.Provider, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	return out
}
