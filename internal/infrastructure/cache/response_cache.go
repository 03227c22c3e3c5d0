package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
)

// Origin records who paid for a cached response. Paid-external rows are
// tenant-agnostic and shareable; customer-provided rows are bound to the
// tenant that supplied them.
type Origin string

const (
	OriginPaidExternal     Origin = "paid_external"
	OriginCustomerProvided Origin = "customer_provided"
)

// Freshness classifies a cached response against its TTL windows.
type Freshness string

const (
	FreshnessFresh   Freshness = "FRESH"
	FreshnessStale   Freshness = "STALE"
	FreshnessExpired Freshness = "EXPIRED"
	FreshnessMissing Freshness = "MISSING"
)

// Decision is the tier-aware policy outcome the executor applies.
type Decision string

const (
	DecisionUse          Decision = "use"
	DecisionUseWithFlag  Decision = "use_with_flag"
	DecisionRefresh      Decision = "refresh"
)

// Decide applies the tier-aware freshness policy: expired or missing rows
// always refresh; stale rows are usable only under STANDARD and must be
// flagged; fresh rows are used as-is.
func Decide(f Freshness, tier screening.ServiceTier) Decision {
	switch f {
	case FreshnessFresh:
		return DecisionUse
	case FreshnessStale:
		if tier == screening.TierStandard {
			return DecisionUseWithFlag
		}
		return DecisionRefresh
	default:
		return DecisionRefresh
	}
}

// Entry is one cached normalized provider response. The most recent row
// for a (subject, check_type, provider) key wins; older rows are
// overwritten.
type Entry struct {
	SubjectID  uuid.UUID           `json:"subject_id"`
	CheckType  screening.CheckType `json:"check_type"`
	ProviderID string              `json:"provider_id"`
	Origin     Origin              `json:"origin"`
	TenantID   *uuid.UUID          `json:"tenant_id,omitempty"`

	AcquiredAt time.Time `json:"acquired_at"`
	FreshUntil time.Time `json:"fresh_until"`
	StaleUntil time.Time `json:"stale_until"`

	Records      []screening.Record `json:"normalized"`
	RawEncrypted []byte             `json:"raw_encrypted,omitempty"`
	Cost         decimal.Decimal    `json:"cost"`
}

// FreshnessAt classifies the entry at a given instant.
func (e *Entry) FreshnessAt(now time.Time) Freshness {
	switch {
	case now.Before(e.FreshUntil):
		return FreshnessFresh
	case now.Before(e.StaleUntil):
		return FreshnessStale
	default:
		return FreshnessExpired
	}
}

// VisibleTo enforces origin visibility: customer-provided entries match
// only the owning tenant.
func (e *Entry) VisibleTo(tenantID uuid.UUID) bool {
	if e.Origin != OriginCustomerProvided {
		return true
	}
	return e.TenantID != nil && *e.TenantID == tenantID
}

// ResponseCache stores normalized provider responses with TTL windows and
// per-key build locks so concurrent callers coalesce onto one provider
// call.
type ResponseCache struct {
	cache  Cache
	cfg    config.CacheConfig
	logger *zap.Logger
	clock  func() time.Time
}

// NewResponseCache builds the response cache over the generic cache.
func NewResponseCache(c Cache, cfg config.CacheConfig, logger *zap.Logger) *ResponseCache {
	return &ResponseCache{
		cache:  c,
		cfg:    cfg,
		logger: logger,
		clock:  time.Now,
	}
}

// WithClock overrides the time source; used by tests to age entries.
func (rc *ResponseCache) WithClock(clock func() time.Time) *ResponseCache {
	rc.clock = clock
	return rc
}

func responseKey(subjectID uuid.UUID, checkType screening.CheckType, providerID string) string {
	return fmt.Sprintf("%s%s:%s:%s", ResponsePrefix, subjectID, checkType, providerID)
}

// Lookup returns the most recent entry for the key, its freshness, and
// whether it is visible to the calling tenant. Invisible and missing rows
// both report FreshnessMissing.
func (rc *ResponseCache) Lookup(ctx context.Context, subjectID uuid.UUID, checkType screening.CheckType, providerID string, tenantID uuid.UUID) (*Entry, Freshness, error) {
	var entry Entry
	err := rc.cache.GetJSON(ctx, responseKey(subjectID, checkType, providerID), &entry)
	if err != nil {
		if _, ok := err.(ErrCacheKeyNotFound); ok {
			return nil, FreshnessMissing, nil
		}
		return nil, FreshnessMissing, err
	}
	if !entry.VisibleTo(tenantID) {
		rc.logger.Debug("cache entry not visible to tenant",
			zap.String("subject_id", subjectID.String()),
			zap.String("check_type", string(checkType)),
			zap.String("tenant_id", tenantID.String()))
		return nil, FreshnessMissing, nil
	}
	return &entry, entry.FreshnessAt(rc.clock()), nil
}

// Store writes an entry, stamping TTL windows from the per-check-type
// configuration when unset. The redis TTL matches the stale window so
// expired rows age out of storage.
func (rc *ResponseCache) Store(ctx context.Context, entry *Entry) error {
	now := rc.clock()
	if entry.AcquiredAt.IsZero() {
		entry.AcquiredAt = now
	}
	if entry.FreshUntil.IsZero() {
		entry.FreshUntil = entry.AcquiredAt.Add(rc.cfg.FreshWindow(string(entry.CheckType)))
	}
	if entry.StaleUntil.IsZero() {
		entry.StaleUntil = entry.AcquiredAt.Add(rc.cfg.StaleWindow(string(entry.CheckType)))
	}

	ttl := entry.StaleUntil.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("refusing to store already-expired entry for %s", entry.CheckType)
	}

	key := responseKey(entry.SubjectID, entry.CheckType, entry.ProviderID)
	return rc.cache.SetJSON(ctx, key, entry, ttl)
}

// AcquireBuildLock takes the per-key build lock guarding a live provider
// call. It returns false when another caller holds the lock; the caller
// should wait and re-check the cache (double-checked pattern). The
// returned release function is safe to call once.
func (rc *ResponseCache) AcquireBuildLock(ctx context.Context, subjectID uuid.UUID, checkType screening.CheckType, providerID string) (bool, func(), error) {
	key := fmt.Sprintf("%s%s:%s:%s", BuildLockPrefix, subjectID, checkType, providerID)
	token := uuid.NewString()

	ok, err := rc.cache.SetNX(ctx, key, token, rc.cfg.BuildLockTTL)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, nil
	}

	release := func() {
		// Best effort; the TTL bounds lock leakage on crash.
		if err := rc.cache.Delete(context.Background(), key); err != nil {
			rc.logger.Warn("build lock release failed", zap.String("key", key), zap.Error(err))
		}
	}
	return true, release, nil
}
