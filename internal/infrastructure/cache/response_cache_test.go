package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
)

func newTestCache(t *testing.T) Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	c, err := NewRedisCache(client, zap.NewNop())
	require.NoError(t, err)
	return c
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		KeyPrefix:       "screen:",
		DefaultFreshFor: time.Hour,
		DefaultStaleFor: 24 * time.Hour,
		FreshFor:        map[string]time.Duration{string(screening.CheckSanctions): 10 * time.Minute},
		StaleFor:        map[string]time.Duration{string(screening.CheckSanctions): time.Hour},
		BuildLockTTL:    5 * time.Second,
	}
}

func TestResponseCache_LookupClassifiesFreshness(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rc := NewResponseCache(newTestCache(t), testCacheConfig(), zap.NewNop()).
		WithClock(func() time.Time { return now })
	ctx := context.Background()

	subjectID, tenantID := uuid.New(), uuid.New()
	entry := &Entry{
		SubjectID:  subjectID,
		CheckType:  screening.CheckCriminal,
		ProviderID: "sandbox-records",
		Origin:     OriginPaidExternal,
	}
	require.NoError(t, rc.Store(ctx, entry))

	_, freshness, err := rc.Lookup(ctx, subjectID, screening.CheckCriminal, "sandbox-records", tenantID)
	require.NoError(t, err)
	assert.Equal(t, FreshnessFresh, freshness)

	now = now.Add(2 * time.Hour)
	_, freshness, err = rc.Lookup(ctx, subjectID, screening.CheckCriminal, "sandbox-records", tenantID)
	require.NoError(t, err)
	assert.Equal(t, FreshnessStale, freshness)
}

func TestResponseCache_MissingKeyIsNotAnError(t *testing.T) {
	rc := NewResponseCache(newTestCache(t), testCacheConfig(), zap.NewNop())

	entry, freshness, err := rc.Lookup(context.Background(), uuid.New(), screening.CheckIdentity, "sandbox-verify", uuid.New())
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, FreshnessMissing, freshness)
}

func TestResponseCache_PerCheckTypeWindows(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rc := NewResponseCache(newTestCache(t), testCacheConfig(), zap.NewNop()).
		WithClock(func() time.Time { return now })

	entry := &Entry{
		SubjectID:  uuid.New(),
		CheckType:  screening.CheckSanctions,
		ProviderID: "sandbox-records",
		Origin:     OriginPaidExternal,
	}
	require.NoError(t, rc.Store(context.Background(), entry))

	assert.Equal(t, now.Add(10*time.Minute), entry.FreshUntil)
	assert.Equal(t, now.Add(time.Hour), entry.StaleUntil)
}

func TestResponseCache_CustomerProvidedBoundToTenant(t *testing.T) {
	rc := NewResponseCache(newTestCache(t), testCacheConfig(), zap.NewNop())
	ctx := context.Background()

	subjectID := uuid.New()
	owner := uuid.New()
	entry := &Entry{
		SubjectID:  subjectID,
		CheckType:  screening.CheckEmployment,
		ProviderID: "sandbox-verify",
		Origin:     OriginCustomerProvided,
		TenantID:   &owner,
	}
	require.NoError(t, rc.Store(ctx, entry))

	got, freshness, err := rc.Lookup(ctx, subjectID, screening.CheckEmployment, "sandbox-verify", owner)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, FreshnessFresh, freshness)

	got, freshness, err = rc.Lookup(ctx, subjectID, screening.CheckEmployment, "sandbox-verify", uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got, "other tenants must not see customer-provided rows")
	assert.Equal(t, FreshnessMissing, freshness)
}

func TestResponseCache_BuildLockCoalesces(t *testing.T) {
	rc := NewResponseCache(newTestCache(t), testCacheConfig(), zap.NewNop())
	ctx := context.Background()
	subjectID := uuid.New()

	ok, release, err := rc.AcquireBuildLock(ctx, subjectID, screening.CheckCriminal, "sandbox-records")
	require.NoError(t, err)
	require.True(t, ok)

	ok2, _, err := rc.AcquireBuildLock(ctx, subjectID, screening.CheckCriminal, "sandbox-records")
	require.NoError(t, err)
	assert.False(t, ok2)

	release()

	ok3, release3, err := rc.AcquireBuildLock(ctx, subjectID, screening.CheckCriminal, "sandbox-records")
	require.NoError(t, err)
	assert.True(t, ok3)
	release3()
}

func TestDecide_TierPolicy(t *testing.T) {
	assert.Equal(t, DecisionUse, Decide(FreshnessFresh, screening.TierEnhanced))
	assert.Equal(t, DecisionUseWithFlag, Decide(FreshnessStale, screening.TierStandard))
	assert.Equal(t, DecisionRefresh, Decide(FreshnessStale, screening.TierEnhanced))
	assert.Equal(t, DecisionRefresh, Decide(FreshnessExpired, screening.TierStandard))
	assert.Equal(t, DecisionRefresh, Decide(FreshnessMissing, screening.TierEnhanced))
}

func TestIdempotencyStore_ReserveOnceThenReplays(t *testing.T) {
	store := NewIdempotencyStore(newTestCache(t), time.Hour)
	ctx := context.Background()

	tenantID, correlationID := uuid.New(), uuid.New()
	first := uuid.New()

	got, reserved, err := store.Reserve(ctx, tenantID, correlationID, first)
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Equal(t, first, got)

	got, reserved, err = store.Reserve(ctx, tenantID, correlationID, uuid.New())
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, first, got)

	id, found, err := store.Lookup(ctx, tenantID, correlationID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, first, id)

	_, found, err = store.Lookup(ctx, tenantID, uuid.New())
	require.NoError(t, err)
	assert.False(t, found)
}
