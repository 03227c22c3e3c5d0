package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	"github.com/clearvet/screening-backend/internal/domain/provider"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/infrastructure/cache"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/metrics"
)

// stubProvider scripts per-call outcomes for executor tests.
type stubProvider struct {
	info provider.Info

	mu      sync.Mutex
	calls   int
	queryFn func(call int) (*provider.RawResponse, error)
	records []screening.Record
}

func newStubProvider(id string, tier provider.TierCategory, priority int, checks ...screening.CheckType) *stubProvider {
	if len(checks) == 0 {
		checks = []screening.CheckType{screening.CheckCriminal}
	}
	p := &stubProvider{
		info: provider.Info{
			ID:                 id,
			Name:               id,
			SupportedChecks:    checks,
			TierCategory:       tier,
			Priority:           priority,
			CostPerQuery:       decimal.NewFromFloat(0.50),
			RateLimitPerMinute: 100,
			Timeout:            time.Second,
			Authoritative:      tier != provider.TierSynthesis,
		},
		records: []screening.Record{
			{Kind: "case", Fields: map[string]string{"case_number": "CR-1001"}, Confidence: 0.9},
		},
	}
	p.queryFn = func(int) (*provider.RawResponse, error) {
		return &provider.RawResponse{ProviderID: id, CheckType: checks[0], Payload: []byte(`{}`)}, nil
	}
	return p
}

func (p *stubProvider) Info() provider.Info { return p.info }

func (p *stubProvider) Query(ctx context.Context, subject *screening.Subject, checkType screening.CheckType, params map[string]string) (*provider.RawResponse, error) {
	p.mu.Lock()
	call := p.calls
	p.calls++
	fn := p.queryFn
	p.mu.Unlock()
	return fn(call)
}

func (p *stubProvider) Normalize(raw *provider.RawResponse) ([]screening.Record, error) {
	return p.records, nil
}

func (p *stubProvider) HealthCheck(ctx context.Context) (*provider.HealthStatus, error) {
	return &provider.HealthStatus{Available: true, CheckedAt: time.Now()}, nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type executorFixture struct {
	executor  *Executor
	responses *cache.ResponseCache
	health    *HealthMonitor
	sink      *audit.MemorySink
	mr        *miniredis.Miniredis
}

func newExecutorFixture(t *testing.T, providers ...provider.Provider) *executorFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zap.NewNop()
	generic, err := cache.NewRedisCache(client, logger)
	require.NoError(t, err)

	cacheCfg := config.CacheConfig{
		DefaultFreshFor: time.Hour,
		DefaultStaleFor: 24 * time.Hour,
		BuildLockTTL:    5 * time.Second,
	}
	responses := cache.NewResponseCache(generic, cacheCfg, logger)

	gwCfg := config.GatewayConfig{
		MaxRetries:      3,
		RetryBackoff:    []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
		DefaultTimeout:  time.Second,
		RateLimitWindow: time.Minute,
		CircuitBreaker:  testCircuitConfig(),
	}

	m, err := metrics.NewRegistry()
	require.NoError(t, err)

	registry, err := NewRegistry(logger, providers...)
	require.NoError(t, err)

	health := NewHealthMonitor(gwCfg.CircuitBreaker, 30*time.Second, m, logger)
	sink := audit.NewMemorySink()
	limiter := cache.NewRedisRateLimiter(client, logger)

	exec := NewExecutor(registry, limiter, health, responses, sink, m, gwCfg, 4, logger)
	exec.buildLockRetry = time.Millisecond

	return &executorFixture{
		executor:  exec,
		responses: responses,
		health:    health,
		sink:      sink,
		mr:        mr,
	}
}

func newDispatchContext(t *testing.T) DispatchContext {
	t.Helper()
	tenantID := uuid.New()
	subject, err := screening.NewSubject(screening.SubjectIndividual, tenantID, "Jordan Smith")
	require.NoError(t, err)

	scr, err := screening.NewScreening(screening.Request{
		Subject:       subject,
		Config:        screening.ServiceConfig{Tier: screening.TierStandard, Degree: screening.DegreeD1, Vigilance: screening.VigilanceNone},
		TenantID:      tenantID,
		UserID:        uuid.New(),
		CorrelationID: uuid.New(),
		Locale:        "US-CA",
		Role:          "standard",
	})
	require.NoError(t, err)
	return DispatchContext{Screening: scr, Subject: subject}
}

func criminalQuery(providerID string) screening.SearchQuery {
	return screening.NewSearchQuery(screening.TypeCriminal, screening.QueryInitial, providerID,
		map[string]string{"name": "Jordan Smith"}, 1)
}

func TestExecutor_DispatchAndCacheStore(t *testing.T) {
	p := newStubProvider("acme", provider.TierPremium, 1)
	f := newExecutorFixture(t, p)
	dc := newDispatchContext(t)

	results, err := f.executor.Run(context.Background(), dc, []screening.SearchQuery{criminalQuery("acme")})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, screening.QuerySuccess, res.Status)
	assert.Equal(t, "acme", res.ProviderID)
	assert.False(t, res.FromCache)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "CR-1001", res.Records[0].Fields["case_number"])

	// The dispatch populated the response cache.
	entry, freshness, err := f.responses.Lookup(context.Background(),
		dc.Screening.SubjectID, screening.CheckCriminal, "acme", dc.Screening.TenantID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, cache.FreshnessFresh, freshness)
	assert.Equal(t, cache.OriginPaidExternal, entry.Origin)

	// Usage accounting on the aggregate.
	assert.Contains(t, dc.Screening.DataSourcesUsed, "acme")
	assert.True(t, dc.Screening.DataAcquisitionCost.Equal(decimal.NewFromFloat(0.50)))
}

func TestExecutor_FreshCacheHitSkipsProvider(t *testing.T) {
	p := newStubProvider("acme", provider.TierPremium, 1)
	f := newExecutorFixture(t, p)
	dc := newDispatchContext(t)

	ctx := context.Background()
	_, err := f.executor.Run(ctx, dc, []screening.SearchQuery{criminalQuery("acme")})
	require.NoError(t, err)
	require.Equal(t, 1, p.callCount())

	results, err := f.executor.Run(ctx, dc, []screening.SearchQuery{criminalQuery("acme")})
	require.NoError(t, err)

	assert.Equal(t, screening.QuerySuccess, results[0].Status)
	assert.True(t, results[0].FromCache)
	assert.False(t, results[0].Stale)
	assert.Equal(t, 1, p.callCount(), "fresh hit must not reach the provider")
	assert.NotEmpty(t, f.sink.ByType(audit.EventCacheHit))
}

func TestExecutor_StaleEntryStandardTierUsedWithFlag(t *testing.T) {
	p := newStubProvider("acme", provider.TierPremium, 1)
	f := newExecutorFixture(t, p)
	dc := newDispatchContext(t)
	ctx := context.Background()

	now := time.Now()
	entry := &cache.Entry{
		SubjectID:  dc.Screening.SubjectID,
		CheckType:  screening.CheckCriminal,
		ProviderID: "acme",
		Origin:     cache.OriginPaidExternal,
		AcquiredAt: now.Add(-2 * time.Hour),
		FreshUntil: now.Add(-time.Hour),
		StaleUntil: now.Add(22 * time.Hour),
		Records:    []screening.Record{{Kind: "case", Fields: map[string]string{"case_number": "CR-OLD"}}},
	}
	require.NoError(t, f.responses.Store(ctx, entry))

	results, err := f.executor.Run(ctx, dc, []screening.SearchQuery{criminalQuery("acme")})
	require.NoError(t, err)

	res := results[0]
	assert.True(t, res.FromCache)
	assert.True(t, res.Stale)
	assert.Equal(t, "CR-OLD", res.Records[0].Fields["case_number"])
	assert.Zero(t, p.callCount())
	assert.NotEmpty(t, f.sink.ByType(audit.EventStaleDataUsed))
	assert.Len(t, dc.Screening.StaleDataUsed, 1)
}

func TestExecutor_StaleEntryEnhancedTierRefreshes(t *testing.T) {
	p := newStubProvider("acme", provider.TierPremium, 1)
	f := newExecutorFixture(t, p)
	dc := newDispatchContext(t)
	dc.Screening.Config.Tier = screening.TierEnhanced
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, f.responses.Store(ctx, &cache.Entry{
		SubjectID:  dc.Screening.SubjectID,
		CheckType:  screening.CheckCriminal,
		ProviderID: "acme",
		Origin:     cache.OriginPaidExternal,
		AcquiredAt: now.Add(-2 * time.Hour),
		FreshUntil: now.Add(-time.Hour),
		StaleUntil: now.Add(22 * time.Hour),
		Records:    []screening.Record{{Kind: "case", Fields: map[string]string{"case_number": "CR-OLD"}}},
	}))

	results, err := f.executor.Run(ctx, dc, []screening.SearchQuery{criminalQuery("acme")})
	require.NoError(t, err)

	res := results[0]
	assert.False(t, res.FromCache)
	assert.False(t, res.Stale)
	assert.Equal(t, "CR-1001", res.Records[0].Fields["case_number"])
	assert.Equal(t, 1, p.callCount(), "stale entry under ENHANCED must refresh")
}

func TestExecutor_RetryThenSuccess(t *testing.T) {
	p := newStubProvider("acme", provider.TierPremium, 1)
	p.queryFn = func(call int) (*provider.RawResponse, error) {
		if call < 2 {
			return nil, provider.NewError(provider.ErrTimeout, "acme", "deadline exceeded")
		}
		return &provider.RawResponse{ProviderID: "acme", CheckType: screening.CheckCriminal, Payload: []byte(`{}`)}, nil
	}
	f := newExecutorFixture(t, p)
	dc := newDispatchContext(t)

	results, err := f.executor.Run(context.Background(), dc, []screening.SearchQuery{criminalQuery("acme")})
	require.NoError(t, err)

	res := results[0]
	assert.Equal(t, screening.QuerySuccess, res.Status)
	assert.Equal(t, 2, res.RetryCount)
	assert.Equal(t, 3, p.callCount())
}

func TestExecutor_NonRetryableFailsOverToFallback(t *testing.T) {
	primary := newStubProvider("acme", provider.TierPremium, 1)
	primary.queryFn = func(int) (*provider.RawResponse, error) {
		return nil, provider.NewError(provider.ErrAuthFailure, "acme", "credentials rejected")
	}
	fallback := newStubProvider("globex", provider.TierStandard, 1)
	f := newExecutorFixture(t, primary, fallback)
	dc := newDispatchContext(t)

	results, err := f.executor.Run(context.Background(), dc, []screening.SearchQuery{criminalQuery("acme")})
	require.NoError(t, err)

	res := results[0]
	assert.Equal(t, screening.QuerySuccess, res.Status)
	assert.Equal(t, "globex", res.ProviderID)
	assert.Equal(t, 1, primary.callCount(), "auth failure is not retried on the same provider")
	assert.Equal(t, 1, fallback.callCount())
}

func TestExecutor_RateLimitedNotRetriedSameProvider(t *testing.T) {
	primary := newStubProvider("acme", provider.TierPremium, 1)
	primary.queryFn = func(int) (*provider.RawResponse, error) {
		return nil, provider.NewRateLimitedError("acme", 30*time.Second)
	}
	fallback := newStubProvider("globex", provider.TierStandard, 1)
	f := newExecutorFixture(t, primary, fallback)
	dc := newDispatchContext(t)

	results, err := f.executor.Run(context.Background(), dc, []screening.SearchQuery{criminalQuery("acme")})
	require.NoError(t, err)

	assert.Equal(t, screening.QuerySuccess, results[0].Status)
	assert.Equal(t, "globex", results[0].ProviderID)
	assert.Equal(t, 1, primary.callCount())
}

func TestExecutor_OpenCircuitSkipsProvider(t *testing.T) {
	primary := newStubProvider("acme", provider.TierPremium, 1)
	fallback := newStubProvider("globex", provider.TierStandard, 1)
	f := newExecutorFixture(t, primary, fallback)
	dc := newDispatchContext(t)

	for i := 0; i < 5; i++ {
		f.health.RecordFailure("acme", time.Millisecond)
	}
	require.Equal(t, CircuitOpen, f.health.State("acme"))

	results, err := f.executor.Run(context.Background(), dc, []screening.SearchQuery{criminalQuery("acme")})
	require.NoError(t, err)

	assert.Equal(t, screening.QuerySuccess, results[0].Status)
	assert.Equal(t, "globex", results[0].ProviderID)
	assert.Zero(t, primary.callCount(), "open circuit must not receive dispatches")
}

func TestExecutor_AllProvidersExhausted(t *testing.T) {
	p := newStubProvider("acme", provider.TierPremium, 1)
	p.queryFn = func(int) (*provider.RawResponse, error) {
		return nil, provider.NewError(provider.ErrTimeout, "acme", "deadline exceeded")
	}
	f := newExecutorFixture(t, p)
	dc := newDispatchContext(t)

	results, err := f.executor.Run(context.Background(), dc, []screening.SearchQuery{criminalQuery("acme")})
	require.NoError(t, err)

	res := results[0]
	assert.Equal(t, screening.QueryTimeout, res.Status)
	assert.Equal(t, 3, res.RetryCount)
	assert.Equal(t, 4, p.callCount(), "initial attempt plus three retries")
}

func TestExecutor_NoProviderForCheckType(t *testing.T) {
	p := newStubProvider("acme", provider.TierPremium, 1, screening.CheckIdentity)
	f := newExecutorFixture(t, p)
	dc := newDispatchContext(t)

	results, err := f.executor.Run(context.Background(), dc, []screening.SearchQuery{criminalQuery("acme")})
	require.NoError(t, err)

	assert.Equal(t, screening.QueryFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "no provider supports")
}

func TestExecutor_ConcurrentQueriesCoalesceOnBuildLock(t *testing.T) {
	p := newStubProvider("acme", provider.TierPremium, 1)
	p.queryFn = func(int) (*provider.RawResponse, error) {
		time.Sleep(20 * time.Millisecond)
		return &provider.RawResponse{ProviderID: "acme", CheckType: screening.CheckCriminal, Payload: []byte(`{}`)}, nil
	}
	f := newExecutorFixture(t, p)
	dc := newDispatchContext(t)

	queries := []screening.SearchQuery{criminalQuery("acme"), criminalQuery("acme"), criminalQuery("acme")}
	results, err := f.executor.Run(context.Background(), dc, queries)
	require.NoError(t, err)

	for _, res := range results {
		assert.Equal(t, screening.QuerySuccess, res.Status)
	}
	assert.Equal(t, 1, p.callCount(), "concurrent identical lookups coalesce onto one provider call")
}

func TestExecutor_LockWaiterRecordsMissOnce(t *testing.T) {
	p := newStubProvider("acme", provider.TierPremium, 1)
	f := newExecutorFixture(t, p)
	dc := newDispatchContext(t)
	ctx := context.Background()

	// Hold the build lock so the query polls the cache several times
	// before it can dispatch.
	acquired, release, err := f.responses.AcquireBuildLock(ctx,
		dc.Screening.SubjectID, screening.CheckCriminal, "acme")
	require.NoError(t, err)
	require.True(t, acquired)

	var (
		results []screening.QueryResult
		runErr  error
	)
	done := make(chan struct{})
	go func() {
		results, runErr = f.executor.Run(ctx, dc, []screening.SearchQuery{criminalQuery("acme")})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	release()
	<-done

	require.NoError(t, runErr)
	require.Len(t, results, 1)
	assert.Equal(t, screening.QuerySuccess, results[0].Status)
	assert.Len(t, f.sink.ByType(audit.EventCacheMiss), 1,
		"a waiting caller logs one miss, not one per poll pass")
}
