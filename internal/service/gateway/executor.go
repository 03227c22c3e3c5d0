package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	"github.com/clearvet/screening-backend/internal/domain/provider"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/infrastructure/cache"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/metrics"
)

// DispatchContext carries the per-screening parameters the executor needs
// for cache policy, visibility, and audit correlation.
type DispatchContext struct {
	Screening *screening.Screening
	Subject   *screening.Subject
}

// Executor dispatches search queries through the provider gateway:
// cache, rate limit, circuit breaker, timeout, retry with backoff, and
// fallback selection.
type Executor struct {
	registry  *Registry
	limiter   cache.RateLimiter
	health    *HealthMonitor
	responses *cache.ResponseCache
	auditSink audit.Sink
	metrics   *metrics.Registry
	cfg       config.GatewayConfig
	maxConcurrent int
	logger    *zap.Logger

	// buildLockRetry is how long a coalescing caller waits before
	// re-checking the cache while another caller holds the build lock.
	buildLockRetry time.Duration

	// usageMu guards writes to the shared Screening aggregate from
	// concurrent query goroutines.
	usageMu sync.Mutex
}

// NewExecutor wires the executor over the gateway singletons.
func NewExecutor(
	registry *Registry,
	limiter cache.RateLimiter,
	health *HealthMonitor,
	responses *cache.ResponseCache,
	auditSink audit.Sink,
	m *metrics.Registry,
	cfg config.GatewayConfig,
	maxConcurrent int,
	logger *zap.Logger,
) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &Executor{
		registry:       registry,
		limiter:        limiter,
		health:         health,
		responses:      responses,
		auditSink:      auditSink,
		metrics:        m,
		cfg:            cfg,
		maxConcurrent:  maxConcurrent,
		logger:         logger,
		buildLockRetry: 100 * time.Millisecond,
	}
}

// Run dispatches the queries of one iteration concurrently, bounded by
// max_concurrent. Results are returned in query order; individual
// failures are captured in the result, not as errors. Run returns an
// error only on context cancellation.
func (e *Executor) Run(ctx context.Context, dc DispatchContext, queries []screening.SearchQuery) ([]screening.QueryResult, error) {
	results := make([]screening.QueryResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)

	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.execute(gctx, dc, q)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// execute runs one query end to end.
func (e *Executor) execute(ctx context.Context, dc DispatchContext, q screening.SearchQuery) screening.QueryResult {
	checkType := screening.CheckTypeFor(q.InfoType)
	scr := dc.Screening

	// Cache consultation with the per-key build lock: concurrent callers
	// for the same (subject, check_type, provider) coalesce onto one
	// provider call. The miss is recorded once per query, not per poll
	// pass while waiting on the lock.
	missRecorded := false
	for {
		entry, freshness, err := e.responses.Lookup(ctx, scr.SubjectID, checkType, q.ProviderID, scr.TenantID)
		if err != nil {
			e.logger.Warn("cache lookup failed", zap.String("provider_id", q.ProviderID), zap.Error(err))
		}

		decision := cache.Decide(freshness, scr.Config.Tier)
		if entry != nil && decision != cache.DecisionRefresh {
			return e.fromCache(ctx, dc, q, entry, decision)
		}

		if !missRecorded {
			missRecorded = true
			e.auditSink.Emit(ctx, audit.NewEvent(audit.EventCacheMiss, scr.CorrelationID, scr.TenantID).
				WithSubject(scr.SubjectID).
				WithDetail("check_type", string(checkType)).
				WithDetail("provider_id", q.ProviderID))
			e.metrics.CacheMissCounter.Add(ctx, 1)
		}

		acquired, release, lockErr := e.responses.AcquireBuildLock(ctx, scr.SubjectID, checkType, q.ProviderID)
		if lockErr != nil {
			e.logger.Warn("build lock error, dispatching without coalescing", zap.Error(lockErr))
			return e.dispatchWithFallback(ctx, dc, q, checkType)
		}
		if !acquired {
			// Another caller is filling this slot; wait and re-check.
			select {
			case <-ctx.Done():
				return cancelledResult(q)
			case <-time.After(e.buildLockRetry):
			}
			continue
		}

		// Double-checked: the slot may have been filled while we waited
		// for the lock.
		entry, freshness, _ = e.responses.Lookup(ctx, scr.SubjectID, checkType, q.ProviderID, scr.TenantID)
		if entry != nil && cache.Decide(freshness, scr.Config.Tier) != cache.DecisionRefresh {
			release()
			return e.fromCache(ctx, dc, q, entry, cache.Decide(freshness, scr.Config.Tier))
		}

		result := e.dispatchWithFallback(ctx, dc, q, checkType)
		release()
		return result
	}
}

// fromCache synthesizes a SUCCESS result from a cached entry.
func (e *Executor) fromCache(ctx context.Context, dc DispatchContext, q screening.SearchQuery, entry *cache.Entry, decision cache.Decision) screening.QueryResult {
	scr := dc.Screening

	e.auditSink.Emit(ctx, audit.NewEvent(audit.EventCacheHit, scr.CorrelationID, scr.TenantID).
		WithSubject(scr.SubjectID).
		WithDetail("check_type", string(entry.CheckType)).
		WithDetail("provider_id", entry.ProviderID).
		WithDetail("freshness", string(entry.FreshnessAt(time.Now()))))
	e.metrics.CacheHitCounter.Add(ctx, 1)

	stale := decision == cache.DecisionUseWithFlag
	if stale {
		e.auditSink.Emit(ctx, audit.NewEvent(audit.EventStaleDataUsed, scr.CorrelationID, scr.TenantID).
			WithSubject(scr.SubjectID).
			WithDetail("check_type", string(entry.CheckType)).
			WithDetail("provider_id", entry.ProviderID))
		e.metrics.StaleUseCounter.Add(ctx, 1)
	}

	e.usageMu.Lock()
	scr.RecordSource(entry.ProviderID)
	if stale {
		scr.RecordStaleUse(screening.StaleSource{CheckType: entry.CheckType, ProviderID: entry.ProviderID})
	}
	e.usageMu.Unlock()

	return screening.QueryResult{
		QueryID:    q.ID,
		ProviderID: entry.ProviderID,
		Status:     screening.QuerySuccess,
		Records:    entry.Records,
		FromCache:  true,
		Stale:      stale,
		ExecutedAt: time.Now().UTC(),
	}
}

// dispatchWithFallback walks the provider preference list starting at the
// planned provider, retrying retryable failures with backoff and
// substituting fallbacks. The retry counter continues across provider
// substitution.
func (e *Executor) dispatchWithFallback(ctx context.Context, dc DispatchContext, q screening.SearchQuery, checkType screening.CheckType) screening.QueryResult {
	candidates := e.candidates(q.ProviderID, checkType)
	if len(candidates) == 0 {
		return screening.QueryResult{
			QueryID:    q.ID,
			ProviderID: q.ProviderID,
			Status:     screening.QueryFailed,
			Error:      "no provider supports check type " + string(checkType),
			ExecutedAt: time.Now().UTC(),
		}
	}

	totalRetries := 0
	var lastErr error
	tried := make(map[string]bool, len(candidates))

	for _, p := range candidates {
		info := p.Info()
		if tried[info.ID] {
			continue
		}
		tried[info.ID] = true

		if !e.health.AllowDispatch(info.ID) {
			e.logger.Debug("circuit open, skipping provider", zap.String("provider_id", info.ID))
			continue
		}

		result, err := e.dispatchOne(ctx, dc, q, p, &totalRetries)
		if err == nil {
			result.RetryCount = totalRetries
			return result
		}
		lastErr = err
		if ctx.Err() != nil {
			return cancelledResult(q)
		}
	}

	return failedResult(q, totalRetries, lastErr)
}

// candidates returns the planned provider followed by fallbacks in
// registry preference order.
func (e *Executor) candidates(plannedID string, checkType screening.CheckType) []provider.Provider {
	ordered := e.registry.ForCheckType(checkType)
	out := make([]provider.Provider, 0, len(ordered))
	if planned, ok := e.registry.Get(plannedID); ok && planned.Info().Supports(checkType) {
		out = append(out, planned)
	}
	for _, p := range ordered {
		if p.Info().ID != plannedID {
			out = append(out, p)
		}
	}
	return out
}

// dispatchOne tries a single provider with per-attempt timeout and the
// configured backoff schedule. RATE_LIMITED is never retried on the same
// provider.
func (e *Executor) dispatchOne(ctx context.Context, dc DispatchContext, q screening.SearchQuery, p provider.Provider, totalRetries *int) (screening.QueryResult, error) {
	info := p.Info()
	scr := dc.Screening

	for attempt := 0; ; attempt++ {
		if err := e.limiter.Wait(ctx, info.ID, info.RateLimitPerMinute, e.cfg.RateLimitWindow); err != nil {
			return screening.QueryResult{}, err
		}

		timeout := info.Timeout
		if timeout <= 0 {
			timeout = e.cfg.DefaultTimeout
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		raw, err := p.Query(callCtx, dc.Subject, screening.CheckTypeFor(q.InfoType), q.Params)
		cancel()
		latency := time.Since(start)

		e.emitProviderQuery(ctx, scr, q, info.ID, err, latency)

		if err == nil {
			e.health.RecordSuccess(info.ID, latency)
			return e.finishSuccess(ctx, dc, q, p, raw, latency)
		}

		e.health.RecordFailure(info.ID, latency)
		perr, _ := provider.AsError(err)
		if perr == nil {
			perr = provider.NewError(provider.ErrProviderError, info.ID, err.Error()).WithCause(err)
		}

		if !perr.Retryable() || *totalRetries >= e.cfg.MaxRetries {
			return screening.QueryResult{}, perr
		}

		backoff := e.backoffFor(*totalRetries)
		*totalRetries++
		e.logger.Debug("retrying provider query",
			zap.String("provider_id", info.ID),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.String("code", string(perr.Code)))
		select {
		case <-ctx.Done():
			return screening.QueryResult{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (e *Executor) backoffFor(retry int) time.Duration {
	schedule := e.cfg.RetryBackoff
	if len(schedule) == 0 {
		schedule = []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}
	}
	if retry >= len(schedule) {
		return schedule[len(schedule)-1]
	}
	return schedule[retry]
}

// finishSuccess normalizes, stores the cache entry, and accounts cost.
func (e *Executor) finishSuccess(ctx context.Context, dc DispatchContext, q screening.SearchQuery, p provider.Provider, raw *provider.RawResponse, latency time.Duration) (screening.QueryResult, error) {
	info := p.Info()
	scr := dc.Screening

	records, err := p.Normalize(raw)
	if err != nil {
		e.health.RecordFailure(info.ID, latency)
		return screening.QueryResult{}, provider.NewError(provider.ErrProviderError, info.ID, "normalization failed").WithCause(err)
	}

	entry := &cache.Entry{
		SubjectID:    scr.SubjectID,
		CheckType:    raw.CheckType,
		ProviderID:   info.ID,
		Origin:       cache.OriginPaidExternal,
		Records:      records,
		RawEncrypted: raw.Payload,
		Cost:         info.CostPerQuery,
	}
	if err := e.responses.Store(ctx, entry); err != nil {
		// A failed cache write must not fail the query.
		e.logger.Warn("cache store failed",
			zap.String("provider_id", info.ID),
			zap.Error(err))
	}

	e.usageMu.Lock()
	scr.RecordSource(info.ID)
	scr.DataAcquisitionCost = scr.DataAcquisitionCost.Add(info.CostPerQuery)
	e.usageMu.Unlock()

	return screening.QueryResult{
		QueryID:    q.ID,
		ProviderID: info.ID,
		Status:     screening.QuerySuccess,
		Records:    records,
		LatencyMS:  latency.Milliseconds(),
		ExecutedAt: time.Now().UTC(),
	}, nil
}

func (e *Executor) emitProviderQuery(ctx context.Context, scr *screening.Screening, q screening.SearchQuery, providerID string, err error, latency time.Duration) {
	status := "success"
	if err != nil {
		status = string(provider.CodeOf(err))
	}
	e.auditSink.Emit(ctx, audit.NewEvent(audit.EventProviderQuery, scr.CorrelationID, scr.TenantID).
		WithSubject(scr.SubjectID).
		WithDetail("provider_id", providerID).
		WithDetail("query_id", q.ID.String()).
		WithDetail("info_type", string(q.InfoType)).
		WithDetail("status", status).
		WithDetail("latency_ms", latency.Milliseconds()))
	e.metrics.RecordProviderQuery(ctx, providerID, status, latency.Seconds())
}

func cancelledResult(q screening.SearchQuery) screening.QueryResult {
	return screening.QueryResult{
		QueryID:    q.ID,
		ProviderID: q.ProviderID,
		Status:     screening.QueryFailed,
		Error:      "cancelled",
		ExecutedAt: time.Now().UTC(),
	}
}

func failedResult(q screening.SearchQuery, retries int, lastErr error) screening.QueryResult {
	status := screening.QueryFailed
	msg := "all providers exhausted"
	if lastErr != nil {
		msg = lastErr.Error()
		switch provider.CodeOf(lastErr) {
		case provider.ErrTimeout:
			status = screening.QueryTimeout
		case provider.ErrRateLimited:
			status = screening.QueryRateLimited
		}
	}
	return screening.QueryResult{
		QueryID:    q.ID,
		ProviderID: q.ProviderID,
		Status:     status,
		RetryCount: retries,
		Error:      msg,
		ExecutedAt: time.Now().UTC(),
	}
}
