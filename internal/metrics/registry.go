package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds all domain-specific metrics for the screening engine.
type Registry struct {
	meter metric.Meter

	// Gateway metrics
	ProviderQueryDuration metric.Float64Histogram
	ProviderQueryCounter  metric.Int64Counter
	ProviderErrorCounter  metric.Int64Counter
	CircuitTransitions    metric.Int64Counter
	RateLimitWaits        metric.Int64Counter

	// Cache metrics
	CacheHitCounter   metric.Int64Counter
	CacheMissCounter  metric.Int64Counter
	StaleUseCounter   metric.Int64Counter

	// SAR metrics
	IterationCounter    metric.Int64Counter
	FactsExtracted      metric.Int64Counter
	TypeCompletionTime  metric.Float64Histogram

	// Screening metrics
	ScreeningDuration metric.Float64Histogram
	ScreeningCounter  metric.Int64Counter
	FindingsCounter   metric.Int64Counter

	// Vigilance metrics
	MonitoringRuns metric.Int64Counter
	AlertsRaised   metric.Int64Counter
}

// NewRegistry creates all engine metrics on the global meter provider.
func NewRegistry() (*Registry, error) {
	meter := otel.Meter("screening-engine")
	r := &Registry{meter: meter}

	var err error
	if r.ProviderQueryDuration, err = meter.Float64Histogram("provider_query_duration_seconds",
		metric.WithDescription("Latency of provider dispatches")); err != nil {
		return nil, err
	}
	if r.ProviderQueryCounter, err = meter.Int64Counter("provider_queries_total",
		metric.WithDescription("Provider queries dispatched, by provider and status")); err != nil {
		return nil, err
	}
	if r.ProviderErrorCounter, err = meter.Int64Counter("provider_errors_total",
		metric.WithDescription("Categorized provider errors")); err != nil {
		return nil, err
	}
	if r.CircuitTransitions, err = meter.Int64Counter("circuit_transitions_total",
		metric.WithDescription("Circuit breaker state transitions")); err != nil {
		return nil, err
	}
	if r.RateLimitWaits, err = meter.Int64Counter("rate_limit_waits_total",
		metric.WithDescription("Admissions that had to wait on the sliding window")); err != nil {
		return nil, err
	}
	if r.CacheHitCounter, err = meter.Int64Counter("response_cache_hits_total"); err != nil {
		return nil, err
	}
	if r.CacheMissCounter, err = meter.Int64Counter("response_cache_misses_total"); err != nil {
		return nil, err
	}
	if r.StaleUseCounter, err = meter.Int64Counter("stale_responses_used_total"); err != nil {
		return nil, err
	}
	if r.IterationCounter, err = meter.Int64Counter("sar_iterations_total",
		metric.WithDescription("SAR iterations executed, by information type")); err != nil {
		return nil, err
	}
	if r.FactsExtracted, err = meter.Int64Counter("facts_extracted_total"); err != nil {
		return nil, err
	}
	if r.TypeCompletionTime, err = meter.Float64Histogram("information_type_duration_seconds"); err != nil {
		return nil, err
	}
	if r.ScreeningDuration, err = meter.Float64Histogram("screening_duration_seconds"); err != nil {
		return nil, err
	}
	if r.ScreeningCounter, err = meter.Int64Counter("screenings_total",
		metric.WithDescription("Screenings by terminal status")); err != nil {
		return nil, err
	}
	if r.FindingsCounter, err = meter.Int64Counter("findings_total",
		metric.WithDescription("Findings by category and severity")); err != nil {
		return nil, err
	}
	if r.MonitoringRuns, err = meter.Int64Counter("monitoring_runs_total"); err != nil {
		return nil, err
	}
	if r.AlertsRaised, err = meter.Int64Counter("alerts_raised_total"); err != nil {
		return nil, err
	}

	return r, nil
}

// RecordProviderQuery records one dispatch outcome.
func (r *Registry) RecordProviderQuery(ctx context.Context, providerID, status string, seconds float64) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider_id", providerID),
		attribute.String("status", status),
	)
	r.ProviderQueryCounter.Add(ctx, 1, attrs)
	r.ProviderQueryDuration.Record(ctx, seconds, attrs)
}

// RecordCircuitTransition records a circuit state change for a provider.
func (r *Registry) RecordCircuitTransition(ctx context.Context, providerID, from, to string) {
	if r == nil {
		return
	}
	r.CircuitTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider_id", providerID),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}
