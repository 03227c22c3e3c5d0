// Package engine is the screening facade: it runs pre-flight checks,
// drives the search/assess/refine loop, synthesizes findings and risk,
// persists the profile version and enrolls the subject for monitoring.
package engine

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/infrastructure/cache"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/metrics"
	"github.com/clearvet/screening-backend/internal/service/findings"
	"github.com/clearvet/screening-backend/internal/service/risk"
	"github.com/clearvet/screening-backend/internal/service/sar"
	"github.com/clearvet/screening-backend/internal/service/vigilance"
)

// ConsentStore answers whether the tenant holds verifiable consent for a
// subject. A screening never dispatches a query without it.
type ConsentStore interface {
	Verified(ctx context.Context, tenantID, subjectID uuid.UUID) (bool, error)
}

// SubjectStore persists subjects so monitoring re-screens can reload
// their declared identifiers.
type SubjectStore interface {
	Save(ctx context.Context, subject *screening.Subject) error
	Get(ctx context.Context, id uuid.UUID) (*screening.Subject, error)
}

// Monitor is the slice of the vigilance scheduler the engine drives.
type Monitor interface {
	Enroll(ctx context.Context, scr *screening.Screening, baseline *profile.Version) error
}

// Deps collects the engine's collaborators.
type Deps struct {
	Orchestrator *sar.Orchestrator
	Extractor    *findings.Extractor
	Scorer       *risk.Scorer

	Consent     ConsentStore
	Subjects    SubjectStore
	Profiles    profile.Store
	Relations   profile.RelationStore
	Monitor     Monitor
	Idempotency *cache.IdempotencyStore

	AuditSink audit.Sink
	Metrics   *metrics.Registry
	Config    config.EngineConfig
	Logger    *zap.Logger
}

// Engine coordinates one screening end to end and implements
// vigilance.Rescreener for monitoring re-runs.
type Engine struct {
	orchestrator *sar.Orchestrator
	extractor    *findings.Extractor
	scorer       *risk.Scorer

	consent     ConsentStore
	subjects    SubjectStore
	profiles    profile.Store
	relations   profile.RelationStore
	monitor     Monitor
	idempotency *cache.IdempotencyStore

	auditSink audit.Sink
	metrics   *metrics.Registry
	cfg       config.EngineConfig
	logger    *zap.Logger

	validate *validator.Validate
	sem      *semaphore.Weighted
	tracer   trace.Tracer
}

// New wires the engine. MaxConcurrentScreenings bounds simultaneous runs
// across all tenants.
func New(deps Deps) *Engine {
	concurrency := deps.Config.MaxConcurrentScreenings
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Engine{
		orchestrator: deps.Orchestrator,
		extractor:    deps.Extractor,
		scorer:       deps.Scorer,
		consent:      deps.Consent,
		subjects:     deps.Subjects,
		profiles:     deps.Profiles,
		relations:    deps.Relations,
		monitor:      deps.Monitor,
		idempotency:  deps.Idempotency,
		auditSink:    deps.AuditSink,
		metrics:      deps.Metrics,
		cfg:          deps.Config,
		logger:       deps.Logger,
		validate:     validator.New(),
		sem:          semaphore.NewWeighted(int64(concurrency)),
		tracer:       otel.Tracer("screening.engine"),
	}
}

// SetMonitor binds the vigilance scheduler after construction. The
// scheduler needs the engine as its rescreener, so one side is bound late.
func (e *Engine) SetMonitor(m Monitor) {
	e.monitor = m
}

var _ vigilance.Rescreener = (*Engine)(nil)
