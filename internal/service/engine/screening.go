package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/service/gateway"
	"github.com/clearvet/screening-backend/internal/service/sar"
)

// StartScreening validates the request, runs pre-flight checks and drives
// the full investigation. The returned screening carries the terminal
// status and per-type outcomes; a non-nil error explains why the run did
// not complete.
func (e *Engine) StartScreening(ctx context.Context, req screening.Request) (*screening.Screening, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, errors.NewValidationError("INVALID_REQUEST", "screening request failed validation").WithCause(err)
	}

	// NewScreening enforces the service-config invariants, including
	// D3 requiring the ENHANCED tier.
	scr, err := screening.NewScreening(req)
	if err != nil {
		return nil, err
	}

	existing, reserved, err := e.idempotency.Reserve(ctx, req.TenantID, req.CorrelationID, scr.ID)
	if err != nil {
		return nil, errors.NewInternalError("idempotency reservation failed").WithCause(err)
	}
	if !reserved {
		// Idempotent replay: the correlation id already produced a
		// screening. Return its id and dispatch nothing.
		scr.ID = existing
		scr.Replayed = true
		e.logger.Info("screening request replayed",
			zap.String("screening_id", existing.String()),
			zap.String("correlation_id", req.CorrelationID.String()))
		return scr, nil
	}

	ok, err := e.consent.Verified(ctx, req.TenantID, req.Subject.ID)
	if err != nil {
		return nil, errors.NewInternalError("consent lookup failed").WithCause(err)
	}
	if !ok {
		scr.Finish(screening.StatusFailedConsent)
		e.finishAudit(ctx, scr, "consent not on file")
		return scr, errors.NewConsentError("subject consent is not on file")
	}
	e.auditSink.Emit(ctx, audit.NewEvent(audit.EventConsentVerified, scr.CorrelationID, scr.TenantID).
		WithSubject(scr.SubjectID))

	if err := e.subjects.Save(ctx, req.Subject); err != nil {
		return nil, errors.NewInternalError("subject persistence failed").WithCause(err)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.NewCancelledError("cancelled while waiting for a screening slot")
	}
	defer e.sem.Release(1)

	return e.run(ctx, scr, req.Subject, req.Deadline)
}

// run executes the investigation under the screening timeout and the
// caller's deadline (whichever expires first) and resolves the terminal
// status.
func (e *Engine) run(ctx context.Context, scr *screening.Screening, subject *screening.Subject, deadline *time.Time) (*screening.Screening, error) {
	runCtx := ctx
	if e.cfg.ScreeningTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.ScreeningTimeout)
		defer cancel()
	}
	if deadline != nil {
		// WithDeadline keeps the earlier of the two.
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(runCtx, *deadline)
		defer cancel()
	}

	var span trace.Span
	runCtx, span = e.tracer.Start(runCtx, "screening.run", trace.WithAttributes(
		attribute.String("screening.id", scr.ID.String()),
		attribute.String("screening.tier", string(scr.Config.Tier)),
		attribute.String("screening.degree", string(scr.Config.Degree)),
	))
	defer span.End()

	scr.Status = screening.StatusRunning
	e.auditSink.Emit(ctx, audit.NewEvent(audit.EventScreeningInitiated, scr.CorrelationID, scr.TenantID).
		WithSubject(scr.SubjectID).
		WithDetail("tier", string(scr.Config.Tier)).
		WithDetail("degree", string(scr.Config.Degree)).
		WithDetail("vigilance", string(scr.Config.Vigilance)))

	started := time.Now()
	kb := sar.NewKnowledgeBase()
	dc := gateway.DispatchContext{Screening: scr, Subject: subject}

	if err := e.orchestrator.Run(runCtx, dc, kb); err != nil {
		// Persistence below uses the parent context; the run context may
		// already be dead.
		if runCtx.Err() != nil {
			scr.Finish(screening.StatusCancelled)
			e.finishAudit(ctx, scr, "cancelled")
			e.recordOutcome(ctx, scr, started)
			return scr, errors.NewCancelledError("screening cancelled")
		}
		scr.Finish(screening.StatusFailedInternal)
		e.finishAudit(ctx, scr, err.Error())
		e.recordOutcome(ctx, scr, started)
		return scr, errors.NewInternalError("screening run failed").WithCause(err)
	}

	return e.complete(ctx, scr, subject, kb, started)
}

// complete synthesizes findings and risk, persists the profile version and
// enrolls monitoring.
func (e *Engine) complete(ctx context.Context, scr *screening.Screening, subject *screening.Subject, kb *sar.KnowledgeBase, started time.Time) (*screening.Screening, error) {
	fnds := e.extractor.Extract(scr, subject, kb)
	scr.Findings = fnds
	scr.Risk = e.scorer.Score(fnds, time.Now().UTC())

	e.auditSink.Emit(ctx, audit.NewEvent(audit.EventFindingsExtracted, scr.CorrelationID, scr.TenantID).
		WithSubject(scr.SubjectID).
		WithDetail("findings", len(fnds)).
		WithDetail("risk_level", string(scr.Risk.Level)))
	e.metrics.FindingsCounter.Add(ctx, int64(len(fnds)))

	if !scr.Successful() {
		scr.Finish(screening.StatusInsufficient)
		e.finishAudit(ctx, scr, "no foundation information type completed")
		e.recordOutcome(ctx, scr, started)
		return scr, errors.ErrInsufficientData
	}

	var connections []profile.Connection
	if scr.Config.ExpandsNetwork() {
		var err error
		connections, err = e.expandNetwork(ctx, scr, kb)
		if err != nil {
			// The subject's own results stand even when expansion fails.
			e.logger.Warn("network expansion failed",
				zap.String("screening_id", scr.ID.String()), zap.Error(err))
		}
	}

	version, err := e.appendVersion(ctx, scr, profile.TriggerScreening, connections)
	if err != nil {
		scr.Finish(screening.StatusFailedInternal)
		e.finishAudit(ctx, scr, err.Error())
		e.recordOutcome(ctx, scr, started)
		return scr, errors.NewInternalError("profile persistence failed").WithCause(err)
	}

	scr.Finish(screening.StatusCompleted)
	if e.monitor != nil {
		if err := e.monitor.Enroll(ctx, scr, version); err != nil {
			e.logger.Error("monitoring enrollment failed",
				zap.String("subject_id", scr.SubjectID.String()), zap.Error(err))
		}
	}

	e.auditSink.Emit(ctx, audit.NewEvent(audit.EventScreeningCompleted, scr.CorrelationID, scr.TenantID).
		WithSubject(scr.SubjectID).
		WithDetail("profile_version", version.Version).
		WithDetail("risk_level", string(scr.Risk.Level)).
		WithDetail("recommendation", string(scr.Risk.Recommendation)))
	e.recordOutcome(ctx, scr, started)

	e.logger.Info("screening completed",
		zap.String("screening_id", scr.ID.String()),
		zap.String("subject_id", scr.SubjectID.String()),
		zap.Int("findings", len(fnds)),
		zap.Float64("risk", scr.Risk.Overall),
		zap.Int("profile_version", version.Version))
	return scr, nil
}

// appendVersion builds and persists the next profile version from the
// finished screening.
func (e *Engine) appendVersion(ctx context.Context, scr *screening.Screening, trigger profile.Trigger, connections []profile.Connection) (*profile.Version, error) {
	prev, err := e.profiles.Latest(ctx, scr.SubjectID)
	if err != nil {
		return nil, err
	}
	version, err := profile.NewVersion(scr.SubjectID, scr.TenantID, trigger, prev)
	if err != nil {
		return nil, err
	}
	version.Findings = scr.Findings
	if scr.Risk != nil {
		version.Risk = *scr.Risk
	}
	version.Connections = connections
	version.DataSourcesUsed = scr.DataSourcesUsed
	version.StaleDataUsed = scr.StaleDataUsed
	version.AcquisitionCost = scr.DataAcquisitionCost

	if err := e.profiles.Append(ctx, version); err != nil {
		return nil, err
	}
	e.auditSink.Emit(ctx, audit.NewEvent(audit.EventProfileCreated, scr.CorrelationID, scr.TenantID).
		WithSubject(scr.SubjectID).
		WithDetail("version", version.Version).
		WithDetail("trigger", string(trigger)))
	return version, nil
}

func (e *Engine) finishAudit(ctx context.Context, scr *screening.Screening, reason string) {
	e.auditSink.Emit(ctx, audit.NewEvent(audit.EventScreeningFailed, scr.CorrelationID, scr.TenantID).
		WithSubject(scr.SubjectID).
		WithDetail("status", string(scr.Status)).
		WithDetail("reason", reason))
}

func (e *Engine) recordOutcome(ctx context.Context, scr *screening.Screening, started time.Time) {
	e.metrics.ScreeningDuration.Record(ctx, time.Since(started).Seconds())
	e.metrics.ScreeningCounter.Add(ctx, 1)
}
