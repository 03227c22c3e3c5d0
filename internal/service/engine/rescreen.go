package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/service/gateway"
	"github.com/clearvet/screening-backend/internal/service/sar"
)

// Rescreen runs a scope-restricted investigation for a monitored subject
// and appends the resulting profile version. Information types outside the
// vigilance scope are skipped before the loop starts, so Foundation gating
// still applies to whatever remains.
func (e *Engine) Rescreen(ctx context.Context, schedule *profile.MonitoringSchedule, scope []screening.InformationType) (*profile.Version, error) {
	subject, err := e.subjects.Get(ctx, schedule.SubjectID)
	if err != nil {
		return nil, err
	}
	if subject == nil {
		return nil, errors.ErrSubjectNotFound
	}

	scr, err := screening.NewScreening(screening.Request{
		Subject: subject,
		Config: screening.ServiceConfig{
			// Monitoring re-runs stay at D1; network expansion happens on
			// the initiating screening.
			Tier:      schedule.Tier,
			Degree:    screening.DegreeD1,
			Vigilance: schedule.Vigilance,
		},
		TenantID:      schedule.TenantID,
		CorrelationID: uuid.New(),
		Locale:        schedule.Locale,
		Role:          schedule.Role,
	})
	if err != nil {
		return nil, err
	}

	inScope := make(map[screening.InformationType]struct{}, len(scope))
	for _, t := range scope {
		inScope[t] = struct{}{}
	}
	for t, st := range scr.TypeStates {
		if _, ok := inScope[t]; !ok {
			if err := st.Skip("outside monitoring scope"); err != nil {
				e.logger.Warn("scope skip rejected", zap.String("info_type", string(t)), zap.Error(err))
			}
		}
	}

	scr.Status = screening.StatusRunning
	kb := sar.NewKnowledgeBase()
	if err := e.orchestrator.Run(ctx, gateway.DispatchContext{Screening: scr, Subject: subject}, kb); err != nil {
		return nil, err
	}

	scr.Findings = e.extractor.Extract(scr, subject, kb)
	scr.Risk = e.scorer.Score(scr.Findings, time.Now().UTC())
	scr.Finish(screening.StatusCompleted)

	version, err := e.appendVersion(ctx, scr, profile.TriggerMonitoring, nil)
	if err != nil {
		return nil, err
	}

	e.logger.Info("monitoring re-screen finished",
		zap.String("subject_id", schedule.SubjectID.String()),
		zap.Int("scope_types", len(scope)),
		zap.Int("findings", len(scr.Findings)),
		zap.Int("profile_version", version.Version))
	return version, nil
}
