package vigilance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	"github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/metrics"
)

// Rescreener runs a scope-restricted re-screening for a monitored subject
// and returns the resulting profile version. The screening engine
// implements it.
type Rescreener interface {
	Rescreen(ctx context.Context, schedule *profile.MonitoringSchedule, scope []screening.InformationType) (*profile.Version, error)
}

// AlertPublisher delivers alerts to the tenant's channels. Delivery is
// outside the engine; publishing must not block the scheduler.
type AlertPublisher interface {
	Publish(ctx context.Context, alert *profile.Alert) error
}

// Scheduler owns continuous monitoring: it enrolls subjects after
// screenings, wakes on a fixed tick, re-screens due subjects within their
// vigilance scope, computes the delta against the baseline version, and
// raises alerts past the vigilance threshold.
type Scheduler struct {
	schedules  profile.ScheduleStore
	versions   profile.Store
	queue      *DueQueue
	rescreener Rescreener
	alerts     AlertPublisher
	auditSink  audit.Sink
	metrics    *metrics.Registry
	cfg        config.VigilanceConfig
	logger     *zap.Logger

	clock    func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler wires the monitoring scheduler.
func NewScheduler(
	schedules profile.ScheduleStore,
	versions profile.Store,
	queue *DueQueue,
	rescreener Rescreener,
	alerts AlertPublisher,
	auditSink audit.Sink,
	m *metrics.Registry,
	cfg config.VigilanceConfig,
	logger *zap.Logger,
) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	return &Scheduler{
		schedules:  schedules,
		versions:   versions,
		queue:      queue,
		rescreener: rescreener,
		alerts:     alerts,
		auditSink:  auditSink,
		metrics:    m,
		cfg:        cfg,
		logger:     logger,
		clock:      time.Now,
		stopCh:     make(chan struct{}),
	}
}

// WithClock overrides the time source for tests.
func (s *Scheduler) WithClock(clock func() time.Time) *Scheduler {
	s.clock = clock
	return s
}

// Enroll registers a subject for monitoring after a completed screening.
// V0 configurations are not enrolled; re-screening an already monitored
// subject re-baselines and reschedules it.
func (s *Scheduler) Enroll(ctx context.Context, scr *screening.Screening, baseline *profile.Version) error {
	period := profile.VigilancePeriod(scr.Config.Vigilance)
	if period == 0 {
		return nil
	}

	now := s.clock().UTC()
	schedule := &profile.MonitoringSchedule{
		SubjectID:       scr.SubjectID,
		TenantID:        scr.TenantID,
		Vigilance:       scr.Config.Vigilance,
		Locale:          scr.Locale,
		Role:            scr.Role,
		Tier:            scr.Config.Tier,
		NextCheckAt:     now.Add(period),
		BaselineVersion: baseline.Version,
		UpdatedAt:       now,
	}
	if err := s.schedules.Upsert(ctx, schedule); err != nil {
		return err
	}
	if err := s.queue.Schedule(ctx, schedule.SubjectID, schedule.NextCheckAt); err != nil {
		return err
	}

	s.logger.Info("subject enrolled for monitoring",
		zap.String("subject_id", scr.SubjectID.String()),
		zap.String("vigilance", string(scr.Config.Vigilance)),
		zap.Time("next_check_at", schedule.NextCheckAt))
	return nil
}

// Cancel removes a subject from monitoring.
func (s *Scheduler) Cancel(ctx context.Context, subjectID uuid.UUID) error {
	if err := s.schedules.Delete(ctx, subjectID); err != nil {
		return err
	}
	return s.queue.Remove(ctx, subjectID)
}

// TriggerNow queues an immediate out-of-band check for a monitored
// subject, ahead of its periodic schedule. Sanctions and adverse-media
// event feeds call this; only V3 subscriptions carry event-driven
// triggers, lower levels keep their periodic cadence.
func (s *Scheduler) TriggerNow(ctx context.Context, subjectID uuid.UUID) error {
	schedule, err := s.schedules.Get(ctx, subjectID)
	if err != nil {
		return err
	}
	if schedule == nil {
		return errors.ErrSubjectNotFound
	}
	if schedule.Vigilance != screening.VigilanceBiweekly {
		s.logger.Debug("event trigger ignored below biweekly vigilance",
			zap.String("subject_id", subjectID.String()),
			zap.String("vigilance", string(schedule.Vigilance)))
		return nil
	}
	if err := s.queue.Schedule(ctx, subjectID, s.clock().UTC()); err != nil {
		return err
	}
	s.logger.Info("event-driven check queued",
		zap.String("subject_id", subjectID.String()))
	return nil
}

// Start launches the tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop terminates the tick loop and waits for in-flight work.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Tick processes one batch of due subjects. Failures on one subject do
// not block the rest of the batch.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock().UTC()
	due, err := s.queue.Due(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("due queue scan failed", zap.Error(err))
		return
	}

	for _, subjectID := range due {
		if err := s.runOnce(ctx, subjectID); err != nil {
			s.logger.Error("monitoring run failed",
				zap.String("subject_id", subjectID.String()),
				zap.Error(err))
		}
	}
}

// runOnce executes one monitoring cycle for a subject: scoped re-screen,
// delta against the baseline, alert if warranted, then advance the
// schedule.
func (s *Scheduler) runOnce(ctx context.Context, subjectID uuid.UUID) error {
	schedule, err := s.schedules.Get(ctx, subjectID)
	if err != nil {
		return err
	}
	if schedule == nil {
		// Cancelled while queued.
		return s.queue.Remove(ctx, subjectID)
	}

	scope := profile.VigilanceScope(schedule.Vigilance)
	current, err := s.rescreener.Rescreen(ctx, schedule, scope)
	if err != nil {
		// Leave the queue entry in place; the next tick retries.
		return err
	}
	s.metrics.MonitoringRuns.Add(ctx, 1)

	baseline, err := s.versions.Get(ctx, subjectID, schedule.BaselineVersion)
	if err != nil {
		return err
	}

	delta := Detect(baseline, current)
	if alert, raised := s.maybeAlert(ctx, schedule, delta); raised {
		s.auditSink.Emit(ctx, audit.NewEvent(audit.EventAlertGenerated, uuid.New(), schedule.TenantID).
			WithSubject(subjectID).
			WithDetail("severity", string(alert.Severity)).
			WithDetail("changes", len(delta.Changes)).
			WithDetail("vigilance", string(schedule.Vigilance)))
	}

	now := s.clock().UTC()
	schedule.BaselineVersion = current.Version
	schedule.NextCheckAt = now.Add(profile.VigilancePeriod(schedule.Vigilance))
	schedule.UpdatedAt = now
	if err := s.schedules.Upsert(ctx, schedule); err != nil {
		return err
	}
	return s.queue.Schedule(ctx, subjectID, schedule.NextCheckAt)
}

// maybeAlert raises an alert when the delta's maximum severity meets the
// vigilance threshold.
func (s *Scheduler) maybeAlert(ctx context.Context, schedule *profile.MonitoringSchedule, delta profile.Delta) (*profile.Alert, bool) {
	if delta.Empty() {
		return nil, false
	}
	threshold := profile.AlertThreshold(schedule.Vigilance)
	severity := delta.MaxSeverity()
	if threshold == "" || severity.Rank() < threshold.Rank() {
		return nil, false
	}

	alert := &profile.Alert{
		ID:        uuid.New(),
		SubjectID: schedule.SubjectID,
		TenantID:  schedule.TenantID,
		Vigilance: schedule.Vigilance,
		Severity:  severity,
		Delta:     delta,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.alerts.Publish(ctx, alert); err != nil {
		s.logger.Error("alert publish failed",
			zap.String("subject_id", schedule.SubjectID.String()),
			zap.Error(err))
		return nil, false
	}
	s.metrics.AlertsRaised.Add(ctx, 1)
	return alert, true
}
