package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	apperrors "github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/profile"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/infrastructure/cache"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/infrastructure/repository"
	"github.com/clearvet/screening-backend/internal/metrics"
	"github.com/clearvet/screening-backend/internal/service/findings"
	"github.com/clearvet/screening-backend/internal/service/gateway"
	"github.com/clearvet/screening-backend/internal/service/providers"
	"github.com/clearvet/screening-backend/internal/service/risk"
	"github.com/clearvet/screening-backend/internal/service/sar"
)

type allowAll struct{}

func (allowAll) Permitted(context.Context, screening.CheckType, string, string, screening.ServiceTier) (bool, string) {
	return true, ""
}

type toggleConsent struct {
	granted bool
}

func (c *toggleConsent) Verified(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return c.granted, nil
}

type fakeMonitor struct {
	mu       sync.Mutex
	enrolled []*profile.Version
}

func (m *fakeMonitor) Enroll(_ context.Context, _ *screening.Screening, baseline *profile.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrolled = append(m.enrolled, baseline)
	return nil
}

type engineFixture struct {
	engine    *Engine
	profiles  *repository.MemoryProfileStore
	relations *repository.MemoryRelationStore
	subjects  *repository.MemorySubjectStore
	monitor   *fakeMonitor
	consent   *toggleConsent
	sink      *audit.MemorySink
}

func newEngineFixture(t *testing.T, data providers.Dataset) *engineFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zap.NewNop()
	c, err := cache.NewRedisCache(client, logger)
	require.NoError(t, err)
	m, err := metrics.NewRegistry()
	require.NoError(t, err)
	sink := audit.NewMemorySink()

	registry, err := gateway.NewRegistry(logger, providers.Family(data)...)
	require.NoError(t, err)
	health := gateway.NewHealthMonitor(config.CircuitConfig{
		FailureThreshold: 5,
		OpenDuration:     time.Minute,
		SuccessThreshold: 2,
		OutcomeWindow:    50,
	}, 0, m, logger)
	responses := cache.NewResponseCache(c, config.CacheConfig{
		KeyPrefix:       "screen:",
		DefaultFreshFor: time.Hour,
		DefaultStaleFor: 24 * time.Hour,
		BuildLockTTL:    5 * time.Second,
	}, logger)
	executor := gateway.NewExecutor(registry, cache.NewRedisRateLimiter(client, logger), health, responses, sink, m, config.GatewayConfig{
		MaxRetries:      2,
		RetryBackoff:    []time.Duration{time.Millisecond, time.Millisecond},
		DefaultTimeout:  time.Second,
		RateLimitWindow: time.Minute,
	}, 4, logger)

	sarCfg := config.SARConfig{ConfidenceTarget: 0.85, MaxIterations: 4, MinInfoGainRate: 0.15, MaxCounties: 5}
	orchestrator := sar.NewOrchestrator(
		executor,
		sar.NewPlanner(registry, sarCfg, logger),
		sar.NewAssessor(logger),
		sar.NewController(sarCfg, logger),
		sar.NewTypeManager(allowAll{}, logger),
		m, logger,
	)

	vigCfg := config.VigilanceConfig{DefaultConfidenceCap: 0.80}
	f := &engineFixture{
		profiles:  repository.NewMemoryProfileStore(),
		relations: repository.NewMemoryRelationStore(),
		subjects:  repository.NewMemorySubjectStore(),
		monitor:   &fakeMonitor{},
		consent:   &toggleConsent{granted: true},
		sink:      sink,
	}
	f.engine = New(Deps{
		Orchestrator: orchestrator,
		Extractor:    findings.NewExtractor(registry, nil, vigCfg, logger),
		Scorer:       risk.NewScorer(logger),
		Consent:      f.consent,
		Subjects:     f.subjects,
		Profiles:     f.profiles,
		Relations:    f.relations,
		Idempotency:  cache.NewIdempotencyStore(c, time.Hour),
		AuditSink:    sink,
		Metrics:      m,
		Config: config.EngineConfig{
			MaxConcurrentQueries:    4,
			MaxConcurrentScreenings: 2,
			ScreeningTimeout:        time.Minute,
		},
		Logger: logger,
	})
	f.engine.SetMonitor(f.monitor)
	return f
}

func record(conf float64, fields map[string]string) screening.Record {
	return screening.Record{Kind: "record", Fields: fields, Confidence: conf}
}

// adverseDataset models a subject with a clean identity trail, a verified
// employer and school, one felony case and one adverse media mention.
func adverseDataset() providers.Dataset {
	d := providers.Dataset{}
	d.Add("Jordan Smith", screening.CheckIdentity, record(0.9, map[string]string{
		"name":          "Jordan Smith",
		"date_of_birth": "1985-03-14",
		"address":       "12 Court St, Brooklyn NY",
		"associate":     "Victor Mallory",
	}))
	d.Add("Jordan Smith", screening.CheckEmployment, record(0.85, map[string]string{
		"employer":  "Initech",
		"job_title": "Controller",
	}))
	d.Add("Jordan Smith", screening.CheckEducation, record(0.85, map[string]string{
		"school": "Hudson State University",
		"degree": "BSc Accounting",
	}))
	d.Add("Jordan Smith", screening.CheckCriminal, record(0.9, map[string]string{
		"case_number": "CR-2001 felony assault",
	}))
	d.Add("Jordan Smith", screening.CheckAdverseMedia, record(0.7, map[string]string{
		"headline": "Fraud probe at Initech",
	}))
	return d
}

func screeningRequest(t *testing.T, cfg screening.ServiceConfig) screening.Request {
	t.Helper()
	tenantID := uuid.New()
	subject, err := screening.NewSubject(screening.SubjectIndividual, tenantID, "Jordan Smith")
	require.NoError(t, err)
	dob := time.Date(1985, 3, 14, 0, 0, 0, 0, time.UTC)
	subject.DateOfBirth = &dob
	subject.ClaimedEmployers = []string{"Initech"}
	subject.ClaimedSchools = []string{"Hudson State University"}
	subject.Addresses = []screening.Address{{Line1: "12 Court St", City: "Brooklyn", County: "Kings", State: "NY"}}

	return screening.Request{
		Subject:       subject,
		Config:        cfg,
		TenantID:      tenantID,
		UserID:        uuid.New(),
		CorrelationID: uuid.New(),
		Locale:        "US-NY",
		Role:          "finance",
	}
}

func standardConfig() screening.ServiceConfig {
	return screening.ServiceConfig{Tier: screening.TierStandard, Degree: screening.DegreeD1, Vigilance: screening.VigilanceMonthly}
}

func TestStartScreening_CompletesWithProfileAndEnrollment(t *testing.T) {
	f := newEngineFixture(t, adverseDataset())
	ctx := context.Background()

	scr, err := f.engine.StartScreening(ctx, screeningRequest(t, standardConfig()))
	require.NoError(t, err)
	assert.Equal(t, screening.StatusCompleted, scr.Status)
	require.NotNil(t, scr.Risk)

	version, err := f.profiles.Latest(ctx, scr.SubjectID)
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.Equal(t, 1, version.Version)
	assert.Equal(t, profile.TriggerScreening, version.Trigger)
	assert.True(t, version.AcquisitionCost.IsPositive())
	assert.Contains(t, version.DataSourcesUsed, "sandbox-records")
	assert.Contains(t, version.DataSourcesUsed, "sandbox-verify")

	require.Len(t, f.monitor.enrolled, 1)
	assert.Equal(t, 1, f.monitor.enrolled[0].Version)

	assert.Len(t, f.sink.ByType(audit.EventConsentVerified), 1)
	assert.Len(t, f.sink.ByType(audit.EventScreeningInitiated), 1)
	assert.Len(t, f.sink.ByType(audit.EventProfileCreated), 1)
	assert.Len(t, f.sink.ByType(audit.EventScreeningCompleted), 1)
}

func TestStartScreening_FindingsClassifiedAndCapped(t *testing.T) {
	f := newEngineFixture(t, adverseDataset())

	scr, err := f.engine.StartScreening(context.Background(), screeningRequest(t, standardConfig()))
	require.NoError(t, err)

	var criminal, media *screening.Finding
	for i := range scr.Findings {
		switch scr.Findings[i].Category {
		case screening.CategoryCriminal:
			criminal = &scr.Findings[i]
		case screening.CategoryReputation:
			media = &scr.Findings[i]
		}
	}

	require.NotNil(t, criminal, "felony case should produce a criminal finding")
	assert.Equal(t, screening.SeverityHigh, criminal.Severity)
	assert.True(t, criminal.AdverseActionUsable)

	require.NotNil(t, media, "adverse media mention should produce a reputation finding")
	// The media mention comes from the synthesis tier only.
	assert.False(t, media.AdverseActionUsable)
	assert.LessOrEqual(t, media.Confidence, 0.80)

	assert.Equal(t, screening.RiskModerate, scr.Risk.Level)
	assert.Equal(t, screening.RecommendProceedWithCaution, scr.Risk.Recommendation)
}

func TestStartScreening_DigitalFootprintSkippedOnStandardTier(t *testing.T) {
	f := newEngineFixture(t, adverseDataset())

	scr, err := f.engine.StartScreening(context.Background(), screeningRequest(t, standardConfig()))
	require.NoError(t, err)

	st := scr.TypeStates[screening.TypeDigitalFootprint]
	require.NotNil(t, st)
	assert.Equal(t, screening.StateSkipped, st.State)
}

func TestStartScreening_ConsentMissingFailsPreFlight(t *testing.T) {
	f := newEngineFixture(t, adverseDataset())
	f.consent.granted = false
	ctx := context.Background()

	scr, err := f.engine.StartScreening(ctx, screeningRequest(t, standardConfig()))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConsent))
	require.NotNil(t, scr)
	assert.Equal(t, screening.StatusFailedConsent, scr.Status)

	version, err := f.profiles.Latest(ctx, scr.SubjectID)
	require.NoError(t, err)
	assert.Nil(t, version, "no profile version without consent")
}

func TestStartScreening_DuplicateCorrelationReplaysOriginal(t *testing.T) {
	f := newEngineFixture(t, adverseDataset())
	ctx := context.Background()
	req := screeningRequest(t, standardConfig())

	first, err := f.engine.StartScreening(ctx, req)
	require.NoError(t, err)

	second, err := f.engine.StartScreening(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Replayed)

	// The replay must not run the investigation again.
	version, err := f.profiles.Latest(ctx, first.SubjectID)
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.Equal(t, 1, version.Version)
	assert.Len(t, f.sink.ByType(audit.EventScreeningInitiated), 1)
}

func TestStartScreening_ExpiredDeadlineCancels(t *testing.T) {
	f := newEngineFixture(t, adverseDataset())
	ctx := context.Background()

	req := screeningRequest(t, standardConfig())
	past := time.Now().Add(-time.Minute)
	req.Deadline = &past

	scr, err := f.engine.StartScreening(ctx, req)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeCancelled))
	require.NotNil(t, scr)
	assert.Equal(t, screening.StatusCancelled, scr.Status)

	version, lookupErr := f.profiles.Latest(ctx, scr.SubjectID)
	require.NoError(t, lookupErr)
	assert.Nil(t, version, "a cancelled screening writes no profile version")
}

func TestStartScreening_InvalidConfigRejected(t *testing.T) {
	f := newEngineFixture(t, adverseDataset())

	_, err := f.engine.StartScreening(context.Background(), screeningRequest(t, screening.ServiceConfig{
		Tier:      screening.TierStandard,
		Degree:    screening.DegreeD3,
		Vigilance: screening.VigilanceNone,
	}))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestStartScreening_UnknownSubjectInsufficientData(t *testing.T) {
	f := newEngineFixture(t, adverseDataset())
	ctx := context.Background()

	req := screeningRequest(t, standardConfig())
	req.Subject.FullName = "Riley Doe"
	req.Subject.ClaimedEmployers = nil
	req.Subject.ClaimedSchools = nil

	scr, err := f.engine.StartScreening(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientData)
	require.NotNil(t, scr)
	assert.Equal(t, screening.StatusInsufficient, scr.Status)

	version, lookupErr := f.profiles.Latest(ctx, scr.SubjectID)
	require.NoError(t, lookupErr)
	assert.Nil(t, version)
}

func TestStartScreening_NetworkExpansionOnD2(t *testing.T) {
	f := newEngineFixture(t, adverseDataset())
	ctx := context.Background()

	scr, err := f.engine.StartScreening(ctx, screeningRequest(t, screening.ServiceConfig{
		Tier:      screening.TierEnhanced,
		Degree:    screening.DegreeD2,
		Vigilance: screening.VigilanceNone,
	}))
	require.NoError(t, err)
	assert.Equal(t, screening.StatusCompleted, scr.Status)

	version, err := f.profiles.Latest(ctx, scr.SubjectID)
	require.NoError(t, err)
	require.NotNil(t, version)

	byName := make(map[string]profile.Connection)
	for _, conn := range version.Connections {
		byName[conn.EntityName] = conn
	}

	employer, ok := byName["Initech"]
	require.True(t, ok, "employer connection expected, got %v", version.Connections)
	assert.Equal(t, "employer", employer.Relation)
	// The employer appears in the adverse media trail.
	assert.Equal(t, screening.RiskHigh, employer.RiskLevel)

	associate, ok := byName["Victor Mallory"]
	require.True(t, ok, "associate connection expected")
	assert.Equal(t, "associate", associate.Relation)

	entity, err := f.relations.FindEntityByName(ctx, "Initech")
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, screening.SubjectOrganization, entity.Kind)
}

func TestRescreen_AppendsScopedVersion(t *testing.T) {
	f := newEngineFixture(t, adverseDataset())
	ctx := context.Background()

	scr, err := f.engine.StartScreening(ctx, screeningRequest(t, standardConfig()))
	require.NoError(t, err)

	schedule := &profile.MonitoringSchedule{
		SubjectID:       scr.SubjectID,
		TenantID:        scr.TenantID,
		Vigilance:       screening.VigilanceMonthly,
		Locale:          scr.Locale,
		Role:            scr.Role,
		Tier:            scr.Config.Tier,
		BaselineVersion: 1,
	}
	version, err := f.engine.Rescreen(ctx, schedule, profile.VigilanceScope(screening.VigilanceMonthly))
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.Equal(t, 2, version.Version)
	require.NotNil(t, version.PreviousVersion)
	assert.Equal(t, 1, *version.PreviousVersion)
	assert.Equal(t, profile.TriggerMonitoring, version.Trigger)

	// The scoped re-run still sees the criminal record.
	var hasCriminal bool
	for _, fnd := range version.Findings {
		if fnd.Category == screening.CategoryCriminal {
			hasCriminal = true
		}
	}
	assert.True(t, hasCriminal)
}

func TestRescreen_UnknownSubjectFails(t *testing.T) {
	f := newEngineFixture(t, adverseDataset())

	_, err := f.engine.Rescreen(context.Background(), &profile.MonitoringSchedule{
		SubjectID: uuid.New(),
		TenantID:  uuid.New(),
		Vigilance: screening.VigilanceMonthly,
		Locale:    "US-NY",
		Role:      "finance",
		Tier:      screening.TierStandard,
	}, profile.VigilanceScope(screening.VigilanceMonthly))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}
