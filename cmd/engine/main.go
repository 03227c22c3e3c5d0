// The engine binary runs the screening platform: the provider gateway,
// the search/assess/refine engine and the vigilance scheduler, plus a
// metrics endpoint. Screenings are started through the engine API by the
// surrounding application; this process owns the monitoring loop.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/infrastructure/cache"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/infrastructure/repository"
	"github.com/clearvet/screening-backend/internal/infrastructure/telemetry"
	"github.com/clearvet/screening-backend/internal/metrics"
	"github.com/clearvet/screening-backend/internal/service/compliance"
	"github.com/clearvet/screening-backend/internal/service/engine"
	"github.com/clearvet/screening-backend/internal/service/findings"
	"github.com/clearvet/screening-backend/internal/service/gateway"
	"github.com/clearvet/screening-backend/internal/service/providers"
	"github.com/clearvet/screening-backend/internal/service/risk"
	"github.com/clearvet/screening-backend/internal/service/sar"
	"github.com/clearvet/screening-backend/internal/service/vigilance"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		datasetPath = flag.String("sandbox-data", "", "Path to a sandbox provider dataset (JSON)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *datasetPath, logger); err != nil {
		logger.Fatal("engine exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, datasetPath string, logger *zap.Logger) error {
	tel, err := telemetry.Initialize(ctx, &telemetry.Config{
		ServiceName:    "screening-engine",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		SamplingRate:   1.0,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", zap.Error(err))
		}
	}()

	m, err := metrics.NewRegistry()
	if err != nil {
		return err
	}

	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	redisCache, err := cache.NewRedisCache(redisClient, logger)
	if err != nil {
		return err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return err
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	auditSink := repository.NewAuditRepository(pool, logger)

	dataset := providers.Dataset{}
	if datasetPath != "" {
		dataset, err = providers.LoadDataset(datasetPath)
		if err != nil {
			return err
		}
		logger.Info("sandbox dataset loaded", zap.String("path", datasetPath), zap.Int("subjects", len(dataset)))
	}

	registry, err := gateway.NewRegistry(logger, providers.Family(dataset)...)
	if err != nil {
		return err
	}

	health := gateway.NewHealthMonitor(cfg.Gateway.CircuitBreaker, cfg.Gateway.HealthProbeInterval, m, logger)
	health.StartProbes(ctx, healthProbes(registry))
	defer health.Stop()

	executor := gateway.NewExecutor(
		registry,
		cache.NewRedisRateLimiter(redisClient, logger),
		health,
		cache.NewResponseCache(redisCache, cfg.Cache, logger),
		auditSink,
		m,
		cfg.Gateway,
		cfg.Engine.MaxConcurrentQueries,
		logger,
	)

	policy := compliance.NewPolicy(compliance.DefaultRules(), logger)
	orchestrator := sar.NewOrchestrator(
		executor,
		sar.NewPlanner(registry, cfg.SAR, logger),
		sar.NewAssessor(logger),
		sar.NewController(cfg.SAR, logger),
		sar.NewTypeManager(policy, logger),
		m, logger,
	)

	profiles := repository.NewProfileRepository(pool)
	eng := engine.New(engine.Deps{
		Orchestrator: orchestrator,
		Extractor:    findings.NewExtractor(registry, policy, cfg.Vigilance, logger),
		Scorer:       risk.NewScorer(logger),
		Consent:      repository.NewConsentRepository(pool),
		Subjects:     repository.NewSubjectRepository(pool),
		Profiles:     profiles,
		Relations:    repository.NewRelationRepository(pool),
		Idempotency:  cache.NewIdempotencyStore(redisCache, cfg.Engine.IdempotencyTTL),
		AuditSink:    auditSink,
		Metrics:      m,
		Config:       cfg.Engine,
		Logger:       logger,
	})

	scheduler := vigilance.NewScheduler(
		repository.NewScheduleRepository(pool),
		profiles,
		vigilance.NewDueQueue(redisClient),
		eng,
		vigilance.NewStreamPublisher(redisClient, logger),
		auditSink,
		m,
		cfg.Vigilance,
		logger,
	)
	eng.SetMonitor(scheduler)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux(tel),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("screening engine started",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.String("metrics_addr", cfg.MetricsAddr),
		zap.Int("providers", len(registry.All())))

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}

// healthProbes adapts each provider's health check into the monitor's
// probe shape.
func healthProbes(registry *gateway.Registry) map[string]func(context.Context) (bool, time.Duration) {
	probes := make(map[string]func(context.Context) (bool, time.Duration))
	for _, p := range registry.All() {
		p := p
		probes[p.Info().ID] = func(ctx context.Context) (bool, time.Duration) {
			status, err := p.HealthCheck(ctx)
			if err != nil || status == nil {
				return false, 0
			}
			return status.Available, status.Latency
		}
	}
	return probes
}

func metricsMux(tel *telemetry.Provider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(tel.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}
