package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/metrics"
)

// CircuitState is the per-provider circuit breaker state.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// outcome is one recorded call result.
type outcome struct {
	success bool
	latency time.Duration
	at      time.Time
}

// providerHealth tracks one provider's recent outcomes and circuit.
type providerHealth struct {
	state        CircuitState
	openedAt     time.Time
	consecFails  int
	halfOpenOKs  int
	probeInFlight bool

	// bounded deque of recent outcomes
	recent []outcome
	head   int
	filled bool
}

// HealthMonitor tracks provider call outcomes and drives the circuit
// breaker. Updates arrive from the executor and from periodic probes.
type HealthMonitor struct {
	mu      sync.Mutex
	byID    map[string]*providerHealth
	cfg     config.CircuitConfig
	logger  *zap.Logger
	metrics *metrics.Registry
	clock   func() time.Time

	probeInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewHealthMonitor creates the monitor with the configured circuit
// thresholds.
func NewHealthMonitor(cfg config.CircuitConfig, probeInterval time.Duration, m *metrics.Registry, logger *zap.Logger) *HealthMonitor {
	if cfg.OutcomeWindow <= 0 {
		cfg.OutcomeWindow = 50
	}
	return &HealthMonitor{
		byID:          make(map[string]*providerHealth),
		cfg:           cfg,
		logger:        logger,
		metrics:       m,
		clock:         time.Now,
		probeInterval: probeInterval,
		stopCh:        make(chan struct{}),
	}
}

// WithClock overrides the time source for tests.
func (h *HealthMonitor) WithClock(clock func() time.Time) *HealthMonitor {
	h.clock = clock
	return h
}

func (h *HealthMonitor) health(providerID string) *providerHealth {
	ph, ok := h.byID[providerID]
	if !ok {
		ph = &providerHealth{
			state:  CircuitClosed,
			recent: make([]outcome, h.cfg.OutcomeWindow),
		}
		h.byID[providerID] = ph
	}
	return ph
}

func (h *HealthMonitor) transition(providerID string, ph *providerHealth, to CircuitState) {
	from := ph.state
	if from == to {
		return
	}
	ph.state = to
	if to == CircuitOpen {
		ph.openedAt = h.clock()
		ph.halfOpenOKs = 0
		ph.probeInFlight = false
	}
	if to == CircuitClosed {
		ph.consecFails = 0
		ph.halfOpenOKs = 0
		ph.probeInFlight = false
	}
	h.logger.Warn("circuit transition",
		zap.String("provider_id", providerID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	h.metrics.RecordCircuitTransition(context.Background(), providerID, string(from), string(to))
}

func (ph *providerHealth) push(o outcome) {
	ph.recent[ph.head] = o
	ph.head = (ph.head + 1) % len(ph.recent)
	if ph.head == 0 {
		ph.filled = true
	}
}

// RecordSuccess records a successful call and advances the circuit.
func (h *HealthMonitor) RecordSuccess(providerID string, latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph := h.health(providerID)
	ph.push(outcome{success: true, latency: latency, at: h.clock()})
	ph.consecFails = 0

	if ph.state == CircuitHalfOpen {
		ph.probeInFlight = false
		ph.halfOpenOKs++
		if ph.halfOpenOKs >= h.cfg.SuccessThreshold {
			h.transition(providerID, ph, CircuitClosed)
		}
	}
}

// RecordFailure records a failed call; consecutive failures open the
// circuit, and any half-open failure reopens it.
func (h *HealthMonitor) RecordFailure(providerID string, latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph := h.health(providerID)
	ph.push(outcome{success: false, latency: latency, at: h.clock()})
	ph.consecFails++

	switch ph.state {
	case CircuitHalfOpen:
		h.transition(providerID, ph, CircuitOpen)
	case CircuitClosed:
		if ph.consecFails >= h.cfg.FailureThreshold {
			h.transition(providerID, ph, CircuitOpen)
		}
	}
}

// State returns the provider's current circuit state, applying the
// OPEN -> HALF_OPEN timeout lazily.
func (h *HealthMonitor) State(providerID string) CircuitState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stateLocked(providerID)
}

func (h *HealthMonitor) stateLocked(providerID string) CircuitState {
	ph := h.health(providerID)
	if ph.state == CircuitOpen && h.clock().Sub(ph.openedAt) >= h.cfg.OpenDuration {
		h.transition(providerID, ph, CircuitHalfOpen)
	}
	return ph.state
}

// IsAvailable reports false iff the circuit is OPEN.
func (h *HealthMonitor) IsAvailable(providerID string) bool {
	return h.State(providerID) != CircuitOpen
}

// AllowDispatch reports whether the executor may initiate a fresh
// dispatch. CLOSED always allows; HALF_OPEN permits exactly one in-flight
// probe; OPEN rejects.
func (h *HealthMonitor) AllowDispatch(providerID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.stateLocked(providerID) {
	case CircuitClosed:
		return true
	case CircuitHalfOpen:
		ph := h.health(providerID)
		if ph.probeInFlight {
			return false
		}
		ph.probeInFlight = true
		return true
	default:
		return false
	}
}

// ErrorRate returns the failure fraction over the bounded outcome window.
func (h *HealthMonitor) ErrorRate(providerID string) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph := h.health(providerID)
	n := ph.head
	if ph.filled {
		n = len(ph.recent)
	}
	if n == 0 {
		return 0
	}
	fails := 0
	for i := 0; i < n; i++ {
		if !ph.recent[i].success {
			fails++
		}
	}
	return float64(fails) / float64(n)
}

// StartProbes launches the periodic health check loop over the given
// probe functions, keyed by provider id. A healthy probe feeds the
// error-rate metric but does not alone close the circuit.
func (h *HealthMonitor) StartProbes(ctx context.Context, probes map[string]func(context.Context) (bool, time.Duration)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		// Pace initial probes so a large registry does not burst.
		pacer := rate.NewLimiter(rate.Limit(20), 5)

		ticker := time.NewTicker(h.probeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case <-ticker.C:
				for id, probe := range probes {
					if err := pacer.Wait(ctx); err != nil {
						return
					}
					ok, latency := probe(ctx)
					h.recordProbe(id, ok, latency)
				}
			}
		}
	}()
}

// recordProbe feeds the outcome window without driving circuit state;
// only real dispatch outcomes open or close circuits.
func (h *HealthMonitor) recordProbe(providerID string, ok bool, latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ph := h.health(providerID)
	ph.push(outcome{success: ok, latency: latency, at: h.clock()})
}

// Stop terminates the probe loop and waits for it to exit.
func (h *HealthMonitor) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
	h.wg.Wait()
}
