package audit

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LogSink writes audit events to the structured log. It is the default
// sink when no external audit pipeline is wired.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a logger-backed audit sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, event Event) {
	s.logger.Info("audit event",
		zap.String("event_id", event.ID.String()),
		zap.String("type", string(event.Type)),
		zap.String("correlation_id", event.CorrelationID.String()),
		zap.String("tenant_id", event.TenantID.String()),
		zap.Any("detail", event.Detail))
}

// MemorySink records events in memory for tests and local inspection.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an in-memory audit sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of all emitted events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByType returns emitted events of one type.
func (s *MemorySink) ByType(t EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
