package screening

import (
	"time"

	"github.com/clearvet/screening-backend/internal/domain/errors"
)

// TypeState is the per-information-type machine state.
type TypeState string

const (
	StatePending   TypeState = "PENDING"
	StateSearching TypeState = "SEARCHING"
	StateAssessing TypeState = "ASSESSING"
	StateRefining  TypeState = "REFINING"
	StateComplete  TypeState = "COMPLETE"
	StateFailed    TypeState = "FAILED"
	StateSkipped   TypeState = "SKIPPED"
)

// Terminal reports whether the state machine has finished.
func (s TypeState) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateSkipped
}

// validTransitions enforces the linear per-iteration SAR machine:
// SEARCHING -> ASSESSING -> (REFINING -> SEARCHING)* -> COMPLETE|FAILED,
// with SKIPPED reachable only from PENDING.
var validTransitions = map[TypeState][]TypeState{
	StatePending:   {StateSearching, StateSkipped, StateFailed},
	StateSearching: {StateAssessing, StateFailed},
	StateAssessing: {StateRefining, StateComplete, StateFailed},
	StateRefining:  {StateSearching, StateFailed},
}

// SARTypeState tracks one information type through the search/assess/refine
// loop of a single screening.
type SARTypeState struct {
	InfoType      InformationType   `json:"info_type"`
	State         TypeState         `json:"state"`
	Iteration     int               `json:"iteration"`
	Reason        string            `json:"reason,omitempty"`
	History       []IterationRecord `json:"history"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// NewSARTypeState starts a type in PENDING at iteration 1.
func NewSARTypeState(t InformationType) *SARTypeState {
	return &SARTypeState{
		InfoType:  t,
		State:     StatePending,
		Iteration: 1,
		History:   []IterationRecord{},
	}
}

// Transition moves the state machine, rejecting transitions the SAR loop
// does not allow.
func (s *SARTypeState) Transition(to TypeState) error {
	if s.State.Terminal() {
		return errors.NewBusinessError("TERMINAL_STATE", "information type already terminal")
	}
	for _, allowed := range validTransitions[s.State] {
		if allowed == to {
			now := time.Now().UTC()
			if s.State == StatePending && to == StateSearching {
				s.StartedAt = &now
			}
			if to.Terminal() {
				s.CompletedAt = &now
			}
			s.State = to
			return nil
		}
	}
	return errors.NewBusinessError("INVALID_TRANSITION",
		"invalid SAR state transition").WithDetails(map[string]interface{}{
		"from": string(s.State), "to": string(to), "info_type": string(s.InfoType),
	})
}

// Fail marks the type FAILED with a reason regardless of current state.
func (s *SARTypeState) Fail(reason string) {
	now := time.Now().UTC()
	s.State = StateFailed
	s.Reason = reason
	s.CompletedAt = &now
}

// Skip marks the type SKIPPED; only valid from PENDING.
func (s *SARTypeState) Skip(reason string) error {
	if s.State != StatePending {
		return errors.NewBusinessError("INVALID_TRANSITION", "SKIPPED is only reachable from PENDING")
	}
	now := time.Now().UTC()
	s.State = StateSkipped
	s.Reason = reason
	s.CompletedAt = &now
	return nil
}

// TotalFacts sums the new facts recorded across all iterations.
func (s *SARTypeState) TotalFacts() int {
	total := 0
	for _, rec := range s.History {
		total += rec.NewFacts
	}
	return total
}

// IterationRecord is the snapshot persisted after each SAR iteration.
type IterationRecord struct {
	Iteration       int       `json:"iteration"`
	QueriesPlanned  int       `json:"queries_planned"`
	QueriesExecuted int       `json:"queries_executed"`
	QueriesSucceeded int      `json:"queries_succeeded"`
	NewFacts        int       `json:"new_facts"`
	CumulativeFacts int       `json:"cumulative_facts"`
	Confidence      float64   `json:"confidence"`
	Gaps            []string  `json:"gaps,omitempty"`
	InfoGainRate    float64   `json:"info_gain_rate"`
	RecordedAt      time.Time `json:"recorded_at"`
}
