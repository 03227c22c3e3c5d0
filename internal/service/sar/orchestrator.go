package sar

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/metrics"
	"github.com/clearvet/screening-backend/internal/service/gateway"
)

// QueryRunner dispatches one iteration's queries; the gateway executor
// satisfies it.
type QueryRunner interface {
	Run(ctx context.Context, dc gateway.DispatchContext, queries []screening.SearchQuery) ([]screening.QueryResult, error)
}

// Orchestrator drives the search/assess/refine loop across all information
// types of one screening. Phases run strictly in order; types within a
// phase run concurrently against the shared knowledge base.
type Orchestrator struct {
	runner     QueryRunner
	planner    *Planner
	assessor   *Assessor
	controller *Controller
	manager    *TypeManager
	metrics    *metrics.Registry
	logger     *zap.Logger
}

// NewOrchestrator wires the SAR components.
func NewOrchestrator(
	runner QueryRunner,
	planner *Planner,
	assessor *Assessor,
	controller *Controller,
	manager *TypeManager,
	m *metrics.Registry,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		runner:     runner,
		planner:    planner,
		assessor:   assessor,
		controller: controller,
		manager:    manager,
		metrics:    m,
		logger:     logger,
	}
}

// Run executes all three phases for the screening. A later phase starts
// only after every permitted type of the previous phase is terminal. Run
// returns an error only on context cancellation; per-type failures are
// recorded on the type states.
func (o *Orchestrator) Run(ctx context.Context, dc gateway.DispatchContext, kb *KnowledgeBase) error {
	scr := dc.Screening

	for _, phase := range []screening.Phase{screening.PhaseFoundation, screening.PhaseRecords, screening.PhaseIntelligence} {
		runnable, skips := o.manager.Eligible(ctx, scr, phase)

		for _, skip := range skips {
			if st, ok := scr.TypeStates[skip.InfoType]; ok {
				if err := st.Skip(skip.Reason); err != nil {
					o.logger.Warn("skip rejected", zap.String("info_type", string(skip.InfoType)), zap.Error(err))
				}
			}
		}

		if len(runnable) == 0 {
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, t := range runnable {
			t := t
			g.Go(func() error {
				return o.runType(gctx, dc, t, kb)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// runType drives one information type through its SAR loop until a stop
// condition holds.
func (o *Orchestrator) runType(ctx context.Context, dc gateway.DispatchContext, infoType screening.InformationType, kb *KnowledgeBase) error {
	scr := dc.Screening
	st, ok := scr.TypeStates[infoType]
	if !ok {
		return nil
	}

	started := time.Now()
	if err := st.Transition(screening.StateSearching); err != nil {
		return nil
	}

	var lastAssessment *screening.Assessment
	for {
		if err := ctx.Err(); err != nil {
			st.Fail("cancelled")
			return err
		}

		queries := o.planner.Plan(infoType, st.Iteration, dc.Subject, kb.Snapshot(), lastAssessment)
		if len(queries) == 0 {
			// Move through ASSESSING so the terminal transition is legal.
			if err := st.Transition(screening.StateAssessing); err != nil {
				st.Fail(ReasonNoQueries)
				break
			}
			o.finish(st, kb, ReasonNoQueries)
			break
		}

		results, err := o.runner.Run(ctx, dc, queries)
		if err != nil {
			st.Fail("cancelled")
			return err
		}

		if err := st.Transition(screening.StateAssessing); err != nil {
			st.Fail(err.Error())
			break
		}

		assessment := o.assessor.Assess(infoType, st.Iteration, dc.Subject, results, kb)
		lastAssessment = &assessment
		o.recordIteration(ctx, st, queries, results, assessment, kb)

		cont, reason := o.controller.ShouldContinue(st, assessment)
		if !cont {
			o.finish(st, kb, reason)
			break
		}

		if err := st.Transition(screening.StateRefining); err != nil {
			st.Fail(err.Error())
			break
		}
		if err := st.Transition(screening.StateSearching); err != nil {
			st.Fail(err.Error())
			break
		}
		st.Iteration++
	}

	o.metrics.TypeCompletionTime.Record(ctx, time.Since(started).Seconds())
	o.logger.Info("information type finished",
		zap.String("info_type", string(infoType)),
		zap.String("state", string(st.State)),
		zap.String("reason", st.Reason),
		zap.Int("iterations", len(st.History)),
		zap.Int("facts", st.TotalFacts()))
	return nil
}

// finish resolves the terminal state: COMPLETE when the type produced any
// facts, FAILED(no_data_found) otherwise.
func (o *Orchestrator) finish(st *screening.SARTypeState, kb *KnowledgeBase, reason string) {
	if kb.CountForType(st.InfoType) > 0 {
		if err := st.Transition(screening.StateComplete); err != nil {
			st.Fail(reason)
			return
		}
		st.Reason = reason
		return
	}
	st.Fail(ReasonNoData)
}

func (o *Orchestrator) recordIteration(ctx context.Context, st *screening.SARTypeState, queries []screening.SearchQuery, results []screening.QueryResult, assessment screening.Assessment, kb *KnowledgeBase) {
	succeeded := 0
	for _, r := range results {
		if r.Status == screening.QuerySuccess {
			succeeded++
		}
	}
	st.History = append(st.History, screening.IterationRecord{
		Iteration:        st.Iteration,
		QueriesPlanned:   len(queries),
		QueriesExecuted:  len(results),
		QueriesSucceeded: succeeded,
		NewFacts:         len(assessment.NewFacts),
		CumulativeFacts:  kb.CountForType(st.InfoType),
		Confidence:       assessment.Confidence,
		Gaps:             assessment.Gaps,
		InfoGainRate:     assessment.InfoGainRate(),
		RecordedAt:       time.Now().UTC(),
	})
	o.metrics.IterationCounter.Add(ctx, 1)
	o.metrics.FactsExtracted.Add(ctx, int64(len(assessment.NewFacts)))
}
