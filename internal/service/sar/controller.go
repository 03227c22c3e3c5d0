package sar

import (
	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
)

// Stop reasons recorded on the type state when the loop terminates.
const (
	ReasonConfidenceMet = "confidence_target_met"
	ReasonMaxIterations = "max_iterations_reached"
	ReasonLowInfoGain   = "info_gain_below_threshold"
	ReasonNoGaps        = "no_remaining_gaps"
	ReasonNoQueries     = "no_queries_plannable"
	ReasonNoData        = "no_data_found"
)

// Controller decides after each assessment whether the SAR loop should run
// another refinement iteration.
type Controller struct {
	cfg    config.SARConfig
	logger *zap.Logger
}

// NewController creates the iteration controller.
func NewController(cfg config.SARConfig, logger *zap.Logger) *Controller {
	if cfg.ConfidenceTarget <= 0 {
		cfg.ConfidenceTarget = 0.85
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 4
	}
	if cfg.MinInfoGainRate <= 0 {
		cfg.MinInfoGainRate = 0.15
	}
	return &Controller{cfg: cfg, logger: logger}
}

// ShouldContinue evaluates the stop conditions in priority order. The
// info-gain floor and the gaps-exhausted stop are checked only from the
// second iteration onward so a sparse first pass cannot end the
// investigation prematurely.
func (c *Controller) ShouldContinue(state *screening.SARTypeState, assessment screening.Assessment) (bool, string) {
	if assessment.Confidence >= c.cfg.ConfidenceTarget {
		return false, ReasonConfidenceMet
	}
	if state.Iteration >= c.cfg.MaxIterations {
		return false, ReasonMaxIterations
	}
	if state.Iteration >= 2 && assessment.InfoGainRate() < c.cfg.MinInfoGainRate {
		return false, ReasonLowInfoGain
	}
	if state.Iteration >= 2 && len(assessment.Gaps) == 0 {
		return false, ReasonNoGaps
	}
	return true, ""
}
