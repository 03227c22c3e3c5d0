package sar

import (
	"context"

	"go.uber.org/zap"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// ComplianceOracle answers whether a check type may run for a jurisdiction,
// subject role and service tier. The engine treats a denial as a hard
// exclusion, not an error.
type ComplianceOracle interface {
	Permitted(ctx context.Context, checkType screening.CheckType, locale, role string, tier screening.ServiceTier) (bool, string)
}

// TypeManager decides which information types a screening may run and
// applies the skip rules before any query is dispatched.
type TypeManager struct {
	oracle ComplianceOracle
	logger *zap.Logger
}

// NewTypeManager creates the manager.
func NewTypeManager(oracle ComplianceOracle, logger *zap.Logger) *TypeManager {
	return &TypeManager{oracle: oracle, logger: logger}
}

// SkipDecision explains why a type will not run.
type SkipDecision struct {
	InfoType screening.InformationType
	Reason   string
}

// Eligible partitions the phase's types into runnable ones and skips.
// DIGITAL_FOOTPRINT requires the ENHANCED tier; everything else is gated by
// the compliance oracle.
func (m *TypeManager) Eligible(ctx context.Context, scr *screening.Screening, phase screening.Phase) ([]screening.InformationType, []SkipDecision) {
	var runnable []screening.InformationType
	var skips []SkipDecision

	for _, t := range screening.TypesInPhase(phase) {
		if t == screening.TypeDigitalFootprint && scr.Config.Tier != screening.TierEnhanced {
			skips = append(skips, SkipDecision{InfoType: t, Reason: "digital footprint requires the ENHANCED tier"})
			continue
		}
		allowed, reason := m.oracle.Permitted(ctx, screening.CheckTypeFor(t), scr.Locale, scr.Role, scr.Config.Tier)
		if !allowed {
			if reason == "" {
				reason = "check not permitted for jurisdiction and role"
			}
			m.logger.Info("check excluded by compliance",
				zap.String("info_type", string(t)),
				zap.String("locale", scr.Locale),
				zap.String("role", scr.Role),
				zap.String("reason", reason))
			skips = append(skips, SkipDecision{InfoType: t, Reason: reason})
			continue
		}
		runnable = append(runnable, t)
	}
	return runnable, skips
}
