package screening

import (
	"github.com/clearvet/screening-backend/internal/domain/errors"
)

// ServiceTier governs which data sources are used and the stale-data policy.
type ServiceTier string

const (
	TierStandard ServiceTier = "STANDARD"
	TierEnhanced ServiceTier = "ENHANCED"
)

// Degree is the investigation breadth: subject only, subject plus direct
// connections, or the extended network.
type Degree string

const (
	DegreeD1 Degree = "D1"
	DegreeD2 Degree = "D2"
	DegreeD3 Degree = "D3"
)

// Vigilance is the ongoing-monitoring frequency class.
type Vigilance string

const (
	VigilanceNone      Vigilance = "V0"
	VigilanceAnnual    Vigilance = "V1"
	VigilanceMonthly   Vigilance = "V2"
	VigilanceBiweekly  Vigilance = "V3"
)

// ServiceConfig selects the screening service class for one request.
type ServiceConfig struct {
	Tier      ServiceTier `json:"tier" validate:"required,oneof=STANDARD ENHANCED"`
	Degree    Degree      `json:"degree" validate:"required,oneof=D1 D2 D3"`
	Vigilance Vigilance   `json:"vigilance" validate:"required,oneof=V0 V1 V2 V3"`
}

// Validate enforces configuration invariants. D3 network expansion requires
// the enhanced tier.
func (c ServiceConfig) Validate() error {
	switch c.Tier {
	case TierStandard, TierEnhanced:
	default:
		return errors.NewValidationError("INVALID_CONFIG", "unknown service tier")
	}
	switch c.Degree {
	case DegreeD1, DegreeD2, DegreeD3:
	default:
		return errors.NewValidationError("INVALID_CONFIG", "unknown investigation degree")
	}
	switch c.Vigilance {
	case VigilanceNone, VigilanceAnnual, VigilanceMonthly, VigilanceBiweekly:
	default:
		return errors.NewValidationError("INVALID_CONFIG", "unknown vigilance level")
	}
	if c.Degree == DegreeD3 && c.Tier != TierEnhanced {
		return errors.NewValidationError("INVALID_CONFIG", "degree D3 requires the ENHANCED tier")
	}
	return nil
}

// ExpandsNetwork reports whether this configuration performs D2/D3 network
// expansion from discovered entities.
func (c ServiceConfig) ExpandsNetwork() bool {
	return c.Degree == DegreeD2 || c.Degree == DegreeD3
}
