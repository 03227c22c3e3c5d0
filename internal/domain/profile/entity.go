package profile

import (
	"time"

	"github.com/google/uuid"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// Entity is a person or organization discovered during network expansion.
type Entity struct {
	ID   uuid.UUID             `json:"id"`
	Kind screening.SubjectKind `json:"kind"`
	Name string                `json:"name"`
}

// Relation links two entities. Multiple relations of different types
// between the same pair are allowed.
type Relation struct {
	From         uuid.UUID `json:"from"`
	To           uuid.UUID `json:"to"`
	RelationType string    `json:"relation_type"`
	Confidence   float64   `json:"confidence"`
	DiscoveredIn uuid.UUID `json:"discovered_in"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// MonitoringSchedule is the per-subject vigilance registration. Exactly
// one schedule exists per monitored subject.
type MonitoringSchedule struct {
	SubjectID       uuid.UUID           `json:"subject_id"`
	TenantID        uuid.UUID           `json:"tenant_id"`
	Vigilance       screening.Vigilance `json:"vigilance"`
	Locale          string              `json:"locale"`
	Role            string              `json:"role"`
	Tier            screening.ServiceTier `json:"tier"`
	NextCheckAt     time.Time           `json:"next_check_at"`
	BaselineVersion int                 `json:"baseline_version"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// VigilancePeriod returns the re-check interval for a vigilance level;
// zero means never.
func VigilancePeriod(v screening.Vigilance) time.Duration {
	switch v {
	case screening.VigilanceAnnual:
		return 365 * 24 * time.Hour
	case screening.VigilanceMonthly:
		return 30 * 24 * time.Hour
	case screening.VigilanceBiweekly:
		return 15 * 24 * time.Hour
	default:
		return 0
	}
}

// VigilanceScope returns the information types re-run at a vigilance
// level. V1 re-runs the full loop; V2/V3 watch the volatile record types.
func VigilanceScope(v screening.Vigilance) []screening.InformationType {
	switch v {
	case screening.VigilanceAnnual:
		return screening.AllInformationTypes()
	case screening.VigilanceMonthly, screening.VigilanceBiweekly:
		return []screening.InformationType{
			screening.TypeCriminal,
			screening.TypeSanctions,
			screening.TypeAdverseMedia,
			screening.TypeCivil,
			screening.TypeRegulatory,
		}
	default:
		return nil
	}
}

// AlertThreshold returns the minimum delta severity that raises an alert
// for a vigilance level.
func AlertThreshold(v screening.Vigilance) screening.Severity {
	switch v {
	case screening.VigilanceAnnual:
		return screening.SeverityCritical
	case screening.VigilanceMonthly:
		return screening.SeverityHigh
	case screening.VigilanceBiweekly:
		return screening.SeverityMedium
	default:
		return ""
	}
}

// Alert notifies a tenant that a monitored subject's delta crossed the
// vigilance threshold. Delivery channels are an external collaborator.
type Alert struct {
	ID        uuid.UUID           `json:"id"`
	SubjectID uuid.UUID           `json:"subject_id"`
	TenantID  uuid.UUID           `json:"tenant_id"`
	Vigilance screening.Vigilance `json:"vigilance"`
	Severity  screening.Severity  `json:"severity"`
	Delta     Delta               `json:"delta"`
	CreatedAt time.Time           `json:"created_at"`
}
