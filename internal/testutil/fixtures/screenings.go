package fixtures

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// ScreeningBuilder builds test screenings and requests.
type ScreeningBuilder struct {
	subject *screening.Subject
	config  screening.ServiceConfig
	locale  string
	role    string
	userID  uuid.UUID
	corrID  uuid.UUID
}

// NewScreeningBuilder creates a builder for a STANDARD / D1 / V0 run.
func NewScreeningBuilder() *ScreeningBuilder {
	return &ScreeningBuilder{
		config: screening.ServiceConfig{
			Tier:      screening.TierStandard,
			Degree:    screening.DegreeD1,
			Vigilance: screening.VigilanceNone,
		},
		locale: "US-NY",
		role:   "finance",
		userID: uuid.New(),
		corrID: uuid.New(),
	}
}

func (b *ScreeningBuilder) WithSubject(subject *screening.Subject) *ScreeningBuilder {
	b.subject = subject
	return b
}

func (b *ScreeningBuilder) WithConfig(cfg screening.ServiceConfig) *ScreeningBuilder {
	b.config = cfg
	return b
}

func (b *ScreeningBuilder) WithTier(tier screening.ServiceTier) *ScreeningBuilder {
	b.config.Tier = tier
	return b
}

func (b *ScreeningBuilder) WithDegree(degree screening.Degree) *ScreeningBuilder {
	b.config.Degree = degree
	return b
}

func (b *ScreeningBuilder) WithVigilance(v screening.Vigilance) *ScreeningBuilder {
	b.config.Vigilance = v
	return b
}

func (b *ScreeningBuilder) WithLocale(locale string) *ScreeningBuilder {
	b.locale = locale
	return b
}

func (b *ScreeningBuilder) WithRole(role string) *ScreeningBuilder {
	b.role = role
	return b
}

func (b *ScreeningBuilder) WithCorrelationID(id uuid.UUID) *ScreeningBuilder {
	b.corrID = id
	return b
}

// BuildRequest constructs the screening request.
func (b *ScreeningBuilder) BuildRequest(t *testing.T) screening.Request {
	t.Helper()
	subject := b.subject
	if subject == nil {
		subject = NewSubjectBuilder().Build(t)
	}
	return screening.Request{
		Subject:       subject,
		Config:        b.config,
		TenantID:      subject.TenantID,
		UserID:        b.userID,
		CorrelationID: b.corrID,
		Locale:        b.locale,
		Role:          b.role,
	}
}

// Build constructs the screening entity.
func (b *ScreeningBuilder) Build(t *testing.T) *screening.Screening {
	t.Helper()
	scr, err := screening.NewScreening(b.BuildRequest(t))
	require.NoError(t, err)
	return scr
}
