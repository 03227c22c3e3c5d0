// Package fixtures provides builders for screening-domain test entities.
// Builders start from a realistic default and are adjusted per test with
// With* methods.
package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/clearvet/screening-backend/internal/domain/screening"
)

// SubjectBuilder builds test subjects.
type SubjectBuilder struct {
	kind      screening.SubjectKind
	tenantID  uuid.UUID
	name      string
	dob       *time.Time
	addresses []screening.Address
	employers []string
	schools   []string
	emails    []string
}

// NewSubjectBuilder creates a builder with a default individual subject.
func NewSubjectBuilder() *SubjectBuilder {
	dob := time.Date(1985, 3, 14, 0, 0, 0, 0, time.UTC)
	return &SubjectBuilder{
		kind:     screening.SubjectIndividual,
		tenantID: uuid.New(),
		name:     "Jordan Smith",
		dob:      &dob,
		addresses: []screening.Address{
			{Line1: "12 Court St", City: "Brooklyn", County: "Kings", State: "NY", Country: "US"},
		},
		employers: []string{"Initech"},
		schools:   []string{"Hudson State University"},
	}
}

func (b *SubjectBuilder) WithKind(kind screening.SubjectKind) *SubjectBuilder {
	b.kind = kind
	return b
}

func (b *SubjectBuilder) WithTenant(tenantID uuid.UUID) *SubjectBuilder {
	b.tenantID = tenantID
	return b
}

func (b *SubjectBuilder) WithName(name string) *SubjectBuilder {
	b.name = name
	return b
}

func (b *SubjectBuilder) WithDateOfBirth(dob time.Time) *SubjectBuilder {
	b.dob = &dob
	return b
}

func (b *SubjectBuilder) WithAddresses(addresses ...screening.Address) *SubjectBuilder {
	b.addresses = addresses
	return b
}

func (b *SubjectBuilder) WithEmployers(employers ...string) *SubjectBuilder {
	b.employers = employers
	return b
}

func (b *SubjectBuilder) WithSchools(schools ...string) *SubjectBuilder {
	b.schools = schools
	return b
}

func (b *SubjectBuilder) WithEmails(emails ...string) *SubjectBuilder {
	b.emails = emails
	return b
}

// Build constructs the subject, failing the test on invalid input.
func (b *SubjectBuilder) Build(t *testing.T) *screening.Subject {
	t.Helper()
	subject, err := screening.NewSubject(b.kind, b.tenantID, b.name)
	require.NoError(t, err)
	subject.DateOfBirth = b.dob
	subject.Addresses = b.addresses
	subject.ClaimedEmployers = b.employers
	subject.ClaimedSchools = b.schools
	subject.Emails = b.emails
	return subject
}
