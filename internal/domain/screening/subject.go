package screening

import (
	"time"

	"github.com/google/uuid"

	"github.com/clearvet/screening-backend/internal/domain/errors"
)

// SubjectKind distinguishes what kind of identity is being screened.
type SubjectKind string

const (
	SubjectIndividual   SubjectKind = "individual"
	SubjectOrganization SubjectKind = "organization"
	SubjectAddress      SubjectKind = "address"
)

// Subject is the identity being screened. It is immutable for the duration
// of a screening; all declared identifiers are captured at creation.
type Subject struct {
	ID       uuid.UUID   `json:"id"`
	Kind     SubjectKind `json:"kind"`
	TenantID uuid.UUID   `json:"tenant_id"`

	// Declared identifiers supplied by the requester
	FullName         string     `json:"full_name"`
	OtherNames       []string   `json:"other_names,omitempty"`
	DateOfBirth      *time.Time `json:"date_of_birth,omitempty"`
	TaxID            string     `json:"tax_id,omitempty"`
	Addresses        []Address  `json:"addresses,omitempty"`
	ClaimedEmployers []string   `json:"claimed_employers,omitempty"`
	ClaimedSchools   []string   `json:"claimed_schools,omitempty"`
	Emails           []string   `json:"emails,omitempty"`
	Phones           []string   `json:"phones,omitempty"`
	Usernames        []string   `json:"usernames,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Address is a declared or discovered physical address.
type Address struct {
	Line1      string `json:"line1"`
	City       string `json:"city"`
	County     string `json:"county,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// NewSubject creates a screening subject with validation.
func NewSubject(kind SubjectKind, tenantID uuid.UUID, fullName string) (*Subject, error) {
	switch kind {
	case SubjectIndividual, SubjectOrganization, SubjectAddress:
	default:
		return nil, errors.NewValidationError("INVALID_SUBJECT_KIND", "subject kind must be individual, organization or address")
	}
	if fullName == "" {
		return nil, errors.NewValidationError("MISSING_SUBJECT_NAME", "subject name is required")
	}
	if tenantID == uuid.Nil {
		return nil, errors.NewValidationError("MISSING_TENANT_ID", "tenant id is required")
	}

	return &Subject{
		ID:        uuid.New(),
		Kind:      kind,
		TenantID:  tenantID,
		FullName:  fullName,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// AllNames returns the declared primary name plus any other declared names.
func (s *Subject) AllNames() []string {
	names := make([]string, 0, len(s.OtherNames)+1)
	names = append(names, s.FullName)
	names = append(names, s.OtherNames...)
	return names
}
