package screening

// InformationType is a class of evidence with its own queries and assessors.
type InformationType string

const (
	TypeIdentity         InformationType = "IDENTITY"
	TypeCriminal         InformationType = "CRIMINAL"
	TypeCivil            InformationType = "CIVIL"
	TypeEmployment       InformationType = "EMPLOYMENT"
	TypeEducation        InformationType = "EDUCATION"
	TypeFinancial        InformationType = "FINANCIAL"
	TypeLicenses         InformationType = "LICENSES"
	TypeRegulatory       InformationType = "REGULATORY"
	TypeSanctions        InformationType = "SANCTIONS"
	TypeAdverseMedia     InformationType = "ADVERSE_MEDIA"
	TypeDigitalFootprint InformationType = "DIGITAL_FOOTPRINT"
)

// Phase partitions information types by dependency order. No Records query
// runs until all permitted Foundation types are terminal; no Intelligence
// query until Records is terminal.
type Phase int

const (
	PhaseFoundation Phase = iota + 1
	PhaseRecords
	PhaseIntelligence
)

func (p Phase) String() string {
	switch p {
	case PhaseFoundation:
		return "foundation"
	case PhaseRecords:
		return "records"
	case PhaseIntelligence:
		return "intelligence"
	default:
		return "unknown"
	}
}

var phaseOf = map[InformationType]Phase{
	TypeIdentity:         PhaseFoundation,
	TypeEmployment:       PhaseFoundation,
	TypeEducation:        PhaseFoundation,
	TypeCriminal:         PhaseRecords,
	TypeCivil:            PhaseRecords,
	TypeFinancial:        PhaseRecords,
	TypeLicenses:         PhaseRecords,
	TypeRegulatory:       PhaseRecords,
	TypeSanctions:        PhaseRecords,
	TypeAdverseMedia:     PhaseIntelligence,
	TypeDigitalFootprint: PhaseIntelligence,
}

// AllInformationTypes lists every information type in phase order.
func AllInformationTypes() []InformationType {
	return []InformationType{
		TypeIdentity, TypeEmployment, TypeEducation,
		TypeCriminal, TypeCivil, TypeFinancial, TypeLicenses, TypeRegulatory, TypeSanctions,
		TypeAdverseMedia, TypeDigitalFootprint,
	}
}

// PhaseOf returns the phase an information type belongs to.
func PhaseOf(t InformationType) Phase {
	return phaseOf[t]
}

// TypesInPhase returns the information types belonging to one phase,
// in canonical order.
func TypesInPhase(p Phase) []InformationType {
	var out []InformationType
	for _, t := range AllInformationTypes() {
		if phaseOf[t] == p {
			out = append(out, t)
		}
	}
	return out
}

// Valid reports whether t is a member of the closed information-type set.
func (t InformationType) Valid() bool {
	_, ok := phaseOf[t]
	return ok
}

// CheckType is the compliance-facing name of a provider capability. Each
// information type maps onto exactly one check type.
type CheckType string

const (
	CheckIdentity         CheckType = "identity_verification"
	CheckCriminal         CheckType = "criminal_records"
	CheckCivil            CheckType = "civil_records"
	CheckEmployment       CheckType = "employment_verification"
	CheckEducation        CheckType = "education_verification"
	CheckFinancial        CheckType = "financial_records"
	CheckLicenses         CheckType = "license_verification"
	CheckRegulatory       CheckType = "regulatory_records"
	CheckSanctions        CheckType = "sanctions_watchlist"
	CheckAdverseMedia     CheckType = "adverse_media"
	CheckDigitalFootprint CheckType = "digital_footprint"
)

var checkTypeOf = map[InformationType]CheckType{
	TypeIdentity:         CheckIdentity,
	TypeCriminal:         CheckCriminal,
	TypeCivil:            CheckCivil,
	TypeEmployment:       CheckEmployment,
	TypeEducation:        CheckEducation,
	TypeFinancial:        CheckFinancial,
	TypeLicenses:         CheckLicenses,
	TypeRegulatory:       CheckRegulatory,
	TypeSanctions:        CheckSanctions,
	TypeAdverseMedia:     CheckAdverseMedia,
	TypeDigitalFootprint: CheckDigitalFootprint,
}

// CheckTypeFor maps an information type to its compliance check type.
func CheckTypeFor(t InformationType) CheckType {
	return checkTypeOf[t]
}

// expectedFacts is the completeness baseline used by the assessor's
// confidence computation.
var expectedFacts = map[InformationType]int{
	TypeIdentity:         6,
	TypeCriminal:         4,
	TypeCivil:            3,
	TypeEmployment:       5,
	TypeEducation:        3,
	TypeFinancial:        4,
	TypeLicenses:         2,
	TypeRegulatory:       3,
	TypeSanctions:        2,
	TypeAdverseMedia:     4,
	TypeDigitalFootprint: 4,
}

// ExpectedFactCount returns the number of facts considered "complete"
// coverage for an information type.
func ExpectedFactCount(t InformationType) int {
	if n, ok := expectedFacts[t]; ok {
		return n
	}
	return 3
}
