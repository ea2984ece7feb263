package fhir

// Resource type names used against the remote store.
const (
	TypePatient      = "Patient"
	TypePractitioner = "Practitioner"
	TypeObservation  = "Observation"
	TypeCondition    = "Condition"
	TypeConsent      = "Consent"
)

type Patient struct {
	ResourceType        string           `json:"resourceType"`
	ID                  string           `json:"id,omitempty"`
	Meta                *Meta            `json:"meta,omitempty"`
	Active              *bool            `json:"active,omitempty"`
	Name                []HumanName      `json:"name,omitempty"`
	Telecom             []ContactPoint   `json:"telecom,omitempty"`
	Gender              string           `json:"gender,omitempty"`
	BirthDate           string           `json:"birthDate,omitempty"`
	Address             []Address        `json:"address,omitempty"`
	Contact             []PatientContact `json:"contact,omitempty"`
	GeneralPractitioner []Reference      `json:"generalPractitioner,omitempty"`
}

type PatientContact struct {
	Relationship []CodeableConcept `json:"relationship,omitempty"`
	Name         *HumanName        `json:"name,omitempty"`
	Telecom      []ContactPoint    `json:"telecom,omitempty"`
}

type Practitioner struct {
	ResourceType string         `json:"resourceType"`
	ID           string         `json:"id,omitempty"`
	Meta         *Meta          `json:"meta,omitempty"`
	Active       *bool          `json:"active,omitempty"`
	Name         []HumanName    `json:"name,omitempty"`
	Telecom      []ContactPoint `json:"telecom,omitempty"`
	Gender       string         `json:"gender,omitempty"`
}

type Observation struct {
	ResourceType         string                 `json:"resourceType"`
	ID                   string                 `json:"id,omitempty"`
	Meta                 *Meta                  `json:"meta,omitempty"`
	Status               string                 `json:"status"`
	Category             []CodeableConcept      `json:"category,omitempty"`
	Code                 CodeableConcept        `json:"code"`
	Subject              *Reference             `json:"subject,omitempty"`
	EffectiveDateTime    *DateTime              `json:"effectiveDateTime,omitempty"`
	Issued               *DateTime              `json:"issued,omitempty"`
	Device               *Reference             `json:"device,omitempty"`
	Performer            []Reference            `json:"performer,omitempty"`
	ValueQuantity        *Quantity              `json:"valueQuantity,omitempty"`
	ValueString          *string                `json:"valueString,omitempty"`
	ValueInteger         *int                   `json:"valueInteger,omitempty"`
	ValueCodeableConcept *CodeableConcept       `json:"valueCodeableConcept,omitempty"`
	Component            []ObservationComponent `json:"component,omitempty"`
	Note                 []Annotation           `json:"note,omitempty"`
}

type ObservationComponent struct {
	Code          CodeableConcept `json:"code"`
	ValueQuantity *Quantity       `json:"valueQuantity,omitempty"`
	ValueString   *string         `json:"valueString,omitempty"`
}

type Annotation struct {
	Text string `json:"text"`
}

// HasCategory reports whether the observation is tagged with category code.
func (o *Observation) HasCategory(code string) bool {
	for i := range o.Category {
		if o.Category[i].HasCode(code) {
			return true
		}
	}
	return false
}

type Condition struct {
	ResourceType       string            `json:"resourceType"`
	ID                 string            `json:"id,omitempty"`
	Meta               *Meta             `json:"meta,omitempty"`
	ClinicalStatus     *CodeableConcept  `json:"clinicalStatus,omitempty"`
	VerificationStatus *CodeableConcept  `json:"verificationStatus,omitempty"`
	Category           []CodeableConcept `json:"category,omitempty"`
	Code               CodeableConcept   `json:"code"`
	Subject            Reference         `json:"subject"`
	RecordedDate       *DateTime         `json:"recordedDate,omitempty"`
}

type Consent struct {
	ResourceType string            `json:"resourceType"`
	ID           string            `json:"id,omitempty"`
	Meta         *Meta             `json:"meta,omitempty"`
	Status       string            `json:"status"`
	Scope        CodeableConcept   `json:"scope"`
	Category     []CodeableConcept `json:"category"`
	Patient      Reference         `json:"patient"`
	DateTime     *DateTime         `json:"dateTime,omitempty"`
	Provision    *ConsentProvision `json:"provision,omitempty"`
}

type ConsentProvision struct {
	Type string `json:"type,omitempty"`
}
