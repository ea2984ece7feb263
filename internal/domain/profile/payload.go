package profile

import (
	"strings"
	"time"

	"github.com/vhealth/integration/internal/platform/fhir"
	"github.com/vhealth/integration/pkg/fhirmodels"
)

func category(code, display string) []fhir.CodeableConcept {
	return []fhir.CodeableConcept{fhir.Concept(fhirmodels.SystemObservationCategory, code, display)}
}

func patientRef(patientID string) *fhir.Reference {
	ref := fhir.Ref(fhir.TypePatient, patientID)
	return &ref
}

func (c *Condition) Resource(patientID string, now time.Time) any {
	clinical := fhir.Concept(fhirmodels.SystemConditionClinical, fhirmodels.ConditionActive, "")
	verification := fhir.Concept(fhirmodels.SystemConditionVerStatus, fhirmodels.ConditionConfirmed, "")
	code := fhir.Concept(fhirmodels.SystemSNOMED, c.Code, c.Display)
	code.Text = c.Display
	return &fhir.Condition{
		ResourceType:       fhir.TypeCondition,
		ID:                 c.ID,
		ClinicalStatus:     &clinical,
		VerificationStatus: &verification,
		Code:               code,
		Subject:            fhir.Ref(fhir.TypePatient, patientID),
		RecordedDate:       fhir.At(now.UTC()),
	}
}

func (v *VitalSign) Resource(patientID string, now time.Time) any {
	effective := now.UTC()
	if !v.Timestamp.IsZero() {
		effective = v.Timestamp.UTC()
	}
	value := 0.0
	if v.Value != nil {
		value = *v.Value
	}
	code := fhir.Concept(fhirmodels.SystemLOINC, v.Code, v.Display)
	code.Text = v.Display
	return &fhir.Observation{
		ResourceType:      fhir.TypeObservation,
		ID:                v.ID,
		Status:            fhirmodels.ObsStatusFinal,
		Category:          category(fhirmodels.ObsCategoryVitalSigns, "Vital Signs"),
		Code:              code,
		Subject:           patientRef(patientID),
		EffectiveDateTime: fhir.At(effective),
		ValueQuantity: &fhir.Quantity{
			Value:  &value,
			Unit:   v.Unit,
			System: fhirmodels.SystemUCUM,
			Code:   v.Unit,
		},
	}
}

func (s *SocialHistory) Resource(patientID string, now time.Time) any {
	return behaviorObservation(s.ID, s.Code, s.Name, s.BehaviorStatus,
		fhirmodels.ObsCategorySocialHistory, "Social History", patientID, now)
}

func (l *Lifestyle) Resource(patientID string, now time.Time) any {
	return behaviorObservation(l.ID, l.Code, l.Name, l.BehaviorStatus,
		fhirmodels.ObsCategoryLifestyle, "Lifestyle", patientID, now)
}

func behaviorObservation(id, code, name string, status BehaviorStatus, cat, catDisplay, patientID string, now time.Time) *fhir.Observation {
	effective := now.UTC()
	obsCode := fhir.Concept(fhirmodels.SystemLOINC, code, name)
	obsCode.Text = name
	obs := &fhir.Observation{
		ResourceType:      fhir.TypeObservation,
		ID:                id,
		Status:            fhirmodels.ObsStatusFinal,
		Category:          category(cat, catDisplay),
		Code:              obsCode,
		Subject:           patientRef(patientID),
		EffectiveDateTime: fhir.At(effective),
	}

	statusCode := deref(status.StatusCode)
	statusDisplay := deref(status.StatusDisplay)
	switch {
	case status.StatusValue != nil && *status.StatusValue > 0:
		v := *status.StatusValue
		obs.ValueInteger = &v
	case statusCode == "" && statusDisplay != "":
		obs.ValueString = &statusDisplay
	case statusCode != "" && statusDisplay != "":
		cc := fhir.Concept(fhirmodels.SystemSNOMED, statusCode, statusDisplay)
		obs.ValueCodeableConcept = &cc
	}
	return obs
}

func (c *Consent) Resource(patientID string, now time.Time) any {
	status, provision := fhirmodels.ConsentRejected, fhirmodels.ProvisionDeny
	if c.IsSelected {
		status, provision = fhirmodels.ConsentActive, fhirmodels.ProvisionPermit
	}
	return &fhir.Consent{
		ResourceType: fhir.TypeConsent,
		ID:           c.ID,
		Status:       status,
		Scope:        fhir.Concept(fhirmodels.SystemConsentScope, "patient-privacy", "Privacy Consent"),
		Category:     []fhir.CodeableConcept{fhir.Concept(fhirmodels.SystemConsentCategory, c.Code, c.Display)},
		Patient:      fhir.Ref(fhir.TypePatient, patientID),
		DateTime:     fhir.At(now.UTC()),
		Provision:    &fhir.ConsentProvision{Type: provision},
	}
}

// practitionerResource builds the PCP resource. id is empty on create.
func practitionerResource(p Practitioner, id string) *fhir.Practitioner {
	res := &fhir.Practitioner{
		ResourceType: fhir.TypePractitioner,
		ID:           id,
		Name: []fhir.HumanName{{
			Use:    fhirmodels.UseOfficial,
			Family: p.LastName,
			Given:  nonEmpty(p.FirstName),
		}},
		Gender: strings.ToLower(p.Gender),
	}
	if p.Email != "" {
		res.Telecom = []fhir.ContactPoint{{System: fhirmodels.TelecomEmail, Value: p.Email, Use: fhirmodels.UseWork}}
	}
	return res
}

// patientResource builds the Patient resource. birthDate must already be
// normalised to yyyy-MM-dd.
func patientResource(p *PatientProfile, id, birthDate, pcpID string) *fhir.Patient {
	res := &fhir.Patient{
		ResourceType: fhir.TypePatient,
		ID:           id,
		Name: []fhir.HumanName{{
			Use:    fhirmodels.UseOfficial,
			Family: p.LastName,
			Given:  nonEmpty(p.FirstName),
		}},
		Gender:    strings.ToLower(p.Gender),
		BirthDate: birthDate,
	}
	if p.PhoneNumber != "" {
		res.Telecom = append(res.Telecom, fhir.ContactPoint{System: fhirmodels.TelecomPhone, Value: p.PhoneNumber, Use: fhirmodels.UseMobile})
	}
	if p.Email != "" {
		res.Telecom = append(res.Telecom, fhir.ContactPoint{System: fhirmodels.TelecomEmail, Value: p.Email, Use: fhirmodels.UseHome})
	}
	if !p.Address.isZero() {
		res.Address = []fhir.Address{{
			Use:        fhirmodels.UseHome,
			Line:       nonEmpty(p.Address.Line1, p.Address.Line2),
			City:       p.Address.City,
			State:      p.Address.State,
			PostalCode: p.Address.PostalCode,
			Country:    p.Address.Country,
		}}
	}
	if ec := p.EmergencyContact; ec != (EmergencyContact{}) {
		contact := fhir.PatientContact{
			Relationship: []fhir.CodeableConcept{fhir.Concept(fhirmodels.SystemContactRelationship, "E", "Emergency Contact")},
			Name:         &fhir.HumanName{Family: ec.LastName, Given: nonEmpty(ec.FirstName)},
		}
		if ec.Phone != "" {
			contact.Telecom = []fhir.ContactPoint{{System: fhirmodels.TelecomPhone, Value: ec.Phone, Use: fhirmodels.UseMobile}}
		}
		res.Contact = []fhir.PatientContact{contact}
	}
	if pcpID != "" {
		res.GeneralPractitioner = []fhir.Reference{fhir.Ref(fhir.TypePractitioner, pcpID)}
	}
	return res
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
