package profile

import (
	"context"
	"fmt"
	"net/url"

	"github.com/vhealth/integration/internal/platform/apperr"
	"github.com/vhealth/integration/internal/platform/fhir"
	"github.com/vhealth/integration/pkg/fhirmodels"
)

// ReadProfileByEmail assembles a PatientProfile from the store for the
// patient whose telecom carries email.
func ReadProfileByEmail(ctx context.Context, remote Remote, email string) (*PatientProfile, error) {
	if email == "" {
		return nil, apperr.Validation("email", "email is required")
	}
	raw, err := remote.Search(ctx, fhir.TypePatient, url.Values{
		"telecom": {fhirmodels.TelecomEmail + "|" + email},
	})
	if err != nil {
		return nil, fmt.Errorf("search patient by email: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("patient with email %s: %w", email, apperr.ErrNotFound)
	}
	patients, err := fhir.DecodeAll[fhir.Patient](raw[:1])
	if err != nil {
		return nil, &apperr.DeserializationError{Resource: fhir.TypePatient, Err: err}
	}
	p := profileFromPatient(&patients[0])

	if len(patients[0].GeneralPractitioner) > 0 {
		pcpID := patients[0].GeneralPractitioner[0].ID(fhir.TypePractitioner)
		if pcpID != "" {
			pcp, err := readPractitioner(ctx, remote, pcpID)
			if err != nil {
				return nil, err
			}
			p.PCP = pcp
		}
	}

	snap, err := FetchSnapshot(ctx, remote, p.PatientID)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	p.Conditions = snap.Conditions
	p.VitalSigns = snap.VitalSigns
	p.SocialHistory = snap.SocialHistory
	p.Lifestyle = snap.Lifestyle
	p.Consents = snap.Consents
	return p, nil
}

func readPractitioner(ctx context.Context, remote Remote, id string) (Practitioner, error) {
	raw, err := remote.Search(ctx, fhir.TypePractitioner, url.Values{"_id": {id}})
	if err != nil {
		return Practitioner{}, fmt.Errorf("read practitioner %s: %w", id, err)
	}
	if len(raw) == 0 {
		// A dangling generalPractitioner reference is reported as no PCP.
		return Practitioner{}, nil
	}
	list, err := fhir.DecodeAll[fhir.Practitioner](raw[:1])
	if err != nil {
		return Practitioner{}, &apperr.DeserializationError{Resource: fhir.TypePractitioner, Err: err}
	}
	pr := list[0]
	out := Practitioner{PractitionerID: pr.ID, Gender: pr.Gender}
	if len(pr.Name) > 0 {
		out.LastName = pr.Name[0].Family
		if len(pr.Name[0].Given) > 0 {
			out.FirstName = pr.Name[0].Given[0]
		}
	}
	for _, t := range pr.Telecom {
		if t.System == fhirmodels.TelecomEmail {
			out.Email = t.Value
			break
		}
	}
	return out, nil
}

func profileFromPatient(pt *fhir.Patient) *PatientProfile {
	p := &PatientProfile{
		PatientID: pt.ID,
		Gender:    pt.Gender,
		BirthDate: pt.BirthDate,
	}
	if len(pt.Name) > 0 {
		p.LastName = pt.Name[0].Family
		if len(pt.Name[0].Given) > 0 {
			p.FirstName = pt.Name[0].Given[0]
		}
	}
	for _, t := range pt.Telecom {
		switch t.System {
		case fhirmodels.TelecomPhone:
			if p.PhoneNumber == "" {
				p.PhoneNumber = t.Value
			}
		case fhirmodels.TelecomEmail:
			if p.Email == "" {
				p.Email = t.Value
			}
		}
	}
	if len(pt.Address) > 0 {
		a := pt.Address[0]
		p.Address = Address{City: a.City, State: a.State, PostalCode: a.PostalCode, Country: a.Country}
		if len(a.Line) > 0 {
			p.Address.Line1 = a.Line[0]
		}
		if len(a.Line) > 1 {
			p.Address.Line2 = a.Line[1]
		}
	}
	for _, c := range pt.Contact {
		emergency := false
		for i := range c.Relationship {
			if c.Relationship[i].HasCode("E") {
				emergency = true
				break
			}
		}
		if !emergency {
			continue
		}
		if c.Name != nil {
			p.EmergencyContact.LastName = c.Name.Family
			if len(c.Name.Given) > 0 {
				p.EmergencyContact.FirstName = c.Name.Given[0]
			}
		}
		if len(c.Telecom) > 0 {
			p.EmergencyContact.Phone = c.Telecom[0].Value
		}
		break
	}
	return p
}
