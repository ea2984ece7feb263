package profile

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/vhealth/integration/internal/platform/apperr"
	"github.com/vhealth/integration/internal/platform/fhir"
	"github.com/vhealth/integration/pkg/fhirmodels"
)

// snapshotObservationCount matches the page size the profile screens read.
const snapshotObservationCount = "100"

// FetchSnapshot reads the patient's current sub-records from the store: one
// Observation query partitioned by category, plus the patient's Condition
// and Consent resources.
func FetchSnapshot(ctx context.Context, remote Remote, patientID string) (*Snapshot, error) {
	if patientID == "" {
		return nil, apperr.Validation("patient_id", "patient id is required to read a snapshot")
	}
	subject := fhir.TypePatient + "/" + patientID

	rawObs, err := remote.Search(ctx, fhir.TypeObservation, url.Values{
		"subject":        {subject},
		"device:missing": {"true"},
		"_sort":          {"-date"},
		"_count":         {snapshotObservationCount},
	})
	if err != nil {
		return nil, fmt.Errorf("search observations: %w", err)
	}
	observations, err := fhir.DecodeAll[fhir.Observation](rawObs)
	if err != nil {
		return nil, &apperr.DeserializationError{Resource: fhir.TypeObservation, Err: err}
	}
	snap, err := partitionObservations(observations)
	if err != nil {
		return nil, err
	}

	rawCond, err := remote.Search(ctx, fhir.TypeCondition, url.Values{"patient": {subject}})
	if err != nil {
		return nil, fmt.Errorf("search conditions: %w", err)
	}
	conditions, err := fhir.DecodeAll[fhir.Condition](rawCond)
	if err != nil {
		return nil, &apperr.DeserializationError{Resource: fhir.TypeCondition, Err: err}
	}
	for i := range conditions {
		c, err := conditionFromResource(&conditions[i])
		if err != nil {
			return nil, err
		}
		snap.Conditions = append(snap.Conditions, c)
	}

	rawConsent, err := remote.Search(ctx, fhir.TypeConsent, url.Values{"patient": {subject}})
	if err != nil {
		return nil, fmt.Errorf("search consents: %w", err)
	}
	consents, err := fhir.DecodeAll[fhir.Consent](rawConsent)
	if err != nil {
		return nil, &apperr.DeserializationError{Resource: fhir.TypeConsent, Err: err}
	}
	for i := range consents {
		snap.Consents = append(snap.Consents, consentFromResource(&consents[i]))
	}

	return snap, nil
}

// partitionObservations keeps the latest observation per code and sorts it
// into the vital, social-history or lifestyle collection. Observations
// captured by a device are wearable telemetry, not profile entries, and are
// left out so that a profile sync never deletes them.
func partitionObservations(observations []fhir.Observation) (*Snapshot, error) {
	snap := &Snapshot{}
	latest := make(map[string]*fhir.Observation)
	var order []string

	for i := range observations {
		o := &observations[i]
		if o.Device != nil && o.Device.Reference != "" {
			continue
		}
		coding := o.Code.FirstCoding()
		if coding.Code == "" {
			return nil, &apperr.DeserializationError{
				Resource: fhir.TypeObservation + "/" + o.ID,
				Err:      fmt.Errorf("observation has no code.coding entry"),
			}
		}
		prev, seen := latest[coding.Code]
		if !seen {
			order = append(order, coding.Code)
			latest[coding.Code] = o
			continue
		}
		if newer(o, prev) {
			latest[coding.Code] = o
		}
	}

	for _, code := range order {
		o := latest[code]
		switch {
		case o.HasCategory(fhirmodels.ObsCategoryVitalSigns):
			snap.VitalSigns = append(snap.VitalSigns, vitalFromObservation(o))
		case o.HasCategory(fhirmodels.ObsCategorySocialHistory):
			s := &SocialHistory{ID: o.ID, Code: o.Code.FirstCoding().Code, Name: displayOf(o.Code)}
			s.BehaviorStatus = statusFromObservation(o)
			snap.SocialHistory = append(snap.SocialHistory, s)
		case o.HasCategory(fhirmodels.ObsCategoryLifestyle):
			l := &Lifestyle{ID: o.ID, Code: o.Code.FirstCoding().Code, Name: displayOf(o.Code)}
			l.BehaviorStatus = statusFromObservation(o)
			snap.Lifestyle = append(snap.Lifestyle, l)
		}
	}
	return snap, nil
}

func newer(a, b *fhir.Observation) bool {
	if !a.EffectiveDateTime.IsSet() {
		return false
	}
	if !b.EffectiveDateTime.IsSet() {
		return true
	}
	return a.EffectiveDateTime.After(b.EffectiveDateTime.Time)
}

func displayOf(cc fhir.CodeableConcept) string {
	if d := cc.FirstCoding().Display; d != "" {
		return d
	}
	return cc.Text
}

func vitalFromObservation(o *fhir.Observation) *VitalSign {
	v := &VitalSign{
		ID:      o.ID,
		Code:    o.Code.FirstCoding().Code,
		Display: displayOf(o.Code),
	}
	if o.ValueQuantity != nil {
		if o.ValueQuantity.Value != nil {
			value := *o.ValueQuantity.Value
			v.Value = &value
		}
		v.Unit = o.ValueQuantity.Unit
	}
	if o.EffectiveDateTime.IsSet() {
		v.Timestamp = o.EffectiveDateTime.Time
	}
	return v
}

// statusFromObservation reverses behaviorObservation. All three fields are
// always set, so a stored entry read back and submitted unchanged compares
// equal.
func statusFromObservation(o *fhir.Observation) BehaviorStatus {
	var value, code string
	var numeric *float64

	switch {
	case o.ValueQuantity != nil:
		if o.ValueQuantity.Value != nil {
			numeric = o.ValueQuantity.Value
			value = strconv.FormatFloat(*numeric, 'f', -1, 64)
			if o.ValueQuantity.Unit != "" {
				value += " " + o.ValueQuantity.Unit
			}
		}
	case o.ValueCodeableConcept != nil:
		c := o.ValueCodeableConcept.FirstCoding()
		value, code = c.Display, c.Code
	case o.ValueString != nil:
		value = *o.ValueString
	case o.ValueInteger != nil:
		value = strconv.Itoa(*o.ValueInteger)
	}

	display := value
	if numeric != nil && int(*numeric) > 0 {
		display = strconv.FormatFloat(*numeric, 'f', -1, 64)
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		n = 0
	}
	return BehaviorStatus{StatusCode: &code, StatusDisplay: &display, StatusValue: &n}
}

func conditionFromResource(c *fhir.Condition) (*Condition, error) {
	coding := c.Code.FirstCoding()
	if coding.Code == "" && c.Code.Text == "" {
		return nil, &apperr.DeserializationError{
			Resource: fhir.TypeCondition + "/" + c.ID,
			Err:      fmt.Errorf("condition has no code"),
		}
	}
	return &Condition{ID: c.ID, Code: coding.Code, Display: displayOf(c.Code)}, nil
}

func consentFromResource(c *fhir.Consent) *Consent {
	out := &Consent{ID: c.ID, IsSelected: c.Status == fhirmodels.ConsentActive}
	if len(c.Category) > 0 {
		coding := c.Category[0].FirstCoding()
		out.Code = coding.Code
		out.Display = coding.Display
	}
	return out
}
