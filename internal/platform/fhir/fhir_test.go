package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vhealth/integration/internal/platform/apperr"
)

func TestReference_ID(t *testing.T) {
	r := Ref(TypePractitioner, "pr-1")
	if r.Reference != "Practitioner/pr-1" {
		t.Fatalf("unexpected reference %q", r.Reference)
	}
	if got := r.ID(TypePractitioner); got != "pr-1" {
		t.Errorf("expected pr-1, got %q", got)
	}
	if got := r.ID(TypePatient); got != "" {
		t.Errorf("expected empty id for other type, got %q", got)
	}
	var nilRef *Reference
	if nilRef.ID(TypePatient) != "" {
		t.Error("expected empty id for nil reference")
	}
}

func TestCodeableConcept(t *testing.T) {
	cc := Concept("http://loinc.org", "8867-4", "Heart rate")
	if cc.FirstCoding().Code != "8867-4" {
		t.Errorf("unexpected first coding %+v", cc.FirstCoding())
	}
	if !cc.HasCode("8867-4") || cc.HasCode("1234-5") {
		t.Error("HasCode mismatch")
	}

	var empty *CodeableConcept
	if empty.FirstCoding() != (Coding{}) || empty.HasCode("x") {
		t.Error("expected zero values for nil concept")
	}
}

func TestObservation_HasCategory(t *testing.T) {
	obs := Observation{Category: []CodeableConcept{Concept("sys", "vital-signs", "")}}
	if !obs.HasCategory("vital-signs") {
		t.Error("expected vital-signs category")
	}
	if obs.HasCategory("laboratory") {
		t.Error("unexpected laboratory category")
	}
}

func TestOperationOutcome_Diagnostics(t *testing.T) {
	oo := &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{Severity: IssueSeverityError, Code: IssueTypeInvalid, Diagnostics: "bad gender"},
			{Severity: IssueSeverityError, Code: IssueTypeInvalid, Details: &CodeableConcept{Text: "missing name"}},
			{Severity: IssueSeverityWarning, Code: IssueTypeProcessing},
		},
	}
	if got := oo.Diagnostics(); got != "bad gender; missing name" {
		t.Errorf("unexpected diagnostics %q", got)
	}
	var nilOutcome *OperationOutcome
	if nilOutcome.Diagnostics() != "" {
		t.Error("expected empty diagnostics for nil outcome")
	}
}

func TestOutcomeFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"validation", apperr.Validation("email", "email is required"), IssueTypeInvalid},
		{"not found", fmt.Errorf("patient: %w", apperr.ErrNotFound), IssueTypeNotFound},
		{"remote", &apperr.RemoteCallError{Method: "POST", Resource: "Patient", StatusCode: 500}, IssueTypeTransient},
		{"decode", &apperr.DeserializationError{Resource: "Bundle", Err: errors.New("eof")}, IssueTypeStructure},
		{"other", errors.New("boom"), IssueTypeException},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oo := OutcomeFromError(tt.err)
			if oo.Issue[0].Code != tt.code {
				t.Errorf("expected %s, got %s", tt.code, oo.Issue[0].Code)
			}
		})
	}

	oo := OutcomeFromError(apperr.Validation("email", "email is required"))
	if len(oo.Issue[0].Expression) != 1 || oo.Issue[0].Expression[0] != "email" {
		t.Errorf("expected expression [email], got %v", oo.Issue[0].Expression)
	}
}

func TestErrorResponse(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := ErrorResponse(c, apperr.Validation("birth_date", "birth date is required")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	var oo OperationOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &oo); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if oo.ResourceType != "OperationOutcome" || oo.Issue[0].Diagnostics != "birth date is required" {
		t.Errorf("unexpected outcome %+v", oo)
	}

	he := echo.NewHTTPError(http.StatusUnsupportedMediaType, "nope")
	if got := ErrorResponse(c, he); got != he {
		t.Errorf("expected HTTPError passthrough, got %v", got)
	}
}

func TestBundle_ResourcesAndNext(t *testing.T) {
	raw := `{
		"resourceType": "Bundle",
		"type": "searchset",
		"link": [{"relation": "self", "url": "a"}, {"relation": "next", "url": "b"}],
		"entry": [
			{"resource": {"resourceType": "Patient", "id": "p1"}, "search": {"mode": "match"}},
			{"resource": {"resourceType": "Practitioner", "id": "pr1"}, "search": {"mode": "include"}},
			{"resource": {"resourceType": "Patient", "id": "p2"}},
			{"fullUrl": "empty"}
		]
	}`
	var b Bundle
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.NextURL() != "b" {
		t.Errorf("expected next link b, got %q", b.NextURL())
	}

	patients, err := DecodeAll[Patient](b.Resources())
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if len(patients) != 2 || patients[0].ID != "p1" || patients[1].ID != "p2" {
		t.Errorf("unexpected patients %+v", patients)
	}

	if _, err := DecodeAll[Patient]([]json.RawMessage{json.RawMessage(`{"id": 5}`)}); err == nil {
		t.Error("expected decode error")
	}
}

func TestDateTime_UnmarshalPartialValues(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{`"2024"`, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{`"2023-05"`, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)},
		{`"2024-03-01"`, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{`"2024-03-01T08:30:00"`, time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)},
		{`"2024-03-01T08:30:00.250+02:00"`, time.Date(2024, 3, 1, 6, 30, 0, 250e6, time.UTC)},
	}
	for _, tt := range tests {
		var d DateTime
		if err := json.Unmarshal([]byte(tt.raw), &d); err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.raw, err)
		}
		if !d.Equal(tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.raw, tt.want, d.Time)
		}
		if !d.IsSet() {
			t.Errorf("%s: expected IsSet", tt.raw)
		}
	}
}

func TestDateTime_UnparseableIsUndated(t *testing.T) {
	var obs Observation
	if err := json.Unmarshal([]byte(`{"resourceType":"Observation","status":"final","code":{},"effectiveDateTime":"sometime"}`), &obs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.EffectiveDateTime.IsSet() {
		t.Errorf("expected undated observation, got %v", obs.EffectiveDateTime.Time)
	}

	var missing *DateTime
	if missing.IsSet() {
		t.Error("expected nil DateTime to be unset")
	}
}

func TestDateTime_MarshalRFC3339(t *testing.T) {
	c := Condition{ResourceType: TypeCondition, RecordedDate: At(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))}
	raw, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parsed["recordedDate"] != "2024-03-01T08:00:00Z" {
		t.Errorf("unexpected recordedDate %v", parsed["recordedDate"])
	}
}
