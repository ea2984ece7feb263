package profile

import "time"

// PatientProfile is the aggregate submitted by clients: demographics, the
// primary-care provider and the five reconcilable sub-record collections.
type PatientProfile struct {
	PatientID        string           `json:"patient_id"`
	FirstName        string           `json:"first_name"`
	LastName         string           `json:"last_name"`
	Gender           string           `json:"gender"`
	BirthDate        string           `json:"birth_date"`
	Email            string           `json:"email"`
	PhoneNumber      string           `json:"phone_number"`
	Address          Address          `json:"address"`
	EmergencyContact EmergencyContact `json:"emergency_contact"`
	PCP              Practitioner     `json:"pcp"`
	Conditions       []*Condition     `json:"conditions"`
	VitalSigns       []*VitalSign     `json:"vital_signs"`
	SocialHistory    []*SocialHistory `json:"social_history"`
	Lifestyle        []*Lifestyle     `json:"lifestyle"`
	Consents         []*Consent       `json:"consents"`
}

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a Address) isZero() bool {
	return a == Address{}
}

type EmergencyContact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type Practitioner struct {
	PractitionerID string `json:"practitioner_id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	Gender         string `json:"gender"`
}

func (p Practitioner) isZero() bool {
	return p == Practitioner{}
}

// Condition is a past or active diagnosis coded in SNOMED CT.
type Condition struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Display string `json:"display"`
}

// VitalSign is a LOINC-coded numeric measurement.
type VitalSign struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Display   string    `json:"display"`
	Value     *float64  `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// BehaviorStatus is the value shared by social-history and lifestyle
// entries. A positive StatusValue is sent as an integer; otherwise a display
// without a code is sent as free text, and a code with a display as a
// SNOMED concept.
type BehaviorStatus struct {
	StatusCode    *string `json:"status_code"`
	StatusDisplay *string `json:"status_display"`
	StatusValue   *int    `json:"status_value"`
}

func (s BehaviorStatus) equal(o BehaviorStatus) bool {
	return equalPtr(s.StatusCode, o.StatusCode) &&
		equalPtr(s.StatusDisplay, o.StatusDisplay) &&
		equalPtr(s.StatusValue, o.StatusValue)
}

// SocialHistory records a behaviour such as tobacco or alcohol use.
type SocialHistory struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	BehaviorStatus
}

// Lifestyle records a habit such as exercise frequency or diet.
type Lifestyle struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	BehaviorStatus
}

// Consent is one consent checkbox of the intake form.
type Consent struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Display    string `json:"display"`
	IsSelected bool   `json:"is_selected"`
}

// Snapshot is the remote state of every sub-record collection for one
// patient, fetched once at the start of a synchronisation.
type Snapshot struct {
	Conditions    []*Condition
	VitalSigns    []*VitalSign
	SocialHistory []*SocialHistory
	Lifestyle     []*Lifestyle
	Consents      []*Consent
}

// SyncResult summarises one aggregate synchronisation.
type SyncResult struct {
	PatientID      string          `json:"patient_id"`
	PractitionerID string          `json:"practitioner_id"`
	Stats          map[Kind]Stats  `json:"stats"`
	Profile        *PatientProfile `json:"profile"`
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func compact[T any](in []*T) []*T {
	out := make([]*T, 0, len(in))
	for _, v := range in {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}
