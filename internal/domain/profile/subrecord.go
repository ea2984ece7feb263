package profile

import (
	"fmt"
	"time"

	"github.com/vhealth/integration/internal/platform/fhir"
)

// Kind identifies one of the five reconcilable sub-record collections.
type Kind int

const (
	KindCondition Kind = iota + 1
	KindVitalSign
	KindSocialHistory
	KindLifestyle
	KindConsent
)

// SyncOrder is the order in which the aggregate synchronizer reconciles the
// collections.
var SyncOrder = []Kind{KindCondition, KindVitalSign, KindSocialHistory, KindLifestyle, KindConsent}

func (k Kind) String() string {
	switch k {
	case KindCondition:
		return "conditions"
	case KindVitalSign:
		return "vital_signs"
	case KindSocialHistory:
		return "social_history"
	case KindLifestyle:
		return "lifestyle"
	case KindConsent:
		return "consents"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ResourceType is the FHIR resource type a sub-record of this kind is stored
// as.
func (k Kind) ResourceType() string {
	switch k {
	case KindCondition:
		return fhir.TypeCondition
	case KindConsent:
		return fhir.TypeConsent
	default:
		return fhir.TypeObservation
	}
}

// SubRecord is the capability set the diff-sync engine needs from every
// sub-record type.
type SubRecord interface {
	Kind() Kind
	RecordID() string
	SetRecordID(id string)
	// Resource builds the full FHIR representation sent on create and update.
	Resource(patientID string, now time.Time) any
}

// tracked is a SubRecord that can compare its tracked fields with a record of
// the same type.
type tracked[T any] interface {
	SubRecord
	SameTracked(other T) bool
}

func (c *Condition) Kind() Kind            { return KindCondition }
func (c *Condition) RecordID() string      { return c.ID }
func (c *Condition) SetRecordID(id string) { c.ID = id }

func (c *Condition) SameTracked(o *Condition) bool {
	return c.Code == o.Code && c.Display == o.Display
}

func (v *VitalSign) Kind() Kind            { return KindVitalSign }
func (v *VitalSign) RecordID() string      { return v.ID }
func (v *VitalSign) SetRecordID(id string) { v.ID = id }

func (v *VitalSign) SameTracked(o *VitalSign) bool {
	return equalPtr(v.Value, o.Value)
}

func (s *SocialHistory) Kind() Kind            { return KindSocialHistory }
func (s *SocialHistory) RecordID() string      { return s.ID }
func (s *SocialHistory) SetRecordID(id string) { s.ID = id }

func (s *SocialHistory) SameTracked(o *SocialHistory) bool {
	return s.BehaviorStatus.equal(o.BehaviorStatus)
}

func (l *Lifestyle) Kind() Kind            { return KindLifestyle }
func (l *Lifestyle) RecordID() string      { return l.ID }
func (l *Lifestyle) SetRecordID(id string) { l.ID = id }

func (l *Lifestyle) SameTracked(o *Lifestyle) bool {
	return l.BehaviorStatus.equal(o.BehaviorStatus)
}

func (c *Consent) Kind() Kind            { return KindConsent }
func (c *Consent) RecordID() string      { return c.ID }
func (c *Consent) SetRecordID(id string) { c.ID = id }

func (c *Consent) SameTracked(o *Consent) bool {
	return c.IsSelected == o.IsSelected
}
