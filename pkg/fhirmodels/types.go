package fhirmodels

// Common FHIR code systems and value set constants used across the application.

// Code systems.
const (
	SystemLOINC               = "http://loinc.org"
	SystemSNOMED              = "http://snomed.info/sct"
	SystemUCUM                = "http://unitsofmeasure.org"
	SystemObservationCategory = "http://terminology.hl7.org/CodeSystem/observation-category"
	SystemConditionClinical   = "http://terminology.hl7.org/CodeSystem/condition-clinical"
	SystemConditionVerStatus  = "http://terminology.hl7.org/CodeSystem/condition-ver-status"
	SystemContactRelationship = "http://terminology.hl7.org/CodeSystem/v2-0131"
	SystemConsentScope        = "http://terminology.hl7.org/CodeSystem/consentscope"
	SystemConsentCategory     = "http://loinc.org"
	SystemCustomObservation   = "http://virtualhealth.local/fhir/CodeSystem/observation"
)

// ObservationCategory codes. Lifestyle is not part of the HL7 value set but
// is stored under the same system by the platform.
const (
	ObsCategoryVitalSigns    = "vital-signs"
	ObsCategoryLaboratory    = "laboratory"
	ObsCategoryImaging       = "imaging"
	ObsCategorySocialHistory = "social-history"
	ObsCategoryLifestyle     = "lifestyle"
	ObsCategorySurvey        = "survey"
	ObsCategoryExam          = "exam"
	ObsCategoryActivity      = "activity"
)

// ObservationStatus values.
const (
	ObsStatusFinal       = "final"
	ObsStatusPreliminary = "preliminary"
	ObsStatusAmended     = "amended"
)

// ConditionClinicalStatus codes.
const (
	ConditionActive   = "active"
	ConditionInactive = "inactive"
	ConditionResolved = "resolved"
)

// ConditionVerificationStatus codes.
const (
	ConditionConfirmed   = "confirmed"
	ConditionProvisional = "provisional"
)

// Consent status and provision codes.
const (
	ConsentActive   = "active"
	ConsentRejected = "rejected"
	ProvisionPermit = "permit"
	ProvisionDeny   = "deny"
)

// AdministrativeGender codes.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderOther   = "other"
	GenderUnknown = "unknown"
)

// ContactPoint systems and uses.
const (
	TelecomPhone = "phone"
	TelecomEmail = "email"
	UseHome      = "home"
	UseWork      = "work"
	UseMobile    = "mobile"
	UseOfficial  = "official"
)
