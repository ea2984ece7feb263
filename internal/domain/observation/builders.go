package observation

import (
	"time"

	"github.com/vhealth/integration/internal/platform/fhir"
	"github.com/vhealth/integration/pkg/fhirmodels"
)

// LOINC codes written by the ingest paths.
const (
	CodeHeartRate          = "8867-4"
	CodeBloodPressurePanel = "85354-9"
	CodeSystolic           = "8480-6"
	CodeDiastolic          = "8462-4"
	CodeSpO2               = "59408-5"
	CodeBodyTemperature    = "8310-5"
	CodeSteps              = "41950-7"
	CodeRespiratoryRate    = "9279-1"
	CodeBloodGlucose       = "2339-0"
	CodeCaloriesBurned     = "41981-2"
	CodeHRV                = "80394-6"
	CodeVO2Max             = "41918-4"
	CodeSleepDuration      = "93832-4"
	CodeSkinTemperature    = "39106-0"

	CodeHbA1c            = "4548-4"
	CodeTotalCholesterol = "2093-3"
	CodeHDL              = "2085-9"
	CodeLDL              = "18262-6"
	CodeTriglycerides    = "2571-8"
	CodeHemoglobin       = "718-7"
	CodeWBC              = "6690-2"

	CodeImagingDefault = "18748-4"

	CodePHQ9       = "44249-1"
	CodeSmoking    = "72166-2"
	CodeAlcoholUse = "74013-4"
	CodeOccupation = "11341-5"
)

// Codes in the service's own code system, for measures LOINC has no code for.
const (
	CustomSleepRestlessness   = "sleep-restlessness"
	CustomStepsGoalCompletion = "steps-goal-completion"
	CustomDesaturationEvents  = "oxygen-desaturation-events"
	CustomStressLevel         = "stress-level"
	CustomLungSounds          = "lung-sounds"
	CustomExerciseFrequency   = "exercise-frequency"
	CustomDietHabits          = "diet-habits"
)

type draft struct {
	patientID string
	effective time.Time
	device    *fhir.Reference
	performer []fhir.Reference
}

func (d draft) base(category, system, code, display string) *fhir.Observation {
	return &fhir.Observation{
		ResourceType:      fhir.TypeObservation,
		Status:            fhirmodels.ObsStatusFinal,
		Category:          []fhir.CodeableConcept{fhir.Concept(fhirmodels.SystemObservationCategory, category, "")},
		Code:              fhir.Concept(system, code, display),
		Subject:           &fhir.Reference{Reference: fhir.TypePatient + "/" + d.patientID},
		EffectiveDateTime: fhir.At(d.effective),
		Device:            d.device,
		Performer:         d.performer,
	}
}

func (d draft) quantity(category, system, code, display string, value float64, unit, unitCode string) *fhir.Observation {
	obs := d.base(category, system, code, display)
	obs.ValueQuantity = ucum(value, unit, unitCode)
	return obs
}

func (d draft) text(category, system, code, display, value string) *fhir.Observation {
	obs := d.base(category, system, code, display)
	obs.ValueString = &value
	return obs
}

func ucum(value float64, unit, code string) *fhir.Quantity {
	return &fhir.Quantity{Value: &value, Unit: unit, System: fhirmodels.SystemUCUM, Code: code}
}

func effectiveAt(collected *time.Time, now time.Time) time.Time {
	if collected != nil && !collected.IsZero() {
		return collected.UTC()
	}
	return now.UTC()
}

// wearableObservations turns a wearable reading into one observation per
// present measure, every one referencing the device.
func wearableObservations(in *WearableVitals, now time.Time) []*fhir.Observation {
	d := draft{
		patientID: in.PatientID,
		effective: effectiveAt(in.CollectedAt, now),
		device:    &fhir.Reference{Reference: "Device/" + in.DeviceID + "-wearable"},
	}
	vital := func(code, display string, v *float64, unit, unitCode string) *fhir.Observation {
		return d.quantity(fhirmodels.ObsCategoryVitalSigns, fhirmodels.SystemLOINC, code, display, *v, unit, unitCode)
	}

	var out []*fhir.Observation
	if in.HeartRate != nil {
		out = append(out, vital(CodeHeartRate, "Heart rate", in.HeartRate, "beats/min", "/min"))
	}
	if in.Systolic != nil && in.Diastolic != nil {
		bp := d.base(fhirmodels.ObsCategoryVitalSigns, fhirmodels.SystemLOINC, CodeBloodPressurePanel, "Blood pressure panel")
		bp.Component = []fhir.ObservationComponent{
			{
				Code:          fhir.Concept(fhirmodels.SystemLOINC, CodeSystolic, "Systolic blood pressure"),
				ValueQuantity: ucum(*in.Systolic, "mmHg", "mm[Hg]"),
			},
			{
				Code:          fhir.Concept(fhirmodels.SystemLOINC, CodeDiastolic, "Diastolic blood pressure"),
				ValueQuantity: ucum(*in.Diastolic, "mmHg", "mm[Hg]"),
			},
		}
		out = append(out, bp)
	}
	if in.SpO2 != nil {
		out = append(out, vital(CodeSpO2, "Oxygen saturation in Arterial blood", in.SpO2, "%", "%"))
	}
	if in.Temperature != nil {
		out = append(out, vital(CodeBodyTemperature, "Body temperature", in.Temperature, "°F", "[degF]"))
	}
	if in.SkinTemperature != nil {
		out = append(out, vital(CodeSkinTemperature, "Skin temperature", in.SkinTemperature, "°F", "[degF]"))
	}
	if in.Steps != nil {
		out = append(out, vital(CodeSteps, "Number of steps", in.Steps, "steps", "{steps}"))
	}
	if in.RespiratoryRate != nil {
		out = append(out, vital(CodeRespiratoryRate, "Respiratory rate", in.RespiratoryRate, "breaths/min", "/min"))
	}
	if in.BloodGlucose != nil {
		out = append(out, vital(CodeBloodGlucose, "Glucose [Mass/volume] in Blood", in.BloodGlucose, "mg/dL", "mg/dL"))
	}
	if in.CaloriesBurned != nil {
		out = append(out, vital(CodeCaloriesBurned, "Calories burned", in.CaloriesBurned, "kcal", "kcal"))
	}
	if in.HeartRateVariability != nil {
		out = append(out, vital(CodeHRV, "Heart rate variability", in.HeartRateVariability, "milliseconds", "ms"))
	}
	if in.VO2Max != nil {
		out = append(out, vital(CodeVO2Max, "VO2 Max", in.VO2Max, "ml/kg/min", "mL/(kg.min)"))
	}
	if in.SleepDuration != nil {
		out = append(out, d.quantity(fhirmodels.ObsCategoryActivity, fhirmodels.SystemLOINC,
			CodeSleepDuration, "Sleep duration", *in.SleepDuration, "hours", "h"))
	}
	if in.SleepRestlessnessIndex != nil {
		out = append(out, d.quantity(fhirmodels.ObsCategoryActivity, fhirmodels.SystemCustomObservation,
			CustomSleepRestlessness, "Sleep restlessness index", *in.SleepRestlessnessIndex, "%", "%"))
	}
	if in.StepsGoalCompletion != nil {
		out = append(out, d.quantity(fhirmodels.ObsCategoryActivity, fhirmodels.SystemCustomObservation,
			CustomStepsGoalCompletion, "Steps goal completion", *in.StepsGoalCompletion, "%", "%"))
	}
	if in.OxygenDesaturationEvents != nil {
		obs := d.base(fhirmodels.ObsCategoryVitalSigns, fhirmodels.SystemCustomObservation,
			CustomDesaturationEvents, "Oxygen desaturation events")
		n := *in.OxygenDesaturationEvents
		obs.ValueInteger = &n
		out = append(out, obs)
	}
	if in.StressLevel != "" {
		out = append(out, d.text(fhirmodels.ObsCategorySurvey, fhirmodels.SystemCustomObservation,
			CustomStressLevel, "Stress level", in.StressLevel))
	}
	return out
}

func labObservations(in *LabResults, now time.Time) []*fhir.Observation {
	d := draft{patientID: in.PatientID, effective: effectiveAt(in.CollectedAt, now)}
	lab := func(code, display string, v *float64, unit string) *fhir.Observation {
		return d.quantity(fhirmodels.ObsCategoryLaboratory, fhirmodels.SystemLOINC, code, display, *v, unit, unit)
	}

	var out []*fhir.Observation
	if in.HbA1c != nil {
		out = append(out, lab(CodeHbA1c, "Hemoglobin A1c/Hemoglobin.total in Blood", in.HbA1c, "%"))
	}
	if in.TotalCholesterol != nil {
		out = append(out, lab(CodeTotalCholesterol, "Cholesterol [Mass/volume] in Serum or Plasma", in.TotalCholesterol, "mg/dL"))
	}
	if in.HDL != nil {
		out = append(out, lab(CodeHDL, "HDL Cholesterol [Mass/volume] in Serum or Plasma", in.HDL, "mg/dL"))
	}
	if in.LDL != nil {
		out = append(out, lab(CodeLDL, "LDL Cholesterol [Mass/volume] in Serum or Plasma by calculation", in.LDL, "mg/dL"))
	}
	if in.Triglycerides != nil {
		out = append(out, lab(CodeTriglycerides, "Triglyceride [Mass/volume] in Serum or Plasma", in.Triglycerides, "mg/dL"))
	}
	if in.Hemoglobin != nil {
		out = append(out, lab(CodeHemoglobin, "Hemoglobin [Mass/volume] in Blood", in.Hemoglobin, "g/dL"))
	}
	if in.WBC != nil {
		out = append(out, lab(CodeWBC, "Leukocytes [#/volume] in Blood by Automated count", in.WBC, "10*3/uL"))
	}
	return out
}

func imagingObservation(in *ImagingResult, now time.Time) *fhir.Observation {
	d := draft{patientID: in.PatientID, effective: effectiveAt(in.CollectedAt, now)}
	code, display := in.LoincCode, in.ImagingType
	if code == "" {
		code = CodeImagingDefault
	}
	if display == "" {
		display = "Radiology Study Observation"
	}
	return d.text(fhirmodels.ObsCategoryImaging, fhirmodels.SystemLOINC, code, display, in.ResultSummary)
}

func providerObservations(in *ProviderReported, now time.Time) []*fhir.Observation {
	d := draft{patientID: in.PatientID, effective: effectiveAt(in.CollectedAt, now)}
	if in.ProviderID != "" {
		d.performer = []fhir.Reference{{Reference: fhir.TypePractitioner + "/" + in.ProviderID}}
	}

	var out []*fhir.Observation
	if in.PHQ9Score != nil {
		out = append(out, d.quantity(fhirmodels.ObsCategorySurvey, fhirmodels.SystemLOINC,
			CodePHQ9, "PHQ-9 total score", float64(*in.PHQ9Score), "score", "{score}"))
	}
	texts := []struct {
		value, category, system, code, display string
	}{
		{in.StressLevel, fhirmodels.ObsCategorySurvey, fhirmodels.SystemCustomObservation, CustomStressLevel, "Stress level"},
		{in.PhysicalExamFinding, fhirmodels.ObsCategoryExam, fhirmodels.SystemCustomObservation, CustomLungSounds, "Lung sounds"},
		{in.SmokingStatus, fhirmodels.ObsCategorySocialHistory, fhirmodels.SystemLOINC, CodeSmoking, "Tobacco smoking status"},
		{in.AlcoholUse, fhirmodels.ObsCategorySocialHistory, fhirmodels.SystemLOINC, CodeAlcoholUse, "Alcohol use"},
		{in.Occupation, fhirmodels.ObsCategorySocialHistory, fhirmodels.SystemLOINC, CodeOccupation, "Occupation"},
		{in.ExerciseFrequency, fhirmodels.ObsCategoryLifestyle, fhirmodels.SystemCustomObservation, CustomExerciseFrequency, "Exercise frequency"},
		{in.DietHabits, fhirmodels.ObsCategoryLifestyle, fhirmodels.SystemCustomObservation, CustomDietHabits, "Diet habits"},
	}
	for _, t := range texts {
		if t.value != "" {
			out = append(out, d.text(t.category, t.system, t.code, t.display, t.value))
		}
	}
	return out
}
