package observation

import "time"

// WearableVitals is one reading pushed by a wearable device. Absent measures
// are nil and produce no observation.
type WearableVitals struct {
	PatientID                string     `json:"patient_id"`
	DeviceID                 string     `json:"device_id"`
	HeartRate                *float64   `json:"heart_rate,omitempty"`
	Systolic                 *float64   `json:"systolic,omitempty"`
	Diastolic                *float64   `json:"diastolic,omitempty"`
	SpO2                     *float64   `json:"spo2,omitempty"`
	Temperature              *float64   `json:"temperature,omitempty"`
	Steps                    *float64   `json:"steps,omitempty"`
	RespiratoryRate          *float64   `json:"respiratory_rate,omitempty"`
	BloodGlucose             *float64   `json:"blood_glucose,omitempty"`
	CaloriesBurned           *float64   `json:"calories_burned,omitempty"`
	HeartRateVariability     *float64   `json:"heart_rate_variability,omitempty"`
	VO2Max                   *float64   `json:"vo2_max,omitempty"`
	SkinTemperature          *float64   `json:"skin_temperature,omitempty"`
	SleepDuration            *float64   `json:"sleep_duration,omitempty"`
	SleepRestlessnessIndex   *float64   `json:"sleep_restlessness_index,omitempty"`
	StressLevel              string     `json:"stress_level,omitempty"`
	StepsGoalCompletion      *float64   `json:"steps_goal_completion,omitempty"`
	OxygenDesaturationEvents *int       `json:"oxygen_desaturation_events,omitempty"`
	CollectedAt              *time.Time `json:"collected_at,omitempty"`
}

// LabResults is a general laboratory panel.
type LabResults struct {
	PatientID        string     `json:"patient_id"`
	HbA1c            *float64   `json:"hba1c,omitempty"`
	TotalCholesterol *float64   `json:"total_cholesterol,omitempty"`
	HDL              *float64   `json:"hdl,omitempty"`
	LDL              *float64   `json:"ldl,omitempty"`
	Triglycerides    *float64   `json:"triglycerides,omitempty"`
	Hemoglobin       *float64   `json:"hemoglobin,omitempty"`
	WBC              *float64   `json:"wbc,omitempty"`
	CollectedAt      *time.Time `json:"collected_at,omitempty"`
}

// ImagingResult is the narrative summary of one imaging study.
type ImagingResult struct {
	PatientID     string     `json:"patient_id"`
	ImagingType   string     `json:"imaging_type,omitempty"`
	LoincCode     string     `json:"loinc_code,omitempty"`
	ResultSummary string     `json:"result_summary"`
	CollectedAt   *time.Time `json:"collected_at,omitempty"`
}

// ProviderReported holds the findings a clinician records during a visit.
type ProviderReported struct {
	PatientID           string     `json:"patient_id"`
	ProviderID          string     `json:"provider_id,omitempty"`
	PHQ9Score           *int       `json:"phq9_score,omitempty"`
	StressLevel         string     `json:"stress_level,omitempty"`
	PhysicalExamFinding string     `json:"physical_exam_finding,omitempty"`
	SmokingStatus       string     `json:"smoking_status,omitempty"`
	AlcoholUse          string     `json:"alcohol_use,omitempty"`
	Occupation          string     `json:"occupation,omitempty"`
	ExerciseFrequency   string     `json:"exercise_frequency,omitempty"`
	DietHabits          string     `json:"diet_habits,omitempty"`
	CollectedAt         *time.Time `json:"collected_at,omitempty"`
}

// IngestResult reports what an ingest call wrote.
type IngestResult struct {
	PatientID string   `json:"patient_id"`
	Created   int      `json:"created"`
	IDs       []string `json:"ids"`
}

// Summary is the flattened view of a stored observation.
type Summary struct {
	ID           string             `json:"id"`
	Code         string             `json:"code"`
	Display      string             `json:"display"`
	System       string             `json:"system"`
	Categories   []string           `json:"categories"`
	Value        string             `json:"value"`
	NumericValue *float64           `json:"numeric_value,omitempty"`
	Unit         string             `json:"unit,omitempty"`
	Components   map[string]float64 `json:"components,omitempty"`
	StatusCode   string             `json:"status_code,omitempty"`
	CapturedBy   string             `json:"captured_by"`
	EffectiveAt  *time.Time         `json:"effective_at,omitempty"`
}

func (s Summary) hasCategory(code string) bool {
	for _, c := range s.Categories {
		if c == code {
			return true
		}
	}
	return false
}

// TrendPoint is one sample of a vital trend.
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Trend is the time-ordered series of one vital type.
type Trend struct {
	Type   string       `json:"type"`
	Code   string       `json:"code"`
	Unit   string       `json:"unit,omitempty"`
	Points []TrendPoint `json:"points"`
}

// LabResultsView groups a patient's laboratory and imaging observations.
type LabResultsView struct {
	GeneralLabs    []Summary `json:"general_labs"`
	ImagingResults []Summary `json:"imaging_results"`
}
