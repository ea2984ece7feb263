package observation

import (
	"context"
	"time"

	"github.com/vhealth/integration/internal/platform/apperr"
	"github.com/vhealth/integration/internal/platform/timeseries"
)

// Telemetry is the realtime datastore for wearable readings.
type Telemetry interface {
	WriteReading(ctx context.Context, r timeseries.Reading) error
	Recent(ctx context.Context, patientID string, window time.Duration) ([]timeseries.Sample, error)
}

const maxRealtimeWindow = 24 * time.Hour

// RealtimeService writes wearable readings to the telemetry store instead of
// the FHIR store.
type RealtimeService struct {
	store Telemetry
	now   func() time.Time
}

func NewRealtimeService(store Telemetry) *RealtimeService {
	return &RealtimeService{store: store, now: time.Now}
}

func (s *RealtimeService) Ingest(ctx context.Context, in *WearableVitals) (int, error) {
	if in.PatientID == "" {
		return 0, apperr.Validation("patient_id", "patient id is required")
	}
	fields := readingFields(in)
	if len(fields) == 0 {
		return 0, apperr.Validation("", "reading has no measures")
	}
	err := s.store.WriteReading(ctx, timeseries.Reading{
		PatientID: in.PatientID,
		DeviceID:  in.DeviceID,
		Time:      effectiveAt(in.CollectedAt, s.now()),
		Fields:    fields,
	})
	if err != nil {
		return 0, err
	}
	return len(fields), nil
}

func (s *RealtimeService) Recent(ctx context.Context, patientID string, window time.Duration) ([]timeseries.Sample, error) {
	if patientID == "" {
		return nil, apperr.Validation("patient_id", "patient id is required")
	}
	if window > maxRealtimeWindow {
		return nil, apperr.Validation("minutes", "window must be at most 24 hours")
	}
	return s.store.Recent(ctx, patientID, window)
}

func readingFields(in *WearableVitals) map[string]float64 {
	fields := make(map[string]float64)
	set := func(name string, v *float64) {
		if v != nil {
			fields[name] = *v
		}
	}
	set("heart_rate", in.HeartRate)
	set("systolic", in.Systolic)
	set("diastolic", in.Diastolic)
	set("spo2", in.SpO2)
	set("temperature", in.Temperature)
	set("skin_temperature", in.SkinTemperature)
	set("steps", in.Steps)
	set("respiratory_rate", in.RespiratoryRate)
	set("blood_glucose", in.BloodGlucose)
	set("calories_burned", in.CaloriesBurned)
	set("heart_rate_variability", in.HeartRateVariability)
	set("vo2_max", in.VO2Max)
	set("sleep_duration", in.SleepDuration)
	set("sleep_restlessness_index", in.SleepRestlessnessIndex)
	set("steps_goal_completion", in.StepsGoalCompletion)
	if in.OxygenDesaturationEvents != nil {
		fields["oxygen_desaturation_events"] = float64(*in.OxygenDesaturationEvents)
	}
	return fields
}
