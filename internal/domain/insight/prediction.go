package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vhealth/integration/internal/domain/observation"
	"github.com/vhealth/integration/internal/platform/apperr"
)

// HealthMetrics is the feature vector the prediction service scores. Missing
// measurements are sent as zero.
type HealthMetrics struct {
	FastingGlucose int     `json:"fastingGlucose"`
	Cholesterol    int     `json:"cholesterol"`
	HbA1c          float64 `json:"hba1c"`
	HDL            int     `json:"hdl"`
	LDL            int     `json:"ldl"`
	Triglycerides  int     `json:"triglycerides"`
	Hemoglobin     float64 `json:"hemoglobin"`
	WBCCount       int     `json:"wbcCount"`
	Smoking        int     `json:"smoking"`
	Pulse          int     `json:"pulse"`
	SystolicBP     int     `json:"systolicBp"`
	DiastolicBP    int     `json:"diastolicBp"`
	SpO2           int     `json:"spo2"`
	BodyTemp       float64 `json:"bodyTemp"`
	CaloriesBurned int     `json:"caloriesBurned"`
	Steps          int     `json:"steps"`
	StressLevel    int     `json:"stressLevel"`
	HRV            int     `json:"hrv"`
}

// MetricsFromObservations fills HealthMetrics from the latest observation
// per code.
func MetricsFromObservations(list []observation.Summary) HealthMetrics {
	var m HealthMetrics
	for _, s := range list {
		num := 0.0
		if s.NumericValue != nil {
			num = *s.NumericValue
		}
		switch s.Code {
		case observation.CodeBloodGlucose:
			m.FastingGlucose = round(num)
		case observation.CodeTotalCholesterol:
			m.Cholesterol = round(num)
		case observation.CodeHbA1c:
			m.HbA1c = num
		case observation.CodeHDL:
			m.HDL = round(num)
		case observation.CodeLDL:
			m.LDL = round(num)
		case observation.CodeTriglycerides:
			m.Triglycerides = round(num)
		case observation.CodeHemoglobin:
			m.Hemoglobin = num
		case observation.CodeWBC:
			m.WBCCount = round(num)
		case observation.CodeHeartRate:
			m.Pulse = round(num)
		case observation.CodeBloodPressurePanel:
			m.SystolicBP = round(s.Components[observation.CodeSystolic])
			m.DiastolicBP = round(s.Components[observation.CodeDiastolic])
		case observation.CodeSpO2:
			m.SpO2 = round(num)
		case observation.CodeBodyTemperature:
			m.BodyTemp = num
		case observation.CodeCaloriesBurned:
			m.CaloriesBurned = round(num)
		case observation.CodeSteps:
			m.Steps = round(num)
		case observation.CodeHRV:
			m.HRV = round(num)
		case observation.CodeSmoking:
			m.Smoking = smokingFlag(s.Value)
		case observation.CustomStressLevel:
			m.StressLevel = stressScore(s.Value)
		}
	}
	return m
}

func round(v float64) int {
	return int(math.Round(v))
}

func smokingFlag(status string) int {
	s := strings.ToLower(status)
	for _, neg := range []string{"never", "non", "former", "ex-", "quit"} {
		if strings.Contains(s, neg) {
			return 0
		}
	}
	if strings.Contains(s, "smok") || strings.Contains(s, "current") {
		return 1
	}
	return 0
}

func stressScore(level string) int {
	s := strings.ToLower(strings.TrimSpace(level))
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	switch {
	case strings.Contains(s, "low"):
		return 1
	case strings.Contains(s, "moderate"), strings.Contains(s, "medium"):
		return 2
	case strings.Contains(s, "high"):
		return 3
	default:
		return 0
	}
}

// PredictionClient calls the external risk model.
type PredictionClient struct {
	baseURL string
	client  *http.Client
}

func NewPredictionClient(baseURL string, client *http.Client) *PredictionClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &PredictionClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Predict posts m to {baseURL}/predict and returns the service's JSON reply
// unchanged.
func (p *PredictionClient) Predict(ctx context.Context, m HealthMetrics) (json.RawMessage, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out, err := postJSON(ctx, p.client, p.baseURL+"/predict", "predict", body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(out) {
		return nil, &apperr.DeserializationError{Resource: "predict", Err: fmt.Errorf("response is not JSON")}
	}
	return out, nil
}
