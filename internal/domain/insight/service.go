package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vhealth/integration/internal/domain/observation"
	"github.com/vhealth/integration/internal/platform/apperr"
)

// trendWindowDays is the history the primed prompts describe.
const trendWindowDays = 7

// ObservationSource is the part of the observation service insights read.
type ObservationSource interface {
	CurrentObservations(ctx context.Context, patientID string) ([]observation.Summary, error)
	VitalsTrend(ctx context.Context, patientID string, days int) ([]observation.Trend, error)
}

// Predictor scores a feature vector.
type Predictor interface {
	Predict(ctx context.Context, m HealthMetrics) (json.RawMessage, error)
}

// Request asks for an insight on one of the library questions. Context
// values override those derived from the patient's observations.
type Request struct {
	PromptKey string            `json:"promptKey"`
	PatientID string            `json:"patientId,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}

type Response struct {
	PromptKey string `json:"promptKey"`
	Primed    bool   `json:"primed"`
	Insight   string `json:"insight"`
}

type Service struct {
	observations ObservationSource
	predictor    Predictor
	generator    Generator
	prompts      *PromptLibrary
	logger       zerolog.Logger
}

// NewService builds the insight service. predictor or generator may be nil,
// in which case the matching operation reports a validation error.
func NewService(observations ObservationSource, predictor Predictor, generator Generator, prompts *PromptLibrary, logger zerolog.Logger) *Service {
	if prompts == nil {
		prompts = NewPromptLibrary(nil)
	}
	return &Service{
		observations: observations,
		predictor:    predictor,
		generator:    generator,
		prompts:      prompts,
		logger:       logger.With().Str("component", "insight").Logger(),
	}
}

func (s *Service) Prompts() []string {
	return s.prompts.Keys()
}

// Predict sends the patient's latest measurements to the prediction service.
func (s *Service) Predict(ctx context.Context, patientID string) (json.RawMessage, error) {
	if patientID == "" {
		return nil, apperr.Validation("patient_id", "patient id is required")
	}
	if s.predictor == nil {
		return nil, apperr.Validation("", "prediction service is not configured")
	}
	current, err := s.observations.CurrentObservations(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("read current observations: %w", err)
	}
	metrics := MetricsFromObservations(current)
	s.logger.Debug().Str("patient_id", patientID).Int("observations", len(current)).Msg("requesting prediction")
	return s.predictor.Predict(ctx, metrics)
}

// Insight primes the requested prompt and generates the answer.
func (s *Service) Insight(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || strings.TrimSpace(req.PromptKey) == "" {
		return nil, apperr.Validation("promptKey", "prompt key is required")
	}
	if s.generator == nil {
		return nil, apperr.Validation("", "insight generator is not configured")
	}

	vars := map[string]string{}
	if req.PatientID != "" {
		trends, err := s.observations.VitalsTrend(ctx, req.PatientID, trendWindowDays)
		if err != nil {
			return nil, fmt.Errorf("read vitals trend: %w", err)
		}
		vars = trendVars(trends)
	}
	for k, v := range req.Context {
		vars[strings.ToLower(strings.TrimSpace(k))] = v
	}

	prompt, known := s.prompts.Prime(req.PromptKey, vars)
	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate insight: %w", err)
	}
	s.logger.Info().Str("prompt_key", req.PromptKey).Bool("primed", known).Str("patient_id", req.PatientID).Msg("insight generated")
	return &Response{PromptKey: req.PromptKey, Primed: known, Insight: text}, nil
}

// trendVars fills the prompt placeholders that can be derived from vital
// trends.
func trendVars(trends []observation.Trend) map[string]string {
	vars := map[string]string{}
	for _, t := range trends {
		if len(t.Points) == 0 {
			continue
		}
		values := make([]float64, len(t.Points))
		for i, p := range t.Points {
			values[i] = p.Value
		}
		switch t.Code {
		case observation.CodeSystolic:
			vars["bp-sys-readings"] = joinValues(values)
		case observation.CodeDiastolic:
			vars["bp-dist-readings"] = joinValues(values)
		case observation.CodeSleepDuration:
			vars["sleep-duration-readings"] = joinValues(values)
		case observation.CodeSteps:
			vars["steps-readings"] = joinValues(values)
		case observation.CodeHeartRate:
			vars["resting-heart-rate-readings"] = joinValues(values)
			vars["resting-heart-rate"] = formatValue(mean(values))
			vars["max-heart-rate-readings"] = formatValue(maxOf(values))
		case observation.CodeHRV:
			vars["hrv-value"] = formatValue(mean(values))
			vars["stress-readings"] = joinValues(values)
		}
	}
	return vars
}

func joinValues(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, ", ")
}

func formatValue(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
