package observation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/vhealth/integration/internal/platform/apperr"
	"github.com/vhealth/integration/internal/platform/fhir"
	"github.com/vhealth/integration/internal/platform/journal"
	"github.com/vhealth/integration/pkg/fhirmodels"
)

const (
	currentObservationCount = "100"
	trendObservationCount   = "200"
	defaultTrendDays        = 7
	maxTrendDays            = 90
)

// Remote is the part of the FHIR store the observation paths use.
type Remote interface {
	Create(ctx context.Context, resourceType string, payload any) (string, error)
	Search(ctx context.Context, resourceType string, query url.Values) ([]json.RawMessage, error)
	SearchPage(ctx context.Context, resourceType string, query url.Values) ([]json.RawMessage, error)
}

type searchFunc func(ctx context.Context, resourceType string, query url.Values) ([]json.RawMessage, error)

type Service struct {
	remote Remote
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(remote Remote, logger zerolog.Logger) *Service {
	return &Service{
		remote: remote,
		logger: logger.With().Str("component", "observations").Logger(),
		now:    time.Now,
	}
}

func (s *Service) IngestWearable(ctx context.Context, in *WearableVitals) (*IngestResult, error) {
	if in.PatientID == "" {
		return nil, apperr.Validation("patient_id", "patient id is required")
	}
	if in.DeviceID == "" {
		return nil, apperr.Validation("device_id", "device id is required")
	}
	return s.ingest(ctx, in.PatientID, "wearable", wearableObservations(in, s.now()))
}

func (s *Service) IngestLabResults(ctx context.Context, in *LabResults) (*IngestResult, error) {
	if in.PatientID == "" {
		return nil, apperr.Validation("patient_id", "patient id is required")
	}
	return s.ingest(ctx, in.PatientID, "laboratory", labObservations(in, s.now()))
}

func (s *Service) IngestImaging(ctx context.Context, in *ImagingResult) (*IngestResult, error) {
	if in.PatientID == "" {
		return nil, apperr.Validation("patient_id", "patient id is required")
	}
	if in.ResultSummary == "" {
		return nil, apperr.Validation("result_summary", "result summary is required")
	}
	return s.ingest(ctx, in.PatientID, "imaging", []*fhir.Observation{imagingObservation(in, s.now())})
}

func (s *Service) IngestProviderReported(ctx context.Context, in *ProviderReported) (*IngestResult, error) {
	if in.PatientID == "" {
		return nil, apperr.Validation("patient_id", "patient id is required")
	}
	return s.ingest(ctx, in.PatientID, "provider-reported", providerObservations(in, s.now()))
}

// ingest creates the observations one at a time and stops at the first
// failure. The returned result counts what was written before it.
func (s *Service) ingest(ctx context.Context, patientID, source string, observations []*fhir.Observation) (*IngestResult, error) {
	ctx, batch := journal.WithBatch(ctx, patientID)
	result := &IngestResult{PatientID: patientID, IDs: []string{}}
	for _, obs := range observations {
		id, err := s.remote.Create(ctx, fhir.TypeObservation, obs)
		if err != nil {
			s.logger.Error().Err(err).
				Str("patient_id", patientID).
				Str("source", source).
				Int("created", result.Created).
				Msg("observation ingest aborted")
			return result, fmt.Errorf("create %s observation %s: %w", source, obs.Code.FirstCoding().Code, err)
		}
		result.IDs = append(result.IDs, id)
		result.Created++
	}
	s.logger.Info().
		Str("patient_id", patientID).
		Str("source", source).
		Str("batch_id", batch.String()).
		Int("created", result.Created).
		Msg("observations ingested")
	return result, nil
}

// CurrentObservations returns the latest observation per code.
func (s *Service) CurrentObservations(ctx context.Context, patientID string) ([]Summary, error) {
	if patientID == "" {
		return nil, apperr.Validation("patient_id", "patient id is required")
	}
	observations, err := s.search(ctx, s.remote.SearchPage, url.Values{
		"subject": {fhir.TypePatient + "/" + patientID},
		"_sort":   {"-date"},
		"_count":  {currentObservationCount},
	})
	if err != nil {
		return nil, err
	}

	latest := make(map[string]int)
	var out []Summary
	for i := range observations {
		sum := summarize(&observations[i], patientID)
		if sum.Code == "" {
			continue
		}
		idx, seen := latest[sum.Code]
		if !seen {
			latest[sum.Code] = len(out)
			out = append(out, sum)
			continue
		}
		if later(sum.EffectiveAt, out[idx].EffectiveAt) {
			out[idx] = sum
		}
	}
	if out == nil {
		out = []Summary{}
	}
	return out, nil
}

// VitalsTrend returns the vital series recorded over the last days days,
// one Trend per vital type sorted by type name.
func (s *Service) VitalsTrend(ctx context.Context, patientID string, days int) ([]Trend, error) {
	if patientID == "" {
		return nil, apperr.Validation("patient_id", "patient id is required")
	}
	if days <= 0 {
		days = defaultTrendDays
	}
	if days > maxTrendDays {
		return nil, apperr.Validation("days", fmt.Sprintf("must be at most %d", maxTrendDays))
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	observations, err := s.search(ctx, s.remote.Search, url.Values{
		"subject": {fhir.TypePatient + "/" + patientID},
		"date":    {"ge" + since.Format(time.RFC3339)},
		"_count":  {trendObservationCount},
	})
	if err != nil {
		return nil, err
	}

	series := make(map[string]*Trend)
	add := func(kind trendKind, at time.Time, q *fhir.Quantity) {
		if q == nil || q.Value == nil {
			return
		}
		t, ok := series[kind.name]
		if !ok {
			t = &Trend{Type: kind.name, Code: kind.code, Unit: q.Unit, Points: []TrendPoint{}}
			series[kind.name] = t
		}
		t.Points = append(t.Points, TrendPoint{Timestamp: at, Value: *q.Value})
	}

	for i := range observations {
		o := &observations[i]
		if !o.EffectiveDateTime.IsSet() {
			continue
		}
		code := o.Code.FirstCoding().Code
		if code == CodeBloodPressurePanel {
			for j := range o.Component {
				c := &o.Component[j]
				if kind, ok := trendKinds[c.Code.FirstCoding().Code]; ok {
					add(kind, o.EffectiveDateTime.Time, c.ValueQuantity)
				}
			}
			continue
		}
		if kind, ok := trendKinds[code]; ok {
			add(kind, o.EffectiveDateTime.Time, o.ValueQuantity)
		}
	}

	out := make([]Trend, 0, len(series))
	for _, t := range series {
		sort.Slice(t.Points, func(i, j int) bool { return t.Points[i].Timestamp.Before(t.Points[j].Timestamp) })
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

type trendKind struct {
	name string
	code string
}

var trendKinds = map[string]trendKind{
	CodeHeartRate:       {"HeartRate", CodeHeartRate},
	CodeSystolic:        {"SystolicBP", CodeSystolic},
	CodeDiastolic:       {"DiastolicBP", CodeDiastolic},
	CodeSpO2:            {"SpO2", CodeSpO2},
	CodeBodyTemperature: {"Temperature", CodeBodyTemperature},
	CodeSteps:           {"Steps", CodeSteps},
	CodeRespiratoryRate: {"RespiratoryRate", CodeRespiratoryRate},
	CodeBloodGlucose:    {"BloodGlucose", CodeBloodGlucose},
	CodeHRV:             {"HeartRateVariability", CodeHRV},
	CodeVO2Max:          {"Vo2Max", CodeVO2Max},
	CodeSleepDuration:   {"SleepDuration", CodeSleepDuration},
}

// LabResults returns the patient's laboratory and imaging observations,
// newest first.
func (s *Service) LabResults(ctx context.Context, patientID string) (*LabResultsView, error) {
	if patientID == "" {
		return nil, apperr.Validation("patient_id", "patient id is required")
	}
	view := &LabResultsView{GeneralLabs: []Summary{}, ImagingResults: []Summary{}}
	for _, cat := range []string{fhirmodels.ObsCategoryLaboratory, fhirmodels.ObsCategoryImaging} {
		observations, err := s.search(ctx, s.remote.SearchPage, url.Values{
			"subject":  {fhir.TypePatient + "/" + patientID},
			"category": {cat},
			"_sort":    {"-date"},
			"_count":   {currentObservationCount},
		})
		if err != nil {
			return nil, err
		}
		for i := range observations {
			sum := summarize(&observations[i], patientID)
			if cat == fhirmodels.ObsCategoryLaboratory {
				view.GeneralLabs = append(view.GeneralLabs, sum)
			} else {
				view.ImagingResults = append(view.ImagingResults, sum)
			}
		}
	}
	return view, nil
}

// search decodes the observations returned by find. Latest-first views read
// a single page; windowed reads need every page.
func (s *Service) search(ctx context.Context, find searchFunc, query url.Values) ([]fhir.Observation, error) {
	raw, err := find(ctx, fhir.TypeObservation, query)
	if err != nil {
		return nil, fmt.Errorf("search observations: %w", err)
	}
	observations, err := fhir.DecodeAll[fhir.Observation](raw)
	if err != nil {
		return nil, &apperr.DeserializationError{Resource: fhir.TypeObservation, Err: err}
	}
	return observations, nil
}

func later(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}

// summarize flattens an observation. CapturedBy names the device, else the
// performer, else lab/{patient} for laboratory and imaging results and
// self/{patient} for anything else.
func summarize(o *fhir.Observation, patientID string) Summary {
	coding := o.Code.FirstCoding()
	sum := Summary{
		ID:         o.ID,
		Code:       coding.Code,
		Display:    coding.Display,
		System:     coding.System,
		Categories: []string{},
	}
	if o.EffectiveDateTime.IsSet() {
		at := o.EffectiveDateTime.Time
		sum.EffectiveAt = &at
	}
	if sum.Display == "" {
		sum.Display = o.Code.Text
	}
	for i := range o.Category {
		if c := o.Category[i].FirstCoding().Code; c != "" {
			sum.Categories = append(sum.Categories, c)
		}
	}

	switch {
	case o.ValueQuantity != nil && o.ValueQuantity.Value != nil:
		v := *o.ValueQuantity.Value
		sum.NumericValue = &v
		sum.Unit = o.ValueQuantity.Unit
		sum.Value = strconv.FormatFloat(v, 'f', -1, 64)
		if sum.Unit != "" {
			sum.Value += " " + sum.Unit
		}
	case o.ValueCodeableConcept != nil:
		c := o.ValueCodeableConcept.FirstCoding()
		sum.Value = c.Display
		sum.StatusCode = c.Code
	case o.ValueString != nil:
		sum.Value = *o.ValueString
	case o.ValueInteger != nil:
		v := float64(*o.ValueInteger)
		sum.NumericValue = &v
		sum.Value = strconv.Itoa(*o.ValueInteger)
	case len(o.Component) > 0:
		sum.Value = componentValue(o.Component)
		sum.Components = make(map[string]float64, len(o.Component))
		for i := range o.Component {
			c := &o.Component[i]
			if c.ValueQuantity != nil && c.ValueQuantity.Value != nil {
				sum.Components[c.Code.FirstCoding().Code] = *c.ValueQuantity.Value
			}
		}
	}

	switch {
	case o.Device != nil && o.Device.Reference != "":
		sum.CapturedBy = o.Device.Reference
	case len(o.Performer) > 0 && o.Performer[0].Reference != "":
		sum.CapturedBy = o.Performer[0].Reference
	case sum.hasCategory(fhirmodels.ObsCategoryLaboratory) || sum.hasCategory(fhirmodels.ObsCategoryImaging):
		sum.CapturedBy = "lab/" + patientID
	default:
		sum.CapturedBy = "self/" + patientID
	}
	return sum
}

// componentValue renders a panel such as blood pressure as "120/80 mmHg".
func componentValue(components []fhir.ObservationComponent) string {
	var value, unit string
	for i := range components {
		q := components[i].ValueQuantity
		if q == nil || q.Value == nil {
			continue
		}
		if value != "" {
			value += "/"
		}
		value += strconv.FormatFloat(*q.Value, 'f', -1, 64)
		unit = q.Unit
	}
	if value != "" && unit != "" {
		value += " " + unit
	}
	return value
}
