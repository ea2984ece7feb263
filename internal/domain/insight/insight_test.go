package insight

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhealth/integration/internal/domain/observation"
	"github.com/vhealth/integration/internal/platform/apperr"
)

type fakeObservations struct {
	current   []observation.Summary
	trends    []observation.Trend
	err       error
	trendDays int
}

func (f *fakeObservations) CurrentObservations(_ context.Context, _ string) ([]observation.Summary, error) {
	return f.current, f.err
}

func (f *fakeObservations) VitalsTrend(_ context.Context, _ string, days int) ([]observation.Trend, error) {
	f.trendDays = days
	return f.trends, f.err
}

type fakeGenerator struct {
	prompt string
	out    string
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.out, f.err
}

type fakePredictor struct {
	got HealthMetrics
}

func (f *fakePredictor) Predict(_ context.Context, m HealthMetrics) (json.RawMessage, error) {
	f.got = m
	return json.RawMessage(`{"risk":"low"}`), nil
}

func num(v float64) *float64 { return &v }

func TestPrime_KnownQuestionIsCaseInsensitive(t *testing.T) {
	lib := NewPromptLibrary(nil)

	prompt, known := lib.Prime("  how is my BLOOD pressure trend? ", map[string]string{
		"bp-sys-readings": "120, 130",
		"age":             "44",
	})

	assert.True(t, known)
	assert.Contains(t, prompt, "[120, 130]")
	assert.Contains(t, prompt, "User is 44 years old")
	assert.Contains(t, prompt, "[not available]")
	assert.NotContains(t, prompt, "{")
}

func TestPrime_UnknownQuestionFallsBack(t *testing.T) {
	lib := NewPromptLibrary(nil)

	prompt, known := lib.Prime("Is coffee bad for me?", nil)

	assert.False(t, known)
	assert.Contains(t, prompt, `The user asked: "Is coffee bad for me?"`)
}

func TestPrime_EmptyQuestion(t *testing.T) {
	prompt, known := NewPromptLibrary(nil).Prime("   ", nil)
	assert.Empty(t, prompt)
	assert.False(t, known)
}

func TestPromptLibrary_KeysSorted(t *testing.T) {
	lib := NewPromptLibrary(map[string]string{"b": "x", "a": "y"})
	assert.Equal(t, []string{"a", "b"}, lib.Keys())
	assert.Len(t, NewPromptLibrary(nil).Keys(), 5)
}

func TestMetricsFromObservations(t *testing.T) {
	list := []observation.Summary{
		{Code: observation.CodeHeartRate, NumericValue: num(71.6)},
		{Code: observation.CodeBloodPressurePanel, Components: map[string]float64{
			observation.CodeSystolic:  128,
			observation.CodeDiastolic: 84,
		}},
		{Code: observation.CodeHbA1c, NumericValue: num(5.9)},
		{Code: observation.CodeBodyTemperature, NumericValue: num(98.4)},
		{Code: observation.CodeSmoking, Value: "Current every day smoker"},
		{Code: observation.CustomStressLevel, Value: "High"},
		{Code: observation.CodeSteps, NumericValue: num(8400)},
	}

	m := MetricsFromObservations(list)

	assert.Equal(t, 72, m.Pulse)
	assert.Equal(t, 128, m.SystolicBP)
	assert.Equal(t, 84, m.DiastolicBP)
	assert.InDelta(t, 5.9, m.HbA1c, 1e-9)
	assert.InDelta(t, 98.4, m.BodyTemp, 1e-9)
	assert.Equal(t, 1, m.Smoking)
	assert.Equal(t, 3, m.StressLevel)
	assert.Equal(t, 8400, m.Steps)
	assert.Zero(t, m.Cholesterol)
}

func TestSmokingFlag(t *testing.T) {
	assert.Equal(t, 0, smokingFlag("Never smoker"))
	assert.Equal(t, 0, smokingFlag("Former smoker"))
	assert.Equal(t, 1, smokingFlag("Smokes daily"))
	assert.Equal(t, 0, smokingFlag(""))
}

func TestService_Predict(t *testing.T) {
	obs := &fakeObservations{current: []observation.Summary{{Code: observation.CodeSpO2, NumericValue: num(97)}}}
	pred := &fakePredictor{}
	svc := NewService(obs, pred, nil, nil, zerolog.Nop())

	out, err := svc.Predict(context.Background(), "p1")

	require.NoError(t, err)
	assert.JSONEq(t, `{"risk":"low"}`, string(out))
	assert.Equal(t, 97, pred.got.SpO2)
}

func TestService_PredictValidation(t *testing.T) {
	svc := NewService(&fakeObservations{}, nil, nil, nil, zerolog.Nop())

	_, err := svc.Predict(context.Background(), "p1")
	var ve *apperr.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = svc.Predict(context.Background(), "")
	assert.ErrorAs(t, err, &ve)
}

func TestService_InsightUsesTrendsAndContext(t *testing.T) {
	obs := &fakeObservations{trends: []observation.Trend{
		{Code: observation.CodeSystolic, Points: []observation.TrendPoint{{Value: 121}, {Value: 135}}},
		{Code: observation.CodeDiastolic, Points: []observation.TrendPoint{{Value: 80}}},
	}}
	gen := &fakeGenerator{out: "<div>ok</div>"}
	svc := NewService(obs, nil, gen, nil, zerolog.Nop())

	resp, err := svc.Insight(context.Background(), &Request{
		PromptKey: "How is my blood pressure trend?",
		PatientID: "p1",
		Context:   map[string]string{"Age": "52", "bp-dist-readings": "79"},
	})

	require.NoError(t, err)
	assert.True(t, resp.Primed)
	assert.Equal(t, "<div>ok</div>", resp.Insight)
	assert.Equal(t, trendWindowDays, obs.trendDays)
	assert.Contains(t, gen.prompt, "[121, 135]")
	assert.Contains(t, gen.prompt, "[79]")
	assert.Contains(t, gen.prompt, "52 years old")
}

func TestService_InsightErrors(t *testing.T) {
	svc := NewService(&fakeObservations{}, nil, &fakeGenerator{err: errors.New("boom")}, nil, zerolog.Nop())

	_, err := svc.Insight(context.Background(), &Request{})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = svc.Insight(context.Background(), &Request{PromptKey: "anything"})
	assert.EqualError(t, err, "generate insight: boom")

	noGen := NewService(&fakeObservations{}, nil, nil, nil, zerolog.Nop())
	_, err = noGen.Insight(context.Background(), &Request{PromptKey: "anything"})
	assert.ErrorAs(t, err, &ve)
}

func TestHTTPGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["prompt"])
		_, _ = io.WriteString(w, "<div>hi</div>")
	}))
	defer srv.Close()

	out, err := NewHTTPGenerator(srv.URL+"/", nil).Generate(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, "<div>hi</div>", out)
}

func TestHTTPGenerator_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPGenerator(srv.URL, nil).Generate(context.Background(), "hello")

	var rce *apperr.RemoteCallError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, http.StatusServiceUnavailable, rce.StatusCode)
	assert.Contains(t, rce.Diagnostics, "overloaded")
}

func TestPredictionClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		var m HealthMetrics
		require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		assert.Equal(t, 130, m.SystolicBP)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"diabetes":0.12}`)
	}))
	defer srv.Close()

	out, err := NewPredictionClient(srv.URL, &http.Client{Timeout: time.Second}).Predict(context.Background(), HealthMetrics{SystolicBP: 130})

	require.NoError(t, err)
	assert.JSONEq(t, `{"diabetes":0.12}`, string(out))
}

type fakeMessages struct {
	params anthropic.MessageNewParams
	msg    *anthropic.Message
	err    error
}

func (f *fakeMessages) New(_ context.Context, body anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.params = body
	return f.msg, f.err
}

func TestAnthropicGenerator(t *testing.T) {
	var msg anthropic.Message
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "m",
		"content": [{"type": "text", "text": "<div>rest well</div>"}],
		"stop_reason": "end_turn", "usage": {"input_tokens": 1, "output_tokens": 2}
	}`), &msg))
	fake := &fakeMessages{msg: &msg}
	gen := &AnthropicGenerator{messages: fake, model: "test-model", maxTokens: 256}

	out, err := gen.Generate(context.Background(), "sleep?")

	require.NoError(t, err)
	assert.Equal(t, "<div>rest well</div>", out)
	assert.Equal(t, anthropic.Model("test-model"), fake.params.Model)
	assert.Equal(t, int64(256), fake.params.MaxTokens)
	require.Len(t, fake.params.Messages, 1)
}

func TestAnthropicGenerator_Error(t *testing.T) {
	gen := &AnthropicGenerator{messages: &fakeMessages{err: errors.New("rate limited")}, model: "m", maxTokens: 1}

	_, err := gen.Generate(context.Background(), "x")

	var rce *apperr.RemoteCallError
	assert.ErrorAs(t, err, &rce)
}

func TestHandler_Routes(t *testing.T) {
	obs := &fakeObservations{}
	gen := &fakeGenerator{out: "<div>x</div>"}
	h := NewHandler(NewService(obs, &fakePredictor{}, gen, nil, zerolog.Nop()))
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/medplum"))

	req := httptest.NewRequest(http.MethodPost, "/api/medplum/insights", strings.NewReader(`{"promptKey":"Am I getting enough quality sleep?"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Primed)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/medplum/insights/prompts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "How many steps should I take daily?")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/medplum/health-prediction-by-observations/p1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"risk":"low"}`, rec.Body.String())
}

func TestHandler_InsightMissingKey(t *testing.T) {
	h := NewHandler(NewService(&fakeObservations{}, nil, &fakeGenerator{}, nil, zerolog.Nop()))
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, h.Insight(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "OperationOutcome")
}
