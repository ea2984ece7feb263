package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type fakePool struct {
	err error
}

func (f *fakePool) Ping(context.Context) error { return f.err }

func (f *fakePool) Stat() *pgxpool.Stat { return nil }

func serveHealth(t *testing.T, h echo.HandlerFunc) (*httptest.ResponseRecorder, healthResponse) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec, body
}

func TestHealthHandler_MemoryJournal(t *testing.T) {
	rec, body := serveHealth(t, HealthHandler(nil))
	if rec.Code != http.StatusOK || body.Status != "memory" {
		t.Errorf("expected 200 memory, got %d %q", rec.Code, body.Status)
	}
}

func TestHealthHandler_Healthy(t *testing.T) {
	rec, body := serveHealth(t, healthHandler(&fakePool{}))
	if rec.Code != http.StatusOK || body.Status != "healthy" {
		t.Errorf("expected 200 healthy, got %d %q", rec.Code, body.Status)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	rec, body := serveHealth(t, healthHandler(&fakePool{err: errors.New("connection refused")}))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if body.Status != "unhealthy" || body.Error != "connection refused" {
		t.Errorf("unexpected body: %+v", body)
	}
}
