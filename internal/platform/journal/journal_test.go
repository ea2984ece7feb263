package journal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type fakeRemote struct {
	failDelete bool
}

func (f *fakeRemote) Create(_ context.Context, _ string, _ any) (string, error) {
	return "new-id", nil
}

func (f *fakeRemote) Update(_ context.Context, _, id string, _ any) (string, error) {
	return id, nil
}

func (f *fakeRemote) Delete(_ context.Context, _, _ string) error {
	if f.failDelete {
		return errors.New("remote said no")
	}
	return nil
}

func (f *fakeRemote) Search(_ context.Context, _ string, _ url.Values) ([]json.RawMessage, error) {
	return nil, nil
}

func (f *fakeRemote) SearchPage(_ context.Context, _ string, _ url.Values) ([]json.RawMessage, error) {
	return nil, nil
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, *Entry) error { return errors.New("db down") }

func TestRecordingRemote_RecordsEveryMutation(t *testing.T) {
	store := NewMemoryStore(0)
	r := NewRecordingRemote(&fakeRemote{failDelete: true}, store, zerolog.Nop())

	ctx, batchID := WithBatch(context.Background(), "p1")

	if _, err := r.Create(ctx, "Observation", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Update(ctx, "Observation", "o1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Delete(ctx, "Observation", "o2"); err == nil {
		t.Fatal("expected delete error to pass through")
	}
	if _, err := r.Search(ctx, "Observation", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, total, err := store.ListByPatient(context.Background(), "p1", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 entries (search is not journaled), got %d", total)
	}

	byOp := map[Operation]*Entry{}
	for _, e := range entries {
		if e.BatchID != batchID {
			t.Errorf("expected batch %s, got %s", batchID, e.BatchID)
		}
		byOp[e.Operation] = e
	}
	if byOp[OpCreate].ResourceID != "new-id" || !byOp[OpCreate].Succeeded {
		t.Errorf("unexpected create entry: %+v", byOp[OpCreate])
	}
	if byOp[OpDelete].Succeeded || byOp[OpDelete].Error != "remote said no" {
		t.Errorf("unexpected delete entry: %+v", byOp[OpDelete])
	}
}

func TestRecordingRemote_RecorderFailureDoesNotFailCall(t *testing.T) {
	r := NewRecordingRemote(&fakeRemote{}, failingRecorder{}, zerolog.Nop())
	id, err := r.Create(context.Background(), "Condition", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "new-id" {
		t.Errorf("expected new-id, got %s", id)
	}
}

func TestWithPatient_KeepsBatch(t *testing.T) {
	ctx, batchID := WithBatch(context.Background(), "")
	ctx = WithPatient(ctx, "p9")

	gotBatch, gotPatient := BatchFromContext(ctx)
	if gotBatch != batchID {
		t.Errorf("expected batch to be kept")
	}
	if gotPatient != "p9" {
		t.Errorf("expected p9, got %s", gotPatient)
	}
}

func TestMemoryStore_ListNewestFirstAndPaged(t *testing.T) {
	store := NewMemoryStore(0)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		store.Record(context.Background(), &Entry{
			PatientID:    "p1",
			ResourceType: "Observation",
			ResourceID:   string(rune('a' + i)),
			RecordedAt:   base.Add(time.Duration(i) * time.Minute),
		})
	}
	store.Record(context.Background(), &Entry{PatientID: "other", RecordedAt: base})

	page, total, _ := store.ListByPatient(context.Background(), "p1", 2, 1)
	if total != 5 {
		t.Fatalf("expected 5, got %d", total)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(page))
	}
	if page[0].ResourceID != "d" || page[1].ResourceID != "c" {
		t.Errorf("expected d,c got %s,%s", page[0].ResourceID, page[1].ResourceID)
	}

	empty, _, _ := store.ListByPatient(context.Background(), "p1", 2, 10)
	if len(empty) != 0 {
		t.Errorf("expected empty page past the end, got %d", len(empty))
	}
}

func TestMemoryStore_BoundedSize(t *testing.T) {
	store := NewMemoryStore(2)
	for i := 0; i < 4; i++ {
		store.Record(context.Background(), &Entry{PatientID: "p1"})
	}
	_, total, _ := store.ListByPatient(context.Background(), "p1", 10, 0)
	if total != 2 {
		t.Errorf("expected 2 retained entries, got %d", total)
	}
}

func TestHandler_ListByPatient(t *testing.T) {
	store := NewMemoryStore(0)
	store.Record(context.Background(), &Entry{ID: uuid.New(), PatientID: "p1", Operation: OpCreate})
	h := NewHandler(store)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?_count=10", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("p1")

	if err := h.ListByPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Total int      `json:"total"`
		Data  []*Entry `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || len(body.Data) != 1 {
		t.Errorf("expected one entry, got total=%d len=%d", body.Total, len(body.Data))
	}
}

func TestRecordingRemote_AttributesNewPatient(t *testing.T) {
	store := NewMemoryStore(0)
	r := NewRecordingRemote(&fakeRemote{}, store, zerolog.Nop())

	ctx, _ := WithBatch(context.Background(), "")
	if _, err := r.Create(ctx, "Patient", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, total, _ := store.ListByPatient(context.Background(), "new-id", 10, 0)
	if total != 1 || entries[0].ResourceType != "Patient" {
		t.Fatalf("expected patient create under its new id, got %d entries", total)
	}
}
