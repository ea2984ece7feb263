package journal

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/rs/zerolog"
)

// Remote is the FHIR store surface wrapped by RecordingRemote.
type Remote interface {
	Create(ctx context.Context, resourceType string, payload any) (string, error)
	Update(ctx context.Context, resourceType, id string, payload any) (string, error)
	Delete(ctx context.Context, resourceType, id string) error
	Search(ctx context.Context, resourceType string, query url.Values) ([]json.RawMessage, error)
	SearchPage(ctx context.Context, resourceType string, query url.Values) ([]json.RawMessage, error)
}

// RecordingRemote journals every mutation passed through to the wrapped
// Remote. A failure to write the journal is logged and never changes the
// result of the remote call.
type RecordingRemote struct {
	next   Remote
	rec    Recorder
	logger zerolog.Logger
}

func NewRecordingRemote(next Remote, rec Recorder, logger zerolog.Logger) *RecordingRemote {
	return &RecordingRemote{
		next:   next,
		rec:    rec,
		logger: logger.With().Str("component", "journal").Logger(),
	}
}

func (r *RecordingRemote) Create(ctx context.Context, resourceType string, payload any) (string, error) {
	id, err := r.next.Create(ctx, resourceType, payload)
	r.record(ctx, OpCreate, resourceType, id, err)
	return id, err
}

func (r *RecordingRemote) Update(ctx context.Context, resourceType, id string, payload any) (string, error) {
	newID, err := r.next.Update(ctx, resourceType, id, payload)
	r.record(ctx, OpUpdate, resourceType, id, err)
	return newID, err
}

func (r *RecordingRemote) Delete(ctx context.Context, resourceType, id string) error {
	err := r.next.Delete(ctx, resourceType, id)
	r.record(ctx, OpDelete, resourceType, id, err)
	return err
}

func (r *RecordingRemote) Search(ctx context.Context, resourceType string, query url.Values) ([]json.RawMessage, error) {
	return r.next.Search(ctx, resourceType, query)
}

func (r *RecordingRemote) SearchPage(ctx context.Context, resourceType string, query url.Values) ([]json.RawMessage, error) {
	return r.next.SearchPage(ctx, resourceType, query)
}

func (r *RecordingRemote) record(ctx context.Context, op Operation, resourceType, id string, callErr error) {
	batchID, patientID := BatchFromContext(ctx)
	if patientID == "" && op == OpCreate && resourceType == "Patient" {
		patientID = id
	}
	e := &Entry{
		BatchID:      batchID,
		PatientID:    patientID,
		ResourceType: resourceType,
		ResourceID:   id,
		Operation:    op,
		Succeeded:    callErr == nil,
	}
	if callErr != nil {
		e.Error = callErr.Error()
	}
	// The request context may already be past its deadline after a failed call.
	if err := r.rec.Record(context.WithoutCancel(ctx), e); err != nil {
		r.logger.Warn().Err(err).
			Str("resource", resourceType).
			Str("operation", string(op)).
			Msg("failed to record sync journal entry")
	}
}
