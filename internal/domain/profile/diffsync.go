package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/vhealth/integration/internal/platform/apperr"
)

// Remote is the FHIR store as seen by the synchronizer. Every method is one
// round trip and must report failure as an error rather than an empty
// result.
type Remote interface {
	Create(ctx context.Context, resourceType string, payload any) (string, error)
	Update(ctx context.Context, resourceType, id string, payload any) (string, error)
	Delete(ctx context.Context, resourceType, id string) error
	Search(ctx context.Context, resourceType string, query url.Values) ([]json.RawMessage, error)
}

// Stats counts what one reconcile call did.
type Stats struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
	Orphaned  int `json:"orphaned"`
}

// Engine applies the create/update/delete calls that make one remote
// collection match a submitted one.
type Engine struct {
	remote Remote
	logger zerolog.Logger
	now    func() time.Time
}

func NewEngine(remote Remote, logger zerolog.Logger) *Engine {
	return &Engine{
		remote: remote,
		logger: logger.With().Str("component", "diffsync").Logger(),
		now:    time.Now,
	}
}

// Reconcile makes the remote collection match current.
//
// Records in current without an id are created and receive the id assigned
// by the store. Records with an id are updated with their full
// representation when a tracked field differs from the previous record with
// the same id. Previous records whose id is absent from current are deleted.
// Updates run first, then creates, then deletes, one call at a time; the
// first failed call stops the reconcile and nothing already applied is
// undone.
func Reconcile[T tracked[T]](ctx context.Context, e *Engine, patientID string, current, previous []T) (Stats, error) {
	var stats Stats
	if patientID == "" {
		return stats, apperr.Validation("patient_id", "patient id is required to synchronise sub-records")
	}

	if len(current) == 0 && len(previous) == 0 {
		return stats, nil
	}

	// Kind never reads its receiver, so the zero value of a pointer type works.
	var zero T
	kind := zero.Kind()
	resourceType := kind.ResourceType()
	log := e.logger.With().Str("patient_id", patientID).Stringer("kind", kind).Logger()

	prevByID := make(map[string]T, len(previous))
	for _, p := range previous {
		if id := p.RecordID(); id != "" {
			prevByID[id] = p
		}
	}

	wanted := make(map[string]bool, len(current))
	var creates []T
	for _, cur := range current {
		id := cur.RecordID()
		if id == "" {
			creates = append(creates, cur)
			continue
		}
		wanted[id] = true

		prev, ok := prevByID[id]
		if !ok {
			stats.Orphaned++
			log.Warn().Str("id", id).Msg("submitted record id not found in remote snapshot, skipping")
			continue
		}
		if cur.SameTracked(prev) {
			stats.Unchanged++
			continue
		}
		if _, err := e.remote.Update(ctx, resourceType, id, cur.Resource(patientID, e.now())); err != nil {
			return stats, fmt.Errorf("update %s %s/%s: %w", kind, resourceType, id, err)
		}
		stats.Updated++
	}

	for _, cur := range creates {
		id, err := e.remote.Create(ctx, resourceType, cur.Resource(patientID, e.now()))
		if err != nil {
			return stats, fmt.Errorf("create %s %s: %w", kind, resourceType, err)
		}
		cur.SetRecordID(id)
		stats.Created++
	}

	deleted := make(map[string]bool)
	for _, prev := range previous {
		id := prev.RecordID()
		if id == "" || wanted[id] || deleted[id] {
			continue
		}
		if err := e.remote.Delete(ctx, resourceType, id); err != nil {
			return stats, fmt.Errorf("delete %s %s/%s: %w", kind, resourceType, id, err)
		}
		deleted[id] = true
		stats.Deleted++
	}

	log.Debug().
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("deleted", stats.Deleted).
		Int("unchanged", stats.Unchanged).
		Int("orphaned", stats.Orphaned).
		Msg("reconciled")
	return stats, nil
}
