// Package journal keeps a record of every mutation issued against the remote
// FHIR store. Synchronisation never retries and never rolls back, so the
// journal is how an operator finds out which writes landed before a failure.
package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation is the kind of remote mutation.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Entry is one remote mutation and its outcome.
type Entry struct {
	ID           uuid.UUID `json:"id"`
	BatchID      uuid.UUID `json:"batch_id"`
	PatientID    string    `json:"patient_id"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Operation    Operation `json:"operation"`
	Succeeded    bool      `json:"succeeded"`
	Error        string    `json:"error,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// Recorder persists journal entries.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
}

// Store is a Recorder that can also list what it recorded.
type Store interface {
	Recorder
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Entry, int, error)
}

type batchKey struct{}

type batch struct {
	id        uuid.UUID
	patientID string
}

// WithBatch starts a new batch for patientID. Every entry recorded under the
// returned context shares the batch id.
func WithBatch(ctx context.Context, patientID string) (context.Context, uuid.UUID) {
	b := batch{id: uuid.New(), patientID: patientID}
	return context.WithValue(ctx, batchKey{}, b), b.id
}

// WithPatient re-targets the current batch at patientID, keeping the batch
// id. It is used once a newly created patient has been assigned an id.
func WithPatient(ctx context.Context, patientID string) context.Context {
	b, ok := ctx.Value(batchKey{}).(batch)
	if !ok {
		b.id = uuid.New()
	}
	b.patientID = patientID
	return context.WithValue(ctx, batchKey{}, b)
}

// BatchFromContext returns the batch id and patient id carried by ctx.
func BatchFromContext(ctx context.Context) (uuid.UUID, string) {
	b, _ := ctx.Value(batchKey{}).(batch)
	return b.id, b.patientID
}

// MemoryStore is an in-process Store used when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	max     int
}

// NewMemoryStore keeps at most max entries, dropping the oldest first. A max
// of zero means unbounded.
func NewMemoryStore(max int) *MemoryStore {
	return &MemoryStore{max: max}
}

func (m *MemoryStore) Record(_ context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	cp := *e

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, &cp)
	if m.max > 0 && len(m.entries) > m.max {
		m.entries = m.entries[len(m.entries)-m.max:]
	}
	return nil
}

// ListByPatient returns the patient's entries newest first.
func (m *MemoryStore) ListByPatient(_ context.Context, patientID string, limit, offset int) ([]*Entry, int, error) {
	m.mu.RLock()
	var matched []*Entry
	for _, e := range m.entries {
		if e.PatientID == patientID {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].RecordedAt.After(matched[j].RecordedAt)
	})

	total := len(matched)
	if offset >= total {
		return []*Entry{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}
