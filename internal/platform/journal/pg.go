package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the subset of *pgxpool.Pool used by PGStore.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore writes journal entries to the sync_journal table.
type PGStore struct {
	db querier
}

func NewPGStore(db querier) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Record(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO sync_journal (
			id, batch_id, patient_id, resource_type, resource_id,
			operation, succeeded, error, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.Exec(ctx, query,
		e.ID, e.BatchID, e.PatientID, e.ResourceType, e.ResourceID,
		string(e.Operation), e.Succeeded, e.Error, e.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sync journal entry: %w", err)
	}
	return nil
}

func (s *PGStore) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Entry, int, error) {
	var total int
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM sync_journal WHERE patient_id = $1`, patientID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sync journal: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, batch_id, patient_id, resource_type, resource_id,
		       operation, succeeded, error, recorded_at
		FROM sync_journal
		WHERE patient_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query sync journal: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var op string
		if err := rows.Scan(
			&e.ID, &e.BatchID, &e.PatientID, &e.ResourceType, &e.ResourceID,
			&op, &e.Succeeded, &e.Error, &e.RecordedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan sync journal: %w", err)
		}
		e.Operation = Operation(op)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sync journal: %w", err)
	}
	return entries, total, nil
}
