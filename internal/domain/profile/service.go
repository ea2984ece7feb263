package profile

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vhealth/integration/internal/platform/apperr"
	"github.com/vhealth/integration/internal/platform/journal"
)

// Service is the entry point used by the HTTP handlers.
type Service struct {
	remote Remote
	sync   *Synchronizer
}

func NewService(remote Remote, logger zerolog.Logger) *Service {
	return &Service{
		remote: remote,
		sync:   NewSynchronizer(remote, logger),
	}
}

// CreateProfile writes a new patient. The profile must not carry a patient
// id yet.
func (s *Service) CreateProfile(ctx context.Context, p *PatientProfile) (*SyncResult, error) {
	if p == nil {
		return nil, apperr.Validation("", "profile is required")
	}
	if p.PatientID != "" {
		return nil, apperr.Validation("patient_id", "must be empty when creating a profile; use update instead")
	}
	if p.Email == "" {
		return nil, apperr.Validation("email", "email is required")
	}
	ctx, _ = journal.WithBatch(ctx, "")
	return s.sync.Sync(ctx, p)
}

// UpdateProfile synchronises an existing patient.
func (s *Service) UpdateProfile(ctx context.Context, p *PatientProfile) (*SyncResult, error) {
	if p == nil {
		return nil, apperr.Validation("", "profile is required")
	}
	if p.PatientID == "" {
		return nil, apperr.Validation("patient_id", "patient id is required for update")
	}
	ctx, _ = journal.WithBatch(ctx, p.PatientID)
	return s.sync.Sync(ctx, p)
}

func (s *Service) GetFullProfileByEmail(ctx context.Context, email string) (*PatientProfile, error) {
	return ReadProfileByEmail(ctx, s.remote, email)
}
