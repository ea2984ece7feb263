package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vhealth/integration/internal/platform/apperr"
	"github.com/vhealth/integration/internal/platform/fhir"
	"github.com/vhealth/integration/internal/platform/journal"
	"github.com/vhealth/integration/pkg/fhirmodels"
)

var validGenders = map[string]bool{
	fhirmodels.GenderMale:    true,
	fhirmodels.GenderFemale:  true,
	fhirmodels.GenderOther:   true,
	fhirmodels.GenderUnknown: true,
}

// Synchronizer writes a whole PatientProfile to the store: the PCP, the
// patient, then each sub-record collection in SyncOrder against a single
// snapshot. It stops at the first failure and leaves whatever was already
// written in place.
type Synchronizer struct {
	remote Remote
	engine *Engine
	logger zerolog.Logger
}

func NewSynchronizer(remote Remote, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		remote: remote,
		engine: NewEngine(remote, logger),
		logger: logger.With().Str("component", "profile-sync").Logger(),
	}
}

// Sync creates or updates the profile. Ids assigned by the store are written
// back onto p, which is also returned in the result.
func (s *Synchronizer) Sync(ctx context.Context, p *PatientProfile) (*SyncResult, error) {
	if p == nil {
		return nil, apperr.Validation("", "profile is required")
	}
	birthDate, err := validateProfile(p)
	if err != nil {
		return nil, err
	}
	p.Conditions = compact(p.Conditions)
	p.VitalSigns = compact(p.VitalSigns)
	p.SocialHistory = compact(p.SocialHistory)
	p.Lifestyle = compact(p.Lifestyle)
	p.Consents = compact(p.Consents)

	result := &SyncResult{Stats: make(map[Kind]Stats, len(SyncOrder)), Profile: p}
	creating := p.PatientID == ""

	if !p.PCP.isZero() {
		if err := s.upsertPractitioner(ctx, &p.PCP); err != nil {
			return result, err
		}
		result.PractitionerID = p.PCP.PractitionerID
	}

	patient := patientResource(p, p.PatientID, birthDate, p.PCP.PractitionerID)
	if creating {
		id, err := s.remote.Create(ctx, fhir.TypePatient, patient)
		if err != nil {
			return result, fmt.Errorf("create patient: %w", err)
		}
		p.PatientID = id
	} else {
		if _, err := s.remote.Update(ctx, fhir.TypePatient, p.PatientID, patient); err != nil {
			return result, fmt.Errorf("update patient %s: %w", p.PatientID, err)
		}
	}
	result.PatientID = p.PatientID
	ctx = journal.WithPatient(ctx, p.PatientID)

	log := s.logger.With().Str("patient_id", p.PatientID).Bool("created", creating).Logger()

	snap, err := FetchSnapshot(ctx, s.remote, p.PatientID)
	if err != nil {
		return result, fmt.Errorf("fetch snapshot: %w", err)
	}

	for _, kind := range SyncOrder {
		stats, err := s.reconcile(ctx, kind, p, snap)
		result.Stats[kind] = stats
		if err != nil {
			log.Error().Err(err).Stringer("kind", kind).Msg("profile sync aborted")
			return result, err
		}
	}

	log.Info().Interface("stats", result.Stats).Msg("profile synchronised")
	return result, nil
}

func (s *Synchronizer) reconcile(ctx context.Context, kind Kind, p *PatientProfile, snap *Snapshot) (Stats, error) {
	switch kind {
	case KindCondition:
		return Reconcile(ctx, s.engine, p.PatientID, p.Conditions, snap.Conditions)
	case KindVitalSign:
		return Reconcile(ctx, s.engine, p.PatientID, p.VitalSigns, snap.VitalSigns)
	case KindSocialHistory:
		return Reconcile(ctx, s.engine, p.PatientID, p.SocialHistory, snap.SocialHistory)
	case KindLifestyle:
		return Reconcile(ctx, s.engine, p.PatientID, p.Lifestyle, snap.Lifestyle)
	case KindConsent:
		return Reconcile(ctx, s.engine, p.PatientID, p.Consents, snap.Consents)
	default:
		return Stats{}, fmt.Errorf("unknown sub-record kind %s", kind)
	}
}

func (s *Synchronizer) upsertPractitioner(ctx context.Context, pcp *Practitioner) error {
	if pcp.PractitionerID == "" {
		id, err := s.remote.Create(ctx, fhir.TypePractitioner, practitionerResource(*pcp, ""))
		if err != nil {
			return fmt.Errorf("create practitioner: %w", err)
		}
		pcp.PractitionerID = id
		return nil
	}
	if _, err := s.remote.Update(ctx, fhir.TypePractitioner, pcp.PractitionerID, practitionerResource(*pcp, pcp.PractitionerID)); err != nil {
		return fmt.Errorf("update practitioner %s: %w", pcp.PractitionerID, err)
	}
	return nil
}

// validateProfile checks the demographics and returns the birth date
// normalised to yyyy-MM-dd.
func validateProfile(p *PatientProfile) (string, error) {
	if strings.TrimSpace(p.FirstName) == "" && strings.TrimSpace(p.LastName) == "" {
		return "", apperr.Validation("first_name", "patient name is required")
	}
	if p.BirthDate == "" {
		return "", apperr.Validation("birth_date", "birth date is required")
	}
	birthDate, err := normalizeDate(p.BirthDate)
	if err != nil {
		return "", apperr.Validation("birth_date", fmt.Sprintf("invalid birth date %q", p.BirthDate))
	}
	if p.Gender != "" && !validGenders[strings.ToLower(p.Gender)] {
		return "", apperr.Validation("gender", fmt.Sprintf("invalid gender %q", p.Gender))
	}
	if !p.PCP.isZero() {
		if strings.TrimSpace(p.PCP.LastName) == "" && strings.TrimSpace(p.PCP.FirstName) == "" {
			return "", apperr.Validation("pcp.last_name", "practitioner name is required")
		}
		if p.PCP.Gender != "" && !validGenders[strings.ToLower(p.PCP.Gender)] {
			return "", apperr.Validation("pcp.gender", fmt.Sprintf("invalid gender %q", p.PCP.Gender))
		}
	}
	for i, v := range p.VitalSigns {
		if v != nil && v.Code == "" {
			return "", apperr.Validation(fmt.Sprintf("vital_signs[%d].code", i), "code is required")
		}
	}
	for i, c := range p.Conditions {
		if c != nil && c.Code == "" && c.Display == "" {
			return "", apperr.Validation(fmt.Sprintf("conditions[%d].code", i), "code or display is required")
		}
	}
	return birthDate, nil
}

func normalizeDate(s string) (string, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "01/02/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unrecognised date %q", s)
}
