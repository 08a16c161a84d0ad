package services

import (
	"context"
	stderrors "errors"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/ledger"
	"github.com/vytor/simclinic/internal/logger"
	"github.com/vytor/simclinic/internal/metrics"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/repository"
)

// LedgerService handles attempt history across cases
type LedgerService interface {
	RecordAttempt(ctx context.Context, studentID string, c models.Case, a models.Assessment) (*models.LedgerEntry, error)
	History(ctx context.Context, studentID, caseID string) (*models.LedgerEntry, error)
	StudentStats(ctx context.Context, studentID string) (*models.StudentStats, error)
	Progression(ctx context.Context, studentID, patientID string) (*models.Progression, error)
}

type ledgerService struct {
	cases   repository.CaseRepository
	ledgers repository.LedgerRepository
	clock   Clock
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(cases repository.CaseRepository, ledgers repository.LedgerRepository, clock Clock) LedgerService {
	return &ledgerService{cases: cases, ledgers: ledgers, clock: clock}
}

// RecordAttempt appends the assessed session to the student's entry for the
// case. Recording the same session twice returns the entry unchanged.
func (s *ledgerService) RecordAttempt(ctx context.Context, studentID string, c models.Case, a models.Assessment) (*models.LedgerEntry, error) {
	log := logger.FromContext(ctx).WithFields(map[string]any{
		"student_id": studentID,
		"case_id":    c.ID,
		"session_id": a.SessionID,
	})

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		now := s.clock.now()
		entry, err := s.ledgers.Ensure(ctx, ledger.NewEntry(studentID, c, now))
		if err != nil {
			log.Error("failed to load ledger entry: %v", err)
			return nil, errors.NewInternalError(err)
		}
		if ledger.Contains(*entry, a.SessionID) {
			log.Debug("session already recorded")
			return entry, nil
		}

		recorded, _ := ledger.Append(entry, ledger.AttemptFromAssessment(a, now))
		err = s.ledgers.AppendAttempt(ctx, *entry, recorded)
		switch {
		case err == nil:
			log.Info("recorded attempt %d: score=%.0f, status=%s", recorded.AttemptNumber, recorded.Score, entry.CurrentStatus)
			return entry, nil
		case stderrors.Is(err, repository.ErrDuplicate):
			log.Debug("session recorded concurrently")
			return s.History(ctx, studentID, c.ID)
		case stderrors.Is(err, repository.ErrVersionConflict):
			metrics.VersionConflicts.WithLabelValues("ledger").Inc()
			log.Debug("attempt number taken, retrying (attempt %d)", attempt)
		default:
			log.Error("failed to append attempt: %v", err)
			return nil, errors.NewInternalError(err)
		}
	}
	return nil, errors.NewConflictError("ledger for case " + c.ID + " is being modified concurrently, retry")
}

// History returns the entry for a student and case. A known case the student
// never attempted yields an empty not_started entry.
func (s *ledgerService) History(ctx context.Context, studentID, caseID string) (*models.LedgerEntry, error) {
	log := logger.FromContext(ctx)

	entry, err := s.ledgers.Get(ctx, studentID, caseID)
	if err != nil {
		log.Error("failed to get ledger entry: %v", err)
		return nil, errors.NewInternalError(err)
	}
	if entry != nil {
		return entry, nil
	}

	c, err := s.cases.Get(ctx, caseID)
	if err != nil {
		log.Error("failed to get case: %v", err)
		return nil, errors.NewInternalError(err)
	}
	if c == nil {
		return nil, errors.NewNotFoundError("case", caseID)
	}
	empty := ledger.NewEntry(studentID, *c, s.clock.now())
	return &empty, nil
}

func (s *ledgerService) StudentStats(ctx context.Context, studentID string) (*models.StudentStats, error) {
	entries, err := s.ledgers.ListByStudent(ctx, studentID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list ledger entries: %v", err)
		return nil, errors.NewInternalError(err)
	}
	stats := ledger.Stats(studentID, entries)
	return &stats, nil
}

// Progression walks every case of a patient storyline in sequence order.
func (s *ledgerService) Progression(ctx context.Context, studentID, patientID string) (*models.Progression, error) {
	log := logger.FromContext(ctx)

	cases, err := s.cases.ListByPatient(ctx, patientID)
	if err != nil {
		log.Error("failed to list cases for patient: %v", err)
		return nil, errors.NewInternalError(err)
	}
	if len(cases) == 0 {
		return nil, errors.NewNotFoundError("patient", patientID)
	}

	entries, err := s.ledgers.ListByStudent(ctx, studentID)
	if err != nil {
		log.Error("failed to list ledger entries: %v", err)
		return nil, errors.NewInternalError(err)
	}
	p := ledger.Progression(studentID, patientID, cases, entries)
	return &p, nil
}
