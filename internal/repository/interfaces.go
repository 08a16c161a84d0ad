package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vytor/simclinic/internal/models"
)

var (
	// ErrVersionConflict is returned when an optimistic update finds the row
	// changed since it was read.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate is returned when an insert hits a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// Lookups return nil, nil when the record does not exist.

// CaseRepository handles case data access
type CaseRepository interface {
	Get(ctx context.Context, id string) (*models.Case, error)
	Upsert(ctx context.Context, c models.Case) error
	ListByPatient(ctx context.Context, patientID string) ([]models.Case, error)
}

// SessionRepository handles session data access
type SessionRepository interface {
	Insert(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	FindLive(ctx context.Context, studentID, caseID string, typ models.SessionType) (*models.Session, error)
	NextNumber(ctx context.Context, studentID, caseID string, typ models.SessionType) (int, error)
	// Update writes s when its version still matches and bumps s.Version.
	Update(ctx context.Context, s *models.Session) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
	// ListByIDs returns the live (not soft-deleted) sessions among ids, keyed by id.
	ListByIDs(ctx context.Context, ids []string) (map[string]models.Session, error)
	// ListUnassessed returns COMPLETED sessions ended before the cutoff that
	// have no assessment yet, oldest first, skipping the excluded IDs.
	ListUnassessed(ctx context.Context, endedBefore time.Time, exclude []string, limit int) ([]models.Session, error)
}

// AssessmentRepository handles assessment data access
type AssessmentRepository interface {
	Insert(ctx context.Context, a models.Assessment) error
	Get(ctx context.Context, id string) (*models.Assessment, error)
	GetBySession(ctx context.Context, sessionID string) (*models.Assessment, error)
	Update(ctx context.Context, a models.Assessment) error
	ListBySessions(ctx context.Context, sessionIDs []string) (map[string]models.Assessment, error)
}

// LedgerRepository handles attempt ledger data access
type LedgerRepository interface {
	// Ensure creates the entry if missing and returns the stored one.
	Ensure(ctx context.Context, e models.LedgerEntry) (*models.LedgerEntry, error)
	// Touch creates the entry or promotes not_started to in_progress.
	Touch(ctx context.Context, e models.LedgerEntry) error
	Get(ctx context.Context, studentID, caseID string) (*models.LedgerEntry, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.LedgerEntry, error)
	// AppendAttempt stores a and the recomputed entry fields in one
	// transaction. ErrDuplicate means the session was already recorded and
	// ErrVersionConflict that the attempt number was taken concurrently.
	AppendAttempt(ctx context.Context, e models.LedgerEntry, a models.Attempt) error
}

// ProgressRepository handles stage progress data access
type ProgressRepository interface {
	Get(ctx context.Context, studentID, internshipID string) (*models.StageProgress, error)
	Insert(ctx context.Context, p *models.StageProgress) error
	// Save writes p under its version and, when ss is not nil, records or
	// rescores the counted session in the same transaction.
	Save(ctx context.Context, p *models.StageProgress, ss *models.StageSession) error
	ListByInternship(ctx context.Context, internshipID string) ([]models.StageProgress, error)
	GetStageSession(ctx context.Context, progressID int64, sessionID string) (*models.StageSession, error)
	ListStageSessions(ctx context.Context, progressID int64) ([]models.StageSession, error)
}
