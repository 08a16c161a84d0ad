package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Masterminds/squirrel"

	"github.com/vytor/simclinic/internal/logger"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/repository"
)

const ledgerColumns = `id, student_id, case_id, patient_id, total_attempts, best_score, average_score,
       current_status, first_passed_at, last_attempt_at, created_at, updated_at`

type ledgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository creates a new LedgerRepository implementation
func NewLedgerRepository(db *sql.DB) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Ensure(ctx context.Context, e models.LedgerEntry) (*models.LedgerEntry, error) {
	log := logger.FromContext(ctx).WithPrefix("ledger_repo")

	_, err := r.db.ExecContext(ctx, `
INSERT INTO attempt_ledgers (student_id, case_id, patient_id, current_status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(student_id, case_id) DO NOTHING
`, e.StudentID, e.CaseID, e.PatientID, e.CurrentStatus, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		log.Error("failed to ensure ledger entry: %v", err)
		return nil, err
	}
	return r.Get(ctx, e.StudentID, e.CaseID)
}

func (r *ledgerRepository) Touch(ctx context.Context, e models.LedgerEntry) error {
	log := logger.FromContext(ctx).WithPrefix("ledger_repo")
	log.Debug("touching ledger entry: student=%s, case=%s", e.StudentID, e.CaseID)

	_, err := r.db.ExecContext(ctx, `
INSERT INTO attempt_ledgers (student_id, case_id, patient_id, current_status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(student_id, case_id) DO UPDATE SET
    current_status = CASE WHEN current_status = ? THEN excluded.current_status ELSE current_status END,
    updated_at = excluded.updated_at
`, e.StudentID, e.CaseID, e.PatientID, models.LedgerInProgress, e.CreatedAt, e.UpdatedAt, models.LedgerNotStarted)
	if err != nil {
		log.Error("failed to touch ledger entry: %v", err)
	}
	return err
}

func (r *ledgerRepository) Get(ctx context.Context, studentID, caseID string) (*models.LedgerEntry, error) {
	log := logger.FromContext(ctx).WithPrefix("ledger_repo")

	e, err := scanLedger(r.db.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM attempt_ledgers WHERE student_id = ? AND case_id = ?`, studentID, caseID))
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("no ledger entry: student=%s, case=%s", studentID, caseID)
		return nil, nil
	}
	if err != nil {
		log.Error("failed to get ledger entry: %v", err)
		return nil, err
	}
	byLedger, err := r.attempts(ctx, []int64{e.ID})
	if err != nil {
		return nil, err
	}
	e.Attempts = attemptsOrEmpty(byLedger[e.ID])
	return e, nil
}

func (r *ledgerRepository) ListByStudent(ctx context.Context, studentID string) ([]models.LedgerEntry, error) {
	log := logger.FromContext(ctx).WithPrefix("ledger_repo")

	rows, err := r.db.QueryContext(ctx, `SELECT `+ledgerColumns+` FROM attempt_ledgers WHERE student_id = ? ORDER BY case_id`, studentID)
	if err != nil {
		log.Error("failed to list ledger entries: %v", err)
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	var ids []int64
	for rows.Next() {
		e, err := scanLedger(rows)
		if err != nil {
			log.Error("failed to scan ledger row: %v", err)
			return nil, err
		}
		entries = append(entries, *e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	byLedger, err := r.attempts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Attempts = attemptsOrEmpty(byLedger[entries[i].ID])
	}
	log.Debug("found %d ledger entries for student %s", len(entries), studentID)
	return entries, nil
}

func (r *ledgerRepository) AppendAttempt(ctx context.Context, e models.LedgerEntry, a models.Attempt) error {
	log := logger.FromContext(ctx).WithPrefix("ledger_repo").WithFields(map[string]any{
		"ledger_id":  e.ID,
		"session_id": a.SessionID,
	})

	learnings, err := encodeJSON(nonNil(a.Learnings))
	if err != nil {
		return err
	}
	mistakes, err := encodeJSON(nonNil(a.Mistakes))
	if err != nil {
		return err
	}

	return tx(ctx, r.db, func(tx *sql.Tx) error {
		var taken int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts WHERE session_id = ?`, a.SessionID).Scan(&taken); err != nil {
			return err
		}
		if taken > 0 {
			return repository.ErrDuplicate
		}

		_, err := tx.ExecContext(ctx, `
INSERT INTO attempts (ledger_id, attempt_number, session_id, assessment_id, score, grade, passed, learnings, mistakes, attempted_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, e.ID, a.AttemptNumber, a.SessionID, a.AssessmentID, a.Score, a.Grade, a.Passed, learnings, mistakes, a.AttemptedAt)
		if err != nil {
			if isUniqueViolation(err) {
				log.Debug("attempt number %d already taken", a.AttemptNumber)
				return repository.ErrVersionConflict
			}
			log.Error("failed to insert attempt: %v", err)
			return err
		}

		_, err = tx.ExecContext(ctx, `
UPDATE attempt_ledgers
SET total_attempts = ?, best_score = ?, average_score = ?, current_status = ?,
    first_passed_at = COALESCE(first_passed_at, ?), last_attempt_at = ?, updated_at = ?
WHERE id = ?
`, e.TotalAttempts, e.BestScore, e.AverageScore, e.CurrentStatus, e.FirstPassedAt, e.LastAttemptAt, e.UpdatedAt, e.ID)
		if err != nil {
			log.Error("failed to update ledger entry: %v", err)
			return err
		}
		log.Debug("attempt %d recorded", a.AttemptNumber)
		return nil
	})
}

func (r *ledgerRepository) attempts(ctx context.Context, ledgerIDs []int64) (map[int64][]models.Attempt, error) {
	out := make(map[int64][]models.Attempt, len(ledgerIDs))
	if len(ledgerIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlBuilder.Select(
		"ledger_id", "attempt_number", "session_id", "assessment_id", "score", "grade", "passed",
		"learnings", "mistakes", "attempted_at",
	).From("attempts").Where(squirrel.Eq{"ledger_id": ledgerIDs}).OrderBy("ledger_id", "attempt_number").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).WithPrefix("ledger_repo").Error("failed to load attempts: %v", err)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ledgerID int64
		var a models.Attempt
		var learnings, mistakes sql.NullString
		if err := rows.Scan(&ledgerID, &a.AttemptNumber, &a.SessionID, &a.AssessmentID, &a.Score, &a.Grade, &a.Passed,
			&learnings, &mistakes, &a.AttemptedAt); err != nil {
			return nil, err
		}
		a.Learnings, a.Mistakes = []string{}, []string{}
		if err := decodeJSON(learnings, &a.Learnings); err != nil {
			return nil, err
		}
		if err := decodeJSON(mistakes, &a.Mistakes); err != nil {
			return nil, err
		}
		out[ledgerID] = append(out[ledgerID], a)
	}
	return out, rows.Err()
}

func scanLedger(row scanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	var firstPassed, lastAttempt sql.NullTime
	err := row.Scan(&e.ID, &e.StudentID, &e.CaseID, &e.PatientID, &e.TotalAttempts, &e.BestScore, &e.AverageScore,
		&e.CurrentStatus, &firstPassed, &lastAttempt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.FirstPassedAt = timePtr(firstPassed)
	e.LastAttemptAt = timePtr(lastAttempt)
	return &e, nil
}

func attemptsOrEmpty(a []models.Attempt) []models.Attempt {
	if a == nil {
		return []models.Attempt{}
	}
	return a
}
