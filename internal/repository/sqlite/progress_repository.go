package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vytor/simclinic/internal/logger"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/repository"
)

const progressColumns = `id, student_id, internship_id, stages, total_sessions, overall_progress, overall_score,
       all_stages_completed, internship_completed_at, version, created_at, updated_at`

type progressRepository struct {
	db *sql.DB
}

// NewProgressRepository creates a new ProgressRepository implementation
func NewProgressRepository(db *sql.DB) repository.ProgressRepository {
	return &progressRepository{db: db}
}

func (r *progressRepository) Get(ctx context.Context, studentID, internshipID string) (*models.StageProgress, error) {
	log := logger.FromContext(ctx).WithPrefix("progress_repo")

	p, err := scanProgress(r.db.QueryRowContext(ctx, `SELECT `+progressColumns+` FROM stage_progress WHERE student_id = ? AND internship_id = ?`, studentID, internshipID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		log.Error("failed to get stage progress: %v", err)
		return nil, err
	}
	return p, nil
}

func (r *progressRepository) Insert(ctx context.Context, p *models.StageProgress) error {
	log := logger.FromContext(ctx).WithPrefix("progress_repo")
	log.Debug("creating stage progress: student=%s, internship=%s", p.StudentID, p.InternshipID)

	stages, err := encodeJSON(p.Stages)
	if err != nil {
		return err
	}
	if p.Version == 0 {
		p.Version = 1
	}
	res, err := r.db.ExecContext(ctx, `
INSERT INTO stage_progress (student_id, internship_id, stages, total_sessions, overall_progress, overall_score,
    all_stages_completed, internship_completed_at, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, p.StudentID, p.InternshipID, stages, p.TotalSessions, p.OverallProgress, p.OverallScore,
		p.AllStagesCompleted, p.InternshipCompletedAt, p.Version, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		log.Error("failed to insert stage progress: %v", err)
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (r *progressRepository) Save(ctx context.Context, p *models.StageProgress, ss *models.StageSession) error {
	log := logger.FromContext(ctx).WithPrefix("progress_repo").WithField("progress_id", p.ID)

	stages, err := encodeJSON(p.Stages)
	if err != nil {
		return err
	}

	err = tx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE stage_progress
SET stages = ?, total_sessions = ?, overall_progress = ?, overall_score = ?, all_stages_completed = ?,
    internship_completed_at = ?, version = version + 1, updated_at = ?
WHERE id = ? AND version = ?
`, stages, p.TotalSessions, p.OverallProgress, p.OverallScore, p.AllStagesCompleted,
			p.InternshipCompletedAt, p.UpdatedAt, p.ID, p.Version)
		if err != nil {
			log.Error("failed to update stage progress: %v", err)
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrVersionConflict
		}

		if ss == nil {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO stage_sessions (progress_id, stage_number, session_id, case_id, score, classified_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(progress_id, session_id) DO UPDATE SET score = excluded.score
`, p.ID, ss.StageNumber, ss.SessionID, ss.CaseID, ss.Score, ss.ClassifiedAt)
		if err != nil {
			log.Error("failed to record stage session: %v", err)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			log.Debug("version conflict saving stage progress at version %d", p.Version)
		}
		return err
	}
	p.Version++
	return nil
}

func (r *progressRepository) ListByInternship(ctx context.Context, internshipID string) ([]models.StageProgress, error) {
	log := logger.FromContext(ctx).WithPrefix("progress_repo")

	query, args, err := sqlBuilder.Select(progressColumns).From("stage_progress").
		Where("internship_id = ?", internshipID).
		OrderBy("student_id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list stage progress: %v", err)
		return nil, err
	}
	defer rows.Close()

	out := []models.StageProgress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			log.Error("failed to scan stage progress row: %v", err)
			return nil, err
		}
		out = append(out, *p)
	}
	log.Debug("found %d stage progress records for internship %s", len(out), internshipID)
	return out, rows.Err()
}

func (r *progressRepository) GetStageSession(ctx context.Context, progressID int64, sessionID string) (*models.StageSession, error) {
	ss, err := scanStageSession(r.db.QueryRowContext(ctx, `
SELECT progress_id, stage_number, session_id, case_id, score, classified_at
FROM stage_sessions WHERE progress_id = ? AND session_id = ?
`, progressID, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.FromContext(ctx).WithPrefix("progress_repo").Error("failed to get stage session: %v", err)
		return nil, err
	}
	return ss, nil
}

func (r *progressRepository) ListStageSessions(ctx context.Context, progressID int64) ([]models.StageSession, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT progress_id, stage_number, session_id, case_id, score, classified_at
FROM stage_sessions WHERE progress_id = ?
ORDER BY classified_at, session_id
`, progressID)
	if err != nil {
		logger.FromContext(ctx).WithPrefix("progress_repo").Error("failed to list stage sessions: %v", err)
		return nil, err
	}
	defer rows.Close()

	out := []models.StageSession{}
	for rows.Next() {
		ss, err := scanStageSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ss)
	}
	return out, rows.Err()
}

func scanProgress(row scanner) (*models.StageProgress, error) {
	var p models.StageProgress
	var stages sql.NullString
	var overallScore sql.NullFloat64
	var completedAt sql.NullTime
	err := row.Scan(&p.ID, &p.StudentID, &p.InternshipID, &stages, &p.TotalSessions, &p.OverallProgress, &overallScore,
		&p.AllStagesCompleted, &completedAt, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.OverallScore = floatPtr(overallScore)
	p.InternshipCompletedAt = timePtr(completedAt)
	if err := decodeJSON(stages, &p.Stages); err != nil {
		return nil, err
	}
	for i := range p.Stages {
		if p.Stages[i].Metrics == nil {
			p.Stages[i].Metrics = map[string]float64{}
		}
	}
	return &p, nil
}

func scanStageSession(row scanner) (*models.StageSession, error) {
	var ss models.StageSession
	var score sql.NullFloat64
	if err := row.Scan(&ss.ProgressID, &ss.StageNumber, &ss.SessionID, &ss.CaseID, &score, &ss.ClassifiedAt); err != nil {
		return nil, err
	}
	ss.Score = floatPtr(score)
	return &ss, nil
}
