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

var assessmentColumns = []string{
	"id", "session_id", "student_id", "case_id", "internship_id", "overall_score", "criteria", "grade",
	"pass_fail", "pass_threshold", "strengths", "weaknesses", "recommendations", "evolution", "status",
	"generated_at", "validation", "revised_by", "revised_at",
}

type assessmentRepository struct {
	db *sql.DB
}

// NewAssessmentRepository creates a new AssessmentRepository implementation
func NewAssessmentRepository(db *sql.DB) repository.AssessmentRepository {
	return &assessmentRepository{db: db}
}

type assessmentJSON struct {
	criteria, strengths, weaknesses, recommendations string
	validation                                       sql.NullString
}

func encodeAssessment(a models.Assessment) (assessmentJSON, error) {
	var out assessmentJSON
	var err error
	lists := []struct {
		dst *string
		v   any
	}{
		{&out.criteria, nonNilCriteria(a.Criteria)},
		{&out.strengths, nonNil(a.Strengths)},
		{&out.weaknesses, nonNil(a.Weaknesses)},
		{&out.recommendations, nonNil(a.Recommendations)},
	}
	for _, l := range lists {
		if *l.dst, err = encodeJSON(l.v); err != nil {
			return out, err
		}
	}
	if a.Validation != nil {
		s, err := encodeJSON(a.Validation)
		if err != nil {
			return out, err
		}
		out.validation = sql.NullString{String: s, Valid: true}
	}
	return out, nil
}

func (r *assessmentRepository) Insert(ctx context.Context, a models.Assessment) error {
	log := logger.FromContext(ctx).WithPrefix("assessment_repo")
	log.Debug("inserting assessment: id=%s, session_id=%s", a.ID, a.SessionID)

	j, err := encodeAssessment(a)
	if err != nil {
		return err
	}
	query, args, err := sqlBuilder.Insert("assessments").Columns(assessmentColumns...).Values(
		a.ID, a.SessionID, a.StudentID, a.CaseID, a.InternshipID, a.OverallScore, j.criteria, a.Grade,
		a.PassFail, a.PassThreshold, j.strengths, j.weaknesses, j.recommendations, a.Evolution, a.Status,
		a.GeneratedAt, j.validation, a.RevisedBy, a.RevisedAt,
	).ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			log.Debug("assessment already exists for session %s", a.SessionID)
			return repository.ErrDuplicate
		}
		log.Error("failed to insert assessment: %v", err)
		return err
	}
	return nil
}

func (r *assessmentRepository) Get(ctx context.Context, id string) (*models.Assessment, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

func (r *assessmentRepository) GetBySession(ctx context.Context, sessionID string) (*models.Assessment, error) {
	return r.getOne(ctx, squirrel.Eq{"session_id": sessionID})
}

func (r *assessmentRepository) getOne(ctx context.Context, where squirrel.Eq) (*models.Assessment, error) {
	log := logger.FromContext(ctx).WithPrefix("assessment_repo")

	query, args, err := sqlBuilder.Select(assessmentColumns...).From("assessments").Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	a, err := scanAssessment(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		log.Error("failed to get assessment: %v", err)
		return nil, err
	}
	return a, nil
}

func (r *assessmentRepository) Update(ctx context.Context, a models.Assessment) error {
	log := logger.FromContext(ctx).WithPrefix("assessment_repo")
	log.Debug("updating assessment: id=%s, status=%s", a.ID, a.Status)

	j, err := encodeAssessment(a)
	if err != nil {
		return err
	}
	query, args, err := sqlBuilder.Update("assessments").SetMap(map[string]any{
		"overall_score":   a.OverallScore,
		"criteria":        j.criteria,
		"grade":           a.Grade,
		"pass_fail":       a.PassFail,
		"strengths":       j.strengths,
		"weaknesses":      j.weaknesses,
		"recommendations": j.recommendations,
		"evolution":       a.Evolution,
		"status":          a.Status,
		"validation":      j.validation,
		"revised_by":      a.RevisedBy,
		"revised_at":      a.RevisedAt,
	}).Where(squirrel.Eq{"id": a.ID}).ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.Error("failed to update assessment: %v", err)
		return err
	}
	return nil
}

func (r *assessmentRepository) ListBySessions(ctx context.Context, sessionIDs []string) (map[string]models.Assessment, error) {
	out := make(map[string]models.Assessment, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return out, nil
	}
	log := logger.FromContext(ctx).WithPrefix("assessment_repo")

	query, args, err := sqlBuilder.Select(assessmentColumns...).From("assessments").
		Where(squirrel.Eq{"session_id": sessionIDs}).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list assessments: %v", err)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			log.Error("failed to scan assessment row: %v", err)
			return nil, err
		}
		out[a.SessionID] = *a
	}
	return out, rows.Err()
}

func scanAssessment(row scanner) (*models.Assessment, error) {
	var a models.Assessment
	var criteria, strengths, weaknesses, recommendations, validation sql.NullString
	var revisedAt sql.NullTime
	err := row.Scan(&a.ID, &a.SessionID, &a.StudentID, &a.CaseID, &a.InternshipID, &a.OverallScore, &criteria, &a.Grade,
		&a.PassFail, &a.PassThreshold, &strengths, &weaknesses, &recommendations, &a.Evolution, &a.Status,
		&a.GeneratedAt, &validation, &a.RevisedBy, &revisedAt)
	if err != nil {
		return nil, err
	}
	a.RevisedAt = timePtr(revisedAt)
	a.Strengths, a.Weaknesses, a.Recommendations = []string{}, []string{}, []string{}
	for _, col := range []struct {
		raw sql.NullString
		dst any
	}{
		{criteria, &a.Criteria},
		{strengths, &a.Strengths},
		{weaknesses, &a.Weaknesses},
		{recommendations, &a.Recommendations},
	} {
		if err := decodeJSON(col.raw, col.dst); err != nil {
			return nil, err
		}
	}
	if validation.Valid {
		a.Validation = &models.Validation{}
		if err := decodeJSON(validation, a.Validation); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilCriteria(c []models.CriterionScore) []models.CriterionScore {
	if c == nil {
		return []models.CriterionScore{}
	}
	return c
}
