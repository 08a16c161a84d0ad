package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/vytor/simclinic/internal/logger"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/repository"
)

var sessionColumns = []string{
	"id", "student_id", "case_id", "internship_id", "type", "status", "started_at", "ended_at", "paused_at",
	"pause_history", "total_active_seconds", "max_duration_minutes", "session_number", "transcript",
	"oracle_handle", "version", "deleted_at", "created_at", "updated_at",
}

type sessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository implementation
func NewSessionRepository(db *sql.DB) repository.SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Insert(ctx context.Context, s *models.Session) error {
	log := logger.FromContext(ctx).WithPrefix("session_repo")
	log.Debug("inserting session: id=%s, student=%s, case=%s", s.ID, s.StudentID, s.CaseID)

	history, transcript, err := encodeSessionJSON(s)
	if err != nil {
		return err
	}

	query, args, err := sqlBuilder.Insert("sessions").Columns(sessionColumns...).Values(
		s.ID, s.StudentID, s.CaseID, s.InternshipID, s.Type, s.Status, s.StartedAt, s.EndedAt, s.PausedAt,
		history, s.TotalActiveSeconds, s.MaxDurationMinutes, s.SessionNumber, transcript,
		s.OracleHandle, s.Version, s.DeletedAt, s.CreatedAt, s.UpdatedAt,
	).ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			log.Debug("live session already exists for student=%s case=%s", s.StudentID, s.CaseID)
			return repository.ErrDuplicate
		}
		log.Error("failed to insert session: %v", err)
		return err
	}
	return nil
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id, "deleted_at": nil})
}

func (r *sessionRepository) FindLive(ctx context.Context, studentID, caseID string, typ models.SessionType) (*models.Session, error) {
	return r.getOne(ctx, squirrel.Eq{
		"student_id": studentID,
		"case_id":    caseID,
		"type":       typ,
		"status":     []models.SessionStatus{models.SessionActive, models.SessionPaused},
		"deleted_at": nil,
	})
}

func (r *sessionRepository) getOne(ctx context.Context, where squirrel.Eq) (*models.Session, error) {
	log := logger.FromContext(ctx).WithPrefix("session_repo")

	query, args, err := sqlBuilder.Select(sessionColumns...).From("sessions").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, err
	}
	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		log.Error("failed to get session: %v", err)
		return nil, err
	}
	return s, nil
}

func (r *sessionRepository) NextNumber(ctx context.Context, studentID, caseID string, typ models.SessionType) (int, error) {
	var last sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
SELECT MAX(session_number) FROM sessions WHERE student_id = ? AND case_id = ? AND type = ?
`, studentID, caseID, typ).Scan(&last)
	if err != nil {
		logger.FromContext(ctx).WithPrefix("session_repo").Error("failed to compute next session number: %v", err)
		return 0, err
	}
	return int(last.Int64) + 1, nil
}

func (r *sessionRepository) Update(ctx context.Context, s *models.Session) error {
	log := logger.FromContext(ctx).WithPrefix("session_repo")

	history, transcript, err := encodeSessionJSON(s)
	if err != nil {
		return err
	}

	query, args, err := sqlBuilder.Update("sessions").SetMap(map[string]any{
		"status":               s.Status,
		"ended_at":             s.EndedAt,
		"paused_at":            s.PausedAt,
		"pause_history":        history,
		"total_active_seconds": s.TotalActiveSeconds,
		"transcript":           transcript,
		"oracle_handle":        s.OracleHandle,
		"updated_at":           s.UpdatedAt,
		"version":              s.Version + 1,
	}).Where(squirrel.Eq{"id": s.ID, "version": s.Version, "deleted_at": nil}).ToSql()
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to update session: %v", err)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		log.Debug("version conflict updating session %s at version %d", s.ID, s.Version)
		return repository.ErrVersionConflict
	}
	s.Version++
	return nil
}

func (r *sessionRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	log := logger.FromContext(ctx).WithPrefix("session_repo")
	log.Debug("soft deleting session: id=%s", id)

	_, err := r.db.ExecContext(ctx, `
UPDATE sessions SET deleted_at = ?, updated_at = ?, version = version + 1
WHERE id = ? AND deleted_at IS NULL
`, at, at, id)
	if err != nil {
		log.Error("failed to soft delete session: %v", err)
	}
	return err
}

func (r *sessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	log := logger.FromContext(ctx).WithPrefix("session_repo")
	log.Debug("listing sessions with filter: student=%s, case=%s, internship=%s, type=%s",
		filter.StudentID, filter.CaseID, filter.InternshipID, filter.Type)

	query := sqlBuilder.Select(sessionColumns...).From("sessions").Where(squirrel.Eq{"deleted_at": nil})

	// Dynamic WHERE clauses
	if filter.StudentID != "" {
		query = query.Where(squirrel.Eq{"student_id": filter.StudentID})
	}
	if filter.CaseID != "" {
		query = query.Where(squirrel.Eq{"case_id": filter.CaseID})
	}
	if filter.InternshipID != "" {
		query = query.Where(squirrel.Eq{"internship_id": filter.InternshipID})
	}
	if filter.Type != "" {
		query = query.Where(squirrel.Eq{"type": filter.Type})
	}
	if len(filter.Statuses) > 0 {
		query = query.Where(squirrel.Eq{"status": filter.Statuses})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query = query.OrderBy("started_at DESC", "id").Limit(uint64(limit)).Offset(uint64(offset))

	return r.query(ctx, log, query)
}

func (r *sessionRepository) ListByIDs(ctx context.Context, ids []string) (map[string]models.Session, error) {
	out := make(map[string]models.Session, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	log := logger.FromContext(ctx).WithPrefix("session_repo")

	query := sqlBuilder.Select(sessionColumns...).From("sessions").
		Where(squirrel.Eq{"id": ids, "deleted_at": nil})
	found, err := r.query(ctx, log, query)
	if err != nil {
		return nil, err
	}
	for _, sess := range found {
		out[sess.ID] = sess
	}
	return out, nil
}

func (r *sessionRepository) ListUnassessed(ctx context.Context, endedBefore time.Time, exclude []string, limit int) ([]models.Session, error) {
	log := logger.FromContext(ctx).WithPrefix("session_repo")

	cols := make([]string, len(sessionColumns))
	for i, c := range sessionColumns {
		cols[i] = "s." + c
	}
	query := sqlBuilder.Select(cols...).
		From("sessions s").
		LeftJoin("assessments a ON a.session_id = s.id").
		Where(squirrel.Eq{"s.status": models.SessionCompleted, "s.deleted_at": nil, "a.id": nil}).
		Where(squirrel.Lt{"s.ended_at": endedBefore})
	if len(exclude) > 0 {
		query = query.Where(squirrel.NotEq{"s.id": exclude})
	}
	query = query.OrderBy("s.ended_at", "s.id").Limit(uint64(limit))

	return r.query(ctx, log, query)
}

func (r *sessionRepository) query(ctx context.Context, log *logger.Logger, query squirrel.SelectBuilder) ([]models.Session, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		log.Error("failed to build query: %v", err)
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		log.Error("failed to list sessions: %v", err)
		return nil, err
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			log.Error("failed to scan session row: %v", err)
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	log.Debug("found %d sessions", len(sessions))
	return sessions, rows.Err()
}

func encodeSessionJSON(s *models.Session) (string, string, error) {
	history := s.PauseHistory
	if history == nil {
		history = []models.PauseEntry{}
	}
	transcript := s.Transcript
	if transcript == nil {
		transcript = []models.Message{}
	}
	h, err := encodeJSON(history)
	if err != nil {
		return "", "", err
	}
	t, err := encodeJSON(transcript)
	if err != nil {
		return "", "", err
	}
	return h, t, nil
}

func scanSession(row scanner) (*models.Session, error) {
	var s models.Session
	var endedAt, pausedAt, deletedAt sql.NullTime
	var history, transcript sql.NullString
	var maxMinutes sql.NullInt64
	err := row.Scan(&s.ID, &s.StudentID, &s.CaseID, &s.InternshipID, &s.Type, &s.Status, &s.StartedAt, &endedAt, &pausedAt,
		&history, &s.TotalActiveSeconds, &maxMinutes, &s.SessionNumber, &transcript,
		&s.OracleHandle, &s.Version, &deletedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.EndedAt = timePtr(endedAt)
	s.PausedAt = timePtr(pausedAt)
	s.DeletedAt = timePtr(deletedAt)
	s.MaxDurationMinutes = intPtr(maxMinutes)
	s.PauseHistory = []models.PauseEntry{}
	s.Transcript = []models.Message{}
	if err := decodeJSON(history, &s.PauseHistory); err != nil {
		return nil, err
	}
	if err := decodeJSON(transcript, &s.Transcript); err != nil {
		return nil, err
	}
	return &s, nil
}
