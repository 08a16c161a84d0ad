package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vytor/simclinic/internal/logger"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/repository"
)

const caseColumns = `id, title, internship_id, patient_id, curriculum_id, sequence_order, allow_pause,
       max_duration_minutes, stage_tracked, pass_threshold, patient, rubric, literature, created_at`

type caseRepository struct {
	db *sql.DB
}

// NewCaseRepository creates a new CaseRepository implementation
func NewCaseRepository(db *sql.DB) repository.CaseRepository {
	return &caseRepository{db: db}
}

func (r *caseRepository) Get(ctx context.Context, id string) (*models.Case, error) {
	log := logger.FromContext(ctx).WithPrefix("case_repo")

	c, err := scanCase(r.db.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug("case not found: id=%s", id)
		return nil, nil
	}
	if err != nil {
		log.Error("failed to get case: %v", err)
		return nil, err
	}
	return c, nil
}

func (r *caseRepository) Upsert(ctx context.Context, c models.Case) error {
	log := logger.FromContext(ctx).WithPrefix("case_repo")
	log.Debug("upserting case: id=%s", c.ID)

	var patient, rubric sql.NullString
	if c.Patient != nil {
		s, err := encodeJSON(c.Patient)
		if err != nil {
			return err
		}
		patient = sql.NullString{String: s, Valid: true}
	}
	if c.Rubric != nil {
		s, err := encodeJSON(c.Rubric)
		if err != nil {
			return err
		}
		rubric = sql.NullString{String: s, Valid: true}
	}
	literature := c.Literature
	if literature == nil {
		literature = []models.LiteratureReference{}
	}
	lit, err := encodeJSON(literature)
	if err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO cases (`+caseColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    title = excluded.title,
    internship_id = excluded.internship_id,
    patient_id = excluded.patient_id,
    curriculum_id = excluded.curriculum_id,
    sequence_order = excluded.sequence_order,
    allow_pause = excluded.allow_pause,
    max_duration_minutes = excluded.max_duration_minutes,
    stage_tracked = excluded.stage_tracked,
    pass_threshold = excluded.pass_threshold,
    patient = excluded.patient,
    rubric = excluded.rubric,
    literature = excluded.literature
`, c.ID, c.Title, c.InternshipID, c.PatientID, c.CurriculumID, c.SequenceOrder, c.AllowPause,
		c.MaxDurationMinutes, c.StageTracked, c.PassThreshold, patient, rubric, lit, c.CreatedAt)
	if err != nil {
		log.Error("failed to upsert case: %v", err)
	}
	return err
}

func (r *caseRepository) ListByPatient(ctx context.Context, patientID string) ([]models.Case, error) {
	log := logger.FromContext(ctx).WithPrefix("case_repo")

	rows, err := r.db.QueryContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE patient_id = ? ORDER BY sequence_order, id`, patientID)
	if err != nil {
		log.Error("failed to list cases: %v", err)
		return nil, err
	}
	defer rows.Close()

	var cases []models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			log.Error("failed to scan case row: %v", err)
			return nil, err
		}
		cases = append(cases, *c)
	}
	log.Debug("found %d cases for patient %s", len(cases), patientID)
	return cases, rows.Err()
}

func scanCase(row scanner) (*models.Case, error) {
	var c models.Case
	var maxMinutes sql.NullInt64
	var patient, rubric, literature sql.NullString
	err := row.Scan(&c.ID, &c.Title, &c.InternshipID, &c.PatientID, &c.CurriculumID, &c.SequenceOrder, &c.AllowPause,
		&maxMinutes, &c.StageTracked, &c.PassThreshold, &patient, &rubric, &literature, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.MaxDurationMinutes = intPtr(maxMinutes)
	if patient.Valid {
		c.Patient = &models.PatientProfile{}
		if err := decodeJSON(patient, c.Patient); err != nil {
			return nil, err
		}
	}
	if rubric.Valid {
		c.Rubric = &models.Rubric{}
		if err := decodeJSON(rubric, c.Rubric); err != nil {
			return nil, err
		}
	}
	if err := decodeJSON(literature, &c.Literature); err != nil {
		return nil, err
	}
	return &c, nil
}
