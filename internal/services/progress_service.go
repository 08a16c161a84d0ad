package services

import (
	"context"
	stderrors "errors"
	"math"
	"time"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/logger"
	"github.com/vytor/simclinic/internal/metrics"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/repository"
	"github.com/vytor/simclinic/internal/session"
	"github.com/vytor/simclinic/internal/stage"
)

// ProgressService handles three-stage internship progress
type ProgressService interface {
	// AutoUpdate classifies a scored session into a stage and folds its
	// effective score in. A session already counted keeps its stage and is
	// only rescored.
	AutoUpdate(ctx context.Context, sess models.Session, a models.Assessment, memory *models.Memory) (*models.StageProgress, error)
	Recalculate(ctx context.Context, studentID, internshipID string) (*models.StageProgress, error)
	Get(ctx context.Context, studentID, internshipID string) (*models.StageProgress, error)
	UpdateStage(ctx context.Context, studentID, internshipID string, stageNumber int, in StageUpdateInput) (*models.StageProgress, error)
	ValidateStage(ctx context.Context, studentID, internshipID, reviewerID string, stageNumber int, in StageValidationInput) (*models.StageProgress, error)
	Dashboard(ctx context.Context, internshipID string) (*models.StageDashboard, error)
	Timeline(ctx context.Context, studentID, internshipID string) (*models.Timeline, error)
	ExportRows(ctx context.Context, internshipID string) ([]models.StageExportRow, error)
}

// StageUpdateInput is a professor's direct edit of one stage.
type StageUpdateInput struct {
	Status *models.StageStatus `json:"status" validate:"omitempty,oneof=NOT_STARTED IN_PROGRESS COMPLETED VALIDATED NEEDS_REVISION"`
	Score  *float64            `json:"score" validate:"omitempty,gte=0,lte=100"`
	Notes  *string             `json:"notes" validate:"omitempty,max=4000"`
}

// StageValidationInput is a professor's verdict on one stage.
type StageValidationInput struct {
	Status      models.StageStatus `json:"status" validate:"required,oneof=VALIDATED NEEDS_REVISION"`
	EditedScore *float64           `json:"edited_score" validate:"omitempty,gte=0,lte=100"`
	Notes       string             `json:"notes" validate:"max=4000"`
}

type progressService struct {
	progress    repository.ProgressRepository
	sessions    repository.SessionRepository
	assessments repository.AssessmentRepository
	classifier  stage.Classifier
	clock       Clock
}

// NewProgressService creates a new ProgressService
func NewProgressService(
	progress repository.ProgressRepository,
	sessions repository.SessionRepository,
	assessments repository.AssessmentRepository,
	classifier stage.Classifier,
	clock Clock,
) ProgressService {
	return &progressService{
		progress:    progress,
		sessions:    sessions,
		assessments: assessments,
		classifier:  classifier,
		clock:       clock,
	}
}

// update runs the optimistic read-modify-write loop for one progress record.
// With create set, a missing record is inserted first.
func (s *progressService) update(ctx context.Context, studentID, internshipID string, create bool, fn func(*models.StageProgress, time.Time) (*models.StageSession, error)) (*models.StageProgress, error) {
	log := logger.FromContext(ctx).WithFields(map[string]any{
		"student_id":    studentID,
		"internship_id": internshipID,
	})

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		now := s.clock.now()
		p, err := s.progress.Get(ctx, studentID, internshipID)
		if err != nil {
			log.Error("failed to load stage progress: %v", err)
			return nil, errors.NewInternalError(err)
		}
		if p == nil {
			if !create {
				return nil, errors.NewNotFoundError("stage progress", studentID+"/"+internshipID)
			}
			fresh := stage.NewProgress(studentID, internshipID, now)
			if err := s.progress.Insert(ctx, &fresh); err != nil {
				if stderrors.Is(err, repository.ErrDuplicate) {
					continue
				}
				log.Error("failed to create stage progress: %v", err)
				return nil, errors.NewInternalError(err)
			}
			log.Info("created stage progress")
			p = &fresh
		}

		ss, err := fn(p, now)
		if err != nil {
			return nil, err
		}

		err = s.progress.Save(ctx, p, ss)
		if err == nil {
			return p, nil
		}
		if !stderrors.Is(err, repository.ErrVersionConflict) {
			log.Error("failed to save stage progress: %v", err)
			return nil, errors.NewInternalError(err)
		}
		metrics.VersionConflicts.WithLabelValues("stage_progress").Inc()
		log.Debug("version conflict on attempt %d, reloading", attempt)
	}
	return nil, errors.NewConflictError("stage progress is being modified concurrently, retry")
}

func (s *progressService) AutoUpdate(ctx context.Context, sess models.Session, a models.Assessment, memory *models.Memory) (*models.StageProgress, error) {
	if sess.InternshipID == "" {
		return nil, errors.NewValidationError("internship_id", "session is not part of an internship")
	}
	log := logger.FromContext(ctx).WithField("session_id", sess.ID)

	return s.update(ctx, sess.StudentID, sess.InternshipID, true, func(p *models.StageProgress, now time.Time) (*models.StageSession, error) {
		counted, err := s.progress.GetStageSession(ctx, p.ID, sess.ID)
		if err != nil {
			log.Error("failed to load stage session: %v", err)
			return nil, errors.NewInternalError(err)
		}

		ss := &models.StageSession{ProgressID: p.ID, SessionID: sess.ID, CaseID: sess.CaseID, ClassifiedAt: now}
		if counted != nil {
			ss.StageNumber = counted.StageNumber
			ss.ClassifiedAt = counted.ClassifiedAt
		} else {
			ss.StageNumber = s.classifier.Classify(session.TranscriptText(sess), memory)
		}

		score := a.EffectiveScore()
		ss.Score = &score
		err = stage.ApplySession(p, ss.StageNumber, stage.SessionResult{
			SessionID: sess.ID,
			CaseID:    sess.CaseID,
			AIScore:   a.OverallScore,
			Score:     score,
			Metrics:   stage.Metrics(ss.StageNumber, a, memory),
			Counted:   counted != nil,
		}, now)
		if err != nil {
			return nil, err
		}
		log.Info("stage %d updated: score=%.1f, rescore=%t, overall=%.1f%%", ss.StageNumber, score, counted != nil, p.OverallProgress)
		return ss, nil
	})
}

func (s *progressService) Recalculate(ctx context.Context, studentID, internshipID string) (*models.StageProgress, error) {
	return s.update(ctx, studentID, internshipID, false, func(p *models.StageProgress, now time.Time) (*models.StageSession, error) {
		stage.Recalculate(p, now)
		return nil, nil
	})
}

func (s *progressService) Get(ctx context.Context, studentID, internshipID string) (*models.StageProgress, error) {
	p, err := s.progress.Get(ctx, studentID, internshipID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to get stage progress: %v", err)
		return nil, errors.NewInternalError(err)
	}
	if p == nil {
		return nil, errors.NewNotFoundError("stage progress", studentID+"/"+internshipID)
	}
	return p, nil
}

func (s *progressService) UpdateStage(ctx context.Context, studentID, internshipID string, stageNumber int, in StageUpdateInput) (*models.StageProgress, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	return s.update(ctx, studentID, internshipID, true, func(p *models.StageProgress, now time.Time) (*models.StageSession, error) {
		return nil, stage.UpdateStage(p, stageNumber, stage.StageUpdate{
			Status: in.Status,
			Score:  in.Score,
			Notes:  in.Notes,
		}, now)
	})
}

func (s *progressService) ValidateStage(ctx context.Context, studentID, internshipID, reviewerID string, stageNumber int, in StageValidationInput) (*models.StageProgress, error) {
	if reviewerID == "" {
		return nil, errors.NewValidationError("reviewer_id", "is required")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	return s.update(ctx, studentID, internshipID, false, func(p *models.StageProgress, now time.Time) (*models.StageSession, error) {
		return nil, stage.ValidateStage(p, stageNumber, in.Status, reviewerID, in.EditedScore, in.Notes, now)
	})
}

func (s *progressService) Dashboard(ctx context.Context, internshipID string) (*models.StageDashboard, error) {
	records, err := s.progress.ListByInternship(ctx, internshipID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list stage progress: %v", err)
		return nil, errors.NewInternalError(err)
	}

	d := &models.StageDashboard{InternshipID: internshipID, Students: records}
	for i := range d.StatusCounts {
		d.StatusCounts[i] = map[models.StageStatus]int{}
	}
	var sum float64
	for _, p := range records {
		for i, st := range p.Stages {
			d.StatusCounts[i][st.Status]++
		}
		sum += p.OverallProgress
		if p.AllStagesCompleted {
			d.CompletedCount++
		}
	}
	if len(records) > 0 {
		d.AverageProgress = math.Round(sum/float64(len(records))*10) / 10
	}
	return d, nil
}

// Timeline lists the counted sessions of a record, oldest first, with their
// assessment summary when one exists.
func (s *progressService) Timeline(ctx context.Context, studentID, internshipID string) (*models.Timeline, error) {
	log := logger.FromContext(ctx)

	p, err := s.Get(ctx, studentID, internshipID)
	if err != nil {
		return nil, err
	}
	counted, err := s.progress.ListStageSessions(ctx, p.ID)
	if err != nil {
		log.Error("failed to list stage sessions: %v", err)
		return nil, errors.NewInternalError(err)
	}

	ids := make([]string, 0, len(counted))
	for _, ss := range counted {
		ids = append(ids, ss.SessionID)
	}
	byID, err := s.sessions.ListByIDs(ctx, ids)
	if err != nil {
		log.Error("failed to load counted sessions: %v", err)
		return nil, errors.NewInternalError(err)
	}
	scored, err := s.assessments.ListBySessions(ctx, ids)
	if err != nil {
		log.Error("failed to list assessments: %v", err)
		return nil, errors.NewInternalError(err)
	}

	t := &models.Timeline{Progress: *p, Sessions: []models.TimelineItem{}}
	for _, ss := range counted {
		item := models.TimelineItem{StageSession: ss}
		if sess, ok := byID[ss.SessionID]; ok {
			item.SessionNumber = sess.SessionNumber
			item.StartedAt = sess.StartedAt
			item.EndedAt = sess.EndedAt
			item.ActiveSeconds = sess.TotalActiveSeconds
			item.Status = sess.Status
		}
		if a, ok := scored[ss.SessionID]; ok {
			item.Assessment = &models.AssessmentBrief{
				ID:             a.ID,
				OverallScore:   a.OverallScore,
				EffectiveScore: a.EffectiveScore(),
				Grade:          a.Grade,
				PassFail:       a.PassFail,
				Status:         a.Status,
			}
		}
		t.Sessions = append(t.Sessions, item)
	}
	return t, nil
}

func (s *progressService) ExportRows(ctx context.Context, internshipID string) ([]models.StageExportRow, error) {
	records, err := s.progress.ListByInternship(ctx, internshipID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list stage progress: %v", err)
		return nil, errors.NewInternalError(err)
	}

	rows := make([]models.StageExportRow, 0, len(records))
	for _, p := range records {
		row := models.StageExportRow{
			StudentID:       p.StudentID,
			Stage1Status:    string(p.Stages[0].Status),
			Stage1Score:     p.Stages[0].Score,
			Stage1Sessions:  p.Stages[0].SessionsCount,
			Stage2Status:    string(p.Stages[1].Status),
			Stage2Score:     p.Stages[1].Score,
			Stage2Sessions:  p.Stages[1].SessionsCount,
			Stage3Status:    string(p.Stages[2].Status),
			Stage3Score:     p.Stages[2].Score,
			Stage3Sessions:  p.Stages[2].SessionsCount,
			TotalSessions:   p.TotalSessions,
			OverallProgress: p.OverallProgress,
			OverallScore:    p.OverallScore,
		}
		if p.InternshipCompletedAt != nil {
			row.InternshipCompletedAt = p.InternshipCompletedAt.Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
