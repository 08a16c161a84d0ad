package services

import (
	"context"
	"strings"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/logger"
	"github.com/vytor/simclinic/internal/metrics"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/repository"
	"github.com/vytor/simclinic/internal/session"
)

// FeedbackService handles professor review of assessments
type FeedbackService interface {
	Get(ctx context.Context, id string) (*models.Assessment, error)
	GetForSession(ctx context.Context, sessionID string) (*models.Assessment, error)
	// Validate records the professor's verdict and optional edited score.
	Validate(ctx context.Context, id, reviewerID string, in ValidateInput) (*models.Assessment, error)
	// Update amends the AI-generated fields and marks the assessment REVISED.
	Update(ctx context.Context, id, reviewerID string, in UpdateInput) (*models.Assessment, error)
}

type ValidateInput struct {
	Approved    bool     `json:"approved"`
	Comments    string   `json:"comments" validate:"max=4000"`
	EditedScore *float64 `json:"edited_score" validate:"omitempty,gte=0,lte=100"`
}

// UpdateInput is a partial patch; nil fields are left as they are.
type UpdateInput struct {
	OverallScore    *float64  `json:"overall_score" validate:"omitempty,gte=0,lte=100"`
	Grade           *string   `json:"grade" validate:"omitempty,max=8"`
	PassFail        *string   `json:"pass_fail" validate:"omitempty,oneof=PASS FAIL"`
	Strengths       *[]string `json:"strengths"`
	Weaknesses      *[]string `json:"weaknesses"`
	Recommendations *[]string `json:"recommendations"`
	Evolution       *string   `json:"evolution"`
}

type feedbackService struct {
	cases       repository.CaseRepository
	sessions    repository.SessionRepository
	assessments repository.AssessmentRepository
	progress    ProgressService
	clock       Clock
}

// NewFeedbackService creates a new FeedbackService
func NewFeedbackService(
	cases repository.CaseRepository,
	sessions repository.SessionRepository,
	assessments repository.AssessmentRepository,
	progress ProgressService,
	clock Clock,
) FeedbackService {
	return &feedbackService{
		cases:       cases,
		sessions:    sessions,
		assessments: assessments,
		progress:    progress,
		clock:       clock,
	}
}

func (s *feedbackService) Get(ctx context.Context, id string) (*models.Assessment, error) {
	a, err := s.assessments.Get(ctx, id)
	if err != nil {
		logger.FromContext(ctx).Error("failed to get assessment: %v", err)
		return nil, errors.NewInternalError(err)
	}
	if a == nil {
		return nil, errors.NewNotFoundError("assessment", id)
	}
	return a, nil
}

func (s *feedbackService) GetForSession(ctx context.Context, sessionID string) (*models.Assessment, error) {
	a, err := s.assessments.GetBySession(ctx, sessionID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to get assessment for session: %v", err)
		return nil, errors.NewInternalError(err)
	}
	if a == nil {
		return nil, errors.NewNotFoundError("assessment for session", sessionID)
	}
	return a, nil
}

func (s *feedbackService) Validate(ctx context.Context, id, reviewerID string, in ValidateInput) (*models.Assessment, error) {
	if strings.TrimSpace(reviewerID) == "" {
		return nil, errors.NewValidationError("reviewer_id", "is required")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).WithFields(map[string]any{"assessment_id": id, "reviewer_id": reviewerID})
	ctx = logger.NewContext(ctx, log)

	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkAdvance(ctx, a.SessionID, models.SessionValidated); err != nil {
		return nil, err
	}

	now := s.clock.now()
	a.Validation = &models.Validation{
		ReviewerID:  reviewerID,
		ReviewedAt:  now,
		Approved:    in.Approved,
		EditedScore: in.EditedScore,
		Comments:    in.Comments,
	}
	a.Status = models.AssessmentValidated
	if err := s.assessments.Update(ctx, *a); err != nil {
		log.Error("failed to store validation: %v", err)
		return nil, errors.NewInternalError(err)
	}
	log.Info("assessment validated: approved=%t, effective score=%.0f", in.Approved, a.EffectiveScore())

	sess, err := updateSession(ctx, s.sessions, a.SessionID, func(x *models.Session) error {
		return session.Advance(x, models.SessionValidated, s.clock.now())
	})
	if err != nil {
		return nil, err
	}
	s.rescore(ctx, *sess, *a)
	return a, nil
}

func (s *feedbackService) Update(ctx context.Context, id, reviewerID string, in UpdateInput) (*models.Assessment, error) {
	if strings.TrimSpace(reviewerID) == "" {
		return nil, errors.NewValidationError("reviewer_id", "is required")
	}
	if in.PassFail != nil {
		upper := strings.ToUpper(strings.TrimSpace(*in.PassFail))
		in.PassFail = &upper
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).WithFields(map[string]any{"assessment_id": id, "reviewer_id": reviewerID})
	ctx = logger.NewContext(ctx, log)

	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkAdvance(ctx, a.SessionID, models.SessionRevised); err != nil {
		return nil, err
	}

	before := a.EffectiveScore()
	if in.OverallScore != nil {
		a.OverallScore = *in.OverallScore
	}
	if in.Grade != nil {
		a.Grade = *in.Grade
	}
	if in.PassFail != nil {
		a.PassFail = *in.PassFail
	}
	if in.Strengths != nil {
		a.Strengths = *in.Strengths
	}
	if in.Weaknesses != nil {
		a.Weaknesses = *in.Weaknesses
	}
	if in.Recommendations != nil {
		a.Recommendations = *in.Recommendations
	}
	if in.Evolution != nil {
		a.Evolution = *in.Evolution
	}
	now := s.clock.now()
	a.Status = models.AssessmentRevised
	a.RevisedBy = reviewerID
	a.RevisedAt = &now

	if err := s.assessments.Update(ctx, *a); err != nil {
		log.Error("failed to store revision: %v", err)
		return nil, errors.NewInternalError(err)
	}
	log.Info("assessment revised")

	sess, err := updateSession(ctx, s.sessions, a.SessionID, func(x *models.Session) error {
		return session.Advance(x, models.SessionRevised, s.clock.now())
	})
	if err != nil {
		return nil, err
	}
	if a.EffectiveScore() != before {
		s.rescore(ctx, *sess, *a)
	}
	return a, nil
}

// checkAdvance rejects a review step the session cannot take before the
// assessment is written. The session itself moves only after that write.
func (s *feedbackService) checkAdvance(ctx context.Context, sessionID string, to models.SessionStatus) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to get session: %v", err)
		return errors.NewInternalError(err)
	}
	if sess == nil {
		return errors.NewNotFoundError("session", sessionID)
	}
	return session.Advance(sess, to, s.clock.now())
}

// rescore refreshes the stage score of a stage-tracked case. The session is
// already counted, so only its score changes.
func (s *feedbackService) rescore(ctx context.Context, sess models.Session, a models.Assessment) {
	log := logger.FromContext(ctx)
	if sess.InternshipID == "" {
		return
	}
	c, err := s.cases.Get(ctx, sess.CaseID)
	if err != nil || c == nil {
		log.Warn("skipping stage rescore, case %s unavailable: %v", sess.CaseID, err)
		return
	}
	if !c.StageTracked {
		return
	}
	if _, err := s.progress.AutoUpdate(ctx, sess, a, nil); err != nil {
		metrics.EffectOutcomes.WithLabelValues("stage_rescore", "error").Inc()
		log.WithError(err).Warn("stage rescore failed")
		return
	}
	metrics.EffectOutcomes.WithLabelValues("stage_rescore", "ok").Inc()
}
