package services

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/ledger"
	"github.com/vytor/simclinic/internal/logger"
	"github.com/vytor/simclinic/internal/memory"
	"github.com/vytor/simclinic/internal/metrics"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/oracle"
	"github.com/vytor/simclinic/internal/repository"
	"github.com/vytor/simclinic/internal/session"
	"github.com/vytor/simclinic/internal/worker"
)

// AssessmentService scores completed sessions through the oracle
type AssessmentService interface {
	// Generate returns the session's assessment, asking the oracle for one
	// when none exists yet. Calling it again never creates a second record.
	Generate(ctx context.Context, sessionID string) (*models.Assessment, error)
}

var _ worker.AssessmentGenerator = (AssessmentService)(nil)

type assessmentService struct {
	cases       repository.CaseRepository
	sessions    repository.SessionRepository
	assessments repository.AssessmentRepository
	ledgers     repository.LedgerRepository
	oracle      oracle.ClientInterface
	memory      memory.ClientInterface
	effects     *effects
	clock       Clock
}

// AssessmentDeps groups what the assessment service talks to.
type AssessmentDeps struct {
	Cases         repository.CaseRepository
	Sessions      repository.SessionRepository
	Assessments   repository.AssessmentRepository
	Ledgers       repository.LedgerRepository
	Oracle        oracle.ClientInterface
	Memory        memory.ClientInterface
	Ledger        LedgerService
	Progress      ProgressService
	EffectTimeout time.Duration
	Clock         Clock
}

// NewAssessmentService creates a new AssessmentService
func NewAssessmentService(d AssessmentDeps) AssessmentService {
	timeout := d.EffectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &assessmentService{
		cases:       d.Cases,
		sessions:    d.Sessions,
		assessments: d.Assessments,
		ledgers:     d.Ledgers,
		oracle:      d.Oracle,
		memory:      d.Memory,
		effects: &effects{
			ledger:   d.Ledger,
			progress: d.Progress,
			memory:   d.Memory,
			timeout:  timeout,
		},
		clock: d.Clock,
	}
}

func (s *assessmentService) Generate(ctx context.Context, sessionID string) (*models.Assessment, error) {
	log := logger.FromContext(ctx).WithField("session_id", sessionID)
	ctx = logger.NewContext(ctx, log)

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		log.Error("failed to get session: %v", err)
		return nil, errors.NewInternalError(err)
	}
	if sess == nil {
		return nil, errors.NewNotFoundError("session", sessionID)
	}
	if !sess.Status.Finished() {
		return nil, errors.NewInvalidStateReason("session", "assessment requires a completed session, session is "+string(sess.Status))
	}

	c, err := s.cases.Get(ctx, sess.CaseID)
	if err != nil {
		log.Error("failed to get case: %v", err)
		return nil, errors.NewInternalError(err)
	}
	if c == nil {
		return nil, errors.NewNotFoundError("case", sess.CaseID)
	}

	existing, err := s.assessments.GetBySession(ctx, sessionID)
	if err != nil {
		log.Error("failed to look up assessment: %v", err)
		return nil, errors.NewInternalError(err)
	}
	if existing != nil {
		log.Debug("assessment %s already exists", existing.ID)
		// A crash between storing the record and advancing the session
		// leaves it COMPLETED; finish the job now.
		if sess.Status == models.SessionCompleted {
			if err := s.finish(ctx, *sess, *c, *existing, nil); err != nil {
				return nil, err
			}
		}
		metrics.AssessmentsGenerated.WithLabelValues("existing").Inc()
		return existing, nil
	}

	mem := s.lookupMemory(ctx, sess.StudentID, c.CurriculumID)

	var history *models.LedgerEntry
	if history, err = s.ledgers.Get(ctx, sess.StudentID, c.ID); err != nil {
		log.Warn("attempt history unavailable, scoring without it: %v", err)
		history = nil
	}

	req := oracle.Request{
		SessionID:      sess.ID,
		Transcript:     sess.Transcript,
		PassThreshold:  c.EffectivePassThreshold(),
		Literature:     c.Literature,
		PriorAttempts:  ledger.Summary(history),
		Memory:         mem,
		PatientProfile: c.Patient,
	}
	if c.Rubric != nil {
		req.RubricFormat = c.Rubric.Format
		req.Rubric = c.Rubric.Criteria
	}

	resp, err := s.oracle.Assess(ctx, req)
	if err != nil {
		metrics.AssessmentsGenerated.WithLabelValues("failed").Inc()
		log.WithError(err).Warn("oracle could not score session, it stays %s", sess.Status)
		return nil, err
	}

	a := models.Assessment{
		ID:              uuid.NewString(),
		SessionID:       sess.ID,
		StudentID:       sess.StudentID,
		CaseID:          sess.CaseID,
		InternshipID:    sess.InternshipID,
		OverallScore:    resp.OverallScore,
		Criteria:        resp.Criteria,
		Grade:           resp.Grade,
		PassFail:        resp.PassFail,
		PassThreshold:   resp.PassThreshold,
		Strengths:       resp.Strengths,
		Weaknesses:      resp.Weaknesses,
		Recommendations: resp.Recommendations,
		Evolution:       resp.Evolution,
		Status:          models.AssessmentPendingValidation,
		GeneratedAt:     s.clock.now(),
	}
	if err := s.assessments.Insert(ctx, a); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			winner, gerr := s.assessments.GetBySession(ctx, sessionID)
			if gerr != nil || winner == nil {
				log.Error("failed to load concurrent assessment: %v", gerr)
				return nil, errors.NewInternalError(err)
			}
			log.Info("concurrent generation won, returning assessment %s", winner.ID)
			metrics.AssessmentsGenerated.WithLabelValues("existing").Inc()
			return winner, nil
		}
		log.Error("failed to store assessment: %v", err)
		return nil, errors.NewInternalError(err)
	}
	log.Info("assessment %s stored: score=%.0f, grade=%s, %s", a.ID, a.OverallScore, a.Grade, a.PassFail)
	metrics.AssessmentsGenerated.WithLabelValues("created").Inc()

	if err := s.finish(ctx, *sess, *c, a, mem); err != nil {
		return nil, err
	}
	return &a, nil
}

// finish advances the session to PENDING_VALIDATION and runs the effects.
func (s *assessmentService) finish(ctx context.Context, sess models.Session, c models.Case, a models.Assessment, mem *models.Memory) error {
	advanced, err := updateSession(ctx, s.sessions, sess.ID, func(x *models.Session) error {
		if x.Status != models.SessionCompleted {
			return errUnchanged
		}
		return session.Advance(x, models.SessionPendingValidation, s.clock.now())
	})
	if err != nil {
		return err
	}
	if mem == nil {
		mem = s.lookupMemory(ctx, sess.StudentID, c.CurriculumID)
	}
	s.effects.run(ctx, *advanced, c, a, mem)
	return nil
}

// lookupMemory fetches continuity context. Failures only degrade scoring.
func (s *assessmentService) lookupMemory(ctx context.Context, studentID, curriculumID string) *models.Memory {
	if curriculumID == "" {
		return nil
	}
	mem, err := s.memory.Get(ctx, studentID, curriculumID)
	if err != nil {
		logger.FromContext(ctx).Warn("continuity memory unavailable, scoring without it: %v", err)
		return nil
	}
	return mem
}
