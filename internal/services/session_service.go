package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/jobs"
	"github.com/vytor/simclinic/internal/ledger"
	"github.com/vytor/simclinic/internal/logger"
	"github.com/vytor/simclinic/internal/metrics"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/oracle"
	"github.com/vytor/simclinic/internal/repository"
	"github.com/vytor/simclinic/internal/session"
	"github.com/vytor/simclinic/internal/timer"
)

// SessionService handles the lifecycle of simulated encounters
type SessionService interface {
	// Create starts a session, or returns the live one for the same student,
	// case and type. The bool reports whether a new session was created.
	Create(ctx context.Context, in CreateSessionInput) (*models.Session, bool, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	ListForStudent(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
	RecordMessage(ctx context.Context, id string, in MessageInput) (*models.Session, error)
	Pause(ctx context.Context, id string) (*models.Session, error)
	Resume(ctx context.Context, id string) (*models.Session, error)
	// Complete ends the session and triggers scoring. A scoring failure is
	// reported in the result, never as the returned error.
	Complete(ctx context.Context, id string) (*CompletionResult, error)
	Timer(ctx context.Context, id string) (*models.Timer, error)
	Delete(ctx context.Context, id string) error
}

type CreateSessionInput struct {
	StudentID    string             `json:"student_id" validate:"required,max=128"`
	CaseID       string             `json:"case_id" validate:"required,max=128"`
	InternshipID string             `json:"internship_id" validate:"max=128"`
	Type         models.SessionType `json:"type" validate:"omitempty,oneof=patient therapist"`
	OracleHandle string             `json:"oracle_handle" validate:"max=256"`
}

type MessageInput struct {
	Role    string `json:"role" validate:"required,max=32"`
	Content string `json:"content" validate:"required"`
}

type AssessmentOutcome string

const (
	AssessmentReady   AssessmentOutcome = "ready"
	AssessmentPending AssessmentOutcome = "pending"
	AssessmentFailed  AssessmentOutcome = "failed"
)

// CompletionResult is what a student sees after ending a session.
type CompletionResult struct {
	Session          *models.Session    `json:"session"`
	Assessment       *models.Assessment `json:"assessment,omitempty"`
	AssessmentStatus AssessmentOutcome  `json:"assessment_status"`
	Error            *CompletionError   `json:"assessment_error,omitempty"`
}

// CompletionError describes why scoring did not happen. Recoverable failures
// can be retried by requesting feedback again.
type CompletionError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

type sessionService struct {
	cases       repository.CaseRepository
	sessions    repository.SessionRepository
	ledgers     repository.LedgerRepository
	oracle      oracle.ClientInterface
	assessments AssessmentService
	queue       jobs.JobQueue
	nearTimeout time.Duration
	clock       Clock
}

// SessionDeps groups what the session service talks to. A nil Queue means
// completion scores synchronously.
type SessionDeps struct {
	Cases       repository.CaseRepository
	Sessions    repository.SessionRepository
	Ledgers     repository.LedgerRepository
	Oracle      oracle.ClientInterface
	Assessments AssessmentService
	Queue       jobs.JobQueue
	NearTimeout time.Duration
	Clock       Clock
}

// NewSessionService creates a new SessionService
func NewSessionService(d SessionDeps) SessionService {
	near := d.NearTimeout
	if near <= 0 {
		near = timer.DefaultNearTimeout
	}
	return &sessionService{
		cases:       d.Cases,
		sessions:    d.Sessions,
		ledgers:     d.Ledgers,
		oracle:      d.Oracle,
		assessments: d.Assessments,
		queue:       d.Queue,
		nearTimeout: near,
		clock:       d.Clock,
	}
}

// CheckCase reports a case that cannot run a simulation.
func CheckCase(c models.Case) error {
	if c.Patient == nil {
		return errors.NewConfigurationError("case "+c.ID, "patient simulation profile is missing")
	}
	if c.Rubric == nil || len(c.Rubric.Criteria) == 0 {
		return errors.NewConfigurationError("case "+c.ID, "assessment rubric is missing")
	}
	if c.Rubric.Format == models.RubricFormatWeighted {
		if total := c.Rubric.TotalWeight(); math.Abs(total-100) > 0.01 {
			return errors.NewConfigurationError("case "+c.ID, fmt.Sprintf("weighted rubric weights sum to %g, expected 100", total))
		}
	}
	return nil
}

func (s *sessionService) Create(ctx context.Context, in CreateSessionInput) (*models.Session, bool, error) {
	if err := validateInput(in); err != nil {
		return nil, false, err
	}
	if in.Type == "" {
		in.Type = models.SessionTypePatient
	}
	log := logger.FromContext(ctx).WithFields(map[string]any{
		"student_id": in.StudentID,
		"case_id":    in.CaseID,
	})

	c, err := s.cases.Get(ctx, in.CaseID)
	if err != nil {
		log.Error("failed to get case: %v", err)
		return nil, false, errors.NewInternalError(err)
	}
	if c == nil {
		return nil, false, errors.NewNotFoundError("case", in.CaseID)
	}
	if err := CheckCase(*c); err != nil {
		log.Warn("case cannot start a session: %v", err)
		return nil, false, err
	}

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		live, err := s.sessions.FindLive(ctx, in.StudentID, in.CaseID, in.Type)
		if err != nil {
			log.Error("failed to look up live session: %v", err)
			return nil, false, errors.NewInternalError(err)
		}
		if live != nil {
			log.Debug("returning live session %s", live.ID)
			return live, false, nil
		}

		number, err := s.sessions.NextNumber(ctx, in.StudentID, in.CaseID, in.Type)
		if err != nil {
			log.Error("failed to number session: %v", err)
			return nil, false, errors.NewInternalError(err)
		}

		now := s.clock.now()
		sess := session.New(uuid.NewString(), in.StudentID, *c, in.InternshipID, in.Type, number, in.OracleHandle, now)
		err = s.sessions.Insert(ctx, &sess)
		if stderrors.Is(err, repository.ErrDuplicate) {
			log.Debug("concurrent create won, reloading live session")
			continue
		}
		if err != nil {
			log.Error("failed to insert session: %v", err)
			return nil, false, errors.NewInternalError(err)
		}

		metrics.SessionTransitions.WithLabelValues(string(sess.Status)).Inc()
		log.Info("started session %s (#%d)", sess.ID, sess.SessionNumber)
		if err := s.ledgers.Touch(ctx, ledger.NewEntry(in.StudentID, *c, now)); err != nil {
			log.Warn("failed to mark case in progress: %v", err)
		}
		return &sess, true, nil
	}
	return nil, false, errors.NewConflictError("session for case " + in.CaseID + " is being created concurrently, retry")
}

func (s *sessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		logger.FromContext(ctx).Error("failed to get session: %v", err)
		return nil, errors.NewInternalError(err)
	}
	if sess == nil {
		return nil, errors.NewNotFoundError("session", id)
	}
	return sess, nil
}

func (s *sessionService) ListForStudent(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	if filter.StudentID == "" {
		return nil, errors.NewValidationError("student_id", "is required")
	}
	list, err := s.sessions.List(ctx, filter)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list sessions: %v", err)
		return nil, errors.NewInternalError(err)
	}
	return list, nil
}

func (s *sessionService) RecordMessage(ctx context.Context, id string, in MessageInput) (*models.Session, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	return updateSession(ctx, s.sessions, id, func(sess *models.Session) error {
		return session.RecordMessage(sess, in.Role, in.Content, s.clock.now())
	})
}

func (s *sessionService) Pause(ctx context.Context, id string) (*models.Session, error) {
	allowPause, err := s.allowsPause(ctx, id)
	if err != nil {
		return nil, err
	}
	return updateSession(ctx, s.sessions, id, func(sess *models.Session) error {
		return session.Pause(sess, allowPause, s.clock.now())
	})
}

func (s *sessionService) allowsPause(ctx context.Context, id string) (bool, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	c, err := s.cases.Get(ctx, sess.CaseID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to get case: %v", err)
		return false, errors.NewInternalError(err)
	}
	if c == nil {
		return false, errors.NewNotFoundError("case", sess.CaseID)
	}
	return c.AllowPause, nil
}

func (s *sessionService) Resume(ctx context.Context, id string) (*models.Session, error) {
	return updateSession(ctx, s.sessions, id, func(sess *models.Session) error {
		return session.Resume(sess, s.clock.now())
	})
}

func (s *sessionService) Complete(ctx context.Context, id string) (*CompletionResult, error) {
	log := logger.FromContext(ctx).WithField("session_id", id)
	ctx = logger.NewContext(ctx, log)

	sess, err := updateSession(ctx, s.sessions, id, func(sess *models.Session) error {
		return session.Complete(sess, s.clock.now())
	})
	if err != nil {
		return nil, err
	}
	log.Info("session completed after %ds active", sess.TotalActiveSeconds)

	if sess.OracleHandle != "" {
		if err := s.oracle.ReleaseSession(ctx, sess.OracleHandle); err != nil {
			log.Warn("failed to release oracle session %s: %v", sess.OracleHandle, err)
		}
	}

	result := &CompletionResult{Session: sess}
	if s.queue != nil {
		if err := s.queue.EnqueueAssessment(sess.ID); err != nil {
			log.Warn("failed to enqueue assessment: %v", err)
			result.AssessmentStatus = AssessmentFailed
			result.Error = &CompletionError{
				Code:        errors.ErrCodeUpstreamUnavailable,
				Message:     "scoring could not be scheduled; request feedback to retry",
				Recoverable: true,
			}
			return result, nil
		}
		result.AssessmentStatus = AssessmentPending
		return result, nil
	}

	a, err := s.assessments.Generate(ctx, sess.ID)
	if err != nil {
		result.AssessmentStatus = AssessmentFailed
		result.Error = completionError(err)
		return result, nil
	}
	result.Assessment = a
	result.AssessmentStatus = AssessmentReady
	if fresh, err := s.sessions.Get(ctx, sess.ID); err == nil && fresh != nil {
		result.Session = fresh
	}
	return result, nil
}

func completionError(err error) *CompletionError {
	if appErr, ok := errors.As(err); ok {
		return &CompletionError{Code: appErr.Code, Message: appErr.Message, Recoverable: appErr.Recoverable()}
	}
	return &CompletionError{Code: errors.ErrCodeInternal, Message: err.Error()}
}

func (s *sessionService) Timer(ctx context.Context, id string) (*models.Timer, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	t := timer.Compute(*sess, s.clock.now(), s.nearTimeout)
	return &t, nil
}

func (s *sessionService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.sessions.SoftDelete(ctx, id, s.clock.now()); err != nil {
		logger.FromContext(ctx).Error("failed to delete session: %v", err)
		return errors.NewInternalError(err)
	}
	logger.FromContext(ctx).Info("session %s soft deleted", id)
	return nil
}
