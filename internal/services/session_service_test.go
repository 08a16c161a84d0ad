package services_test

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/services"
	"github.com/vytor/simclinic/internal/testutil"
	"github.com/vytor/simclinic/internal/testutil/mocks"
)

type SessionServiceSuite struct {
	serviceSuite
}

func TestSessionServiceSuite(t *testing.T) {
	suite.Run(t, new(SessionServiceSuite))
}

func (s *SessionServiceSuite) TestCreate_ReturnsLiveSessionIdempotently() {
	in := services.CreateSessionInput{StudentID: "stu-1", CaseID: "case-1", InternshipID: "int-1"}

	first, created, err := s.sessionSvc.Create(s.ctx, in)
	s.Require().NoError(err)
	s.True(created)
	s.Equal(models.SessionActive, first.Status)
	s.Equal(1, first.SessionNumber)
	s.Equal(models.SessionTypePatient, first.Type)

	second, created, err := s.sessionSvc.Create(s.ctx, in)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ID, second.ID)

	// Another interaction type is a separate live slot.
	in.Type = models.SessionTypeTherapist
	other, created, err := s.sessionSvc.Create(s.ctx, in)
	s.Require().NoError(err)
	s.True(created)
	s.NotEqual(first.ID, other.ID)

	entry, err := s.ledgerSvc.History(s.ctx, "stu-1", "case-1")
	s.Require().NoError(err)
	s.Equal(models.LedgerInProgress, entry.CurrentStatus)
}

func (s *SessionServiceSuite) TestCreate_ConcurrentCallersShareOneSession() {
	in := services.CreateSessionInput{StudentID: "stu-1", CaseID: "case-1"}

	var wg sync.WaitGroup
	ids := make([]string, 4)
	errs := make([]error, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, _, err := s.sessionSvc.Create(s.ctx, in)
			errs[i] = err
			if sess != nil {
				ids[i] = sess.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		s.Require().NoError(errs[i])
		s.Equal(ids[0], ids[i])
	}
	live, err := s.sessionSvc.ListForStudent(s.ctx, models.SessionFilter{StudentID: "stu-1", Statuses: []models.SessionStatus{models.SessionActive}})
	s.Require().NoError(err)
	s.Len(live, 1)
}

func (s *SessionServiceSuite) TestCreate_NumbersSessionsPerCase() {
	sess := s.startSession()
	s.expectAssess(scoreResponse(82, "B"), nil)
	_, err := s.sessionSvc.Complete(s.ctx, sess.ID)
	s.Require().NoError(err)

	next, created, err := s.sessionSvc.Create(s.ctx, services.CreateSessionInput{StudentID: "stu-1", CaseID: "case-1"})
	s.Require().NoError(err)
	s.True(created)
	s.Equal(2, next.SessionNumber)
}

func (s *SessionServiceSuite) TestCreate_RejectsBadInputAndCases() {
	_, _, err := s.sessionSvc.Create(s.ctx, services.CreateSessionInput{CaseID: "case-1"})
	s.assertCode(err, errors.ErrCodeValidation)
	appErr, _ := errors.As(err)
	s.Contains(appErr.Fields, "student_id")

	_, _, err = s.sessionSvc.Create(s.ctx, services.CreateSessionInput{StudentID: "stu-1", CaseID: "case-1", Type: "group"})
	s.assertCode(err, errors.ErrCodeValidation)

	_, _, err = s.sessionSvc.Create(s.ctx, services.CreateSessionInput{StudentID: "stu-1", CaseID: "missing"})
	s.assertCode(err, errors.ErrCodeNotFound)

	noPatient := testutil.SeedCase("case-np")
	noPatient.Patient = nil
	s.Require().NoError(s.cases.Upsert(s.ctx, noPatient))
	_, _, err = s.sessionSvc.Create(s.ctx, services.CreateSessionInput{StudentID: "stu-1", CaseID: "case-np"})
	s.assertCode(err, errors.ErrCodeConfiguration)

	badWeights := testutil.SeedCase("case-w")
	badWeights.Rubric.Criteria[0].Weight = 15
	s.Require().NoError(s.cases.Upsert(s.ctx, badWeights))
	_, _, err = s.sessionSvc.Create(s.ctx, services.CreateSessionInput{StudentID: "stu-1", CaseID: "case-w"})
	s.assertCode(err, errors.ErrCodeConfiguration)
	s.Contains(err.Error(), "sum to 90")
}

func (s *SessionServiceSuite) TestPauseResume_DoesNotCountPausedTime() {
	sess := s.startSession()

	s.clock.Advance(60 * time.Second)
	paused, err := s.sessionSvc.Pause(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(models.SessionPaused, paused.Status)
	s.EqualValues(60, paused.TotalActiveSeconds)

	s.clock.Advance(5 * time.Minute)
	t, err := s.sessionSvc.Timer(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.True(t.Paused)
	s.EqualValues(60, t.ElapsedSeconds)

	resumed, err := s.sessionSvc.Resume(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(models.SessionActive, resumed.Status)
	s.Require().Len(resumed.PauseHistory, 1)
	s.EqualValues(300, resumed.PauseHistory[0].DurationSeconds)

	s.clock.Advance(30 * time.Second)
	t, err = s.sessionSvc.Timer(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.EqualValues(90, t.ElapsedSeconds)

	s.expectAssess(nil, errors.NewUpstreamUnavailableError("assessment oracle", nil))
	res, err := s.sessionSvc.Complete(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.EqualValues(90, res.Session.TotalActiveSeconds)
}

func (s *SessionServiceSuite) TestPause_IllegalMoves() {
	sess := s.startSession()

	_, err := s.sessionSvc.Resume(s.ctx, sess.ID)
	s.assertCode(err, errors.ErrCodeInvalidState)
	s.Contains(err.Error(), "from ACTIVE to ACTIVE")

	_, err = s.sessionSvc.Pause(s.ctx, sess.ID)
	s.Require().NoError(err)
	_, err = s.sessionSvc.Pause(s.ctx, sess.ID)
	s.assertCode(err, errors.ErrCodeInvalidState)

	_, err = s.sessionSvc.RecordMessage(s.ctx, sess.ID, services.MessageInput{Role: "student", Content: "still there?"})
	s.assertCode(err, errors.ErrCodeInvalidState)

	_, err = s.sessionSvc.Complete(s.ctx, sess.ID)
	s.assertCode(err, errors.ErrCodeInvalidState)
}

func (s *SessionServiceSuite) TestPause_CaseWithoutPausing() {
	c := testutil.SeedCase("case-np")
	c.AllowPause = false
	s.Require().NoError(s.cases.Upsert(s.ctx, c))
	sess, _, err := s.sessionSvc.Create(s.ctx, services.CreateSessionInput{StudentID: "stu-1", CaseID: "case-np"})
	s.Require().NoError(err)

	_, err = s.sessionSvc.Pause(s.ctx, sess.ID)
	s.assertCode(err, errors.ErrCodeInvalidState)
	s.Contains(err.Error(), "does not allow pausing")
}

func (s *SessionServiceSuite) TestPause_ConcurrentCallsAppendOneEntry() {
	sess := s.startSession()
	s.clock.Advance(time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.sessionSvc.Pause(s.ctx, sess.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.Equal(errors.ErrCodeInvalidState, errors.Code(err))
	}
	s.Equal(1, succeeded)

	got, err := s.sessionSvc.Get(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Len(got.PauseHistory, 1)
	s.EqualValues(60, got.TotalActiveSeconds)
}

func (s *SessionServiceSuite) TestResume_ConcurrentCallsCloseOneEntry() {
	sess := s.startSession()
	s.clock.Advance(time.Minute)
	_, err := s.sessionSvc.Pause(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.clock.Advance(90 * time.Second)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.sessionSvc.Resume(s.ctx, sess.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.Equal(errors.ErrCodeInvalidState, errors.Code(err))
	}
	s.Equal(1, succeeded)

	got, err := s.sessionSvc.Get(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(models.SessionActive, got.Status)
	s.Require().Len(got.PauseHistory, 1)
	s.Require().NotNil(got.PauseHistory[0].ResumedAt)
	s.True(got.PauseHistory[0].ResumedAt.Equal(t0.Add(150 * time.Second)))
	s.EqualValues(90, got.PauseHistory[0].DurationSeconds)
	s.EqualValues(60, got.TotalActiveSeconds)
}

func (s *SessionServiceSuite) TestComplete_ScoresSynchronously() {
	sess := s.startSession()
	s.clock.Advance(20 * time.Minute)
	s.expectAssess(scoreResponse(82, "B"), nil)

	res, err := s.sessionSvc.Complete(s.ctx, sess.ID)
	s.Require().NoError(err)

	s.Equal(services.AssessmentReady, res.AssessmentStatus)
	s.Nil(res.Error)
	s.Require().NotNil(res.Assessment)
	s.Equal(82.0, res.Assessment.OverallScore)
	s.Equal(models.SessionPendingValidation, res.Session.Status)
	s.Require().NotNil(res.Session.EndedAt)
	s.WithinDuration(t0.Add(20*time.Minute), *res.Session.EndedAt, time.Second)
	s.oracle.AssertNotCalled(s.T(), "ReleaseSession", mock.Anything, mock.Anything)
}

func (s *SessionServiceSuite) TestComplete_ReleasesOracleHandleBestEffort() {
	sess, _, err := s.sessionSvc.Create(s.ctx, services.CreateSessionInput{StudentID: "stu-1", CaseID: "case-1", OracleHandle: "sim-42"})
	s.Require().NoError(err)
	s.oracle.On("ReleaseSession", mock.Anything, "sim-42").Return(errors.NewUpstreamUnavailableError("assessment oracle", nil)).Once()
	s.expectAssess(scoreResponse(75, "C"), nil)

	res, err := s.sessionSvc.Complete(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(services.AssessmentReady, res.AssessmentStatus)
	s.oracle.AssertExpectations(s.T())
}

func (s *SessionServiceSuite) TestComplete_OracleFailureLeavesSessionCompleted() {
	sess := s.startSession()
	s.expectAssess(nil, errors.NewUpstreamUnavailableError("assessment oracle", nil))

	res, err := s.sessionSvc.Complete(s.ctx, sess.ID)
	s.Require().NoError(err)

	s.Equal(services.AssessmentFailed, res.AssessmentStatus)
	s.Require().NotNil(res.Error)
	s.Equal(errors.ErrCodeUpstreamUnavailable, res.Error.Code)
	s.True(res.Error.Recoverable)
	s.Equal(models.SessionCompleted, res.Session.Status)

	_, err = s.feedbackSvc.GetForSession(s.ctx, sess.ID)
	s.assertCode(err, errors.ErrCodeNotFound)
}

func (s *SessionServiceSuite) TestComplete_DeferredModeEnqueues() {
	queue := &mocks.MockJobQueue{}
	svc := s.newSessionService(queue)
	sess := s.startSession()
	queue.On("EnqueueAssessment", sess.ID).Return(nil).Once()

	res, err := svc.Complete(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(services.AssessmentPending, res.AssessmentStatus)
	s.Nil(res.Assessment)
	s.Equal(models.SessionCompleted, res.Session.Status)
	queue.AssertExpectations(s.T())
	s.oracle.AssertNotCalled(s.T(), "Assess", mock.Anything, mock.Anything)
}

func (s *SessionServiceSuite) TestTimer_NearTimeoutAndExpiry() {
	c := testutil.SeedCase("case-t")
	limit := 30
	c.MaxDurationMinutes = &limit
	s.Require().NoError(s.cases.Upsert(s.ctx, c))
	sess, _, err := s.sessionSvc.Create(s.ctx, services.CreateSessionInput{StudentID: "stu-1", CaseID: "case-t"})
	s.Require().NoError(err)

	s.clock.Advance(26 * time.Minute)
	t, err := s.sessionSvc.Timer(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Require().NotNil(t.RemainingSeconds)
	s.EqualValues(240, *t.RemainingSeconds)
	s.True(t.NearTimeout)
	s.False(t.Expired)

	s.clock.Advance(5 * time.Minute)
	t, err = s.sessionSvc.Timer(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.True(t.Expired)
}

func (s *SessionServiceSuite) TestDelete_SoftDeletes() {
	sess := s.startSession()

	s.Require().NoError(s.sessionSvc.Delete(s.ctx, sess.ID))
	_, err := s.sessionSvc.Get(s.ctx, sess.ID)
	s.assertCode(err, errors.ErrCodeNotFound)

	var deletedAt sql.NullTime
	s.Require().NoError(s.db.QueryRow(`SELECT deleted_at FROM sessions WHERE id = ?`, sess.ID).Scan(&deletedAt))
	s.True(deletedAt.Valid)

	// The live slot is free again.
	_, created, err := s.sessionSvc.Create(s.ctx, services.CreateSessionInput{StudentID: "stu-1", CaseID: "case-1"})
	s.Require().NoError(err)
	s.True(created)

	s.assertCode(s.sessionSvc.Delete(s.ctx, "missing"), errors.ErrCodeNotFound)
}
