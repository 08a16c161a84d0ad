package services_test

import (
	"context"
	"database/sql"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/oracle"
	"github.com/vytor/simclinic/internal/repository"
	"github.com/vytor/simclinic/internal/repository/sqlite"
	"github.com/vytor/simclinic/internal/services"
	"github.com/vytor/simclinic/internal/testutil"
	"github.com/vytor/simclinic/internal/testutil/mocks"
)

var t0 = time.Date(2026, 4, 6, 14, 0, 0, 0, time.UTC)

// serviceSuite wires every service over a fresh in-memory database with the
// external collaborators mocked.
type serviceSuite struct {
	suite.Suite
	ctx   context.Context
	db    *sql.DB
	clock *testutil.Clock

	cases       repository.CaseRepository
	sessionRepo repository.SessionRepository
	assessRepo  repository.AssessmentRepository
	ledgerRepo  repository.LedgerRepository
	progress    repository.ProgressRepository

	oracle     *mocks.MockOracleClient
	memory     *mocks.MockMemoryClient
	classifier *mocks.MockClassifier

	ledgerSvc   services.LedgerService
	progressSvc services.ProgressService
	assessSvc   services.AssessmentService
	sessionSvc  services.SessionService
	feedbackSvc services.FeedbackService
}

func (s *serviceSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = testutil.NewTestDB(s.T())
	s.clock = testutil.NewClock(t0)

	s.cases = sqlite.NewCaseRepository(s.db)
	s.sessionRepo = sqlite.NewSessionRepository(s.db)
	s.assessRepo = sqlite.NewAssessmentRepository(s.db)
	s.ledgerRepo = sqlite.NewLedgerRepository(s.db)
	s.progress = sqlite.NewProgressRepository(s.db)

	s.oracle = &mocks.MockOracleClient{}
	s.memory = &mocks.MockMemoryClient{}
	s.classifier = &mocks.MockClassifier{}
	s.memory.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	s.memory.On("Push", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	s.classifier.On("Classify", mock.Anything, mock.Anything).Return(1).Maybe()

	s.Require().NoError(s.cases.Upsert(s.ctx, testutil.SeedCase("case-1")))

	s.ledgerSvc = services.NewLedgerService(s.cases, s.ledgerRepo, s.clock.Now)
	s.progressSvc = services.NewProgressService(s.progress, s.sessionRepo, s.assessRepo, s.classifier, s.clock.Now)
	s.assessSvc = services.NewAssessmentService(services.AssessmentDeps{
		Cases:         s.cases,
		Sessions:      s.sessionRepo,
		Assessments:   s.assessRepo,
		Ledgers:       s.ledgerRepo,
		Oracle:        s.oracle,
		Memory:        s.memory,
		Ledger:        s.ledgerSvc,
		Progress:      s.progressSvc,
		EffectTimeout: 5 * time.Second,
		Clock:         s.clock.Now,
	})
	s.sessionSvc = s.newSessionService(nil)
	s.feedbackSvc = services.NewFeedbackService(s.cases, s.sessionRepo, s.assessRepo, s.progressSvc, s.clock.Now)
}

func (s *serviceSuite) TearDownTest() {
	testutil.MustClose(s.T(), s.db)
}

func (s *serviceSuite) newSessionService(queue *mocks.MockJobQueue) services.SessionService {
	deps := services.SessionDeps{
		Cases:       s.cases,
		Sessions:    s.sessionRepo,
		Ledgers:     s.ledgerRepo,
		Oracle:      s.oracle,
		Assessments: s.assessSvc,
		Clock:       s.clock.Now,
	}
	if queue != nil {
		deps.Queue = queue
	}
	return services.NewSessionService(deps)
}

// startSession creates an ACTIVE session for stu-1 on case-1 with one
// transcript exchange.
func (s *serviceSuite) startSession() *models.Session {
	sess, created, err := s.sessionSvc.Create(s.ctx, services.CreateSessionInput{
		StudentID:    "stu-1",
		CaseID:       "case-1",
		InternshipID: "int-1",
	})
	s.Require().NoError(err)
	s.Require().True(created)

	_, err = s.sessionSvc.RecordMessage(s.ctx, sess.ID, services.MessageInput{Role: "student", Content: "Let's find a safe place together."})
	s.Require().NoError(err)
	_, err = s.sessionSvc.RecordMessage(s.ctx, sess.ID, services.MessageInput{Role: "patient", Content: "A beach, I think."})
	s.Require().NoError(err)
	return sess
}

// scoreResponse builds an oracle verdict; 70 and above passes.
func scoreResponse(score float64, grade string) *oracle.Response {
	passFail := models.PassFailFail
	if score >= 70 {
		passFail = models.PassFailPass
	}
	return &oracle.Response{
		OverallScore:  score,
		Grade:         grade,
		PassFail:      passFail,
		PassThreshold: 70,
		Criteria: []models.CriterionScore{
			{ID: "rapport", Name: "Rapport", Weight: 25, Score: score + 5},
			{ID: "safe_place", Name: "Safe place", Weight: 25, Score: score - 5},
		},
		Strengths:       []string{"warm rapport"},
		Weaknesses:      []string{"rushed closure"},
		Recommendations: []string{"slow down the body scan"},
		Evolution:       "steadier than last time",
	}
}

func (s *serviceSuite) expectAssess(resp *oracle.Response, err error) *mock.Call {
	if err != nil {
		return s.oracle.On("Assess", mock.Anything, mock.Anything).Return(nil, err).Once()
	}
	return s.oracle.On("Assess", mock.Anything, mock.Anything).Return(resp, nil).Once()
}

func (s *serviceSuite) assertCode(err error, code string) {
	s.Require().Error(err)
	s.Equal(code, errors.Code(err), err.Error())
}
