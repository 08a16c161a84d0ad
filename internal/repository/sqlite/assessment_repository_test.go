package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/repository"
	"github.com/vytor/simclinic/internal/repository/sqlite"
	"github.com/vytor/simclinic/internal/testutil"
)

type AssessmentRepositorySuite struct {
	suite.Suite
	db   *sql.DB
	repo repository.AssessmentRepository
}

func (s *AssessmentRepositorySuite) SetupTest() {
	ctx := context.Background()
	s.db = testutil.NewTestDB(s.T())
	s.repo = sqlite.NewAssessmentRepository(s.db)
	s.Require().NoError(sqlite.NewCaseRepository(s.db).Upsert(ctx, testutil.SeedCase("case-1")))
	s.Require().NoError(sqlite.NewSessionRepository(s.db).Insert(ctx, &models.Session{
		ID: "s1", StudentID: "stu-1", CaseID: "case-1", Type: models.SessionTypePatient,
		Status: models.SessionCompleted, StartedAt: t0, SessionNumber: 1, Version: 1, CreatedAt: t0, UpdatedAt: t0,
	}))
}

func (s *AssessmentRepositorySuite) TearDownTest() {
	testutil.MustClose(s.T(), s.db)
}

func sampleAssessment(id string) models.Assessment {
	return models.Assessment{
		ID: id, SessionID: "s1", StudentID: "stu-1", CaseID: "case-1", InternshipID: "int-1",
		OverallScore: 82, Grade: "B", PassFail: models.PassFailPass, PassThreshold: 70,
		Criteria:  []models.CriterionScore{{ID: "rapport", Name: "Rapport", Weight: 25, Score: 90, Evidence: "warm opening"}},
		Strengths: []string{"rapport"}, Weaknesses: []string{"pacing"},
		Status: models.AssessmentPendingValidation, GeneratedAt: t0,
	}
}

func (s *AssessmentRepositorySuite) TestInsertAndGet() {
	ctx := context.Background()
	s.Require().NoError(s.repo.Insert(ctx, sampleAssessment("a1")))

	got, err := s.repo.Get(ctx, "a1")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Assert().Equal(82.0, got.OverallScore)
	s.Assert().Equal("warm opening", got.Criteria[0].Evidence)
	s.Assert().Equal([]string{"pacing"}, got.Weaknesses)
	s.Assert().Equal([]string{}, got.Recommendations)
	s.Assert().Nil(got.Validation)

	bySession, err := s.repo.GetBySession(ctx, "s1")
	s.Require().NoError(err)
	s.Assert().Equal("a1", bySession.ID)
}

func (s *AssessmentRepositorySuite) TestOnePerSession() {
	ctx := context.Background()
	s.Require().NoError(s.repo.Insert(ctx, sampleAssessment("a1")))

	err := s.repo.Insert(ctx, sampleAssessment("a2"))
	s.Assert().ErrorIs(err, repository.ErrDuplicate)
}

func (s *AssessmentRepositorySuite) TestUpdateStoresValidation() {
	ctx := context.Background()
	a := sampleAssessment("a1")
	s.Require().NoError(s.repo.Insert(ctx, a))

	edited := 90.0
	reviewedAt := t0.Add(48 * time.Hour)
	a.Status = models.AssessmentValidated
	a.Validation = &models.Validation{ReviewerID: "prof-1", ReviewedAt: reviewedAt, Approved: true, EditedScore: &edited}
	s.Require().NoError(s.repo.Update(ctx, a))

	got, err := s.repo.Get(ctx, "a1")
	s.Require().NoError(err)
	s.Assert().Equal(models.AssessmentValidated, got.Status)
	s.Require().NotNil(got.Validation)
	s.Assert().Equal("prof-1", got.Validation.ReviewerID)
	s.Assert().Equal(90.0, got.EffectiveScore())
}

func (s *AssessmentRepositorySuite) TestListBySessions() {
	ctx := context.Background()
	s.Require().NoError(s.repo.Insert(ctx, sampleAssessment("a1")))

	got, err := s.repo.ListBySessions(ctx, []string{"s1", "s-missing"})
	s.Require().NoError(err)
	s.Assert().Len(got, 1)
	s.Assert().Equal("a1", got["s1"].ID)

	empty, err := s.repo.ListBySessions(ctx, nil)
	s.Require().NoError(err)
	s.Assert().Empty(empty)
}

func TestAssessmentRepositorySuite(t *testing.T) {
	suite.Run(t, new(AssessmentRepositorySuite))
}
