package services_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/testutil"
)

type LedgerServiceSuite struct {
	serviceSuite
}

func TestLedgerServiceSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceSuite))
}

func (s *LedgerServiceSuite) assessment(sessionID string, score float64, passFail string) models.Assessment {
	return models.Assessment{
		ID:           "a-" + sessionID,
		SessionID:    sessionID,
		OverallScore: score,
		Grade:        "B",
		PassFail:     passFail,
		Strengths:    []string{"empathy"},
		Weaknesses:   []string{"pace"},
	}
}

func (s *LedgerServiceSuite) TestRecordAttempt_IsIdempotentPerSession() {
	c := testutil.SeedCase("case-1")

	entry, err := s.ledgerSvc.RecordAttempt(s.ctx, "stu-1", c, s.assessment("s1", 82, models.PassFailPass))
	s.Require().NoError(err)
	s.Equal(1, entry.TotalAttempts)

	entry, err = s.ledgerSvc.RecordAttempt(s.ctx, "stu-1", c, s.assessment("s1", 82, models.PassFailPass))
	s.Require().NoError(err)
	s.Equal(1, entry.TotalAttempts)

	entry, err = s.ledgerSvc.RecordAttempt(s.ctx, "stu-1", c, s.assessment("s2", 60, models.PassFailFail))
	s.Require().NoError(err)
	s.Equal(2, entry.TotalAttempts)
	s.Equal(71.0, entry.AverageScore)
	s.Equal(models.LedgerNeedsRetry, entry.CurrentStatus)
	s.NotNil(entry.FirstPassedAt)
	s.Equal([]string{"pace"}, entry.Attempts[1].Mistakes)
}

func (s *LedgerServiceSuite) TestHistory_UnattemptedCase() {
	entry, err := s.ledgerSvc.History(s.ctx, "stu-9", "case-1")
	s.Require().NoError(err)
	s.Equal(models.LedgerNotStarted, entry.CurrentStatus)
	s.Empty(entry.Attempts)

	_, err = s.ledgerSvc.History(s.ctx, "stu-9", "missing")
	s.assertCode(err, errors.ErrCodeNotFound)
}

func (s *LedgerServiceSuite) TestStatsAndProgression() {
	second := testutil.SeedCase("case-2")
	second.SequenceOrder = 2
	s.Require().NoError(s.cases.Upsert(s.ctx, second))
	third := testutil.SeedCase("case-3")
	third.SequenceOrder = 3
	s.Require().NoError(s.cases.Upsert(s.ctx, third))

	_, err := s.ledgerSvc.RecordAttempt(s.ctx, "stu-1", testutil.SeedCase("case-1"), s.assessment("s1", 80, models.PassFailPass))
	s.Require().NoError(err)
	_, err = s.ledgerSvc.RecordAttempt(s.ctx, "stu-1", second, s.assessment("s2", 50, models.PassFailFail))
	s.Require().NoError(err)

	stats, err := s.ledgerSvc.StudentStats(s.ctx, "stu-1")
	s.Require().NoError(err)
	s.Equal(2, stats.CasesAttempted)
	s.Equal(1, stats.CasesPassed)
	s.Equal(50.0, stats.PassRate)
	s.Equal(65.0, stats.OverallAverage)
	s.Equal(2, stats.TotalAttempts)

	prog, err := s.ledgerSvc.Progression(s.ctx, "stu-1", "pat-1")
	s.Require().NoError(err)
	s.Require().Len(prog.Steps, 3)
	s.Equal("case-1", prog.Steps[0].CaseID)
	s.Equal(models.LedgerPassed, prog.Steps[0].Status)
	s.Equal(models.LedgerNeedsRetry, prog.Steps[1].Status)
	s.Equal(models.LedgerNotStarted, prog.Steps[2].Status)
	s.Equal(1, prog.Completed)

	_, err = s.ledgerSvc.Progression(s.ctx, "stu-1", "nobody")
	s.assertCode(err, errors.ErrCodeNotFound)
}
