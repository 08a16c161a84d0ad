package ledger_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/simclinic/internal/ledger"
	"github.com/vytor/simclinic/internal/models"
)

var day1 = time.Date(2026, 4, 1, 14, 0, 0, 0, time.UTC)

func attempt(session string, score float64, passed bool, at time.Time) models.Attempt {
	grade := "C"
	if passed {
		grade = "B"
	}
	return models.Attempt{SessionID: session, Score: score, Grade: grade, Passed: passed, AttemptedAt: at}
}

func TestAppend_PassThenRetryScenario(t *testing.T) {
	e := ledger.NewEntry("stu-1", models.Case{ID: "case-1", PatientID: "pat-1"}, day1)

	first, ok := ledger.Append(&e, attempt("s1", 82, true, day1))
	require.True(t, ok)
	assert.Equal(t, 1, first.AttemptNumber)
	assert.Equal(t, 1, e.TotalAttempts)
	assert.Equal(t, 82.0, e.BestScore)
	assert.Equal(t, models.LedgerPassed, e.CurrentStatus)
	require.NotNil(t, e.FirstPassedAt)
	assert.Equal(t, day1, *e.FirstPassedAt)

	day2 := day1.Add(24 * time.Hour)
	second, ok := ledger.Append(&e, attempt("s2", 60, false, day2))
	require.True(t, ok)
	assert.Equal(t, 2, second.AttemptNumber)
	assert.Equal(t, 2, e.TotalAttempts)
	assert.Equal(t, 82.0, e.BestScore)
	assert.Equal(t, 71.0, e.AverageScore)
	assert.Equal(t, models.LedgerNeedsRetry, e.CurrentStatus)
	assert.Equal(t, day1, *e.FirstPassedAt)
	assert.Equal(t, day2, *e.LastAttemptAt)
}

func TestAppend_SameSessionIsRecordedOnce(t *testing.T) {
	e := ledger.NewEntry("stu-1", models.Case{ID: "case-1"}, day1)

	_, ok := ledger.Append(&e, attempt("s1", 50, false, day1))
	require.True(t, ok)
	_, ok = ledger.Append(&e, attempt("s1", 50, false, day1))

	assert.False(t, ok)
	assert.Equal(t, 1, e.TotalAttempts)
}

func TestAppend_DerivationsHoldForManyAttempts(t *testing.T) {
	e := ledger.NewEntry("stu-1", models.Case{ID: "case-1"}, day1)
	scores := []float64{55, 91, 40, 67.5, 88, 12, 100, 73}

	for i, score := range scores {
		a, ok := ledger.Append(&e, attempt(fmt.Sprintf("s%d", i), score, score >= 70, day1.Add(time.Duration(i)*time.Hour)))
		require.True(t, ok)
		assert.Equal(t, i+1, a.AttemptNumber)

		var sum, best float64
		for _, s := range scores[:i+1] {
			sum += s
			best = math.Max(best, s)
		}
		assert.Equal(t, i+1, e.TotalAttempts)
		assert.Equal(t, len(e.Attempts), e.TotalAttempts)
		assert.Equal(t, best, e.BestScore)
		assert.Equal(t, math.Round(sum/float64(i+1)), e.AverageScore)
	}
	require.NotNil(t, e.FirstPassedAt)
	assert.Equal(t, day1.Add(time.Hour), *e.FirstPassedAt, "first pass is attempt 2 and never moves")
}

func TestAppend_NumbersContinueAfterGaps(t *testing.T) {
	e := models.LedgerEntry{Attempts: []models.Attempt{{AttemptNumber: 1}, {AttemptNumber: 4}}}

	a, ok := ledger.Append(&e, attempt("s9", 10, false, day1))

	require.True(t, ok)
	assert.Equal(t, 5, a.AttemptNumber)
}

func TestStats(t *testing.T) {
	passedAt := day1
	entries := []models.LedgerEntry{
		{CaseID: "a", FirstPassedAt: &passedAt, Attempts: []models.Attempt{{Score: 82}, {Score: 60}}},
		{CaseID: "b", Attempts: []models.Attempt{{Score: 50}}},
		{CaseID: "c", Attempts: []models.Attempt{}},
	}

	stats := ledger.Stats("stu-1", entries)

	assert.Equal(t, 2, stats.CasesAttempted)
	assert.Equal(t, 1, stats.CasesPassed)
	assert.Equal(t, 50.0, stats.PassRate)
	assert.Equal(t, 3, stats.TotalAttempts)
	assert.Equal(t, 64.0, stats.OverallAverage)
}

func TestStats_Empty(t *testing.T) {
	stats := ledger.Stats("stu-1", nil)

	assert.Zero(t, stats.PassRate)
	assert.Zero(t, stats.OverallAverage)
}

func TestProgression_OrdersBySequenceAndFillsGaps(t *testing.T) {
	passedAt := day1
	cases := []models.Case{
		{ID: "c3", Title: "Closure", SequenceOrder: 3},
		{ID: "c1", Title: "Intake", SequenceOrder: 1},
		{ID: "c2", Title: "Processing", SequenceOrder: 2},
	}
	entries := []models.LedgerEntry{
		{CaseID: "c1", CurrentStatus: models.LedgerPassed, TotalAttempts: 1, BestScore: 90, FirstPassedAt: &passedAt},
		{CaseID: "c2", CurrentStatus: models.LedgerNeedsRetry, TotalAttempts: 2, BestScore: 65},
	}

	p := ledger.Progression("stu-1", "pat-1", cases, entries)

	require.Len(t, p.Steps, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"}, []string{p.Steps[0].CaseID, p.Steps[1].CaseID, p.Steps[2].CaseID})
	assert.Equal(t, models.LedgerPassed, p.Steps[0].Status)
	assert.Equal(t, models.LedgerNeedsRetry, p.Steps[1].Status)
	assert.Equal(t, models.LedgerNotStarted, p.Steps[2].Status)
	assert.Equal(t, 1, p.Completed)
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "No previous attempts on this case.", ledger.Summary(nil))

	e := ledger.NewEntry("stu-1", models.Case{ID: "case-1"}, day1)
	a := attempt("s1", 60, false, day1)
	a.Mistakes = []string{"rushed installation"}
	ledger.Append(&e, a)

	summary := ledger.Summary(&e)
	assert.Contains(t, summary, "1 previous attempt(s); best 60, average 60.")
	assert.Contains(t, summary, "#1: 60 (C, FAIL); mistakes: rushed installation")
}

func TestAttemptFromAssessment(t *testing.T) {
	a := models.Assessment{
		ID: "as-1", SessionID: "s1", OverallScore: 82, Grade: "B", PassFail: models.PassFailPass,
		Strengths: []string{"rapport"}, Weaknesses: []string{"pacing"},
	}

	got := ledger.AttemptFromAssessment(a, day1)

	assert.True(t, got.Passed)
	assert.Equal(t, []string{"rapport"}, got.Learnings)
	assert.Equal(t, []string{"pacing"}, got.Mistakes)
	assert.Equal(t, "as-1", got.AssessmentID)
}
