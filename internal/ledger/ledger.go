// Package ledger derives attempt-ledger state. Entries are append-only:
// attempts are never removed and attempt numbers are never reused.
package ledger

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/vytor/simclinic/internal/models"
)

// NewEntry returns an empty ledger entry for a student and case.
func NewEntry(studentID string, c models.Case, now time.Time) models.LedgerEntry {
	return models.LedgerEntry{
		StudentID:     studentID,
		CaseID:        c.ID,
		PatientID:     c.PatientID,
		Attempts:      []models.Attempt{},
		CurrentStatus: models.LedgerNotStarted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// AttemptFromAssessment converts a scored session into a ledger attempt.
// Strengths become learnings and weaknesses become mistakes.
func AttemptFromAssessment(a models.Assessment, now time.Time) models.Attempt {
	return models.Attempt{
		SessionID:    a.SessionID,
		AssessmentID: a.ID,
		Score:        a.OverallScore,
		Grade:        a.Grade,
		Passed:       a.Passed(),
		Learnings:    append([]string{}, a.Strengths...),
		Mistakes:     append([]string{}, a.Weaknesses...),
		AttemptedAt:  now,
	}
}

// Contains reports whether a session has already been recorded.
func Contains(e models.LedgerEntry, sessionID string) bool {
	for _, a := range e.Attempts {
		if a.SessionID == sessionID {
			return true
		}
	}
	return false
}

// Append adds an attempt with the next attempt number and recomputes the
// derived fields. It returns false without changes when the session was
// already recorded.
//
// current_status follows the latest attempt; first_passed_at is written once
// and never cleared.
func Append(e *models.LedgerEntry, a models.Attempt) (models.Attempt, bool) {
	if a.SessionID != "" && Contains(*e, a.SessionID) {
		return models.Attempt{}, false
	}

	next := 1
	for _, existing := range e.Attempts {
		if existing.AttemptNumber >= next {
			next = existing.AttemptNumber + 1
		}
	}
	a.AttemptNumber = next
	e.Attempts = append(e.Attempts, a)

	if a.Passed {
		e.CurrentStatus = models.LedgerPassed
		if e.FirstPassedAt == nil {
			at := a.AttemptedAt
			e.FirstPassedAt = &at
		}
	} else {
		e.CurrentStatus = models.LedgerNeedsRetry
	}
	at := a.AttemptedAt
	e.LastAttemptAt = &at
	e.UpdatedAt = a.AttemptedAt

	Recompute(e)
	return a, true
}

// Recompute derives total, best and rounded average from the attempts.
func Recompute(e *models.LedgerEntry) {
	e.TotalAttempts = len(e.Attempts)
	if e.TotalAttempts == 0 {
		e.BestScore = 0
		e.AverageScore = 0
		return
	}
	best := e.Attempts[0].Score
	var sum float64
	for _, a := range e.Attempts {
		sum += a.Score
		if a.Score > best {
			best = a.Score
		}
	}
	e.BestScore = best
	e.AverageScore = math.Round(sum / float64(e.TotalAttempts))
}

// Stats aggregates a student's entries across cases. A case counts as passed
// once it has ever been passed.
func Stats(studentID string, entries []models.LedgerEntry) models.StudentStats {
	stats := models.StudentStats{StudentID: studentID}
	var sum float64
	for _, e := range entries {
		if len(e.Attempts) == 0 {
			continue
		}
		stats.CasesAttempted++
		if e.FirstPassedAt != nil {
			stats.CasesPassed++
		}
		for _, a := range e.Attempts {
			sum += a.Score
			stats.TotalAttempts++
		}
	}
	if stats.CasesAttempted > 0 {
		stats.PassRate = round1(float64(stats.CasesPassed) / float64(stats.CasesAttempted) * 100)
	}
	if stats.TotalAttempts > 0 {
		stats.OverallAverage = round1(sum / float64(stats.TotalAttempts))
	}
	return stats
}

// Progression joins a patient's cases with the student's entries, ordered by
// curriculum sequence. Cases without an entry appear as not started.
func Progression(studentID, patientID string, cases []models.Case, entries []models.LedgerEntry) models.Progression {
	byCase := make(map[string]models.LedgerEntry, len(entries))
	for _, e := range entries {
		byCase[e.CaseID] = e
	}

	sorted := append([]models.Case{}, cases...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SequenceOrder != sorted[j].SequenceOrder {
			return sorted[i].SequenceOrder < sorted[j].SequenceOrder
		}
		return sorted[i].ID < sorted[j].ID
	})

	p := models.Progression{StudentID: studentID, PatientID: patientID, Steps: []models.ProgressionStep{}}
	for _, c := range sorted {
		step := models.ProgressionStep{
			CaseID:        c.ID,
			CaseTitle:     c.Title,
			SequenceOrder: c.SequenceOrder,
			Status:        models.LedgerNotStarted,
			Attempts:      []models.Attempt{},
		}
		if e, ok := byCase[c.ID]; ok {
			step.Status = e.CurrentStatus
			step.TotalAttempts = e.TotalAttempts
			step.BestScore = e.BestScore
			step.AverageScore = e.AverageScore
			step.FirstPassedAt = e.FirstPassedAt
			step.Attempts = e.Attempts
			if e.FirstPassedAt != nil {
				p.Completed++
			}
		}
		p.Steps = append(p.Steps, step)
	}
	return p
}

// Summary renders prior attempts as short text for the assessment oracle.
func Summary(e *models.LedgerEntry) string {
	if e == nil || len(e.Attempts) == 0 {
		return "No previous attempts on this case."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d previous attempt(s); best %.0f, average %.0f.\n", e.TotalAttempts, e.BestScore, e.AverageScore))
	for _, a := range e.Attempts {
		result := "FAIL"
		if a.Passed {
			result = "PASS"
		}
		sb.WriteString(fmt.Sprintf("#%d: %.0f (%s, %s)", a.AttemptNumber, a.Score, a.Grade, result))
		if len(a.Mistakes) > 0 {
			sb.WriteString("; mistakes: " + strings.Join(a.Mistakes, "; "))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
