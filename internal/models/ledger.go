package models

import "time"

type LedgerStatus string

const (
	LedgerNotStarted LedgerStatus = "not_started"
	LedgerInProgress LedgerStatus = "in_progress"
	LedgerPassed     LedgerStatus = "passed"
	LedgerNeedsRetry LedgerStatus = "needs_retry"
)

type Attempt struct {
	AttemptNumber int       `json:"attempt_number"`
	SessionID     string    `json:"session_id"`
	AssessmentID  string    `json:"assessment_id"`
	Score         float64   `json:"score"`
	Grade         string    `json:"grade"`
	Passed        bool      `json:"passed"`
	Learnings     []string  `json:"learnings"`
	Mistakes      []string  `json:"mistakes"`
	AttemptedAt   time.Time `json:"attempted_at"`
}

// LedgerEntry is the append-only attempt history of one student on one case.
type LedgerEntry struct {
	ID            int64        `json:"id"`
	StudentID     string       `json:"student_id"`
	CaseID        string       `json:"case_id"`
	PatientID     string       `json:"patient_id,omitempty"`
	Attempts      []Attempt    `json:"attempts"`
	TotalAttempts int          `json:"total_attempts"`
	BestScore     float64      `json:"best_score"`
	AverageScore  float64      `json:"average_score"`
	CurrentStatus LedgerStatus `json:"current_status"`
	FirstPassedAt *time.Time   `json:"first_passed_at,omitempty"`
	LastAttemptAt *time.Time   `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type StudentStats struct {
	StudentID      string  `json:"student_id"`
	CasesAttempted int     `json:"cases_attempted"`
	CasesPassed    int     `json:"cases_passed"`
	PassRate       float64 `json:"pass_rate"`
	OverallAverage float64 `json:"overall_average"`
	TotalAttempts  int     `json:"total_attempts"`
}

// ProgressionStep is one case of a multi-case patient storyline.
type ProgressionStep struct {
	CaseID        string       `json:"case_id"`
	CaseTitle     string       `json:"case_title"`
	SequenceOrder int          `json:"sequence_order"`
	Status        LedgerStatus `json:"status"`
	TotalAttempts int          `json:"total_attempts"`
	BestScore     float64      `json:"best_score"`
	AverageScore  float64      `json:"average_score"`
	FirstPassedAt *time.Time   `json:"first_passed_at,omitempty"`
	Attempts      []Attempt    `json:"attempts"`
}

type Progression struct {
	StudentID string            `json:"student_id"`
	PatientID string            `json:"patient_id"`
	Steps     []ProgressionStep `json:"steps"`
	Completed int               `json:"completed"`
}
