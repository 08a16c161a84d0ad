package models

import "time"

type AssessmentStatus string

const (
	AssessmentPendingValidation AssessmentStatus = "PENDING_VALIDATION"
	AssessmentValidated         AssessmentStatus = "VALIDATED"
	AssessmentRevised           AssessmentStatus = "REVISED"
)

const (
	PassFailPass = "PASS"
	PassFailFail = "FAIL"
)

type CriterionScore struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Weight    float64 `json:"weight,omitempty"`
	MaxPoints float64 `json:"max_points,omitempty"`
	Score     float64 `json:"score"`
	Evidence  string  `json:"evidence,omitempty"`
}

// Percent normalizes the criterion score to 0-100 using MaxPoints when set.
func (c CriterionScore) Percent() float64 {
	if c.MaxPoints > 0 {
		return c.Score / c.MaxPoints * 100
	}
	return c.Score
}

// Validation is the human override of an AI assessment.
type Validation struct {
	ReviewerID  string    `json:"reviewer_id"`
	ReviewedAt  time.Time `json:"reviewed_at"`
	Approved    bool      `json:"approved"`
	EditedScore *float64  `json:"edited_score,omitempty"`
	Comments    string    `json:"comments,omitempty"`
}

type Assessment struct {
	ID              string           `json:"id"`
	SessionID       string           `json:"session_id"`
	StudentID       string           `json:"student_id"`
	CaseID          string           `json:"case_id"`
	InternshipID    string           `json:"internship_id,omitempty"`
	OverallScore    float64          `json:"overall_score"`
	Criteria        []CriterionScore `json:"criteria,omitempty"`
	Grade           string           `json:"grade"`
	PassFail        string           `json:"pass_fail"`
	PassThreshold   float64          `json:"pass_threshold"`
	Strengths       []string         `json:"strengths"`
	Weaknesses      []string         `json:"weaknesses"`
	Recommendations []string         `json:"recommendations"`
	Evolution       string           `json:"evolution,omitempty"`
	Status          AssessmentStatus `json:"status"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Validation      *Validation      `json:"validation,omitempty"`
	RevisedBy       string           `json:"revised_by,omitempty"`
	RevisedAt       *time.Time       `json:"revised_at,omitempty"`
}

// Passed reports whether the oracle (or a reviser) marked the attempt as a pass.
func (a Assessment) Passed() bool {
	return a.PassFail == PassFailPass
}

// EffectiveScore is the human-edited score when present, else the AI score.
func (a Assessment) EffectiveScore() float64 {
	if a.Validation != nil && a.Validation.EditedScore != nil {
		return *a.Validation.EditedScore
	}
	return a.OverallScore
}

// CriterionPercent finds a criterion by id or name and returns its normalized score.
func (a Assessment) CriterionPercent(key string) (float64, bool) {
	for _, c := range a.Criteria {
		if c.ID == key || c.Name == key {
			return c.Percent(), true
		}
	}
	return 0, false
}
