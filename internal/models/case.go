package models

import "time"

// Rubric formats. Weighted rubrics must have criterion weights summing to 100.
const (
	RubricFormatSimple   = "simple"
	RubricFormatWeighted = "weighted"
)

// DefaultPassThreshold applies when a case does not configure one.
const DefaultPassThreshold = 70.0

type Criterion struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description"`
	Weight      float64 `json:"weight" yaml:"weight"`
	MaxPoints   float64 `json:"max_points,omitempty" yaml:"max_points"`
}

type Rubric struct {
	Format   string      `json:"format" yaml:"format"`
	Criteria []Criterion `json:"criteria" yaml:"criteria"`
}

// TotalWeight sums the criterion weights.
func (r Rubric) TotalWeight() float64 {
	var total float64
	for _, c := range r.Criteria {
		total += c.Weight
	}
	return total
}

type LiteratureReference struct {
	Title   string `json:"title" yaml:"title"`
	Authors string `json:"authors,omitempty" yaml:"authors"`
	Year    int    `json:"year,omitempty" yaml:"year"`
	Excerpt string `json:"excerpt,omitempty" yaml:"excerpt"`
}

// PatientProfile is the simulation configuration a case must carry before a
// session can start.
type PatientProfile struct {
	Name             string         `json:"name" yaml:"name"`
	Age              int            `json:"age,omitempty" yaml:"age"`
	PresentingIssue  string         `json:"presenting_issue" yaml:"presenting_issue"`
	Background       string         `json:"background,omitempty" yaml:"background"`
	PriorSessions    int            `json:"prior_sessions" yaml:"prior_sessions"`
	SimulatorOptions map[string]any `json:"simulator_options,omitempty" yaml:"simulator_options"`
}

type Case struct {
	ID                 string                `json:"id" yaml:"id"`
	Title              string                `json:"title" yaml:"title"`
	InternshipID       string                `json:"internship_id,omitempty" yaml:"internship_id"`
	PatientID          string                `json:"patient_id,omitempty" yaml:"patient_id"`
	CurriculumID       string                `json:"curriculum_id,omitempty" yaml:"curriculum_id"`
	SequenceOrder      int                   `json:"sequence_order" yaml:"sequence_order"`
	AllowPause         bool                  `json:"allow_pause" yaml:"allow_pause"`
	MaxDurationMinutes *int                  `json:"max_duration_minutes,omitempty" yaml:"max_duration_minutes"`
	StageTracked       bool                  `json:"stage_tracked" yaml:"stage_tracked"`
	PassThreshold      float64               `json:"pass_threshold" yaml:"pass_threshold"`
	Patient            *PatientProfile       `json:"patient,omitempty" yaml:"patient"`
	Rubric             *Rubric               `json:"rubric,omitempty" yaml:"rubric"`
	Literature         []LiteratureReference `json:"literature,omitempty" yaml:"literature"`
	CreatedAt          time.Time             `json:"created_at" yaml:"-"`
}

// EffectivePassThreshold returns the configured threshold or the default.
func (c Case) EffectivePassThreshold() float64 {
	if c.PassThreshold > 0 {
		return c.PassThreshold
	}
	return DefaultPassThreshold
}
