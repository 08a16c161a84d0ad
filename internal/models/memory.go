package models

import "time"

// Memory is the cross-session continuity context kept by the external memory
// store for a student and curriculum.
type Memory struct {
	StudentID         string     `json:"student_id"`
	CurriculumID      string     `json:"curriculum_id"`
	SessionsCount     int        `json:"sessions_count"`
	Summaries         []string   `json:"summaries,omitempty"`
	LearnedTechniques []string   `json:"learned_techniques,omitempty"`
	Topics            []string   `json:"topics,omitempty"`
	DistressReadings  []float64  `json:"sud_readings,omitempty"`
	ValidityReadings  []float64  `json:"voc_readings,omitempty"`
	LastSessionAt     *time.Time `json:"last_session_at,omitempty"`
}

// PriorSessions returns how many sessions the memory has seen, tolerating nil.
func (m *Memory) PriorSessions() int {
	if m == nil {
		return 0
	}
	return m.SessionsCount
}

// MemoryUpdate is pushed to the memory store after each assessment.
type MemoryUpdate struct {
	SessionID         string    `json:"session_id"`
	CaseID            string    `json:"case_id"`
	SessionNumber     int       `json:"session_number"`
	Summary           string    `json:"summary"`
	OverallScore      float64   `json:"overall_score"`
	Grade             string    `json:"grade"`
	PassFail          string    `json:"pass_fail"`
	Strengths         []string  `json:"strengths,omitempty"`
	Weaknesses        []string  `json:"weaknesses,omitempty"`
	LearnedTechniques []string  `json:"learned_techniques,omitempty"`
	CompletedAt       time.Time `json:"completed_at"`
}
