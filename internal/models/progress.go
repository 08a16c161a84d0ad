package models

import "time"

// StageCount is fixed: every internship tracks exactly three stages.
const StageCount = 3

type StageStatus string

const (
	StageNotStarted    StageStatus = "NOT_STARTED"
	StageInProgress    StageStatus = "IN_PROGRESS"
	StageCompleted     StageStatus = "COMPLETED"
	StageValidated     StageStatus = "VALIDATED"
	StageNeedsRevision StageStatus = "NEEDS_REVISION"
)

// Done reports whether the stage counts toward overall progress.
func (s StageStatus) Done() bool {
	return s == StageCompleted || s == StageValidated
}

// Valid reports whether s is a known stage status.
func (s StageStatus) Valid() bool {
	switch s {
	case StageNotStarted, StageInProgress, StageCompleted, StageValidated, StageNeedsRevision:
		return true
	}
	return false
}

var StageNames = [StageCount]string{
	"Preparation and safe place",
	"Trauma processing",
	"Integration and closure",
}

type Stage struct {
	Number        int                `json:"number"`
	Name          string             `json:"name"`
	Status        StageStatus        `json:"status"`
	Score         *float64           `json:"score"`
	AIScore       *float64           `json:"ai_score,omitempty"`
	SessionsCount int                `json:"sessions_count"`
	CaseID        string             `json:"case_id,omitempty"`
	LastSessionID string             `json:"last_session_id,omitempty"`
	Metrics       map[string]float64 `json:"metrics"`
	Notes         string             `json:"notes,omitempty"`
	StartedAt     *time.Time         `json:"started_at,omitempty"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	ValidatedBy   string             `json:"validated_by,omitempty"`
	ValidatedAt   *time.Time         `json:"validated_at,omitempty"`
}

type StageProgress struct {
	ID                    int64             `json:"id"`
	StudentID             string            `json:"student_id"`
	InternshipID          string            `json:"internship_id"`
	Stages                [StageCount]Stage `json:"stages"`
	TotalSessions         int               `json:"total_sessions"`
	OverallProgress       float64           `json:"overall_progress_percentage"`
	OverallScore          *float64          `json:"overall_score"`
	AllStagesCompleted    bool              `json:"all_stages_completed"`
	InternshipCompletedAt *time.Time        `json:"internship_completed_at,omitempty"`
	Version               int64             `json:"version"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// StageSession records that a session was counted toward a stage.
type StageSession struct {
	ProgressID   int64     `json:"-"`
	StageNumber  int       `json:"stage_number"`
	SessionID    string    `json:"session_id"`
	CaseID       string    `json:"case_id"`
	Score        *float64  `json:"score"`
	ClassifiedAt time.Time `json:"classified_at"`
}

type Timeline struct {
	Progress StageProgress  `json:"progress"`
	Sessions []TimelineItem `json:"sessions"`
}

type TimelineItem struct {
	StageSession
	SessionNumber int              `json:"session_number"`
	StartedAt     time.Time        `json:"started_at"`
	EndedAt       *time.Time       `json:"ended_at,omitempty"`
	ActiveSeconds int64            `json:"active_seconds"`
	Status        SessionStatus    `json:"status"`
	Assessment    *AssessmentBrief `json:"assessment,omitempty"`
}

type AssessmentBrief struct {
	ID             string           `json:"id"`
	OverallScore   float64          `json:"overall_score"`
	EffectiveScore float64          `json:"effective_score"`
	Grade          string           `json:"grade"`
	PassFail       string           `json:"pass_fail"`
	Status         AssessmentStatus `json:"status"`
}

type StageDashboard struct {
	InternshipID    string                          `json:"internship_id"`
	Students        []StageProgress                 `json:"students"`
	StatusCounts    [StageCount]map[StageStatus]int `json:"status_counts"`
	AverageProgress float64                         `json:"average_progress"`
	CompletedCount  int                             `json:"completed_count"`
}

// StageExportRow is one flat row for tabular exports; rendering happens elsewhere.
type StageExportRow struct {
	StudentID             string   `json:"student_id"`
	Stage1Status          string   `json:"stage1_status"`
	Stage1Score           *float64 `json:"stage1_score"`
	Stage1Sessions        int      `json:"stage1_sessions"`
	Stage2Status          string   `json:"stage2_status"`
	Stage2Score           *float64 `json:"stage2_score"`
	Stage2Sessions        int      `json:"stage2_sessions"`
	Stage3Status          string   `json:"stage3_status"`
	Stage3Score           *float64 `json:"stage3_score"`
	Stage3Sessions        int      `json:"stage3_sessions"`
	TotalSessions         int      `json:"total_sessions"`
	OverallProgress       float64  `json:"overall_progress_percentage"`
	OverallScore          *float64 `json:"overall_score"`
	InternshipCompletedAt string   `json:"internship_completed_at"`
}
