package models

import "time"

type SessionStatus string

const (
	SessionActive            SessionStatus = "ACTIVE"
	SessionPaused            SessionStatus = "PAUSED"
	SessionCompleted         SessionStatus = "COMPLETED"
	SessionPendingValidation SessionStatus = "PENDING_VALIDATION"
	SessionValidated         SessionStatus = "VALIDATED"
	SessionRevised           SessionStatus = "REVISED"
)

// Live reports whether the status counts toward the one-live-session rule.
func (s SessionStatus) Live() bool {
	return s == SessionActive || s == SessionPaused
}

// Finished reports whether the session has been completed (scored or not).
func (s SessionStatus) Finished() bool {
	switch s {
	case SessionCompleted, SessionPendingValidation, SessionValidated, SessionRevised:
		return true
	}
	return false
}

type SessionType string

const (
	SessionTypePatient   SessionType = "patient"
	SessionTypeTherapist SessionType = "therapist"
)

type PauseEntry struct {
	PausedAt        time.Time  `json:"paused_at"`
	ResumedAt       *time.Time `json:"resumed_at"`
	DurationSeconds int64      `json:"duration_seconds"`
}

type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
}

type Session struct {
	ID                 string        `json:"id"`
	StudentID          string        `json:"student_id"`
	CaseID             string        `json:"case_id"`
	InternshipID       string        `json:"internship_id,omitempty"`
	Type               SessionType   `json:"type"`
	Status             SessionStatus `json:"status"`
	StartedAt          time.Time     `json:"started_at"`
	EndedAt            *time.Time    `json:"ended_at,omitempty"`
	PausedAt           *time.Time    `json:"paused_at,omitempty"`
	PauseHistory       []PauseEntry  `json:"pause_history"`
	TotalActiveSeconds int64         `json:"total_active_seconds"`
	MaxDurationMinutes *int          `json:"max_duration_minutes,omitempty"`
	SessionNumber      int           `json:"session_number"`
	Transcript         []Message     `json:"transcript"`
	OracleHandle       string        `json:"oracle_handle,omitempty"`
	Version            int64         `json:"version"`
	DeletedAt          *time.Time    `json:"-"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// LastPause returns the most recent pause entry, or nil.
func (s *Session) LastPause() *PauseEntry {
	if len(s.PauseHistory) == 0 {
		return nil
	}
	return &s.PauseHistory[len(s.PauseHistory)-1]
}

type SessionFilter struct {
	StudentID    string
	CaseID       string
	InternshipID string
	Type         SessionType
	Statuses     []SessionStatus
	Limit        int
	Offset       int
}

// Timer is the read-only view of a session's time accounting.
type Timer struct {
	SessionID          string        `json:"session_id"`
	Status             SessionStatus `json:"status"`
	ElapsedSeconds     int64         `json:"elapsed_seconds"`
	MaxDurationSeconds *int64        `json:"max_duration_seconds"`
	RemainingSeconds   *int64        `json:"remaining_seconds"`
	NearTimeout        bool          `json:"near_timeout"`
	Expired            bool          `json:"expired"`
	Paused             bool          `json:"paused"`
	PausedForSeconds   int64         `json:"paused_for_seconds"`
	ComputedAt         time.Time     `json:"computed_at"`
}
