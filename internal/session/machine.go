// Package session holds the pure state machine of a simulated encounter.
// Functions mutate the given session in memory; persistence is the caller's job.
package session

import (
	"strings"
	"time"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/timer"
)

var transitions = map[models.SessionStatus][]models.SessionStatus{
	models.SessionActive:            {models.SessionPaused, models.SessionCompleted},
	models.SessionPaused:            {models.SessionActive},
	models.SessionCompleted:         {models.SessionPendingValidation},
	models.SessionPendingValidation: {models.SessionValidated, models.SessionRevised},
	models.SessionRevised:           {models.SessionValidated, models.SessionRevised},
	models.SessionValidated:         {models.SessionValidated, models.SessionRevised},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to models.SessionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(s *models.Session, to models.SessionStatus) error {
	if !CanTransition(s.Status, to) {
		return errors.NewInvalidStateError("session", string(s.Status), string(to))
	}
	return nil
}

// New builds a fresh ACTIVE session.
func New(id, studentID string, c models.Case, internshipID string, typ models.SessionType, number int, oracleHandle string, now time.Time) models.Session {
	if internshipID == "" {
		internshipID = c.InternshipID
	}
	return models.Session{
		ID:                 id,
		StudentID:          studentID,
		CaseID:             c.ID,
		InternshipID:       internshipID,
		Type:               typ,
		Status:             models.SessionActive,
		StartedAt:          now,
		PauseHistory:       []models.PauseEntry{},
		MaxDurationMinutes: c.MaxDurationMinutes,
		SessionNumber:      number,
		Transcript:         []models.Message{},
		OracleHandle:       oracleHandle,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Pause folds the running segment into the active total and opens a pause entry.
func Pause(s *models.Session, allowPause bool, now time.Time) error {
	if err := checkTransition(s, models.SessionPaused); err != nil {
		return err
	}
	if !allowPause {
		return errors.NewInvalidStateReason("session", "case does not allow pausing")
	}
	timer.Fold(s, now)
	s.Status = models.SessionPaused
	s.PausedAt = &now
	s.PauseHistory = append(s.PauseHistory, models.PauseEntry{PausedAt: now})
	s.UpdatedAt = now
	return nil
}

// Resume closes the open pause entry and makes the session ACTIVE again.
func Resume(s *models.Session, now time.Time) error {
	if err := checkTransition(s, models.SessionActive); err != nil {
		return err
	}
	last := s.LastPause()
	if last == nil || last.ResumedAt != nil {
		return errors.NewInvalidStateReason("session", "no open pause to resume")
	}
	resumed := now
	if resumed.Before(last.PausedAt) {
		resumed = last.PausedAt
	}
	last.ResumedAt = &resumed
	last.DurationSeconds = int64(resumed.Sub(last.PausedAt) / time.Second)
	s.Status = models.SessionActive
	s.PausedAt = nil
	s.UpdatedAt = now
	return nil
}

// Complete stops the clock and marks the session COMPLETED.
func Complete(s *models.Session, now time.Time) error {
	if err := checkTransition(s, models.SessionCompleted); err != nil {
		return err
	}
	timer.Fold(s, now)
	s.Status = models.SessionCompleted
	s.EndedAt = &now
	s.UpdatedAt = now
	return nil
}

// Advance moves a finished session through the review states.
func Advance(s *models.Session, to models.SessionStatus, now time.Time) error {
	if err := checkTransition(s, to); err != nil {
		return err
	}
	s.Status = to
	s.UpdatedAt = now
	return nil
}

// RecordMessage appends one transcript turn; only ACTIVE sessions take messages.
func RecordMessage(s *models.Session, role, content string, now time.Time) error {
	if s.Status != models.SessionActive {
		return errors.NewInvalidStateReason("session", "messages can only be recorded while "+string(models.SessionActive)+", session is "+string(s.Status))
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return errors.NewValidationError("role", "cannot be empty")
	}
	if strings.TrimSpace(content) == "" {
		return errors.NewValidationError("content", "cannot be empty")
	}
	s.Transcript = append(s.Transcript, models.Message{Role: role, Content: content, SentAt: now})
	s.UpdatedAt = now
	return nil
}

// TranscriptText flattens the transcript into "role: content" lines.
func TranscriptText(s models.Session) string {
	var sb strings.Builder
	for _, m := range s.Transcript {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteByte('\n')
	}
	return sb.String()
}
