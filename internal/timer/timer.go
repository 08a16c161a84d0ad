// Package timer computes active time for simulated sessions from the start
// time, the pause history and the current instant.
package timer

import (
	"time"

	"github.com/vytor/simclinic/internal/models"
)

// DefaultNearTimeout is how close to the cap a session must be to be flagged.
const DefaultNearTimeout = 5 * time.Minute

// ActiveSince returns the instant the current active segment began: the last
// resume, or the session start when it was never paused.
func ActiveSince(s models.Session) time.Time {
	if last := s.LastPause(); last != nil && last.ResumedAt != nil {
		return *last.ResumedAt
	}
	return s.StartedAt
}

// InFlightSeconds is the active time not yet folded into TotalActiveSeconds.
// Only an ACTIVE session accrues in-flight time.
func InFlightSeconds(s models.Session, now time.Time) int64 {
	if s.Status != models.SessionActive {
		return 0
	}
	return seconds(now.Sub(ActiveSince(s)))
}

// Elapsed returns total active seconds including any in-flight segment.
func Elapsed(s models.Session, now time.Time) int64 {
	return s.TotalActiveSeconds + InFlightSeconds(s, now)
}

// Fold moves the in-flight segment into TotalActiveSeconds. Callers must
// change the status away from ACTIVE (pause, complete) in the same step,
// otherwise the segment would be counted twice.
func Fold(s *models.Session, now time.Time) {
	s.TotalActiveSeconds += InFlightSeconds(*s, now)
}

// Compute builds the read-only timer view of a session.
func Compute(s models.Session, now time.Time, nearThreshold time.Duration) models.Timer {
	t := models.Timer{
		SessionID:      s.ID,
		Status:         s.Status,
		ElapsedSeconds: Elapsed(s, now),
		Paused:         s.Status == models.SessionPaused,
		ComputedAt:     now,
	}
	if t.Paused && s.PausedAt != nil {
		t.PausedForSeconds = seconds(now.Sub(*s.PausedAt))
	}

	if s.MaxDurationMinutes != nil && *s.MaxDurationMinutes > 0 {
		maxSeconds := int64(*s.MaxDurationMinutes) * 60
		remaining := maxSeconds - t.ElapsedSeconds
		if remaining < 0 {
			remaining = 0
		}
		t.MaxDurationSeconds = &maxSeconds
		t.RemainingSeconds = &remaining
		t.Expired = remaining == 0
		t.NearTimeout = !t.Expired && remaining <= seconds(nearThreshold)
	}
	return t
}

func seconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}
