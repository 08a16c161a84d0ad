package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/session"
	"github.com/vytor/simclinic/internal/timer"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newActive() models.Session {
	c := models.Case{ID: "case-1", InternshipID: "int-1", AllowPause: true}
	return session.New("sess-1", "stu-1", c, "", models.SessionTypePatient, 1, "handle-1", t0)
}

func TestNew_StartsActive(t *testing.T) {
	s := newActive()

	assert.Equal(t, models.SessionActive, s.Status)
	assert.Equal(t, "int-1", s.InternshipID)
	assert.Equal(t, int64(1), s.Version)
	assert.Empty(t, s.PauseHistory)
	assert.Equal(t, "handle-1", s.OracleHandle)
}

func TestPauseThenResume_LeavesActiveTimeUnchanged(t *testing.T) {
	s := newActive()
	pauseAt := t0.Add(10 * time.Minute)

	require.NoError(t, session.Pause(&s, true, pauseAt))
	before := s.TotalActiveSeconds
	require.NoError(t, session.Resume(&s, pauseAt))

	assert.Equal(t, before, s.TotalActiveSeconds)
	assert.Equal(t, int64(600), s.TotalActiveSeconds)
	require.Len(t, s.PauseHistory, 1)
	entry := s.PauseHistory[0]
	require.NotNil(t, entry.ResumedAt)
	assert.Equal(t, int64(0), entry.DurationSeconds)
	assert.Equal(t, models.SessionActive, s.Status)
	assert.Nil(t, s.PausedAt)
}

func TestPauseResume_DurationAndAccounting(t *testing.T) {
	s := newActive()

	require.NoError(t, session.Pause(&s, true, t0.Add(5*time.Minute)))
	require.NoError(t, session.Resume(&s, t0.Add(20*time.Minute)))
	require.NoError(t, session.Pause(&s, true, t0.Add(30*time.Minute)))

	assert.Equal(t, int64(900), s.TotalActiveSeconds)
	require.Len(t, s.PauseHistory, 2)
	assert.Equal(t, int64(900), s.PauseHistory[0].DurationSeconds)
	assert.Nil(t, s.PauseHistory[1].ResumedAt)
	assert.Equal(t, int64(900), timer.Elapsed(s, t0.Add(2*time.Hour)))
}

func TestPause_RefusedWhenCaseForbidsIt(t *testing.T) {
	s := newActive()

	err := session.Pause(&s, false, t0.Add(time.Minute))

	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidState))
	assert.Equal(t, models.SessionActive, s.Status)
	assert.Empty(t, s.PauseHistory)
}

func TestIllegalTransitions(t *testing.T) {
	tests := []struct {
		name string
		from models.SessionStatus
		op   func(*models.Session) error
	}{
		{"pause paused", models.SessionPaused, func(s *models.Session) error { return session.Pause(s, true, t0) }},
		{"resume active", models.SessionActive, func(s *models.Session) error { return session.Resume(s, t0) }},
		{"complete paused", models.SessionPaused, func(s *models.Session) error { return session.Complete(s, t0) }},
		{"complete completed", models.SessionCompleted, func(s *models.Session) error { return session.Complete(s, t0) }},
		{"validate active", models.SessionActive, func(s *models.Session) error {
			return session.Advance(s, models.SessionValidated, t0)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newActive()
			s.Status = tt.from

			err := tt.op(&s)

			require.Error(t, err)
			appErr, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, errors.ErrCodeInvalidState, appErr.Code)
			assert.Contains(t, appErr.Message, string(tt.from))
			assert.Equal(t, tt.from, s.Status)
		})
	}
}

func TestComplete_FoldsTimeAndStamps(t *testing.T) {
	s := newActive()
	end := t0.Add(42 * time.Minute)

	require.NoError(t, session.Complete(&s, end))

	assert.Equal(t, models.SessionCompleted, s.Status)
	require.NotNil(t, s.EndedAt)
	assert.Equal(t, end, *s.EndedAt)
	assert.Equal(t, int64(42*60), s.TotalActiveSeconds)
	assert.Equal(t, int64(42*60), timer.Elapsed(s, end.Add(time.Hour)))
}

func TestReviewTransitions(t *testing.T) {
	assert.True(t, session.CanTransition(models.SessionCompleted, models.SessionPendingValidation))
	assert.True(t, session.CanTransition(models.SessionPendingValidation, models.SessionValidated))
	assert.True(t, session.CanTransition(models.SessionPendingValidation, models.SessionRevised))
	assert.True(t, session.CanTransition(models.SessionRevised, models.SessionValidated))
	assert.False(t, session.CanTransition(models.SessionCompleted, models.SessionValidated))
	assert.False(t, session.CanTransition(models.SessionValidated, models.SessionActive))
}

func TestRecordMessage(t *testing.T) {
	s := newActive()

	require.NoError(t, session.RecordMessage(&s, "Student", "How are you feeling today?", t0))
	require.NoError(t, session.RecordMessage(&s, "patient", "Anxious.", t0.Add(time.Second)))

	require.Len(t, s.Transcript, 2)
	assert.Equal(t, "student", s.Transcript[0].Role)
	assert.Equal(t, "student: How are you feeling today?\npatient: Anxious.\n", session.TranscriptText(s))

	assert.True(t, errors.HasCode(session.RecordMessage(&s, "", "x", t0), errors.ErrCodeValidation))

	s.Status = models.SessionPaused
	assert.True(t, errors.HasCode(session.RecordMessage(&s, "student", "hello?", t0), errors.ErrCodeInvalidState))
}
