package timer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/timer"
)

var start = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }
func ptrInt(i int) *int { return &i }

func TestElapsed_ActiveNeverPaused(t *testing.T) {
	s := models.Session{Status: models.SessionActive, StartedAt: start}

	assert.Equal(t, int64(600), timer.Elapsed(s, start.Add(10*time.Minute)))
}

func TestElapsed_PausedDoesNotAccrue(t *testing.T) {
	s := models.Session{
		Status:             models.SessionPaused,
		StartedAt:          start,
		TotalActiveSeconds: 300,
		PausedAt:           ptrTime(start.Add(5 * time.Minute)),
		PauseHistory:       []models.PauseEntry{{PausedAt: start.Add(5 * time.Minute)}},
	}

	assert.Equal(t, int64(300), timer.Elapsed(s, start.Add(time.Hour)))
}

func TestElapsed_AfterResumeCountsFromResume(t *testing.T) {
	resumed := start.Add(20 * time.Minute)
	s := models.Session{
		Status:             models.SessionActive,
		StartedAt:          start,
		TotalActiveSeconds: 300,
		PauseHistory: []models.PauseEntry{{
			PausedAt:        start.Add(5 * time.Minute),
			ResumedAt:       &resumed,
			DurationSeconds: 900,
		}},
	}

	assert.Equal(t, int64(360), timer.Elapsed(s, resumed.Add(time.Minute)))
}

func TestFold_ClockSkewNeverSubtracts(t *testing.T) {
	s := models.Session{Status: models.SessionActive, StartedAt: start, TotalActiveSeconds: 42}

	timer.Fold(&s, start.Add(-time.Minute))

	assert.Equal(t, int64(42), s.TotalActiveSeconds)
}

func TestCompute_Uncapped(t *testing.T) {
	s := models.Session{ID: "s1", Status: models.SessionActive, StartedAt: start}

	view := timer.Compute(s, start.Add(time.Hour), timer.DefaultNearTimeout)

	assert.Equal(t, int64(3600), view.ElapsedSeconds)
	assert.Nil(t, view.RemainingSeconds)
	assert.Nil(t, view.MaxDurationSeconds)
	assert.False(t, view.NearTimeout)
	assert.False(t, view.Expired)
}

func TestCompute_CapFlags(t *testing.T) {
	tests := []struct {
		name      string
		elapsed   time.Duration
		remaining int64
		near      bool
		expired   bool
	}{
		{"plenty left", 10 * time.Minute, 1200, false, false},
		{"inside threshold", 26 * time.Minute, 240, true, false},
		{"exactly at threshold", 25 * time.Minute, 300, true, false},
		{"over the cap", 45 * time.Minute, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := models.Session{Status: models.SessionActive, StartedAt: start, MaxDurationMinutes: ptrInt(30)}

			view := timer.Compute(s, start.Add(tt.elapsed), timer.DefaultNearTimeout)

			require.NotNil(t, view.RemainingSeconds)
			assert.Equal(t, tt.remaining, *view.RemainingSeconds)
			assert.Equal(t, int64(1800), *view.MaxDurationSeconds)
			assert.Equal(t, tt.near, view.NearTimeout)
			assert.Equal(t, tt.expired, view.Expired)
		})
	}
}

func TestCompute_PausedReportsPauseLength(t *testing.T) {
	pausedAt := start.Add(10 * time.Minute)
	s := models.Session{
		Status:             models.SessionPaused,
		StartedAt:          start,
		TotalActiveSeconds: 600,
		PausedAt:           &pausedAt,
		PauseHistory:       []models.PauseEntry{{PausedAt: pausedAt}},
	}

	view := timer.Compute(s, pausedAt.Add(90*time.Second), timer.DefaultNearTimeout)

	assert.True(t, view.Paused)
	assert.Equal(t, int64(90), view.PausedForSeconds)
	assert.Equal(t, int64(600), view.ElapsedSeconds)
}
