package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/vytor/simclinic/internal/db"
	"github.com/vytor/simclinic/internal/models"
)

var dbCounter atomic.Int64

// NewTestDB creates an in-memory SQLite database with all migrations applied.
// Each call gets its own named shared-cache database so parallel tests do
// not see each other's rows.
func NewTestDB(t *testing.T) *sql.DB {
	name := fmt.Sprintf("file:simclinic_test_%d?mode=memory&cache=shared&_foreign_keys=on", dbCounter.Add(1))
	sqlDB, err := sql.Open("sqlite3", name)
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(context.Background(), sqlDB), "failed to apply migrations")
	return sqlDB
}

// MustClose closes a resource and fails the test on error.
func MustClose(t *testing.T, closer interface{ Close() error }) {
	require.NoError(t, closer.Close())
}

// Clock is a settable time source for deterministic tests.
type Clock struct {
	now atomic.Int64
}

func NewClock(start time.Time) *Clock {
	c := &Clock{}
	c.Set(start)
	return c
}

func (c *Clock) Now() time.Time {
	return time.Unix(0, c.now.Load()).UTC()
}

func (c *Clock) Set(t time.Time) {
	c.now.Store(t.UnixNano())
}

func (c *Clock) Advance(d time.Duration) {
	c.now.Add(int64(d))
}

// SeedCase returns a fully configured weighted case that can start sessions.
func SeedCase(id string) models.Case {
	return models.Case{
		ID:            id,
		Title:         "Case " + id,
		InternshipID:  "int-1",
		PatientID:     "pat-1",
		CurriculumID:  "emdr",
		SequenceOrder: 1,
		AllowPause:    true,
		StageTracked:  true,
		PassThreshold: 70,
		Patient: &models.PatientProfile{
			Name:            "Ana",
			Age:             34,
			PresentingIssue: "intrusive memories after a car accident",
			PriorSessions:   1,
		},
		Rubric: &models.Rubric{
			Format: models.RubricFormatWeighted,
			Criteria: []models.Criterion{
				{ID: "rapport", Name: "Rapport", Weight: 25},
				{ID: "safe_place", Name: "Safe place", Weight: 25},
				{ID: "desensitization", Name: "Desensitization", Weight: 25},
				{ID: "closure", Name: "Closure", Weight: 25},
			},
		},
		Literature: []models.LiteratureReference{{Title: "EMDR Therapy", Authors: "Shapiro", Year: 2018}},
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}
