package jobs_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vytor/simclinic/internal/jobs"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/worker"
)

type recordingGenerator struct {
	mu    sync.Mutex
	calls []string
}

func (g *recordingGenerator) Generate(ctx context.Context, sessionID string) (*models.Assessment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, sessionID)
	return &models.Assessment{ID: "a-" + sessionID, SessionID: sessionID}, nil
}

func TestWorkerQueue_EnqueueAssessmentRunsOnPool(t *testing.T) {
	gen := &recordingGenerator{}
	pool := worker.NewPool(1, 4)
	pool.Start(context.Background())

	var q jobs.JobQueue = jobs.NewWorkerQueue(pool, gen)
	require.NoError(t, q.EnqueueAssessment("s1"))
	require.NoError(t, q.EnqueueAssessment("s2"))
	pool.Stop()

	assert.ElementsMatch(t, []string{"s1", "s2"}, gen.calls)
	assert.ErrorIs(t, q.EnqueueAssessment("s3"), worker.ErrPoolStopped)
}
