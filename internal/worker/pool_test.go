package worker_test

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/worker"
)

type countingJob struct {
	runs *atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestPool_RunsSubmittedJobsAndDrainsOnStop(t *testing.T) {
	var runs atomic.Int32
	pool := worker.NewPool(2, 8)
	pool.Start(context.Background())

	for i := 0; i < 5; i++ {
		job := &countingJob{runs: &runs}
		if i == 0 {
			job.err = stderrors.New("boom")
		}
		require.NoError(t, pool.Submit(job))
	}
	pool.Stop()

	assert.EqualValues(t, 5, runs.Load())
	assert.ErrorIs(t, pool.Submit(&countingJob{runs: &runs}), worker.ErrPoolStopped)
	pool.Stop()
}

func TestPool_SubmitDoesNotBlockWhenFull(t *testing.T) {
	var runs atomic.Int32
	pool := worker.NewPool(1, 1)

	require.NoError(t, pool.Submit(&countingJob{runs: &runs}))
	assert.ErrorIs(t, pool.Submit(&countingJob{runs: &runs}), worker.ErrQueueFull)
	assert.Equal(t, 1, pool.QueueSize())
}

type fakeGenerator struct {
	calls []string
	err   error
}

func (g *fakeGenerator) Generate(ctx context.Context, sessionID string) (*models.Assessment, error) {
	g.calls = append(g.calls, sessionID)
	if g.err != nil {
		return nil, g.err
	}
	return &models.Assessment{ID: "a-" + sessionID, SessionID: sessionID, OverallScore: 82, PassFail: models.PassFailPass, GeneratedAt: time.Now()}, nil
}

func TestGenerateAssessmentJob(t *testing.T) {
	gen := &fakeGenerator{}
	job := &worker.GenerateAssessmentJob{Generator: gen, SessionID: "s1"}

	assert.Equal(t, "generate_assessment", job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"s1"}, gen.calls)

	gen.err = stderrors.New("oracle down")
	assert.EqualError(t, job.Run(context.Background()), "oracle down")
}
