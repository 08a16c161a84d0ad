package jobs

import (
	"github.com/vytor/simclinic/internal/worker"
)

// WorkerQueue implements JobQueue using a worker pool
type WorkerQueue struct {
	assessmentPool *worker.Pool
	generator      worker.AssessmentGenerator
}

// NewWorkerQueue creates a new WorkerQueue implementation
func NewWorkerQueue(assessmentPool *worker.Pool, generator worker.AssessmentGenerator) *WorkerQueue {
	return &WorkerQueue{
		assessmentPool: assessmentPool,
		generator:      generator,
	}
}

var _ JobQueue = (*WorkerQueue)(nil)

func (q *WorkerQueue) EnqueueAssessment(sessionID string) error {
	return q.assessmentPool.Submit(&worker.GenerateAssessmentJob{
		Generator: q.generator,
		SessionID: sessionID,
	})
}
