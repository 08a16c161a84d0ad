package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vytor/simclinic/internal/logger"
	"github.com/vytor/simclinic/internal/metrics"
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("worker queue is full")
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker pool is stopped")
)

type Job interface {
	Run(context.Context) error
	Name() string
}

type Pool struct {
	jobs    chan Job
	wg      sync.WaitGroup
	workers int
	queue   int
	cancel  context.CancelFunc
	log     *logger.Logger

	mu      sync.RWMutex
	stopped bool
}

func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	log := logger.Default().WithPrefix("worker-pool")
	log.Debug("creating worker pool with %d workers and queue size %d", workers, queueSize)
	return &Pool{
		jobs:    make(chan Job, queueSize),
		workers: workers,
		queue:   queueSize,
		log:     log,
	}
}

func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.log.Info("starting worker pool with %d workers", p.workers)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			workerLog := p.log.WithField("worker_id", id)
			workerLog.Debug("worker started")

			for {
				select {
				case <-ctx.Done():
					workerLog.Debug("worker shutting down (context cancelled)")
					return
				case job, ok := <-p.jobs:
					if !ok || job == nil {
						workerLog.Debug("worker shutting down (queue closed)")
						return
					}
					metrics.QueueDepth.Set(float64(len(p.jobs)))

					jobLog := workerLog.WithField("job", job.Name())
					jobLog.Debug("starting job")
					start := time.Now()

					// Create a context with the logger for the job
					jobCtx := logger.NewContext(ctx, jobLog)

					if err := job.Run(jobCtx); err != nil {
						jobLog.Error("job failed after %v: %v", time.Since(start), err)
					} else {
						jobLog.Info("job completed in %v", time.Since(start))
					}
				}
			}
		}(i + 1)
	}
}

// Stop refuses new jobs, lets workers drain what is queued unless the start
// context was cancelled, and waits for them to exit.
func (p *Pool) Stop() {
	p.log.Info("stopping worker pool")
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	metrics.QueueDepth.Set(0)
	p.log.Info("worker pool stopped")
}

// Submit queues job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobs <- job:
		p.log.Debug("submitted job: %s", job.Name())
		metrics.QueueDepth.Set(float64(len(p.jobs)))
		return nil
	default:
		p.log.Warn("queue full (%d), dropping job: %s", p.queue, job.Name())
		return ErrQueueFull
	}
}

// QueueSize returns the current number of pending jobs.
func (p *Pool) QueueSize() int {
	return len(p.jobs)
}
