package services

import (
	"context"
	"sync"
	"time"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/jobs"
	"github.com/vytor/simclinic/internal/logger"
	"github.com/vytor/simclinic/internal/repository"
)

const (
	sweepBatch      = 50
	maxSweepBackoff = time.Hour
)

// AssessmentSweeper retries scoring for COMPLETED sessions that never got an
// assessment. Each session backs off exponentially between tries; the
// counters live in memory and reset on restart.
type AssessmentSweeper struct {
	sessions  repository.SessionRepository
	generator AssessmentService
	queue     jobs.JobQueue
	minAge    time.Duration
	interval  time.Duration
	clock     Clock

	mu    sync.Mutex
	tries map[string]sweepState
}

type sweepState struct {
	attempts int
	next     time.Time
}

// NewAssessmentSweeper builds a sweeper. With a nil queue, sessions are
// scored inline on the sweeping goroutine.
func NewAssessmentSweeper(sessions repository.SessionRepository, generator AssessmentService, queue jobs.JobQueue, minAge, interval time.Duration, clock Clock) *AssessmentSweeper {
	return &AssessmentSweeper{
		sessions:  sessions,
		generator: generator,
		queue:     queue,
		minAge:    minAge,
		interval:  interval,
		clock:     clock,
		tries:     map[string]sweepState{},
	}
}

// Run sweeps every interval until ctx is done.
func (s *AssessmentSweeper) Run(ctx context.Context) {
	log := logger.FromContext(ctx).WithPrefix("sweeper")
	log.Info("assessment sweeper running every %s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("assessment sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				log.Warn("assessment sweep failed: %v", err)
			}
		}
	}
}

// RunOnce dispatches every eligible unscored session and returns how many
// were dispatched. Sessions still backing off are excluded from the query so
// they cannot fill the batch ahead of newer ones.
func (s *AssessmentSweeper) RunOnce(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx).WithPrefix("sweeper")
	now := s.clock.now()

	pending, err := s.sessions.ListUnassessed(ctx, now.Add(-s.minAge), s.waiting(now), sweepBatch)
	if err != nil {
		return 0, errors.NewInternalError(err)
	}

	dispatched := 0
	seen := make(map[string]bool, len(pending))
	for _, sess := range pending {
		seen[sess.ID] = true
		s.backoff(sess.ID, now)
		dispatched++

		if s.queue != nil {
			if err := s.queue.EnqueueAssessment(sess.ID); err != nil {
				log.Warn("failed to enqueue session %s: %v", sess.ID, err)
			}
			continue
		}
		if _, err := s.generator.Generate(ctx, sess.ID); err != nil {
			log.Warn("retry for session %s failed: %v", sess.ID, err)
			continue
		}
		s.forget(sess.ID)
	}
	if len(pending) < sweepBatch {
		s.prune(seen, now)
	}

	if dispatched > 0 {
		log.Info("dispatched %d of %d unscored sessions", dispatched, len(pending))
	}
	return dispatched, nil
}

// waiting lists the sessions whose next try is still in the future.
func (s *AssessmentSweeper) waiting(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, st := range s.tries {
		if now.Before(st.next) {
			ids = append(ids, id)
		}
	}
	return ids
}

// backoff doubles the wait after every try: interval, 2x, 4x... capped.
func (s *AssessmentSweeper) backoff(id string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.tries[id]
	st.attempts++
	wait := s.interval << (st.attempts - 1)
	if wait <= 0 || wait > maxSweepBackoff {
		wait = maxSweepBackoff
	}
	st.next = now.Add(wait)
	s.tries[id] = st
}

func (s *AssessmentSweeper) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tries, id)
}

// prune drops counters for due sessions the last full listing did not
// return; they were scored or deleted elsewhere. Waiting sessions were
// excluded from the listing and keep their counters.
func (s *AssessmentSweeper) prune(listed map[string]bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range s.tries {
		if !listed[id] && !now.Before(st.next) {
			delete(s.tries, id)
		}
	}
}

// Attempts reports how many times a session has been dispatched.
func (s *AssessmentSweeper) Attempts(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tries[id].attempts
}
