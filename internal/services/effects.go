package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vytor/simclinic/internal/logger"
	"github.com/vytor/simclinic/internal/memory"
	"github.com/vytor/simclinic/internal/metrics"
	"github.com/vytor/simclinic/internal/models"
)

// effects fans a freshly stored assessment out to the ledger, the memory
// store and stage progress. Each effect runs on its own goroutine and its
// failure is logged and counted without affecting the others or the caller.
type effects struct {
	ledger   LedgerService
	progress ProgressService
	memory   memory.ClientInterface
	timeout  time.Duration
}

func (e *effects) run(ctx context.Context, sess models.Session, c models.Case, a models.Assessment, mem *models.Memory) {
	log := logger.FromContext(ctx).WithField("session_id", sess.ID)
	// Effects outlive a cancelled request; the record is already stored.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()
	ctx = logger.NewContext(ctx, log)

	var g errgroup.Group
	g.Go(func() error {
		e.do(ctx, "ledger", func(ctx context.Context) error {
			_, err := e.ledger.RecordAttempt(ctx, sess.StudentID, c, a)
			return err
		})
		return nil
	})
	if c.CurriculumID != "" {
		g.Go(func() error {
			e.do(ctx, "memory", func(ctx context.Context) error {
				return e.memory.Push(ctx, sess.StudentID, c.CurriculumID, memoryUpdate(sess, c, a))
			})
			return nil
		})
	}
	if c.StageTracked && sess.InternshipID != "" {
		g.Go(func() error {
			e.do(ctx, "stage", func(ctx context.Context) error {
				_, err := e.progress.AutoUpdate(ctx, sess, a, mem)
				return err
			})
			return nil
		})
	}
	_ = g.Wait()
}

func (e *effects) do(ctx context.Context, name string, fn func(context.Context) error) {
	log := logger.FromContext(ctx).WithField("effect", name)
	if err := fn(ctx); err != nil {
		metrics.EffectOutcomes.WithLabelValues(name, "error").Inc()
		log.WithError(err).Warn("post-assessment effect failed")
		return
	}
	metrics.EffectOutcomes.WithLabelValues(name, "ok").Inc()
	log.Debug("post-assessment effect done")
}

// memoryUpdate summarizes the session for the continuity store. Criteria
// scored at or above the pass threshold count as learned techniques.
func memoryUpdate(sess models.Session, c models.Case, a models.Assessment) models.MemoryUpdate {
	summary := fmt.Sprintf("Session %d on %q: %.0f (%s, %s).", sess.SessionNumber, c.Title, a.OverallScore, a.Grade, a.PassFail)
	if a.Evolution != "" {
		summary += " " + strings.TrimSpace(a.Evolution)
	}

	var learned []string
	for _, cr := range a.Criteria {
		if cr.Percent() >= a.PassThreshold {
			learned = append(learned, cr.Name)
		}
	}

	completed := a.GeneratedAt
	if sess.EndedAt != nil {
		completed = *sess.EndedAt
	}
	return models.MemoryUpdate{
		SessionID:         sess.ID,
		CaseID:            c.ID,
		SessionNumber:     sess.SessionNumber,
		Summary:           summary,
		OverallScore:      a.OverallScore,
		Grade:             a.Grade,
		PassFail:          a.PassFail,
		Strengths:         a.Strengths,
		Weaknesses:        a.Weaknesses,
		LearnedTechniques: learned,
		CompletedAt:       completed,
	}
}
