package services

import (
	"context"
	stderrors "errors"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/logger"
	"github.com/vytor/simclinic/internal/metrics"
	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/repository"
)

// maxUpdateAttempts bounds optimistic read-modify-write retries.
const maxUpdateAttempts = 5

// errUnchanged lets an update func report that nothing needs writing.
var errUnchanged = stderrors.New("unchanged")

// updateSession loads the session, applies fn and writes it back under the
// loaded version, reloading and re-applying fn on a version conflict. fn sees
// fresh state on every attempt, so a transition that a concurrent caller
// already made fails with INVALID_STATE instead of being applied twice.
func updateSession(ctx context.Context, repo repository.SessionRepository, id string, fn func(*models.Session) error) (*models.Session, error) {
	log := logger.FromContext(ctx).WithField("session_id", id)

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		sess, err := repo.Get(ctx, id)
		if err != nil {
			log.Error("failed to load session: %v", err)
			return nil, errors.NewInternalError(err)
		}
		if sess == nil {
			return nil, errors.NewNotFoundError("session", id)
		}
		from := sess.Status

		if err := fn(sess); err != nil {
			if err == errUnchanged {
				return sess, nil
			}
			return nil, err
		}

		err = repo.Update(ctx, sess)
		if err == nil {
			if sess.Status != from {
				metrics.SessionTransitions.WithLabelValues(string(sess.Status)).Inc()
				log.Info("session moved from %s to %s", from, sess.Status)
			}
			return sess, nil
		}
		if !stderrors.Is(err, repository.ErrVersionConflict) {
			log.Error("failed to update session: %v", err)
			return nil, errors.NewInternalError(err)
		}
		metrics.VersionConflicts.WithLabelValues("session").Inc()
		log.Debug("version conflict on attempt %d, reloading", attempt)
	}
	return nil, errors.NewConflictError("session " + id + " is being modified concurrently, retry")
}
