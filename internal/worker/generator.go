package worker

import (
	"context"

	"github.com/vytor/simclinic/internal/models"
)

// AssessmentGenerator defines the interface for scoring a completed session.
// This avoids import cycles by not importing the services package
type AssessmentGenerator interface {
	Generate(ctx context.Context, sessionID string) (*models.Assessment, error)
}
