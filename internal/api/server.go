package api

import (
	"context"

	"github.com/vytor/simclinic/internal/services"
)

// ReadinessChecker reports whether a dependency can serve traffic.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

type Server struct {
	SessionService    services.SessionService
	AssessmentService services.AssessmentService
	FeedbackService   services.FeedbackService
	LedgerService     services.LedgerService
	ProgressService   services.ProgressService
	DB                ReadinessChecker
}
