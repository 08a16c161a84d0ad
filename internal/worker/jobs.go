package worker

import (
	"context"

	"github.com/vytor/simclinic/internal/logger"
)

// GenerateAssessmentJob scores one completed session in the background.
type GenerateAssessmentJob struct {
	Generator AssessmentGenerator
	SessionID string
}

func (j *GenerateAssessmentJob) Name() string { return "generate_assessment" }

func (j *GenerateAssessmentJob) Run(ctx context.Context) error {
	log := logger.FromContext(ctx).WithField("session_id", j.SessionID)
	ctx = logger.NewContext(ctx, log)

	a, err := j.Generator.Generate(ctx, j.SessionID)
	if err != nil {
		return err
	}
	log.Info("assessment %s ready: score=%.0f, %s", a.ID, a.OverallScore, a.PassFail)
	return nil
}
