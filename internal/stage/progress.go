package stage

import (
	"math"
	"time"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/models"
)

// NewProgress returns a record with all three stages NOT_STARTED.
func NewProgress(studentID, internshipID string, now time.Time) models.StageProgress {
	p := models.StageProgress{
		StudentID:    studentID,
		InternshipID: internshipID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i := range p.Stages {
		p.Stages[i] = models.Stage{
			Number:  i + 1,
			Name:    models.StageNames[i],
			Status:  models.StageNotStarted,
			Metrics: map[string]float64{},
		}
	}
	return p
}

// Recalculate derives the overall fields from the stages. The percentage is
// floored to one decimal, so it is always one of 0, 33.3, 66.6 or 100.
// internship_completed_at is stamped on first completion and never cleared.
func Recalculate(p *models.StageProgress, now time.Time) {
	done := 0
	total := 0
	var sum float64
	scored := 0
	for _, s := range p.Stages {
		if s.Status.Done() {
			done++
		}
		total += s.SessionsCount
		if s.Score != nil {
			sum += *s.Score
			scored++
		}
	}

	p.TotalSessions = total
	p.OverallProgress = float64(done*1000/models.StageCount) / 10
	if scored > 0 {
		avg := round1(sum / float64(scored))
		p.OverallScore = &avg
	} else {
		p.OverallScore = nil
	}
	p.AllStagesCompleted = done == models.StageCount
	if p.AllStagesCompleted && p.InternshipCompletedAt == nil {
		at := now
		p.InternshipCompletedAt = &at
	}
	p.UpdatedAt = now
}

// SessionResult is what one scored session contributes to a stage.
type SessionResult struct {
	SessionID string
	CaseID    string
	AIScore   float64
	Score     float64
	Metrics   map[string]float64
	// Counted is true when the session was already counted toward the stage;
	// only the score and metrics are refreshed then.
	Counted bool
}

// ApplySession folds a classified session into its stage and recalculates.
func ApplySession(p *models.StageProgress, stage int, r SessionResult, now time.Time) error {
	s, err := stageAt(p, stage)
	if err != nil {
		return err
	}

	if s.Status == models.StageNotStarted {
		s.Status = models.StageInProgress
		at := now
		s.StartedAt = &at
	}
	if !r.Counted {
		s.SessionsCount++
	}
	score := r.Score
	ai := r.AIScore
	s.Score = &score
	s.AIScore = &ai
	s.CaseID = r.CaseID
	s.LastSessionID = r.SessionID
	if s.Metrics == nil {
		s.Metrics = map[string]float64{}
	}
	for k, v := range r.Metrics {
		s.Metrics[k] = v
	}

	Recalculate(p, now)
	return nil
}

// StageUpdate is a professor's direct edit. Nil fields are left unchanged.
type StageUpdate struct {
	Status *models.StageStatus
	Score  *float64
	Notes  *string
}

// UpdateStage applies a direct edit and recalculates.
func UpdateStage(p *models.StageProgress, stage int, u StageUpdate, now time.Time) error {
	s, err := stageAt(p, stage)
	if err != nil {
		return err
	}
	if u.Status != nil && !u.Status.Valid() {
		return errors.NewValidationError("status", "unknown stage status "+string(*u.Status))
	}
	if u.Score != nil && (*u.Score < 0 || *u.Score > 100) {
		return errors.NewValidationError("score", "must be between 0 and 100")
	}

	if u.Status != nil {
		setStatus(s, *u.Status, now)
	}
	if u.Score != nil {
		score := *u.Score
		s.Score = &score
	}
	if u.Notes != nil {
		s.Notes = *u.Notes
	}

	Recalculate(p, now)
	return nil
}

// ValidateStage records a professor verdict. An edited score replaces the
// stage score; the AI score is kept alongside.
func ValidateStage(p *models.StageProgress, stage int, status models.StageStatus, reviewer string, editedScore *float64, notes string, now time.Time) error {
	s, err := stageAt(p, stage)
	if err != nil {
		return err
	}
	if status != models.StageValidated && status != models.StageNeedsRevision {
		return errors.NewValidationError("status", "must be VALIDATED or NEEDS_REVISION")
	}
	if editedScore != nil && (*editedScore < 0 || *editedScore > 100) {
		return errors.NewValidationError("edited_score", "must be between 0 and 100")
	}

	setStatus(s, status, now)
	if editedScore != nil {
		score := *editedScore
		s.Score = &score
	}
	if notes != "" {
		s.Notes = notes
	}
	at := now
	s.ValidatedBy = reviewer
	s.ValidatedAt = &at

	Recalculate(p, now)
	return nil
}

func setStatus(s *models.Stage, status models.StageStatus, now time.Time) {
	s.Status = status
	if status != models.StageNotStarted && s.StartedAt == nil {
		at := now
		s.StartedAt = &at
	}
	if status.Done() && s.CompletedAt == nil {
		at := now
		s.CompletedAt = &at
	}
}

func stageAt(p *models.StageProgress, stage int) (*models.Stage, error) {
	if stage < 1 || stage > models.StageCount {
		return nil, errors.NewValidationError("stage", "must be 1, 2 or 3")
	}
	return &p.Stages[stage-1], nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
