package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/services"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var in services.CreateSessionInput
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	sess, created, err := s.SessionService.Create(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.SessionService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.SessionService.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecordMessage(w http.ResponseWriter, r *http.Request) {
	var in services.MessageInput
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	sess, err := s.SessionService.RecordMessage(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

func (s *Server) handlePauseSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.SessionService.Pause(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.SessionService.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

// handleCompleteSession ends the session. A scoring failure is reported in
// the body, never as an HTTP error, because the completion itself stands.
func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	res, err := s.SessionService.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.AssessmentStatus == services.AssessmentPending {
		status = http.StatusAccepted
	}
	writeJSON(w, r, status, res)
}

func (s *Server) handleSessionTimer(w http.ResponseWriter, r *http.Request) {
	t, err := s.SessionService.Timer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

// handleGenerateFeedback scores a finished session, or returns the
// assessment it already has.
func (s *Server) handleGenerateFeedback(w http.ResponseWriter, r *http.Request) {
	a, err := s.AssessmentService.Generate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}

func (s *Server) handleSessionFeedback(w http.ResponseWriter, r *http.Request) {
	a, err := s.FeedbackService.GetForSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}

func (s *Server) handleStudentSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		handleError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		handleError(w, r, err)
		return
	}

	filter := models.SessionFilter{
		StudentID:    chi.URLParam(r, "student"),
		CaseID:       q.Get("case_id"),
		InternshipID: q.Get("internship_id"),
		Type:         models.SessionType(q.Get("type")),
		Limit:        limit,
		Offset:       offset,
	}
	if raw := q.Get("status"); raw != "" {
		for _, st := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, models.SessionStatus(strings.ToUpper(strings.TrimSpace(st))))
		}
	}

	list, err := s.SessionService.ListForStudent(r.Context(), filter)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Session{}
	}
	writeJSON(w, r, http.StatusOK, list)
}
