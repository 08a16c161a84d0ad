package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vytor/simclinic/internal/services"
)

func (s *Server) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	a, err := s.FeedbackService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}

func (s *Server) handleValidateFeedback(w http.ResponseWriter, r *http.Request) {
	var in services.ValidateInput
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	a, err := s.FeedbackService.Validate(r.Context(), chi.URLParam(r, "id"), actingUser(r), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}

func (s *Server) handleUpdateFeedback(w http.ResponseWriter, r *http.Request) {
	var in services.UpdateInput
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	a, err := s.FeedbackService.Update(r.Context(), chi.URLParam(r, "id"), actingUser(r), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, a)
}
