package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCaseAttempts(w http.ResponseWriter, r *http.Request) {
	entry, err := s.LedgerService.History(r.Context(), chi.URLParam(r, "student"), chi.URLParam(r, "case"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, entry)
}

func (s *Server) handleStudentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.LedgerService.StudentStats(r.Context(), chi.URLParam(r, "student"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

func (s *Server) handleProgression(w http.ResponseWriter, r *http.Request) {
	p, err := s.LedgerService.Progression(r.Context(), chi.URLParam(r, "student"), chi.URLParam(r, "patient"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}
