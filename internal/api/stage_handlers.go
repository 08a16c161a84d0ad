package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vytor/simclinic/internal/models"
	"github.com/vytor/simclinic/internal/services"
)

func (s *Server) handleStageDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.ProgressService.Dashboard(r.Context(), chi.URLParam(r, "internship"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, d)
}

func (s *Server) handleStageTimeline(w http.ResponseWriter, r *http.Request) {
	t, err := s.ProgressService.Timeline(r.Context(), chi.URLParam(r, "student"), chi.URLParam(r, "internship"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

func (s *Server) handleUpdateStage(w http.ResponseWriter, r *http.Request) {
	n, err := stageParam(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var in services.StageUpdateInput
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	p, err := s.ProgressService.UpdateStage(r.Context(), chi.URLParam(r, "student"), chi.URLParam(r, "internship"), n, in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

func (s *Server) handleValidateStage(w http.ResponseWriter, r *http.Request) {
	n, err := stageParam(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var in services.StageValidationInput
	if err := decodeJSON(r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	p, err := s.ProgressService.ValidateStage(r.Context(), chi.URLParam(r, "student"), chi.URLParam(r, "internship"), actingUser(r), n, in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// handleStageExport returns one flat row per student for spreadsheet tooling.
func (s *Server) handleStageExport(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ProgressService.ExportRows(r.Context(), chi.URLParam(r, "internship"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.StageExportRow{}
	}
	writeJSON(w, r, http.StatusOK, rows)
}
