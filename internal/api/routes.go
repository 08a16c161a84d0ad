package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoveryMiddleware)
	r.Use(loggingMiddleware)
	r.Use(securityHeadersMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/messages", s.handleRecordMessage)
			r.Post("/pause", s.handlePauseSession)
			r.Post("/resume", s.handleResumeSession)
			r.Post("/complete", s.handleCompleteSession)
			r.Get("/timer", s.handleSessionTimer)
			r.Post("/feedback", s.handleGenerateFeedback)
			r.Get("/feedback", s.handleSessionFeedback)
		})

		r.Get("/feedback/{id}", s.handleGetFeedback)
		r.Post("/feedback/{id}/validate", s.handleValidateFeedback)
		r.Patch("/feedback/{id}", s.handleUpdateFeedback)

		r.Route("/students/{student}", func(r chi.Router) {
			r.Get("/sessions", s.handleStudentSessions)
			r.Get("/cases/{case}/attempts", s.handleCaseAttempts)
			r.Get("/stats", s.handleStudentStats)
			r.Get("/patients/{patient}/progression", s.handleProgression)
		})

		r.Route("/internships/{internship}", func(r chi.Router) {
			r.Get("/stages", s.handleStageDashboard)
			r.Get("/stages/export", s.handleStageExport)
			r.Get("/students/{student}/timeline", s.handleStageTimeline)
			r.Put("/students/{student}/stages/{n}", s.handleUpdateStage)
			r.Post("/students/{student}/stages/{n}/validate", s.handleValidateStage)
		})
	})
	return r
}
