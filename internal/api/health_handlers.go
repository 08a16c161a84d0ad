package api

import (
	"net/http"

	"github.com/vytor/simclinic/internal/logger"
)

// handleHealth is the liveness probe. It only says the process is up.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleReady answers 503 until the database accepts queries.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.DB != nil {
		if err := s.DB.Ready(r.Context()); err != nil {
			logger.FromContext(r.Context()).Warn("readiness check failed - database: %v", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Database unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
