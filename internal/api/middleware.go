package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/logger"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// loggingMiddleware logs HTTP requests with timing, status codes, and request IDs.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		log := logger.Default().WithFields(map[string]any{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
		})
		if r.RemoteAddr != "" {
			log = log.WithField("remote_addr", r.RemoteAddr)
		}
		if user := actingUser(r); user != "" {
			log = log.WithField("user_id", user)
		}

		r = r.WithContext(logger.NewContext(r.Context(), log))
		w.Header().Set("X-Request-ID", requestID)
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		log.Debug("request started")
		next.ServeHTTP(wrapped, r)

		log = log.WithFields(map[string]any{
			"status":      wrapped.status,
			"size":        wrapped.size,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if wrapped.status >= 500 {
			log.Error("request completed with server error")
		} else if wrapped.status >= 400 {
			log.Warn("request completed with client error")
		} else {
			log.Info("request completed")
		}
	})
}

// recoveryMiddleware recovers from panics and answers with a JSON 500.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				handleError(w, r, errors.NewInternalError(fmt.Errorf("panic recovered: %v", rec)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// securityHeadersMiddleware adds security headers to responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
