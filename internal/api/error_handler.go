package api

import (
	"net/http"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/logger"
)

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// handleError centralizes error handling for HTTP responses
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	appErr, ok := errors.As(err)
	if !ok {
		// Wrap unknown errors as internal errors
		appErr = errors.NewInternalError(err)
	}

	if appErr.Status >= 500 {
		log.Error("server error: %v", appErr)
	} else {
		log.Warn("client error: %v", appErr)
	}

	body := errorBody{Code: appErr.Code, Message: appErr.Message, Fields: appErr.Fields}
	if appErr.Code == errors.ErrCodeInternal {
		// Internal details stay in the log.
		body.Message = "internal server error"
	}
	writeJSON(w, r, appErr.Status, map[string]errorBody{"error": body})
}
