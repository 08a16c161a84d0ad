package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vytor/simclinic/internal/errors"
	"github.com/vytor/simclinic/internal/logger"
)

// userHeader carries the acting reviewer or professor.
const userHeader = "X-User-ID"

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContext(r.Context()).Error("failed to encode response: %v", err)
	}
}

// decodeJSON reads a JSON body into dst, rejecting unknown fields. An empty
// body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return errors.NewBadRequestError("invalid JSON body: " + err.Error())
	}
	return nil
}

func actingUser(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userHeader))
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.NewValidationError(key, "must be a non-negative integer")
	}
	return n, nil
}

func stageParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		return 0, errors.NewValidationError("stage", "must be 1, 2 or 3")
	}
	return n, nil
}
