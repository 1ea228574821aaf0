package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"entregas/internal/backup"
	"entregas/internal/core"
	"entregas/internal/log"
	"entregas/internal/storage"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// errBadRequest marks malformed input that never reached the ledger.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeError maps ledger errors to a status code and a readable message.
// Unexpected errors are logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.FromContext(r.Context())

	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: verr.Error(), Field: verr.Field})
	case errors.Is(err, errBadRequest):
		writeMessage(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), errBadRequest.Error()+": "))
	case errors.Is(err, backup.ErrImportFormat):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "record not found")
	case errors.Is(err, storage.ErrDuplicateKey):
		writeMessage(w, http.StatusConflict, "a record with this id already exists")
	case errors.Is(err, storage.ErrStorageUnavailable):
		logger.ErrorContext(r.Context(), "Storage unavailable",
			log.NewFields().WithError(err, log.ErrorTypeDatabase).ToSlice()...)
		writeMessage(w, http.StatusServiceUnavailable, "local storage is unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		logger.WarnContext(r.Context(), "Request timed out", log.FieldError, err.Error())
		writeMessage(w, http.StatusServiceUnavailable, "request timed out")
	default:
		logger.ErrorContext(r.Context(), "Request failed",
			log.NewFields().WithError(err, log.ErrorTypeInternal).ToSlice()...)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a single JSON value from the body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return badRequest("body exceeds %d bytes", maxErr.Limit)
		}
		return badRequest("invalid JSON body: %v", err)
	}
	if dec.More() {
		return badRequest("body must contain a single JSON value")
	}
	return nil
}

func queryDate(r *http.Request, key string) (core.Date, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, badRequest("%s: %v", key, err)
	}
	return d, nil
}

func queryFloat(r *http.Request, key string) (*float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, badRequest("%s must be a non-negative number", key)
	}
	return &f, nil
}
