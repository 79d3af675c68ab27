// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ManuGH/vodsession/internal/domain/session/manager"
	"github.com/ManuGH/vodsession/internal/log"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Problem is the JSON error body.
type Problem struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, code int, kind, detail string) {
	writeJSON(w, code, Problem{Error: kind, Detail: detail})
}

func writeNotFound(w http.ResponseWriter) {
	writeProblem(w, http.StatusNotFound, "not_found", "")
}

// writeDomainError maps manager errors onto HTTP statuses. Infrastructure
// failures are logged and reported without detail.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, manager.ErrNotFound):
		writeNotFound(w)
	case errors.Is(err, manager.ErrAccessDenied):
		writeProblem(w, http.StatusForbidden, "forbidden", "no entitlement for this video")
	case errors.Is(err, manager.ErrInvalidArgument):
		writeProblem(w, http.StatusBadRequest, "invalid_argument", err.Error())
	default:
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "internal", "")
	}
}

// decodeJSON reads a bounded body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
