// Package handlers provides HTTP handlers for the flowsheet API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/drfirst/go-flowsheet/internal/domain"
	fhir "github.com/drfirst/go-flowsheet/internal/fhir/r5"
)

const maxBodyBytes = 1 << 20

func jsonEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}

// errorResponse is the JSON body of every error.
type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrOutOfOrderCompletion), errors.Is(err, domain.ErrWorkflowComplete):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err with the status its kind maps to. Storage and
// internal failures hide the cause from the client.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		msg = "record store unavailable, the submission was not saved; retry with the same Idempotency-Key"
	case http.StatusInternalServerError:
		logger.Error("request failed", zap.Error(err))
		msg = "internal server error"
	}
	jsonError(w, msg, status)
}

// writeOutcome is writeError for FHIR clients.
func writeOutcome(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	code, msg := "exception", "internal server error"
	switch status {
	case http.StatusBadRequest:
		code, msg = "invalid", err.Error()
	case http.StatusServiceUnavailable:
		code, msg = "transient", "record store unavailable"
	default:
		logger.Error("fhir request failed", zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/fhir+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(fhir.NewErrorOutcome(code, msg))
}

// decodeJSON decodes a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %w", domain.ErrInvalidInput, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: request body must contain a single JSON object", domain.ErrInvalidInput)
	}
	return nil
}
