package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/drfirst/go-flowsheet/internal/domain"
	fhir "github.com/drfirst/go-flowsheet/internal/fhir/r5"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("weight: %w", domain.ErrInvalidInput), http.StatusBadRequest},
		{domain.ErrOutOfOrderCompletion, http.StatusConflict},
		{domain.ErrWorkflowComplete, http.StatusConflict},
		{fmt.Errorf("append: %w", domain.ErrStorageUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}

func TestWriteOutcome(t *testing.T) {
	rec := httptest.NewRecorder()
	writeOutcome(rec, zap.NewNop(), fmt.Errorf("export: %w", domain.ErrStorageUnavailable))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/fhir+json", rec.Header().Get("Content-Type"))

	var outcome fhir.OperationOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.Equal(t, "OperationOutcome", outcome.ResourceType)
	require.Len(t, outcome.Issue, 1)
	assert.Equal(t, "transient", outcome.Issue[0].Code)
	assert.Equal(t, "error", outcome.Issue[0].Severity)
}
