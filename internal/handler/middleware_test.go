package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rpsarena/internal/service"
	"rpsarena/internal/token"
)

func TestRequireSender(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = Sender(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireSender(inner)

	// Missing header rejected before the handler runs
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, seen)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "missing X-Sender header", body["reason"])

	// With the header, the sender lands in the request context
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Sender", "alice")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "alice", seen)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{service.ErrInvalidAmount, http.StatusBadRequest},
		{service.ErrInvalidChoice, http.StatusBadRequest},
		{service.ErrInsufficientAuthorization, http.StatusForbidden},
		{service.ErrNotWinner, http.StatusForbidden},
		{service.ErrSessionNotFound, http.StatusNotFound},
		{service.ErrDuplicateSession, http.StatusConflict},
		{service.ErrAlreadyPlayed, http.StatusConflict},
		{service.ErrAlreadyWithdrawn, http.StatusConflict},
		{token.ErrInsufficientAllowance, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.err.Error(), body["reason"])
		})
	}
}

func TestWriteError_WrappedAndUnknown(t *testing.T) {
	// Wrapped sentinels still map through errors.Is
	rec := httptest.NewRecorder()
	writeError(rec, fmt.Errorf("declare winner: %w", service.ErrIncompleteSession))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, service.ErrIncompleteSession.Error(), body["reason"])

	// Anything unrecognized degrades to a 500 without leaking detail
	rec = httptest.NewRecorder()
	writeError(rec, fmt.Errorf("connection reset"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal error", body["reason"])
}
