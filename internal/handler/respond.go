// Package handler exposes the escrow entry points over HTTP. Every route
// maps 1:1 to an engine operation; the caller is identified by the
// X-Sender header, standing in for the ambient transaction sender.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"rpsarena/internal/service"
	"rpsarena/internal/token"
)

// errorStatus maps engine failures onto HTTP status codes. Anything not
// listed is an internal error.
var errorStatus = map[error]int{
	service.ErrInvalidAmount:             http.StatusBadRequest,
	service.ErrInvalidOpponent:           http.StatusBadRequest,
	service.ErrInvalidChoice:             http.StatusBadRequest,
	service.ErrInsufficientBalance:       http.StatusBadRequest,
	service.ErrInsufficientAuthorization: http.StatusForbidden,
	service.ErrUnauthorized:              http.StatusForbidden,
	service.ErrNotWinner:                 http.StatusForbidden,
	service.ErrSessionNotFound:           http.StatusNotFound,
	service.ErrDuplicateSession:          http.StatusConflict,
	service.ErrAlreadyPlayed:             http.StatusConflict,
	service.ErrIncompleteSession:         http.StatusConflict,
	service.ErrAlreadyWithdrawn:          http.StatusConflict,
	token.ErrZeroAmount:                  http.StatusBadRequest,
	token.ErrInsufficientBalance:         http.StatusBadRequest,
	token.ErrInsufficientAllowance:       http.StatusForbidden,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError renders a failure as {"reason": "<stable message>"}.
func writeError(w http.ResponseWriter, err error) {
	for sentinel, status := range errorStatus {
		if errors.Is(err, sentinel) {
			writeJSON(w, status, map[string]string{"reason": sentinel.Error()})
			return
		}
	}
	log.Error().Err(err).Msg("Unhandled error")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"reason": "internal error"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"reason": "malformed request body"})
		return false
	}
	return true
}
