package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type contextKey string

const senderKey contextKey = "sender"

// Sender returns the caller address attached by RequireSender.
func Sender(ctx context.Context) string {
	s, _ := ctx.Value(senderKey).(string)
	return s
}

// RequireSender rejects requests without an X-Sender header and stores
// the address in the request context. The header identifies the ambient
// transaction sender for all entry points.
func RequireSender(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sender := r.Header.Get("X-Sender")
		if sender == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"reason": "missing X-Sender header"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), senderKey, sender)))
	})
}

// RequestLogger logs each request with method, path, sender, and duration.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("sender", r.Header.Get("X-Sender")).
				Dur("elapsed", time.Since(start)).
				Msg("Request handled")
		})
	}
}
