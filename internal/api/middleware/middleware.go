// Package middleware holds the HTTP middleware chain and JSON helpers.
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/finance-assistant/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Chain applies the standard middleware in order:
// Recovery, Logger, RequestID, CORS, Auth.
func Chain(h http.Handler, log zerolog.Logger, adminToken string) http.Handler {
	return Recovery(log)(
		Logger(log)(
			RequestID(
				CORS(
					Auth(adminToken)(h),
				),
			),
		),
	)
}

// Logger adds structured logging to HTTP requests. The request logger is
// stored in the context for handlers.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			holder := &requestLog{log: log}
			ctx := context.WithValue(r.Context(), requestLogKey, holder)

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			holder.log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("HTTP request")
		})
	}
}

// CORS adds Cross-Origin Resource Sharing headers.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Recovery recovers from panics and returns a 500 error.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("error", err).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Msg("Panic recovered")

					WriteError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RequestID propagates X-Request-ID or assigns a new one, and tags the
// request logger with it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)

		if holder, ok := ctx.Value(requestLogKey).(*requestLog); ok {
			holder.log = holder.log.With().Str("request_id", requestID).Logger()
			ctx = logger.WithContext(ctx, holder.log)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Auth guards /api/admin/ routes with a bearer token. An empty token leaves
// them open; users are identified by an unverified email either way.
func Auth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || !strings.HasPrefix(r.URL.Path, "/api/admin/") {
				next.ServeHTTP(w, r)
				return
			}

			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				WriteError(w, http.StatusUnauthorized, "Admin token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetRequestID returns the request ID stored by RequestID.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestLog struct {
	log zerolog.Logger
}

type contextKey string

const (
	requestIDKey  contextKey = "requestID"
	requestLogKey contextKey = "requestLog"
)

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}
