// Package middleware holds the chi middleware chain the gateway installs
// on every route, grounded on the polyglot-llm-gateway reference repo's
// server package (request ID, structured request logging) generalized
// from log/slog to logrus to match the rest of this repo's ambient stack.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lattice-run/modgate/internal/schema"
)

type contextKey string

// RequestIDKey is the context key the request-ID middleware stores under.
const RequestIDKey contextKey = "request_id"

// RequestID assigns a UUID to every request, storing it in the context and
// echoing it on the X-Request-ID response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID set by RequestID, or "" if absent.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// loggingResponseWriter captures the status code for the access log.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Logging emits one structured log line per completed request.
func Logging(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			log.WithFields(logrus.Fields{
				"request_id": GetRequestID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     wrapped.statusCode,
				"duration":   time.Since(start).String(),
			}).Info("request completed")
		})
	}
}

// ShuttingDown rejects new requests with 503 once the server has started
// its graceful-shutdown drain, per the teacher's shuttingDown flag.
func ShuttingDown(draining *bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if draining != nil && *draining {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(schema.ErrorBody{
					Status: "error",
					Error:  schema.ErrorDetail{Code: "DRAINING", Reason: "server shutting down"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
