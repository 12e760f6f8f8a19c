// Package middleware carries the HTTP middleware chain: request IDs,
// request-scoped time, panic recovery, and the bearer-token identity
// stamp the factory's execute surface requires.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"hatchery/contracts/spawn"
	"hatchery/pkg/platform/httputil"
	"hatchery/pkg/requestcontext"
)

// RequestIDHeader is echoed back so clients can correlate logs.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request an ID, honoring one the client sent.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestTime pins one "now" for the whole request so the entropy
// ratchet and audit timestamps agree within a transaction.
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Recovery turns handler panics into logged 500s.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(r.Context(), "handler panicked",
						"request_id", requestcontext.RequestID(r.Context()),
						"panic", rec,
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal_error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityValidator turns a bearer token back into a sender address.
type IdentityValidator interface {
	Validate(token string) (spawn.Address, error)
}

// RequireIdentity authenticates the caller and stamps the sender
// address into the context. Handlers downstream treat that stamp the
// way on-platform services treat the transport's sender field.
func RequireIdentity(validator IdentityValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok {
				logger.WarnContext(ctx, "missing bearer token",
					"request_id", requestID,
				)
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
					Error:            "unauthorized",
					ErrorDescription: "missing or invalid Authorization header",
				})
				return
			}

			sender, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "token validation failed",
					"request_id", requestID,
					"error", err,
				)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithSender(ctx, sender)))
		})
	}
}
