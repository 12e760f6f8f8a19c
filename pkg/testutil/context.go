package testutil

import (
	"net/http"
	"time"

	"hatchery/contracts/spawn"
	"hatchery/pkg/requestcontext"
)

// WithSender stamps a sender address onto the request context,
// simulating what the identity middleware does for authenticated
// requests.
func WithSender(req *http.Request, sender spawn.Address) *http.Request {
	ctx := requestcontext.WithSender(req.Context(), sender)
	return req.WithContext(ctx)
}

// WithRequestID stamps a request ID onto the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	ctx := requestcontext.WithRequestID(req.Context(), requestID)
	return req.WithContext(ctx)
}

// WithTime pins the request-scoped clock, so tests exercising the
// entropy ratchet see a deterministic timestamp.
func WithTime(req *http.Request, t time.Time) *http.Request {
	ctx := requestcontext.WithTime(req.Context(), t)
	return req.WithContext(ctx)
}
