// Package handler exposes the factory over HTTP. It is a thin adapter:
// envelopes decode into the closed unions, the bus runs the operation,
// and the answer goes back padded so response sizes leak nothing about
// list lengths or key material.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hatchery/contracts/spawn"
	dErrors "hatchery/pkg/domain-errors"
	"hatchery/pkg/requestcontext"
)

// Gateway is the platform surface the handler forwards to. Going
// through the bus rather than the service keeps spawn instructions on
// the outbox where HTTP cannot see them.
type Gateway interface {
	ExecuteFactory(ctx context.Context, sender spawn.Address, msg spawn.ExecuteMsg) (spawn.ExecuteAnswer, error)
	QueryFactory(ctx context.Context, msg spawn.QueryMsg) (spawn.QueryAnswer, error)
}

// Handler wires factory endpoints to the platform bus.
type Handler struct {
	gateway Gateway
	logger  *slog.Logger
}

// New constructs a factory handler.
func New(gateway Gateway, logger *slog.Logger) *Handler {
	return &Handler{gateway: gateway, logger: logger}
}

// Register mounts the factory endpoints on the router. The execute
// route runs behind the identity middleware; queries carry their
// credentials in the body and stay unauthenticated.
func (h *Handler) Register(r chi.Router, requireIdentity func(http.Handler) http.Handler) {
	r.Group(func(gr chi.Router) {
		gr.Use(requireIdentity)
		gr.Post("/factory/execute", h.HandleExecute)
	})
	r.Post("/factory/query", h.HandleQuery)
}

// HandleExecute handles POST /factory/execute requests.
func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	sender := requestcontext.Sender(ctx)
	if sender.IsZero() {
		writeErrorPadded(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	msg, ok := decodePadded[spawn.ExecuteMsg](w, r, h.logger, requestID)
	if !ok {
		return
	}

	answer, err := h.gateway.ExecuteFactory(ctx, sender, msg)
	if err != nil {
		h.logger.WarnContext(ctx, "factory execute failed",
			"request_id", requestID,
			"sender", sender,
			"error", err,
		)
		writeErrorPadded(w, err)
		return
	}

	h.logger.InfoContext(ctx, "factory execute handled",
		"request_id", requestID,
		"sender", sender,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSONPadded(w, http.StatusOK, answer)
}

// HandleQuery handles POST /factory/query requests.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	msg, ok := decodePadded[spawn.QueryMsg](w, r, h.logger, requestID)
	if !ok {
		return
	}

	answer, err := h.gateway.QueryFactory(ctx, msg)
	if err != nil {
		h.logger.WarnContext(ctx, "factory query failed",
			"request_id", requestID,
			"error", err,
		)
		writeErrorPadded(w, err)
		return
	}

	writeJSONPadded(w, http.StatusOK, answer)
}
