package service

import (
	"context"
	"log/slog"

	"hatchery/internal/audit"
	"hatchery/pkg/requestcontext"
)

// auditEmitter shields the transaction path from the trail: a sink
// outage costs a log line, not a failed registration.
type auditEmitter struct {
	publisher audit.Publisher
	logger    *slog.Logger
}

func (e *auditEmitter) emit(ctx context.Context, event audit.Event) {
	if e.publisher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if err := e.publisher.Emit(ctx, event); err != nil {
		e.logger.WarnContext(ctx, "audit emit failed",
			"action", event.Action,
			"error", err,
		)
	}
}
