package consumer

import (
	"context"
	"io"
	"log/slog"

	audit "udyam/pkg/platform/audit"
)

// Handler processes one decoded audit event.
type Handler interface {
	Handle(ctx context.Context, event audit.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event audit.Event) error

func (f HandlerFunc) Handle(ctx context.Context, event audit.Event) error {
	return f(ctx, event)
}

// Router dispatches events to category-specific handlers.
type Router struct {
	handlers map[audit.EventCategory]Handler
	fallback Handler
	logger   *slog.Logger
}

// NewRouter creates a category router with an optional fallback handler.
func NewRouter(logger *slog.Logger, fallback Handler) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		handlers: make(map[audit.EventCategory]Handler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register adds a handler for a category.
func (r *Router) Register(category audit.EventCategory, handler Handler) {
	r.handlers[category] = handler
}

// Handle routes the event to its category handler.
func (r *Router) Handle(ctx context.Context, event audit.Event) error {
	handler, ok := r.handlers[event.Category]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, event)
		}
		r.logger.Debug("no handler for category, skipping event",
			"category", event.Category,
			"action", event.Action,
		)
		return nil
	}
	return handler.Handle(ctx, event)
}

// Archive appends every event to store, e.g. to mirror the topic into a
// reporting database.
func Archive(store audit.Store) Handler {
	return HandlerFunc(store.Append)
}
