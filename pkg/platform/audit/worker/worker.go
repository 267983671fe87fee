package worker

import (
	"context"
	"io"
	"log/slog"

	audit "udyam/pkg/platform/audit"
)

// Worker consumes audit events from a channel, persists them and forwards
// them to every sink. Store errors are logged and the event is dropped so a
// broken store cannot wedge the queue.
type Worker struct {
	store  audit.Store
	sinks  []audit.Sink
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger, sinks ...audit.Sink) *Worker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Worker{store: store, sinks: sinks, inbox: inbox, logger: logger}
}

// Run processes events until the inbox is closed or ctx is cancelled. On
// cancellation it drains whatever is already buffered before returning.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.Handle(ctx, event)
		}
	}
}

// Handle persists and forwards a single event.
func (w *Worker) Handle(ctx context.Context, event audit.Event) {
	if err := w.store.Append(ctx, event); err != nil {
		w.logger.ErrorContext(ctx, "failed to persist audit event",
			"action", event.Action,
			"request_id", event.RequestID,
			"error", err,
		)
		return
	}
	for _, sink := range w.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			w.logger.WarnContext(ctx, "failed to forward audit event",
				"action", event.Action,
				"request_id", event.RequestID,
				"error", err,
			)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.inbox:
			if !ok {
				return
			}
			w.Handle(ctx, event)
		default:
			return
		}
	}
}
