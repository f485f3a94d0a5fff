package publisher

import (
	"context"
	"log/slog"

	audit "enrolld/pkg/platform/audit"
)

// Publisher hands audit events to the background worker through a buffered
// channel. Emitting never blocks the enrollment path: when the buffer is
// full the event is dropped and counted against the log instead.
type Publisher struct {
	out    chan audit.Event
	logger *slog.Logger
}

func New(buffer int, logger *slog.Logger) *Publisher {
	return &Publisher{
		out:    make(chan audit.Event, buffer),
		logger: logger,
	}
}

// Emit queues an event for persistence.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	select {
	case p.out <- event:
		return nil
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			slog.String("kind", string(event.Kind)),
			slog.String("attempt_id", event.AttemptID.String()),
		)
		return nil
	}
}

// Events exposes the channel the worker consumes.
func (p *Publisher) Events() <-chan audit.Event {
	return p.out
}
