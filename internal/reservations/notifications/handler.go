package notifications

import (
	"context"
	"errors"

	"agenda/pkg/kafka"
	"agenda/pkg/logger"
)

// NewMessageHandler consumes notification events. Undecodable or
// unrenderable events are permanent failures; delivery failures are retried.
func NewMessageHandler(sender *Sender, log *logger.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var e Event
		if err := msg.DecodeValue(&e); err != nil {
			return kafka.NewPermanentError("failed to decode notification event", err)
		}
		if e.Type == "" {
			e.Type = msg.GetEventType()
		}

		err := sender.Deliver(ctx, e)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrNoRecipient):
			log.Warn("notification skipped, no recipient", "type", e.Type, "reservation_id", e.ReservationID)
			return nil
		case errors.Is(err, ErrUnknownEvent):
			return kafka.NewPermanentError("unsupported notification event", err)
		}
		return kafka.NewTransientError("failed to deliver notification", err)
	}
}
