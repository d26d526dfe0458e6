package notifications

import (
	"context"
	"fmt"
	"time"

	"agenda/pkg/kafka"
	"agenda/pkg/logger"
	"agenda/pkg/model"
)

// Publisher is the producer side of a topic. *kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaDispatcher publishes reservation emails for the notifier worker.
type KafkaDispatcher struct {
	publisher Publisher
	source    string
	log       *logger.Logger
	now       func() time.Time
}

func NewKafkaDispatcher(publisher Publisher, source string, log *logger.Logger) *KafkaDispatcher {
	return &KafkaDispatcher{publisher: publisher, source: source, log: log, now: time.Now}
}

func (d *KafkaDispatcher) SendConfirmation(ctx context.Context, r *model.Reservation) error {
	if r.CustomerEmail == "" {
		return nil
	}
	return d.publish(ctx, ConfirmationEvent(r, d.now()))
}

func (d *KafkaDispatcher) SendReviewRequest(ctx context.Context, r *model.Reservation, token string) error {
	if r.CustomerEmail == "" {
		return nil
	}
	return d.publish(ctx, ReviewRequestEvent(r, token, d.now()))
}

func (d *KafkaDispatcher) publish(ctx context.Context, e Event) error {
	msg, err := kafka.NewMessage().
		WithKey(e.PartitionKey()).
		WithValue(e).
		WithEventType(e.Type).
		WithTenantID(e.TenantID).
		WithCorrelationID(e.ReservationID).
		WithSchemaVersion(SchemaVersion).
		WithSource(d.source).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build %s message: %w", e.Type, err)
	}

	if err := d.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}

	d.log.Debug("notification published", "type", e.Type, "reservation_id", e.ReservationID)
	return nil
}

// DirectDispatcher delivers in process. Used when Kafka is disabled.
type DirectDispatcher struct {
	sender *Sender
	now    func() time.Time
}

func NewDirectDispatcher(sender *Sender) *DirectDispatcher {
	return &DirectDispatcher{sender: sender, now: time.Now}
}

func (d *DirectDispatcher) SendConfirmation(ctx context.Context, r *model.Reservation) error {
	if r.CustomerEmail == "" {
		return nil
	}
	return d.sender.Deliver(ctx, ConfirmationEvent(r, d.now()))
}

func (d *DirectDispatcher) SendReviewRequest(ctx context.Context, r *model.Reservation, token string) error {
	if r.CustomerEmail == "" {
		return nil
	}
	return d.sender.Deliver(ctx, ReviewRequestEvent(r, token, d.now()))
}
