package service

import (
	"context"

	"agenda/pkg/model"
)

// EmailDispatcher hands customer notifications to the delivery pipeline.
// Calls happen after commit; errors are reported to the outbox monitor.
type EmailDispatcher interface {
	SendConfirmation(ctx context.Context, r *model.Reservation) error
	SendReviewRequest(ctx context.Context, r *model.Reservation, token string) error
}

// CounterService tracks how many reservations a customer has made.
type CounterService interface {
	Increment(ctx context.Context, tenantID string, email model.Email) error
}

// Post-commit task names.
const (
	TaskConfirmationEmail  = "confirmation_email"
	TaskReservationCounter = "reservation_counter"
	TaskReviewRequestEmail = "review_request_email"
)
