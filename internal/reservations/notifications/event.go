// Package notifications carries reservation emails from the booking service
// to the notifier worker and delivers them.
package notifications

import (
	"time"

	"agenda/pkg/model"
)

const (
	EventReservationConfirmed = "reservation.confirmed"
	EventReviewRequested      = "reservation.review_requested"

	SchemaVersion = "1"
)

// Event is the payload published for every customer email.
type Event struct {
	Type          string    `json:"type"`
	TenantID      string    `json:"tenant_id"`
	ReservationID string    `json:"reservation_id"`
	ResourceID    string    `json:"resource_id"`
	ServiceID     string    `json:"service_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	Date          string    `json:"date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	TimeZone      string    `json:"time_zone"`
	Price         string    `json:"price"`
	CancelToken   string    `json:"cancel_token,omitempty"`
	ReviewToken   string    `json:"review_token,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func newEvent(eventType string, r *model.Reservation, at time.Time) Event {
	return Event{
		Type:          eventType,
		TenantID:      r.TenantID,
		ReservationID: r.ID,
		ResourceID:    r.ResourceID,
		ServiceID:     r.ServiceID,
		CustomerName:  r.CustomerName,
		CustomerEmail: r.CustomerEmail.String(),
		Date:          r.Slot.Date(),
		StartTime:     r.Slot.StartTime(),
		EndTime:       r.Slot.EndTime(),
		TimeZone:      r.Slot.Location().String(),
		Price:         r.Price.StringFixed(2),
		OccurredAt:    at.UTC(),
	}
}

// ConfirmationEvent describes the booking confirmation, including the token
// the customer needs to cancel.
func ConfirmationEvent(r *model.Reservation, at time.Time) Event {
	e := newEvent(EventReservationConfirmed, r, at)
	e.CancelToken = r.CancelToken
	return e
}

func ReviewRequestEvent(r *model.Reservation, token string, at time.Time) Event {
	e := newEvent(EventReviewRequested, r, at)
	e.ReviewToken = token
	return e
}

// PartitionKey keeps the events of one reservation ordered.
func (e Event) PartitionKey() string {
	return e.TenantID + ":" + e.ReservationID
}
