package errors

import "errors"

var (
	ErrNotFound = errors.New("reservation not found")

	ErrInvalidID = errors.New("invalid reservation ID format")

	// ErrSlotTaken is returned when the unique slot index rejects a write.
	ErrSlotTaken = errors.New("slot already held by another reservation")

	ErrServiceNotFound = errors.New("service not found")

	ErrResourceNotFound = errors.New("resource not found")

	ErrCustomerNotFound = errors.New("customer not found")
)
