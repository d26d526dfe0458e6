package service

import (
	"context"

	"agenda/internal/reservations/repository"
	"agenda/pkg/model"
)

// CustomerCounter keeps the per-customer reservation count on the customers
// collection.
type CustomerCounter struct {
	customers repository.CustomerRepository
}

func NewCustomerCounter(customers repository.CustomerRepository) *CustomerCounter {
	return &CustomerCounter{customers: customers}
}

func (c *CustomerCounter) Increment(ctx context.Context, tenantID string, email model.Email) error {
	if email == "" {
		return nil
	}
	return c.customers.IncrementReservations(ctx, tenantID, email)
}
