// Package availability answers whether a resource is free. Its answers are a
// point-in-time read used to fail fast; the unique slot index decides.
package availability

import (
	"context"
	"fmt"
	"time"

	mongotx "agenda/pkg/db/mongo"
	"agenda/pkg/model"
)

// ReservationFinder is the read the checks need from storage.
type ReservationFinder interface {
	FindByResourceAndDate(ctx context.Context, tx mongotx.TxContext, tenantID, resourceID, date string) ([]*model.Reservation, error)
}

type SlotQuery struct {
	TenantID             string
	ResourceID           string
	Slot                 model.TimeSlot
	ExcludeReservationID string
}

type Service struct {
	reservations ReservationFinder
	now          func() time.Time
}

func NewService(reservations ReservationFinder) *Service {
	return &Service{reservations: reservations, now: time.Now}
}

// NewServiceWithClock is NewService with an injected clock.
func NewServiceWithClock(reservations ReservationFinder, now func() time.Time) *Service {
	return &Service{reservations: reservations, now: now}
}

// IsSlotFree reports whether q.Slot is in the future and overlaps no active
// reservation other than q.ExcludeReservationID.
func (s *Service) IsSlotFree(ctx context.Context, tx mongotx.TxContext, q SlotQuery) (bool, error) {
	if q.Slot.IsPastAt(s.now()) {
		return false, nil
	}

	existing, err := s.reservations.FindByResourceAndDate(ctx, tx, q.TenantID, q.ResourceID, q.Slot.Date())
	if err != nil {
		return false, fmt.Errorf("failed to load reservations: %w", err)
	}

	for _, r := range existing {
		if !r.HoldsSlot() || (q.ExcludeReservationID != "" && r.ID == q.ExcludeReservationID) {
			continue
		}
		if r.Slot.Overlaps(q.Slot) {
			return false, nil
		}
	}
	return true, nil
}

// ListFreeSlots returns candidate slots of durationMin stepping from the
// opening time, keeping those that fit before closing, are not in the past
// and overlap no active reservation.
func (s *Service) ListFreeSlots(ctx context.Context, tenantID, resourceID string, day time.Time, durationMin int, hours model.WorkingHours) ([]model.TimeSlot, error) {
	if !hours.Active || durationMin <= 0 || hours.End <= hours.Start {
		return []model.TimeSlot{}, nil
	}

	date := day.Format(model.DateLayout)
	existing, err := s.reservations.FindByResourceAndDate(ctx, mongotx.TxContext{}, tenantID, resourceID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load reservations: %w", err)
	}

	active := make([]model.TimeSlot, 0, len(existing))
	for _, r := range existing {
		if r.HoldsSlot() {
			active = append(active, r.Slot)
		}
	}

	now := s.now()
	free := []model.TimeSlot{}
	for start := hours.Start; start+durationMin <= hours.End; start += durationMin {
		candidate, err := model.NewTimeSlotIn(day.Location(), date, model.FormatClock(start), durationMin)
		if err != nil {
			return nil, err
		}
		if candidate.IsPastAt(now) || overlapsAny(candidate, active) {
			continue
		}
		free = append(free, candidate)
	}
	return free, nil
}

func overlapsAny(slot model.TimeSlot, others []model.TimeSlot) bool {
	for _, o := range others {
		if slot.Overlaps(o) {
			return true
		}
	}
	return false
}
