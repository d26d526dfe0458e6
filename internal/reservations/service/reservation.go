package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agenda/internal/reservations/availability"
	reserrors "agenda/internal/reservations/errors"
	"agenda/internal/reservations/repository"
	"agenda/internal/reservations/validator"
	mongotx "agenda/pkg/db/mongo"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/logger"
	"agenda/pkg/model"
	"agenda/pkg/outbox"
	"agenda/pkg/sealer"
)

const (
	DefaultReviewTokenTTL = 30 * 24 * time.Hour

	conflictMessage = "This time slot is no longer available, please pick another time"
)

type ReservationService interface {
	Create(ctx context.Context, tenantID string, req *model.CreateReservationRequest) (*model.Reservation, error)
	GetByID(ctx context.Context, tenantID, id string) (*model.Reservation, error)
	Cancel(ctx context.Context, tenantID, id, cancelToken string) (*model.Reservation, error)
	Complete(ctx context.Context, tenantID, id string, issueReviewToken bool) (*model.Reservation, error)
	Reschedule(ctx context.Context, tenantID, id string, req *model.RescheduleRequest) (*model.Reservation, error)
	FreeSlots(ctx context.Context, tenantID, resourceID, serviceID, date string) ([]model.TimeSlot, error)
	VerifyReviewToken(ctx context.Context, tenantID, token string) (*ReviewClaim, error)
}

// Dependencies wires a reservationService. Location is the zone used when a
// resource does not configure one.
type Dependencies struct {
	Reservations repository.ReservationRepository
	Services     repository.ServiceRepository
	Resources    repository.ResourceRepository
	Customers    repository.CustomerRepository
	DayLocks     repository.DayLockRepository
	Blackouts    repository.BlackoutPolicy
	Standing     repository.ClientStandingPolicy

	Tx        mongotx.Runner
	TxOptions []mongotx.Option

	Outbox  outbox.Enqueuer
	Emails  EmailDispatcher
	Counter CounterService

	Validator *validator.ReservationValidator
	Sealer    *sealer.Sealer
	Log       *logger.Logger

	Location       *time.Location
	ReviewTokenTTL time.Duration
	Now            func() time.Time
}

type reservationService struct {
	deps         Dependencies
	availability *availability.Service
	log          *logger.Logger
	now          func() time.Time
}

func NewReservationService(deps Dependencies) ReservationService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.ReviewTokenTTL <= 0 {
		deps.ReviewTokenTTL = DefaultReviewTokenTTL
	}
	return &reservationService{
		deps:         deps,
		availability: availability.NewServiceWithClock(deps.Reservations, deps.Now),
		log:          deps.Log,
		now:          deps.Now,
	}
}

func (s *reservationService) runInTransaction(ctx context.Context, operation string, fn mongotx.UnitOfWork) error {
	return s.deps.Tx.RunInTransaction(ctx, operation, fn, s.deps.TxOptions...)
}

func (s *reservationService) GetByID(ctx context.Context, tenantID, id string) (*model.Reservation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}

	r, err := s.deps.Reservations.FindByID(ctx, mongotx.TxContext{}, tenantID, id)
	if err != nil {
		return nil, translateReservationErr(err, id, "Failed to retrieve reservation")
	}
	return r, nil
}

// Cancel releases the slot. When cancelToken is given it must match the
// reservation's token.
func (s *reservationService) Cancel(ctx context.Context, tenantID, id, cancelToken string) (*model.Reservation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}

	var cancelled *model.Reservation
	err := s.runInTransaction(ctx, "cancel_reservation", func(ctx context.Context, tx mongotx.TxContext) error {
		r, err := s.deps.Reservations.FindByID(ctx, tx, tenantID, id)
		if err != nil {
			return translateReservationErr(err, id, "Failed to load reservation")
		}
		if cancelToken != "" && !r.CancelTokenMatches(cancelToken) {
			return apperrors.Forbidden("Cancel token does not match this reservation")
		}
		if err := r.Cancel(s.now()); err != nil {
			return err
		}
		if err := s.deps.Reservations.Update(ctx, tx, r); err != nil {
			return translateReservationErr(err, id, "Failed to cancel reservation")
		}
		cancelled = r
		return nil
	})
	if err != nil {
		s.logFailure("cancel", tenantID, id, err)
		return nil, err
	}

	s.log.Info("Reservation cancelled", "tenant_id", tenantID, "id", id)
	return cancelled, nil
}

// Complete marks the visit as done and, in the same transaction, records it
// on the customer. A review token is issued when requested.
func (s *reservationService) Complete(ctx context.Context, tenantID, id string, issueReviewToken bool) (*model.Reservation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}

	var completed *model.Reservation
	err := s.runInTransaction(ctx, "complete_reservation", func(ctx context.Context, tx mongotx.TxContext) error {
		r, err := s.deps.Reservations.FindByID(ctx, tx, tenantID, id)
		if err != nil {
			return translateReservationErr(err, id, "Failed to load reservation")
		}

		now := s.now()
		if err := r.Complete(now); err != nil {
			return err
		}

		if issueReviewToken {
			expiresAt := now.Add(s.deps.ReviewTokenTTL)
			token, err := s.sealReviewToken(r, expiresAt)
			if err != nil {
				return apperrors.Internal("Failed to issue review token", err)
			}
			r.IssueReviewToken(token, expiresAt)
		}

		if err := s.deps.Reservations.Update(ctx, tx, r); err != nil {
			return translateReservationErr(err, id, "Failed to complete reservation")
		}

		if r.CustomerID != "" || r.CustomerEmail != "" {
			if _, err := s.deps.Customers.RecordVisit(ctx, tx, tenantID, r.CustomerID, r.CustomerEmail, r.CustomerName, now); err != nil {
				if errors.Is(err, reserrors.ErrCustomerNotFound) {
					return apperrors.NotFoundWithID("Customer", r.CustomerID)
				}
				if apperrors.IsAppError(err) {
					return err
				}
				return fmt.Errorf("failed to record customer visit: %w", err)
			}
		}

		completed = r
		return nil
	})
	if err != nil {
		s.logFailure("complete", tenantID, id, err)
		return nil, err
	}

	s.log.Info("Reservation completed", "tenant_id", tenantID, "id", id, "review_token", completed.ReviewToken != "")

	if completed.ReviewToken != "" && completed.CustomerEmail != "" {
		r, token := completed, completed.ReviewToken
		s.enqueue(TaskReviewRequestEmail, r, func(ctx context.Context) error {
			return s.deps.Emails.SendReviewRequest(ctx, r, token)
		})
	}
	return completed, nil
}

// Reschedule moves a booked reservation to another start on the given date,
// keeping its duration.
func (s *reservationService) Reschedule(ctx context.Context, tenantID, id string, req *model.RescheduleRequest) (*model.Reservation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}
	if req == nil {
		return nil, apperrors.InvalidInput("Request body is required")
	}
	if err := s.deps.Validator.ValidateReschedule(req); err != nil {
		return nil, validationErr(err)
	}

	var moved *model.Reservation
	err := s.runInTransaction(ctx, "reschedule_reservation", func(ctx context.Context, tx mongotx.TxContext) error {
		r, err := s.deps.Reservations.FindByID(ctx, tx, tenantID, id)
		if err != nil {
			return translateReservationErr(err, id, "Failed to load reservation")
		}

		slot, err := model.NewTimeSlotIn(r.Slot.Location(), req.Date, req.StartTime, r.Slot.DurationMinutes())
		if err != nil {
			return err
		}
		now := s.now()
		if slot.IsPastAt(now) {
			return pastSlotErr(slot)
		}

		if err := s.deps.Blackouts.Validate(ctx, tx, repository.BlackoutQuery{
			TenantID:   tenantID,
			ResourceID: r.ResourceID,
			Slot:       slot,
		}); err != nil {
			return err
		}

		if err := s.deps.DayLocks.Touch(ctx, tx, tenantID, r.ResourceID, slot.Date()); err != nil {
			return err
		}
		free, err := s.availability.IsSlotFree(ctx, tx, availability.SlotQuery{
			TenantID:             tenantID,
			ResourceID:           r.ResourceID,
			Slot:                 slot,
			ExcludeReservationID: r.ID,
		})
		if err != nil {
			return err
		}
		if !free {
			return conflictErr(nil)
		}

		if err := r.Reschedule(slot, now); err != nil {
			return err
		}
		if err := s.deps.Reservations.Update(ctx, tx, r); err != nil {
			return translateReservationErr(err, id, "Failed to reschedule reservation")
		}
		moved = r
		return nil
	})
	if err != nil {
		s.logFailure("reschedule", tenantID, id, err)
		return nil, err
	}

	s.log.Info("Reservation rescheduled", "tenant_id", tenantID, "id", id, "slot", moved.Slot.String())
	return moved, nil
}

// FreeSlots lists the bookable starts for a service on a resource's day.
func (s *reservationService) FreeSlots(ctx context.Context, tenantID, resourceID, serviceID, date string) ([]model.TimeSlot, error) {
	if resourceID == "" || serviceID == "" {
		return nil, apperrors.InvalidInput("resource_id and service_id are required")
	}

	resource, err := s.deps.Resources.FindByID(ctx, tenantID, resourceID)
	if err != nil {
		if errors.Is(err, reserrors.ErrResourceNotFound) {
			return nil, apperrors.NotFoundWithID("Resource", resourceID)
		}
		return nil, apperrors.Internal("Failed to load resource", err)
	}

	svc, err := s.loadService(ctx, mongotx.TxContext{}, tenantID, serviceID)
	if err != nil {
		return nil, err
	}

	loc := resource.Location(s.deps.Location)
	day, err := model.ParseDate(date, loc)
	if err != nil {
		return nil, err
	}

	slots, err := s.availability.ListFreeSlots(ctx, tenantID, resourceID, day, svc.DurationMin, resource.HoursOn(day))
	if err != nil {
		return nil, apperrors.Internal("Failed to list free slots", err)
	}
	return slots, nil
}

func (s *reservationService) loadService(ctx context.Context, tx mongotx.TxContext, tenantID, serviceID string) (*model.Service, error) {
	svc, err := s.deps.Services.FindByID(ctx, tx, tenantID, serviceID)
	if err != nil {
		if errors.Is(err, reserrors.ErrServiceNotFound) {
			return nil, apperrors.NotFoundWithID("Service", serviceID)
		}
		return nil, fmt.Errorf("failed to load service: %w", err)
	}
	if !svc.IsAvailable() {
		return nil, apperrors.PolicyViolation("The requested service is not available", "service_unavailable").
			WithDetail("service_id", serviceID)
	}
	return svc, nil
}

// locationFor resolves the zone of a resource. Resources unknown to the
// catalog use the default zone.
func (s *reservationService) locationFor(ctx context.Context, tenantID, resourceID string) (*time.Location, error) {
	resource, err := s.deps.Resources.FindByID(ctx, tenantID, resourceID)
	if err != nil {
		if errors.Is(err, reserrors.ErrResourceNotFound) {
			return s.deps.Location, nil
		}
		return nil, apperrors.Internal("Failed to load resource", err)
	}
	return resource.Location(s.deps.Location), nil
}

// enqueue schedules a post-commit task. A refused task is already reported
// to the outbox monitor.
func (s *reservationService) enqueue(name string, r *model.Reservation, fn outbox.TaskFunc) {
	if err := s.deps.Outbox.Enqueue(name, r.TenantID, r.ID, fn); err != nil {
		s.log.Warn("post-commit task not scheduled", "task", name, "reservation_id", r.ID, "error", err)
	}
}

func (s *reservationService) logFailure(operation, tenantID, id string, err error) {
	kind := apperrors.KindOf(err)
	args := []any{"operation", operation, "tenant_id", tenantID, "id", id, "kind", kind.String(), "error", err}
	if apperrors.IsBusiness(kind) {
		s.log.Warn("Reservation operation rejected", args...)
		return
	}
	s.log.Error("Reservation operation failed", args...)
}

func translateReservationErr(err error, id, message string) error {
	switch {
	case errors.Is(err, reserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Reservation", id)
	case errors.Is(err, reserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid reservation ID format")
	case errors.Is(err, reserrors.ErrSlotTaken):
		return conflictErr(err)
	case apperrors.IsAppError(err):
		return err
	}
	return fmt.Errorf("%s: %w", message, err)
}

func conflictErr(cause error) error {
	appErr := apperrors.Conflict(conflictMessage).WithDetail("reason", "slot_taken")
	appErr.Err = cause
	return appErr
}

func pastSlotErr(slot model.TimeSlot) error {
	return apperrors.Validation("Invalid reservation", map[string]any{
		"slot": fmt.Sprintf("%s is in the past", slot),
	})
}

func validationErr(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs.AppError()
	}
	return apperrors.Validation("Invalid reservation request", map[string]any{"error": err.Error()})
}
