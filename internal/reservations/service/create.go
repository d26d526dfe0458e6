package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agenda/internal/reservations/availability"
	reserrors "agenda/internal/reservations/errors"
	"agenda/internal/reservations/repository"
	mongotx "agenda/pkg/db/mongo"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/flow"
	"agenda/pkg/model"
)

const (
	StageValidating        = "validating"
	StagePolicyCheck       = "policy_check"
	StageAvailabilityCheck = "availability_check"
	StagePersisting        = "persisting"
)

// createState is rebuilt for every transaction attempt.
type createState struct {
	tenantID string
	req      *model.CreateReservationRequest
	loc      *time.Location
	email    model.Email
	phone    model.Phone

	tx          mongotx.TxContext
	service     *model.Service
	slot        model.TimeSlot
	reservation *model.Reservation
}

func (s *reservationService) Create(ctx context.Context, tenantID string, req *model.CreateReservationRequest) (*model.Reservation, error) {
	if req == nil {
		return nil, apperrors.InvalidInput("Request body is required")
	}

	prepared := &createState{tenantID: tenantID, req: req}
	if err := s.validatingFlow().Run(ctx, prepared); err != nil {
		s.logCreateFailure(tenantID, req, err)
		return nil, unwrapStep(err)
	}

	var created *model.Reservation
	err := s.runInTransaction(ctx, "create_reservation", func(ctx context.Context, tx mongotx.TxContext) error {
		state := *prepared
		state.tx = tx
		if err := s.persistFlow().Run(ctx, &state); err != nil {
			return unwrapStep(err)
		}
		created = state.reservation
		return nil
	})
	if err != nil {
		err = s.settleContention(ctx, prepared, err)
		s.logCreateFailure(tenantID, req, err)
		return nil, err
	}

	s.log.Info("Reservation created",
		"tenant_id", tenantID,
		"id", created.ID,
		"resource_id", created.ResourceID,
		"slot", created.Slot.String(),
	)

	r := created
	s.enqueue(TaskConfirmationEmail, r, func(ctx context.Context) error {
		return s.deps.Emails.SendConfirmation(ctx, r)
	})
	if r.CustomerEmail != "" {
		s.enqueue(TaskReservationCounter, r, func(ctx context.Context) error {
			return s.deps.Counter.Increment(ctx, r.TenantID, r.CustomerEmail)
		})
	}
	return created, nil
}

func (s *reservationService) validatingFlow() *flow.Flow[*createState] {
	return flow.New("create_reservation",
		flow.NewStep(StageValidating, s.validateRequest),
	).OnStage(s.traceStage)
}

func (s *reservationService) persistFlow() *flow.Flow[*createState] {
	return flow.New("create_reservation",
		flow.NewStep(StagePolicyCheck, s.checkPolicies),
		flow.NewStep(StageAvailabilityCheck, s.checkAvailability),
		flow.NewStep(StagePersisting, s.persist),
	).OnStage(s.traceStage)
}

func (s *reservationService) traceStage(name, step string) {
	s.log.Debug("reservation stage", "flow", name, "stage", step)
}

// validateRequest checks the request shape and rejects dates before today in
// the resource's zone.
func (s *reservationService) validateRequest(ctx context.Context, st *createState) error {
	if err := s.deps.Validator.ValidateCreate(st.req); err != nil {
		return validationErr(err)
	}

	details := map[string]any{}
	if st.req.CustomerEmail != "" {
		email, err := model.NewEmail(st.req.CustomerEmail)
		if err != nil {
			details["customer_email"] = "must be a valid email address"
		}
		st.email = email
	}
	if st.req.CustomerPhone != "" {
		phone, err := model.NewPhone(st.req.CustomerPhone)
		if err != nil {
			details["customer_phone"] = "must be a valid phone number"
		}
		st.phone = phone
	}
	if len(details) > 0 {
		return apperrors.Validation("Invalid reservation request", details)
	}

	loc, err := s.locationFor(ctx, st.tenantID, st.req.ResourceID)
	if err != nil {
		return err
	}
	st.loc = loc

	day, err := model.ParseDate(st.req.Date, loc)
	if err != nil {
		return err
	}
	if model.IsBeforeDay(day, s.now(), loc) {
		return apperrors.Validation("Invalid reservation request", map[string]any{
			"date": fmt.Sprintf("%s is in the past", st.req.Date),
		})
	}
	return nil
}

func (s *reservationService) checkPolicies(ctx context.Context, st *createState) error {
	svc, err := s.loadService(ctx, st.tx, st.tenantID, st.req.ServiceID)
	if err != nil {
		return err
	}
	st.service = svc

	slot, err := model.NewTimeSlotIn(st.loc, st.req.Date, st.req.StartTime, svc.DurationMin)
	if err != nil {
		return err
	}
	st.slot = slot

	if err := s.deps.Blackouts.Validate(ctx, st.tx, repository.BlackoutQuery{
		TenantID:   st.tenantID,
		ResourceID: st.req.ResourceID,
		Slot:       slot,
	}); err != nil {
		return err
	}

	if st.email != "" {
		if err := s.deps.Standing.Check(ctx, st.tx, st.tenantID, st.email); err != nil {
			return err
		}
	}
	return nil
}

func (s *reservationService) checkAvailability(ctx context.Context, st *createState) error {
	if err := s.deps.DayLocks.Touch(ctx, st.tx, st.tenantID, st.req.ResourceID, st.slot.Date()); err != nil {
		return err
	}

	free, err := s.availability.IsSlotFree(ctx, st.tx, availability.SlotQuery{
		TenantID:   st.tenantID,
		ResourceID: st.req.ResourceID,
		Slot:       st.slot,
	})
	if err != nil {
		return err
	}
	if !free {
		return conflictErr(nil)
	}
	return nil
}

func (s *reservationService) persist(ctx context.Context, st *createState) error {
	r, err := model.NewReservation(model.ReservationParams{
		TenantID:      st.tenantID,
		ResourceID:    st.req.ResourceID,
		CustomerID:    st.req.CustomerID,
		CustomerName:  st.req.CustomerName,
		CustomerEmail: st.email,
		CustomerPhone: st.phone,
		ServiceID:     st.service.ID,
		Slot:          st.slot,
		Price:         st.service.Price,
	}, s.now())
	if err != nil {
		return err
	}

	if err := s.deps.Reservations.Save(ctx, st.tx, r); err != nil {
		if errors.Is(err, reserrors.ErrSlotTaken) {
			return conflictErr(err)
		}
		return fmt.Errorf("failed to save reservation: %w", err)
	}
	st.reservation = r
	return nil
}

// settleContention resolves a create that ran out of retries on write
// conflicts. One read outside the transaction decides: when another
// reservation now holds the slot the caller gets a conflict, otherwise the
// transient failure stands.
func (s *reservationService) settleContention(ctx context.Context, st *createState, err error) error {
	var txErr *mongotx.TransactionError
	if apperrors.KindOf(err) != apperrors.KindTransientStorage || !errors.As(err, &txErr) {
		return err
	}

	svc, loadErr := s.loadService(ctx, mongotx.TxContext{}, st.tenantID, st.req.ServiceID)
	if loadErr != nil {
		return err
	}
	slot, slotErr := model.NewTimeSlotIn(st.loc, st.req.Date, st.req.StartTime, svc.DurationMin)
	if slotErr != nil {
		return err
	}
	free, readErr := s.availability.IsSlotFree(ctx, mongotx.TxContext{}, availability.SlotQuery{
		TenantID:   st.tenantID,
		ResourceID: st.req.ResourceID,
		Slot:       slot,
	})
	if readErr != nil || free {
		return err
	}

	return &mongotx.TransactionError{
		Operation: txErr.Operation,
		Attempts:  txErr.Attempts,
		Err:       conflictErr(txErr.Err),
	}
}

func (s *reservationService) logCreateFailure(tenantID string, req *model.CreateReservationRequest, err error) {
	kind := apperrors.KindOf(err)
	args := []any{
		"tenant_id", tenantID,
		"resource_id", req.ResourceID,
		"date", req.Date,
		"start_time", req.StartTime,
		"kind", kind.String(),
		"error", err,
	}
	if apperrors.IsBusiness(kind) {
		s.log.Warn("Reservation rejected", args...)
		return
	}
	s.log.Error("Failed to create reservation", args...)
}

// unwrapStep keeps an AppError raised by a step as the visible error; other
// failures keep the step envelope so logs name the stage.
func unwrapStep(err error) error {
	var stepErr *flow.StepError
	if errors.As(err, &stepErr) && apperrors.IsAppError(stepErr.Err) {
		return stepErr.Err
	}
	return err
}
