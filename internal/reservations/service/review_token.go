package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"agenda/pkg/db/mongo"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/model"
)

// ReviewClaim is what a valid review token proves.
type ReviewClaim struct {
	TenantID      string    `json:"tenant_id"`
	ReservationID string    `json:"reservation_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (s *reservationService) sealReviewToken(r *model.Reservation, expiresAt time.Time) (string, error) {
	return s.deps.Sealer.Seal(r.TenantID, r.ID, strconv.FormatInt(expiresAt.Unix(), 10))
}

func openReviewToken(fields []string) (*ReviewClaim, error) {
	if len(fields) != 3 {
		return nil, errors.New("unexpected review token layout")
	}
	unix, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, err
	}
	return &ReviewClaim{
		TenantID:      fields[0],
		ReservationID: fields[1],
		ExpiresAt:     time.Unix(unix, 0).UTC(),
	}, nil
}

// VerifyReviewToken accepts a token issued on completion until it expires.
// The reservation must still carry the same token.
func (s *reservationService) VerifyReviewToken(ctx context.Context, tenantID, token string) (*ReviewClaim, error) {
	if token == "" {
		return nil, apperrors.InvalidInput("Review token cannot be empty")
	}

	invalid := apperrors.Unauthorized("Review token is invalid or expired")

	fields, err := s.deps.Sealer.Open(token)
	if err != nil {
		return nil, invalid
	}
	claim, err := openReviewToken(fields)
	if err != nil || claim.TenantID != tenantID {
		return nil, invalid
	}
	if !s.now().Before(claim.ExpiresAt) {
		return nil, invalid
	}

	r, err := s.deps.Reservations.FindByID(ctx, mongo.TxContext{}, tenantID, claim.ReservationID)
	if err != nil {
		return nil, translateReservationErr(err, claim.ReservationID, "Failed to load reservation")
	}
	if r.State != model.StateCompleted || r.ReviewToken != token {
		return nil, invalid
	}
	return claim, nil
}
