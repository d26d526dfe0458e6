package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agenda/pkg/config"
	mongotx "agenda/pkg/db/mongo"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type BlackoutQuery struct {
	TenantID   string
	ResourceID string
	Slot       model.TimeSlot
}

// BlackoutPolicy fails with a PolicyViolation AppError when the slot falls in
// a closed period.
type BlackoutPolicy interface {
	Validate(ctx context.Context, tx mongotx.TxContext, q BlackoutQuery) error
}

// ClientStandingPolicy fails with a PolicyViolation AppError when the
// customer is currently blocked by the tenant.
type ClientStandingPolicy interface {
	Check(ctx context.Context, tx mongotx.TxContext, tenantID string, email model.Email) error
}

type mongoBlackoutPolicy struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoBlackoutPolicy(cfg *config.Config) BlackoutPolicy {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBlackoutPolicy{
		cfg:        cfg,
		collection: db.Collection(BlackoutsCollection),
	}
}

func (p *mongoBlackoutPolicy) Validate(ctx context.Context, tx mongotx.TxContext, q BlackoutQuery) error {
	ctx, cancel := mongotx.Bind(ctx, tx, p.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"tenant_id": q.TenantID,
		"date":      q.Slot.Date(),
		"$or": bson.A{
			bson.M{"resource_id": q.ResourceID},
			bson.M{"resource_id": bson.M{"$exists": false}},
			bson.M{"resource_id": ""},
		},
	}

	cursor, err := p.collection.Find(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to find blackouts: %w", err)
	}
	defer cursor.Close(ctx)

	var blackouts []model.Blackout
	if err := cursor.All(ctx, &blackouts); err != nil {
		return fmt.Errorf("failed to decode blackouts: %w", err)
	}

	return CheckBlackouts(blackouts, q)
}

// CheckBlackouts returns the policy error for the first blackout covering the
// queried slot.
func CheckBlackouts(blackouts []model.Blackout, q BlackoutQuery) error {
	for i := range blackouts {
		if blackouts[i].TenantID == q.TenantID && blackouts[i].Covers(q.ResourceID, q.Slot) {
			reason := blackouts[i].Reason
			if reason == "" {
				reason = "blackout"
			}
			return apperrors.PolicyViolation("The selected time is not available for booking, please pick another time", reason).
				WithDetail("date", q.Slot.Date())
		}
	}
	return nil
}

type mongoClientStandingPolicy struct {
	cfg        *config.Config
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoClientStandingPolicy(cfg *config.Config) ClientStandingPolicy {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoClientStandingPolicy{
		cfg:        cfg,
		collection: db.Collection(ClientStandingsCollection),
		now:        time.Now,
	}
}

func (p *mongoClientStandingPolicy) Check(ctx context.Context, tx mongotx.TxContext, tenantID string, email model.Email) error {
	if email == "" {
		return nil
	}

	ctx, cancel := mongotx.Bind(ctx, tx, p.cfg.ReadTimeout)
	defer cancel()

	var standing model.ClientStanding
	err := p.collection.FindOne(ctx, bson.M{"tenant_id": tenantID, "email": email}).Decode(&standing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		return fmt.Errorf("failed to load client standing: %w", err)
	}

	return CheckStanding(&standing, p.now())
}

// CheckStanding returns the policy error for a standing blocked at now.
func CheckStanding(standing *model.ClientStanding, now time.Time) error {
	if standing == nil || !standing.IsBlockedAt(now) {
		return nil
	}
	err := apperrors.PolicyViolation("This account is temporarily blocked from booking", "client_blocked")
	if standing.BlockedUntil != nil {
		err = err.WithDetail("blocked_until", standing.BlockedUntil.UTC().Format(time.RFC3339))
	}
	return err
}
