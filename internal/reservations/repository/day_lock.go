package repository

import (
	"context"
	"fmt"
	"time"

	"agenda/pkg/config"
	mongotx "agenda/pkg/db/mongo"
	apperrors "agenda/pkg/errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DayLockRepository serialises writers of one resource's calendar day. Two
// transactions touching the same day lock conflict at commit, so a booking
// that overlaps but does not share a start time cannot slip past the slot
// index.
type DayLockRepository interface {
	Touch(ctx context.Context, tx mongotx.TxContext, tenantID, resourceID, date string) error
}

type mongoDayLockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoDayLockRepository(cfg *config.Config) DayLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoDayLockRepository{
		cfg:        cfg,
		collection: db.Collection(DayLocksCollection),
	}
}

func DayLockID(tenantID, resourceID, date string) string {
	return tenantID + ":" + resourceID + ":" + date
}

func (r *mongoDayLockRepository) Touch(ctx context.Context, tx mongotx.TxContext, tenantID, resourceID, date string) error {
	ctx, cancel := mongotx.Bind(ctx, tx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": DayLockID(tenantID, resourceID, date)}
	update := bson.M{
		"$inc": bson.M{"version": 1},
		"$set": bson.M{"touched_at": time.Now().UTC()},
		"$setOnInsert": bson.M{
			"tenant_id":   tenantID,
			"resource_id": resourceID,
			"date":        date,
		},
	}

	if _, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		if mongotx.IsDuplicateKey(err) {
			// concurrent first upsert of the same day; the retry matches it
			return apperrors.TransientStorage("Reservation day is being updated", err)
		}
		return fmt.Errorf("failed to lock reservation day: %w", err)
	}
	return nil
}
