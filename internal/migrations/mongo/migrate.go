package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"agenda/internal/migrations/mongo/validators"
	"agenda/internal/reservations/repository"
	"agenda/pkg/logger"
)

var (
	// ReservationsIndexes carries the conflict guard: one active reservation
	// per (tenant, resource, date, start). Cancelled documents drop out of
	// the partial filter and free the slot.
	ReservationsIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "tenant_id", Value: 1},
				{Key: "resource_id", Value: 1},
				{Key: "date", Value: 1},
				{Key: "start_time", Value: 1},
			},
			Options: options.Index().
				SetName(repository.SlotIndexName).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"holds_slot": true}),
		},
		{Keys: bson.D{
			{Key: "tenant_id", Value: 1},
			{Key: "resource_id", Value: 1},
			{Key: "date", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "tenant_id", Value: 1},
			{Key: "customer_email", Value: 1},
			{Key: "created_at", Value: -1},
		}},
	}

	ServicesIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "active", Value: 1}}},
	}

	ResourcesIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "active", Value: 1}}},
	}

	BlackoutsIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "tenant_id", Value: 1},
			{Key: "date", Value: 1},
			{Key: "resource_id", Value: 1},
		}},
	}

	ClientStandingsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	CustomersIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"email": bson.M{"$type": "string"}}),
		},
	}

	DayLocksIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "touched_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(60 * 60 * 24 * 400)},
	}
)

type CollectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

func Collections() map[string]CollectionDef {
	return map[string]CollectionDef{
		repository.ReservationsCollection:    {Indexes: ReservationsIndexes, Validator: validators.ReservationValidator},
		repository.ServicesCollection:        {Indexes: ServicesIndexes, Validator: validators.ServiceValidator},
		repository.ResourcesCollection:       {Indexes: ResourcesIndexes, Validator: validators.ResourceValidator},
		repository.BlackoutsCollection:       {Indexes: BlackoutsIndexes, Validator: validators.BlackoutValidator},
		repository.ClientStandingsCollection: {Indexes: ClientStandingsIndexes},
		repository.CustomersCollection:       {Indexes: CustomersIndexes},
		repository.DayLocksCollection:        {Indexes: DayLocksIndexes},
	}
}

// RunMigration creates the collections, their validators and indexes. It is
// safe to run repeatedly. Collections must exist before the first
// transaction touches them.
func RunMigration(ctx context.Context, client *mongo.Client, dbName string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running Mongo migrations", "database", dbName)

	for name, def := range Collections() {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All migrations applied successfully", "database", dbName)
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection()
		if validator != nil {
			opts.SetValidator(validator)
		}
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	if validator == nil {
		return nil
	}
	log.Info("Collection already exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if len(models) == 0 {
		return nil
	}
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
