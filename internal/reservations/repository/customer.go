package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	reserrors "agenda/internal/reservations/errors"
	"agenda/pkg/config"
	mongotx "agenda/pkg/db/mongo"
	apperrors "agenda/pkg/errors"
	"agenda/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CustomerRepository maintains per-tenant visit history. Customers are keyed
// by (tenant_id, email) and created on first contact.
type CustomerRepository interface {
	RecordVisit(ctx context.Context, tx mongotx.TxContext, tenantID, customerID string, email model.Email, name string, at time.Time) (string, error)
	IncrementReservations(ctx context.Context, tenantID string, email model.Email) error
}

type mongoCustomerRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoCustomerRepository(cfg *config.Config) CustomerRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoCustomerRepository{
		cfg:        cfg,
		collection: db.Collection(CustomersCollection),
	}
}

func customerFilter(tenantID, customerID string, email model.Email) (bson.M, error) {
	if customerID != "" {
		oid, err := primitive.ObjectIDFromHex(customerID)
		if err != nil {
			return nil, fmt.Errorf("customer %q: %w", customerID, reserrors.ErrCustomerNotFound)
		}
		return bson.M{"_id": oid, "tenant_id": tenantID}, nil
	}
	if email == "" {
		return nil, fmt.Errorf("customer id or email is required")
	}
	return bson.M{"tenant_id": tenantID, "email": email}, nil
}

// RecordVisit bumps the visit counter and returns the customer's id. A
// customer referenced by id must exist; one referenced by email is created.
func (r *mongoCustomerRepository) RecordVisit(ctx context.Context, tx mongotx.TxContext, tenantID, customerID string, email model.Email, name string, at time.Time) (string, error) {
	ctx, cancel := mongotx.Bind(ctx, tx, r.cfg.WriteTimeout)
	defer cancel()

	filter, err := customerFilter(tenantID, customerID, email)
	if err != nil {
		return "", err
	}

	update := bson.M{
		"$inc":         bson.M{"visit_count": 1},
		"$set":         bson.M{"last_visit_at": at.UTC()},
		"$setOnInsert": bson.M{"tenant_id": tenantID, "email": email, "name": name, "reservation_count": 0},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(customerID == "").
		SetReturnDocument(options.After).
		SetProjection(bson.M{"_id": 1})

	var out struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return "", fmt.Errorf("customer %q: %w", customerID, reserrors.ErrCustomerNotFound)
		case mongotx.IsDuplicateKey(err):
			// concurrent first visit of the same email; the retry matches it
			return "", apperrors.TransientStorage("Customer is being updated", err)
		}
		return "", fmt.Errorf("failed to record visit: %w", err)
	}
	return out.ID.Hex(), nil
}

func (r *mongoCustomerRepository) IncrementReservations(ctx context.Context, tenantID string, email model.Email) error {
	ctx, cancel := mongotx.Bind(ctx, mongotx.TxContext{}, r.cfg.WriteTimeout)
	defer cancel()

	filter, err := customerFilter(tenantID, "", email)
	if err != nil {
		return err
	}

	update := bson.M{
		"$inc":         bson.M{"reservation_count": 1},
		"$setOnInsert": bson.M{"tenant_id": tenantID, "email": email, "visit_count": 0},
	}
	_, err = r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongotx.IsDuplicateKey(err) {
		// lost the insert race; the document exists now
		_, err = r.collection.UpdateOne(ctx, filter, update)
	}
	if err != nil {
		return fmt.Errorf("failed to increment reservation count: %w", err)
	}
	return nil
}
