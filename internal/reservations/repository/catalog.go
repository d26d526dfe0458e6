package repository

import (
	"context"
	"errors"
	"fmt"

	reserrors "agenda/internal/reservations/errors"
	"agenda/pkg/config"
	mongotx "agenda/pkg/db/mongo"
	"agenda/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ServiceRepository reads the tenant's service catalog.
type ServiceRepository interface {
	FindByID(ctx context.Context, tx mongotx.TxContext, tenantID, id string) (*model.Service, error)
}

// ResourceRepository reads resources and their working hours.
type ResourceRepository interface {
	FindByID(ctx context.Context, tenantID, id string) (*model.Resource, error)
}

type mongoServiceRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoServiceRepository(cfg *config.Config) ServiceRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoServiceRepository{
		cfg:        cfg,
		collection: db.Collection(ServicesCollection),
	}
}

func (r *mongoServiceRepository) FindByID(ctx context.Context, tx mongotx.TxContext, tenantID, id string) (*model.Service, error) {
	ctx, cancel := mongotx.Bind(ctx, tx, r.cfg.ReadTimeout)
	defer cancel()

	var svc model.Service
	err := r.collection.FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).Decode(&svc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reserrors.ErrServiceNotFound
		}
		return nil, fmt.Errorf("failed to find service: %w", err)
	}
	return &svc, nil
}

type mongoResourceRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoResourceRepository(cfg *config.Config) ResourceRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoResourceRepository{
		cfg:        cfg,
		collection: db.Collection(ResourcesCollection),
	}
}

func (r *mongoResourceRepository) FindByID(ctx context.Context, tenantID, id string) (*model.Resource, error) {
	ctx, cancel := mongotx.Bind(ctx, mongotx.TxContext{}, r.cfg.ReadTimeout)
	defer cancel()

	var resource model.Resource
	err := r.collection.FindOne(ctx, bson.M{"_id": id, "tenant_id": tenantID}).Decode(&resource)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reserrors.ErrResourceNotFound
		}
		return nil, fmt.Errorf("failed to find resource: %w", err)
	}
	return &resource, nil
}
