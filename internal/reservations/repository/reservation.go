package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	reserrors "agenda/internal/reservations/errors"
	"agenda/pkg/config"
	mongotx "agenda/pkg/db/mongo"
	"agenda/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ReservationRepository is tenant scoped: every lookup filters by tenant_id.
// Calls given an active tx join its session.
type ReservationRepository interface {
	FindByID(ctx context.Context, tx mongotx.TxContext, tenantID, id string) (*model.Reservation, error)
	FindByResourceAndDate(ctx context.Context, tx mongotx.TxContext, tenantID, resourceID, date string) ([]*model.Reservation, error)
	Save(ctx context.Context, tx mongotx.TxContext, reservation *model.Reservation) error
	Update(ctx context.Context, tx mongotx.TxContext, reservation *model.Reservation) error
}

type mongoReservationRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoReservationRepository(cfg *config.Config) ReservationRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoReservationRepository{
		cfg:        cfg,
		collection: db.Collection(ReservationsCollection),
	}
}

// reservationDocument is the stored shape. holds_slot mirrors
// Reservation.HoldsSlot and scopes the unique slot index.
type reservationDocument struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty"`
	TenantID             string             `bson:"tenant_id"`
	ResourceID           string             `bson:"resource_id"`
	CustomerID           string             `bson:"customer_id,omitempty"`
	CustomerName         string             `bson:"customer_name"`
	CustomerEmail        string             `bson:"customer_email,omitempty"`
	CustomerPhone        string             `bson:"customer_phone,omitempty"`
	ServiceID            string             `bson:"service_id"`
	Date                 string             `bson:"date"`
	StartTime            string             `bson:"start_time"`
	EndTime              string             `bson:"end_time"`
	DurationMin          int                `bson:"duration_min"`
	TimeZone             string             `bson:"time_zone"`
	Price                model.Money        `bson:"price"`
	State                string             `bson:"state"`
	HoldsSlot            bool               `bson:"holds_slot"`
	CancelToken          string             `bson:"cancel_token"`
	ReviewToken          string             `bson:"review_token,omitempty"`
	ReviewTokenExpiresAt *time.Time         `bson:"review_token_expires_at,omitempty"`
	CreatedAt            time.Time          `bson:"created_at"`
	UpdatedAt            time.Time          `bson:"updated_at"`
	CompletedAt          *time.Time         `bson:"completed_at,omitempty"`
	CancelledAt          *time.Time         `bson:"cancelled_at,omitempty"`
}

func toDocument(r *model.Reservation) (*reservationDocument, error) {
	doc := &reservationDocument{
		TenantID:             r.TenantID,
		ResourceID:           r.ResourceID,
		CustomerID:           r.CustomerID,
		CustomerName:         r.CustomerName,
		CustomerEmail:        r.CustomerEmail.String(),
		CustomerPhone:        string(r.CustomerPhone),
		ServiceID:            r.ServiceID,
		Date:                 r.Slot.Date(),
		StartTime:            r.Slot.StartTime(),
		EndTime:              r.Slot.EndTime(),
		DurationMin:          r.Slot.DurationMinutes(),
		TimeZone:             r.Slot.Location().String(),
		Price:                r.Price,
		State:                string(r.State),
		HoldsSlot:            r.HoldsSlot(),
		CancelToken:          r.CancelToken,
		ReviewToken:          r.ReviewToken,
		ReviewTokenExpiresAt: r.ReviewTokenExpiresAt,
		CreatedAt:            r.CreatedAt.UTC().Truncate(time.Millisecond),
		UpdatedAt:            r.UpdatedAt.UTC().Truncate(time.Millisecond),
		CompletedAt:          r.CompletedAt,
		CancelledAt:          r.CancelledAt,
	}
	if r.ID != "" {
		oid, err := primitive.ObjectIDFromHex(r.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", reserrors.ErrInvalidID, r.ID)
		}
		doc.ID = oid
	}
	return doc, nil
}

func (d *reservationDocument) toModel() (*model.Reservation, error) {
	loc, err := time.LoadLocation(d.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	slot, err := model.NewTimeSlotIn(loc, d.Date, d.StartTime, d.DurationMin)
	if err != nil {
		return nil, fmt.Errorf("stored reservation %s has an invalid slot: %w", d.ID.Hex(), err)
	}

	return model.NewReservation(model.ReservationParams{
		ID:                   d.ID.Hex(),
		TenantID:             d.TenantID,
		ResourceID:           d.ResourceID,
		CustomerID:           d.CustomerID,
		CustomerName:         d.CustomerName,
		CustomerEmail:        model.Email(d.CustomerEmail),
		CustomerPhone:        model.Phone(d.CustomerPhone),
		ServiceID:            d.ServiceID,
		Slot:                 slot,
		Price:                d.Price,
		State:                model.ReservationState(d.State),
		CancelToken:          d.CancelToken,
		ReviewToken:          d.ReviewToken,
		ReviewTokenExpiresAt: d.ReviewTokenExpiresAt,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
		CompletedAt:          d.CompletedAt,
		CancelledAt:          d.CancelledAt,
	}, d.UpdatedAt)
}

func (r *mongoReservationRepository) FindByID(ctx context.Context, tx mongotx.TxContext, tenantID, id string) (*model.Reservation, error) {
	ctx, cancel := mongotx.Bind(ctx, tx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", reserrors.ErrInvalidID, id)
	}

	var doc reservationDocument
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID, "tenant_id": tenantID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}

	return doc.toModel()
}

func (r *mongoReservationRepository) FindByResourceAndDate(ctx context.Context, tx mongotx.TxContext, tenantID, resourceID, date string) ([]*model.Reservation, error) {
	ctx, cancel := mongotx.Bind(ctx, tx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"tenant_id":   tenantID,
		"resource_id": resourceID,
		"date":        date,
	}
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []reservationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode reservations: %w", err)
	}

	reservations := make([]*model.Reservation, 0, len(docs))
	for i := range docs {
		res, err := docs[i].toModel()
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, nil
}

func (r *mongoReservationRepository) Save(ctx context.Context, tx mongotx.TxContext, reservation *model.Reservation) error {
	ctx, cancel := mongotx.Bind(ctx, tx, r.cfg.WriteTimeout)
	defer cancel()

	doc, err := toDocument(reservation)
	if err != nil {
		return err
	}
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongotx.IsDuplicateKey(err) {
			return fmt.Errorf("%w: %v", reserrors.ErrSlotTaken, err)
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	reservation.ID = doc.ID.Hex()
	return nil
}

func (r *mongoReservationRepository) Update(ctx context.Context, tx mongotx.TxContext, reservation *model.Reservation) error {
	ctx, cancel := mongotx.Bind(ctx, tx, r.cfg.WriteTimeout)
	defer cancel()

	doc, err := toDocument(reservation)
	if err != nil {
		return err
	}
	if doc.ID.IsZero() {
		return fmt.Errorf("%w: empty id", reserrors.ErrInvalidID)
	}

	filter := bson.M{"_id": doc.ID, "tenant_id": doc.TenantID}
	update := bson.M{
		"$set": bson.M{
			"date":                    doc.Date,
			"start_time":              doc.StartTime,
			"end_time":                doc.EndTime,
			"duration_min":            doc.DurationMin,
			"time_zone":               doc.TimeZone,
			"state":                   doc.State,
			"holds_slot":              doc.HoldsSlot,
			"customer_id":             doc.CustomerID,
			"review_token":            doc.ReviewToken,
			"review_token_expires_at": doc.ReviewTokenExpiresAt,
			"updated_at":              doc.UpdatedAt,
			"completed_at":            doc.CompletedAt,
			"cancelled_at":            doc.CancelledAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongotx.IsDuplicateKey(err) {
			return fmt.Errorf("%w: %v", reserrors.ErrSlotTaken, err)
		}
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	if result.MatchedCount == 0 {
		return reserrors.ErrNotFound
	}
	return nil
}
