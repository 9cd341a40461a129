package mongodb

import (
	"context"
	"time"

	"safetrails/internal/models"
	"safetrails/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type locationRepository struct {
	collection *mongo.Collection
}

func NewLocationRepository(db *mongo.Database) interfaces.LocationRepository {
	return &locationRepository{
		collection: db.Collection("location_updates"),
	}
}

func (r *locationRepository) Create(ctx context.Context, update *models.LocationUpdate) error {
	update.ID = primitive.NewObjectID()
	if update.CreatedAt.IsZero() {
		update.CreatedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, update)
	if err != nil {
		return driverErr("create location update", err)
	}

	return nil
}

func (r *locationRepository) GetLatestForTrip(ctx context.Context, tripID primitive.ObjectID) (*models.LocationUpdate, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	var update models.LocationUpdate
	err := r.collection.FindOne(ctx, bson.M{"trip_id": tripID}, opts).Decode(&update)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, driverErr("get latest location", err)
	}

	return &update, nil
}

func (r *locationRepository) GetTripHistory(ctx context.Context, tripID primitive.ObjectID, limit int64) ([]*models.LocationUpdate, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetLimit(limit)
	cursor, err := r.collection.Find(ctx, bson.M{"trip_id": tripID}, opts)
	if err != nil {
		return nil, driverErr("find trip trail", err)
	}
	defer cursor.Close(ctx)

	var updates []*models.LocationUpdate
	for cursor.Next(ctx) {
		var update models.LocationUpdate
		if err := cursor.Decode(&update); err != nil {
			return nil, driverErr("decode location update", err)
		}
		updates = append(updates, &update)
	}

	return updates, nil
}

func (r *locationRepository) CountForTrip(ctx context.Context, tripID primitive.ObjectID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"trip_id": tripID})
	if err != nil {
		return 0, driverErr("count trip samples", err)
	}

	return count, nil
}
