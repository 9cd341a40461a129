package mongodb

import (
	"context"
	"time"

	"safetrails/internal/models"
	"safetrails/internal/repositories/interfaces"
	"safetrails/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type tripRepository struct {
	collection *mongo.Collection
}

func NewTripRepository(db *mongo.Database) interfaces.TripRepository {
	return &tripRepository{
		collection: db.Collection("trips"),
	}
}

func (r *tripRepository) Create(ctx context.Context, trip *models.Trip) error {
	trip.ID = primitive.NewObjectID()
	now := time.Now()
	trip.CreatedAt = now
	trip.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, trip)
	if err != nil {
		return driverErr("create trip", err)
	}

	return nil
}

func (r *tripRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Trip, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *tripRepository) GetByIDForUser(ctx context.Context, id, userID primitive.ObjectID) (*models.Trip, error) {
	return r.findOne(ctx, bson.M{"_id": id, "user_id": userID})
}

func (r *tripRepository) findOne(ctx context.Context, filter bson.M) (*models.Trip, error) {
	var trip models.Trip
	err := r.collection.FindOne(ctx, filter).Decode(&trip)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, driverErr("get trip", err)
	}

	return &trip, nil
}

func (r *tripRepository) GetByUserID(ctx context.Context, userID primitive.ObjectID, status models.TripStatus, params *utils.PaginationParams) ([]*models.Trip, int64, error) {
	filter := bson.M{"user_id": userID}
	if status != "" {
		filter["status"] = status
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, driverErr("count trips", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.GetSortOptions())
	if err != nil {
		return nil, 0, driverErr("find trips", err)
	}
	defer cursor.Close(ctx)

	var trips []*models.Trip
	for cursor.Next(ctx) {
		var trip models.Trip
		if err := cursor.Decode(&trip); err != nil {
			return nil, 0, driverErr("decode trip", err)
		}
		trips = append(trips, &trip)
	}

	return trips, total, nil
}

// TransitionStatus applies updates only while the trip is still in the
// observed status. A matched count of zero is disambiguated by a second read:
// a missing trip is not-found, a trip that moved on is a conflict.
func (r *tripRepository) TransitionStatus(ctx context.Context, id primitive.ObjectID, from models.TripStatus, updates map[string]interface{}) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": updates},
	)
	if err != nil {
		return driverErr("transition trip", err)
	}

	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return driverErr("check trip existence", err)
		}
		if count == 0 {
			return interfaces.ErrNotFound
		}
		return interfaces.ErrConflict
	}

	return nil
}

func (r *tripRepository) GetActiveTrips(ctx context.Context, limit int64) ([]*models.Trip, error) {
	filter := bson.M{"status": models.TripStatusActive}

	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: 1}}).
		SetLimit(limit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, driverErr("find active trips", err)
	}
	defer cursor.Close(ctx)

	var trips []*models.Trip
	for cursor.Next(ctx) {
		var trip models.Trip
		if err := cursor.Decode(&trip); err != nil {
			return nil, driverErr("decode trip", err)
		}
		trips = append(trips, &trip)
	}

	return trips, nil
}

func (r *tripRepository) CountCompletedByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{
		"user_id": userID,
		"status":  models.TripStatusCompleted,
	})
	if err != nil {
		return 0, driverErr("count completed trips", err)
	}

	return count, nil
}
