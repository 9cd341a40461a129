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

type safetyProfileRepository struct {
	collection *mongo.Collection
}

func NewSafetyProfileRepository(db *mongo.Database) interfaces.SafetyProfileRepository {
	return &safetyProfileRepository{
		collection: db.Collection("safety_profiles"),
	}
}

func (r *safetyProfileRepository) GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.UserSafetyProfile, error) {
	var profile models.UserSafetyProfile
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&profile)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, driverErr("get safety profile", err)
	}

	return &profile, nil
}

// EnsureProfile upserts an empty profile so every user touching the safety
// surface has one. The unique index on user_id makes concurrent ensures safe.
func (r *safetyProfileRepository) EnsureProfile(ctx context.Context, userID primitive.ObjectID) (*models.UserSafetyProfile, error) {
	now := time.Now()

	filter := bson.M{"user_id": userID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"user_id":      userID,
			"safety_score": utils.SafetyScoreMax,
			"created_at":   now,
			"updated_at":   now,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var profile models.UserSafetyProfile
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&profile)
	if err != nil {
		return nil, driverErr("ensure safety profile", err)
	}

	return &profile, nil
}

// UpdateLastKnownPosition upserts so the position lands even for a user who
// has no profile yet, e.g. when their first action is a trip-less SOS
// trigger.
func (r *safetyProfileRepository) UpdateLastKnownPosition(ctx context.Context, userID primitive.ObjectID, lat, lng float64, at time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"last_known_position": models.LastKnownPosition{
				Latitude:  lat,
				Longitude: lng,
				UpdatedAt: at,
			},
			"updated_at": at,
		},
		"$setOnInsert": bson.M{
			"user_id":      userID,
			"safety_score": utils.SafetyScoreMax,
			"created_at":   at,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, bson.M{"user_id": userID}, update, opts)
	if err != nil {
		return driverErr("update last known position", err)
	}

	return nil
}

func (r *safetyProfileRepository) UpdateSafetyScore(ctx context.Context, userID primitive.ObjectID, score int, at time.Time) error {
	update := bson.M{
		"$set": bson.M{
			"safety_score":       score,
			"last_recomputed_at": at,
			"updated_at":         at,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"user_id": userID}, update)
	if err != nil {
		return driverErr("update safety score", err)
	}
	if result.MatchedCount == 0 {
		return interfaces.ErrNotFound
	}

	return nil
}

func (r *safetyProfileRepository) ListUserIDs(ctx context.Context, afterID primitive.ObjectID, limit int64) ([]primitive.ObjectID, error) {
	filter := bson.M{}
	if afterID != primitive.NilObjectID {
		filter["user_id"] = bson.M{"$gt": afterID}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "user_id", Value: 1}}).
		SetLimit(limit).
		SetProjection(bson.M{"user_id": 1})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, driverErr("list profile owners", err)
	}
	defer cursor.Close(ctx)

	var userIDs []primitive.ObjectID
	for cursor.Next(ctx) {
		var doc struct {
			UserID primitive.ObjectID `bson:"user_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, driverErr("decode profile owner", err)
		}
		userIDs = append(userIDs, doc.UserID)
	}

	return userIDs, nil
}
