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

type sosRepository struct {
	collection *mongo.Collection
}

func NewSOSRepository(db *mongo.Database) interfaces.SOSRepository {
	return &sosRepository{
		collection: db.Collection("sos_requests"),
	}
}

func (r *sosRepository) Create(ctx context.Context, sos *models.SOSRequest) error {
	sos.ID = primitive.NewObjectID()
	now := time.Now()
	sos.CreatedAt = now
	sos.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, sos)
	if err != nil {
		return driverErr("create sos request", err)
	}

	return nil
}

func (r *sosRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.SOSRequest, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *sosRepository) GetByIDForUser(ctx context.Context, id, userID primitive.ObjectID) (*models.SOSRequest, error) {
	return r.findOne(ctx, bson.M{"_id": id, "user_id": userID})
}

func (r *sosRepository) findOne(ctx context.Context, filter bson.M) (*models.SOSRequest, error) {
	var sos models.SOSRequest
	err := r.collection.FindOne(ctx, filter).Decode(&sos)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, interfaces.ErrNotFound
		}
		return nil, driverErr("get sos request", err)
	}

	return &sos, nil
}

func (r *sosRepository) GetByUserID(ctx context.Context, userID primitive.ObjectID, status models.SOSStatus, params *utils.PaginationParams) ([]*models.SOSRequest, int64, error) {
	filter := bson.M{"user_id": userID}
	if status != "" {
		filter["status"] = status
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, driverErr("count sos requests", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.GetSortOptions())
	if err != nil {
		return nil, 0, driverErr("find sos requests", err)
	}
	defer cursor.Close(ctx)

	var requests []*models.SOSRequest
	for cursor.Next(ctx) {
		var sos models.SOSRequest
		if err := cursor.Decode(&sos); err != nil {
			return nil, 0, driverErr("decode sos request", err)
		}
		requests = append(requests, &sos)
	}

	return requests, total, nil
}

// TransitionStatus mirrors the trip write path: conditional on the observed
// status, with a follow-up read to tell not-found from a lost race.
func (r *sosRepository) TransitionStatus(ctx context.Context, id primitive.ObjectID, from models.SOSStatus, updates map[string]interface{}) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": updates},
	)
	if err != nil {
		return driverErr("transition sos request", err)
	}

	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return driverErr("check sos existence", err)
		}
		if count == 0 {
			return interfaces.ErrNotFound
		}
		return interfaces.ErrConflict
	}

	return nil
}

func (r *sosRepository) CountOpenForTrip(ctx context.Context, tripID primitive.ObjectID, excludeID primitive.ObjectID) (int64, error) {
	filter := bson.M{
		"trip_id": tripID,
		"status": bson.M{"$nin": []models.SOSStatus{
			models.SOSStatusResolved,
			models.SOSStatusFalseAlarm,
		}},
	}
	if excludeID != primitive.NilObjectID {
		filter["_id"] = bson.M{"$ne": excludeID}
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, driverErr("count open sos requests", err)
	}

	return count, nil
}

func (r *sosRepository) CountByTrip(ctx context.Context, tripID primitive.ObjectID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"trip_id": tripID})
	if err != nil {
		return 0, driverErr("count trip sos requests", err)
	}

	return count, nil
}

func (r *sosRepository) GetStaleOpen(ctx context.Context, updatedBefore time.Time, limit int64) ([]*models.SOSRequest, error) {
	filter := bson.M{
		"status": bson.M{"$nin": []models.SOSStatus{
			models.SOSStatusResolved,
			models.SOSStatusFalseAlarm,
		}},
		"updated_at": bson.M{"$lt": updatedBefore},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: 1}}).
		SetLimit(limit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, driverErr("find stale sos requests", err)
	}
	defer cursor.Close(ctx)

	var requests []*models.SOSRequest
	for cursor.Next(ctx) {
		var sos models.SOSRequest
		if err := cursor.Decode(&sos); err != nil {
			return nil, driverErr("decode sos request", err)
		}
		requests = append(requests, &sos)
	}

	return requests, nil
}

func (r *sosRepository) CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, driverErr("count user sos requests", err)
	}

	return count, nil
}

func (r *sosRepository) CountByStatusType(ctx context.Context, userID primitive.ObjectID) ([]interfaces.SOSStatusTypeCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"status": "$status", "sos_type": "$sos_type"},
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, driverErr("aggregate sos statistics", err)
	}
	defer cursor.Close(ctx)

	var counts []interfaces.SOSStatusTypeCount
	for cursor.Next(ctx) {
		var doc struct {
			ID struct {
				Status  models.SOSStatus `bson:"status"`
				SOSType models.SOSType   `bson:"sos_type"`
			} `bson:"_id"`
			Count int64 `bson:"count"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, driverErr("decode sos statistics", err)
		}
		counts = append(counts, interfaces.SOSStatusTypeCount{
			Status:  doc.ID.Status,
			SOSType: doc.ID.SOSType,
			Count:   doc.Count,
		})
	}

	return counts, nil
}

func (r *sosRepository) GetRecentByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]*models.SOSRequest, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, driverErr("find recent sos requests", err)
	}
	defer cursor.Close(ctx)

	var requests []*models.SOSRequest
	for cursor.Next(ctx) {
		var sos models.SOSRequest
		if err := cursor.Decode(&sos); err != nil {
			return nil, driverErr("decode sos request", err)
		}
		requests = append(requests, &sos)
	}

	return requests, nil
}
