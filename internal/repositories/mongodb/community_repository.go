package mongodb

import (
	"context"

	"safetrails/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type communityRepository struct {
	collection *mongo.Collection
}

func NewCommunityRepository(db *mongo.Database) interfaces.CommunityCounter {
	return &communityRepository{
		collection: db.Collection("community_posts"),
	}
}

func (r *communityRepository) CountPostsByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, driverErr("count community posts", err)
	}

	return count, nil
}
