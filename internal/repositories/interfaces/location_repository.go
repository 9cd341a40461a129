package interfaces

import (
	"context"

	"safetrails/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type LocationRepository interface {
	// Create appends one sample. Samples are append-only; there is no update
	// or delete path in this core.
	Create(ctx context.Context, update *models.LocationUpdate) error

	// Trip trail queries
	GetLatestForTrip(ctx context.Context, tripID primitive.ObjectID) (*models.LocationUpdate, error)
	GetTripHistory(ctx context.Context, tripID primitive.ObjectID, limit int64) ([]*models.LocationUpdate, error)
	CountForTrip(ctx context.Context, tripID primitive.ObjectID) (int64, error)
}
