package interfaces

import (
	"context"

	"safetrails/internal/models"
	"safetrails/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TripRepository interface {
	// Basic operations
	Create(ctx context.Context, trip *models.Trip) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Trip, error)
	GetByIDForUser(ctx context.Context, id, userID primitive.ObjectID) (*models.Trip, error)
	GetByUserID(ctx context.Context, userID primitive.ObjectID, status models.TripStatus, params *utils.PaginationParams) ([]*models.Trip, int64, error)

	// TransitionStatus is the single write path for trip status. The update is
	// applied only if the trip is still in the observed `from` status; a trip
	// that exists but has moved on yields ErrConflict.
	TransitionStatus(ctx context.Context, id primitive.ObjectID, from models.TripStatus, updates map[string]interface{}) error

	// Reconciliation queries
	GetActiveTrips(ctx context.Context, limit int64) ([]*models.Trip, error)
	CountCompletedByUser(ctx context.Context, userID primitive.ObjectID) (int64, error)
}
