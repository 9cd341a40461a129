package interfaces

import (
	"context"
	"time"

	"safetrails/internal/models"
	"safetrails/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SOSRepository interface {
	// Basic operations
	Create(ctx context.Context, sos *models.SOSRequest) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.SOSRequest, error)
	GetByIDForUser(ctx context.Context, id, userID primitive.ObjectID) (*models.SOSRequest, error)
	GetByUserID(ctx context.Context, userID primitive.ObjectID, status models.SOSStatus, params *utils.PaginationParams) ([]*models.SOSRequest, int64, error)

	// TransitionStatus is the single write path for ticket status, conditioned
	// on the observed `from` status (ErrConflict when the ticket moved first).
	TransitionStatus(ctx context.Context, id primitive.ObjectID, from models.SOSStatus, updates map[string]interface{}) error

	// CountOpenForTrip counts non-terminal tickets referencing the trip,
	// excluding excludeID. Zero means the trip's emergency can be cleared.
	CountOpenForTrip(ctx context.Context, tripID primitive.ObjectID, excludeID primitive.ObjectID) (int64, error)
	CountByTrip(ctx context.Context, tripID primitive.ObjectID) (int64, error)

	// Reconciliation queries
	GetStaleOpen(ctx context.Context, updatedBefore time.Time, limit int64) ([]*models.SOSRequest, error)
	CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error)

	// Statistics queries
	CountByStatusType(ctx context.Context, userID primitive.ObjectID) ([]SOSStatusTypeCount, error)
	GetRecentByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]*models.SOSRequest, error)
}

// SOSStatusTypeCount is one aggregation bucket of a user's tickets.
type SOSStatusTypeCount struct {
	Status  models.SOSStatus
	SOSType models.SOSType
	Count   int64
}
