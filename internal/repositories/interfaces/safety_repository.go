package interfaces

import (
	"context"
	"time"

	"safetrails/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SafetyProfileRepository interface {
	// GetByUserID returns the user's profile, ErrNotFound when none exists.
	GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.UserSafetyProfile, error)

	// EnsureProfile creates an empty profile for the user if missing and
	// returns the current one either way.
	EnsureProfile(ctx context.Context, userID primitive.ObjectID) (*models.UserSafetyProfile, error)

	// UpdateLastKnownPosition records the owner's most recent position,
	// consumed later by the location backfill job.
	UpdateLastKnownPosition(ctx context.Context, userID primitive.ObjectID, lat, lng float64, at time.Time) error

	// UpdateSafetyScore writes a recomputed score wholesale. No other code
	// path may touch the score field.
	UpdateSafetyScore(ctx context.Context, userID primitive.ObjectID, score int, at time.Time) error

	// ListUserIDs pages through all profile owners for the recomputation job.
	ListUserIDs(ctx context.Context, afterID primitive.ObjectID, limit int64) ([]primitive.ObjectID, error)
}

// CommunityCounter is the read-only external collaborator supplying per-user
// community contribution counts to the safety-score job.
type CommunityCounter interface {
	CountPostsByUser(ctx context.Context, userID primitive.ObjectID) (int64, error)
}
