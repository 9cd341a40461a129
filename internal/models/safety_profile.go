package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserSafetyProfile is the derived per-user safety record. The score is
// recomputed wholesale by the recomputation job and never patched elsewhere;
// the last-known position is maintained by trip transitions and the sampler.
type UserSafetyProfile struct {
	ID                primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	UserID            primitive.ObjectID  `json:"user_id" bson:"user_id" validate:"required"`
	SafetyScore       int                 `json:"safety_score" bson:"safety_score" default:"100"`
	EmergencyContacts []EmergencyContact  `json:"emergency_contacts" bson:"emergency_contacts"`
	LastKnownPosition *LastKnownPosition  `json:"last_known_position" bson:"last_known_position"`
	LastRecomputedAt  *time.Time          `json:"last_recomputed_at" bson:"last_recomputed_at"`
	CreatedAt         time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at" bson:"updated_at"`
}

// CommunityPost exists in this core only as a countable record: the score
// recomputation consumes per-user post counts through a read-only collaborator.
type CommunityPost struct {
	ID        primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	UserID    primitive.ObjectID  `json:"user_id" bson:"user_id" validate:"required"`
	TripID    *primitive.ObjectID `json:"trip_id" bson:"trip_id"`
	Title     string              `json:"title" bson:"title"`
	Content   string              `json:"content" bson:"content"`
	CreatedAt time.Time           `json:"created_at" bson:"created_at"`
}
