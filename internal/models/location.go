package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LocationUpdate is one geolocated observation tied to a trip. Updates are
// append-only: they are created by direct reports, lifecycle transitions or
// the backfill job and never edited afterwards. Timestamps are non-decreasing
// per trip in insertion order.
type LocationUpdate struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TripID    primitive.ObjectID `json:"trip_id" bson:"trip_id" validate:"required"`
	UserID    primitive.ObjectID `json:"user_id" bson:"user_id" validate:"required"`
	Latitude  float64            `json:"latitude" bson:"latitude" validate:"latitude"`
	Longitude float64            `json:"longitude" bson:"longitude" validate:"longitude"`
	Accuracy  *float64           `json:"accuracy" bson:"accuracy"`
	Speed     *float64           `json:"speed" bson:"speed"`
	Heading   *float64           `json:"heading" bson:"heading"`
	Altitude  *float64           `json:"altitude" bson:"altitude"`
	Source    LocationSource     `json:"source" bson:"source"`
	Timestamp time.Time          `json:"timestamp" bson:"timestamp"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

type LocationSource string

const (
	LocationSourceReport     LocationSource = "report"
	LocationSourceTransition LocationSource = "transition"
	LocationSourceBackfill   LocationSource = "backfill"
)

// LastKnownPosition is the owner's most recent position, maintained on the
// safety profile and consumed by the backfill job.
type LastKnownPosition struct {
	Latitude  float64   `json:"latitude" bson:"latitude"`
	Longitude float64   `json:"longitude" bson:"longitude"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
