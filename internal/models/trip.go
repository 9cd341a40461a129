package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TripStatus string

const (
	TripStatusPlanned   TripStatus = "planned"
	TripStatusActive    TripStatus = "active"
	TripStatusCompleted TripStatus = "completed"
	TripStatusCancelled TripStatus = "cancelled"
	TripStatusEmergency TripStatus = "emergency"
)

// Trip is one outdoor excursion. Status only ever moves along the transition
// table below; Completed and Cancelled admit no further transitions, and
// Emergency -> Active is the single back-edge, taken when the last open SOS
// ticket for the trip terminates.
type Trip struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID          primitive.ObjectID `json:"user_id" bson:"user_id" validate:"required"`
	Title           string             `json:"title" bson:"title" validate:"required"`
	Description     string             `json:"description" bson:"description"`
	Status          TripStatus         `json:"status" bson:"status" default:"planned"`
	StartDate       time.Time          `json:"start_date" bson:"start_date"`
	EndDate         time.Time          `json:"end_date" bson:"end_date"`
	StartLocation   string             `json:"start_location" bson:"start_location"`
	EndLocation     string             `json:"end_location" bson:"end_location"`
	StartLatitude   float64            `json:"start_latitude" bson:"start_latitude"`
	StartLongitude  float64            `json:"start_longitude" bson:"start_longitude"`
	EndLatitude     float64            `json:"end_latitude" bson:"end_latitude"`
	EndLongitude    float64            `json:"end_longitude" bson:"end_longitude"`
	ActualStartTime *time.Time         `json:"actual_start_time" bson:"actual_start_time"`
	ActualEndTime   *time.Time         `json:"actual_end_time" bson:"actual_end_time"`
	SafetyScore     int                `json:"safety_score" bson:"safety_score"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" bson:"updated_at"`
}

var tripTransitions = map[TripStatus][]TripStatus{
	TripStatusPlanned:   {TripStatusActive, TripStatusCancelled},
	TripStatusActive:    {TripStatusCompleted, TripStatusCancelled, TripStatusEmergency},
	TripStatusEmergency: {TripStatusActive},
}

func (s TripStatus) CanTransition(to TripStatus) bool {
	for _, next := range tripTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the trip can never move again.
func (s TripStatus) IsTerminal() bool {
	return s == TripStatusCompleted || s == TripStatusCancelled
}

// IsOwnedBy reports whether userID owns the trip.
func (t *Trip) IsOwnedBy(userID primitive.ObjectID) bool {
	return t.UserID == userID
}
