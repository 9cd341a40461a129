package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SOSStatus string
type SOSType string

const (
	SOSStatusNew          SOSStatus = "new"
	SOSStatusAcknowledged SOSStatus = "acknowledged"
	SOSStatusInProgress   SOSStatus = "in_progress"
	SOSStatusResolved     SOSStatus = "resolved"
	SOSStatusFalseAlarm   SOSStatus = "false_alarm"

	SOSTypeGeneral  SOSType = "general"
	SOSTypeMedical  SOSType = "medical"
	SOSTypeAccident SOSType = "accident"
	SOSTypeCrime    SOSType = "crime"
	SOSTypeNatural  SOSType = "natural_disaster"
)

// SOSRequest is one emergency episode. The contact snapshot is captured once
// at creation and never re-read from the live profile, so later contact edits
// do not rewrite history. Tickets are never deleted.
type SOSRequest struct {
	ID               primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	UserID           primitive.ObjectID  `json:"user_id" bson:"user_id" validate:"required"`
	TripID           *primitive.ObjectID `json:"trip_id" bson:"trip_id"`
	Status           SOSStatus           `json:"status" bson:"status" default:"new"`
	SOSType          SOSType             `json:"sos_type" bson:"sos_type" default:"general"`
	Location         string              `json:"location" bson:"location" validate:"required"`
	Latitude         float64             `json:"latitude" bson:"latitude" validate:"latitude"`
	Longitude        float64             `json:"longitude" bson:"longitude" validate:"longitude"`
	Description      string              `json:"description" bson:"description"`
	ContactSnapshot  []EmergencyContact  `json:"contact_snapshot" bson:"contact_snapshot"`
	DispatchRequested bool               `json:"dispatch_requested" bson:"dispatch_requested"`
	AdminComments    string              `json:"admin_comments" bson:"admin_comments"`
	AcknowledgedBy   *primitive.ObjectID `json:"acknowledged_by" bson:"acknowledged_by"`
	ResolvedBy       *primitive.ObjectID `json:"resolved_by" bson:"resolved_by"`
	CreatedAt        time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at" bson:"updated_at"`
	ResolvedAt       *time.Time          `json:"resolved_at" bson:"resolved_at"`
}

// EmergencyContact is one entry of the contact snapshot. Contacts arrive from
// the profile as structured records and are validated on write.
type EmergencyContact struct {
	Name     string `json:"name" bson:"name" validate:"required"`
	Phone    string `json:"phone" bson:"phone" validate:"required"`
	Relation string `json:"relation" bson:"relation"`
}

// IsTerminal reports whether the ticket can never move again. Resolved and
// FalseAlarm admit no further transitions by any actor.
func (s SOSStatus) IsTerminal() bool {
	return s == SOSStatusResolved || s == SOSStatusFalseAlarm
}

// IsOpen is the complement of IsTerminal for readability at call sites that
// count open tickets per trip.
func (s SOSStatus) IsOpen() bool {
	return !s.IsTerminal()
}

var sosTransitions = map[SOSStatus][]SOSStatus{
	SOSStatusNew:          {SOSStatusAcknowledged, SOSStatusResolved, SOSStatusFalseAlarm},
	SOSStatusAcknowledged: {SOSStatusInProgress, SOSStatusResolved, SOSStatusFalseAlarm},
	SOSStatusInProgress:   {SOSStatusResolved, SOSStatusFalseAlarm},
}

func (s SOSStatus) CanTransition(to SOSStatus) bool {
	for _, next := range sosTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
