package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"safetrails/internal/models"
	"safetrails/internal/repositories/interfaces"
	"safetrails/internal/utils"
	"safetrails/pkg/clock"
	"safetrails/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LocationService accepts raw position reports from clients. Direct reports
// are trusted and always recorded once the trip guard passes; there is no
// deduplication against them.
type LocationService interface {
	ReportLocation(ctx context.Context, userID primitive.ObjectID, input *ReportLocationInput) (*models.LocationUpdate, error)
	GetTripTrail(ctx context.Context, userID, tripID primitive.ObjectID, limit int64) ([]*models.LocationUpdate, error)
}

type ReportLocationInput struct {
	TripID    primitive.ObjectID `json:"trip_id" validate:"required"`
	Latitude  float64            `json:"latitude" validate:"latitude"`
	Longitude float64            `json:"longitude" validate:"longitude"`
	Accuracy  *float64           `json:"accuracy"`
	Speed     *float64           `json:"speed"`
	Heading   *float64           `json:"heading"`
	Altitude  *float64           `json:"altitude"`
	Timestamp time.Time          `json:"timestamp"`
}

type locationService struct {
	locationRepo interfaces.LocationRepository
	tripRepo     interfaces.TripRepository
	safetyRepo   interfaces.SafetyProfileRepository
	clock        clock.Clock
	logger       *logger.Logger
}

func NewLocationService(
	locationRepo interfaces.LocationRepository,
	tripRepo interfaces.TripRepository,
	safetyRepo interfaces.SafetyProfileRepository,
	clk clock.Clock,
	log *logger.Logger,
) LocationService {
	return &locationService{
		locationRepo: locationRepo,
		tripRepo:     tripRepo,
		safetyRepo:   safetyRepo,
		clock:        clk,
		logger:       log,
	}
}

func (s *locationService) ReportLocation(ctx context.Context, userID primitive.ObjectID, input *ReportLocationInput) (*models.LocationUpdate, error) {
	if fields := utils.ValidateStruct(input); fields != nil {
		return nil, NewValidationError(fields)
	}
	if !utils.IsValidCoordinates(input.Latitude, input.Longitude) {
		return nil, NewValidationError(map[string]string{"coordinates": "latitude/longitude out of range"})
	}

	trip, err := s.tripRepo.GetByIDForUser(ctx, input.TripID, userID)
	if err != nil {
		return nil, err
	}
	// Reports against a trip that is not underway are rejected rather than
	// silently dropped, so misbehaving clients notice.
	if trip.Status != models.TripStatusActive {
		return nil, ErrInvalidTripState
	}

	now := s.clock.Now()
	update := &models.LocationUpdate{
		TripID:    input.TripID,
		UserID:    userID,
		Latitude:  input.Latitude,
		Longitude: input.Longitude,
		Accuracy:  input.Accuracy,
		Speed:     input.Speed,
		Heading:   input.Heading,
		Altitude:  input.Altitude,
		Source:    models.LocationSourceReport,
		Timestamp: s.effectiveTimestamp(ctx, input.TripID, input.Timestamp, now),
		CreatedAt: now,
	}

	if err := s.locationRepo.Create(ctx, update); err != nil {
		return nil, fmt.Errorf("failed to append location sample: %w", err)
	}

	if err := s.safetyRepo.UpdateLastKnownPosition(ctx, userID, input.Latitude, input.Longitude, now); err != nil {
		s.logger.WithUserID(userID).WithError(err).Warn("failed to update last-known position")
	}

	return update, nil
}

// effectiveTimestamp keeps the trail's timestamps non-decreasing: a client
// timestamp is honored only when it is neither in the future nor behind the
// trip's latest sample; otherwise the server clock wins.
func (s *locationService) effectiveTimestamp(ctx context.Context, tripID primitive.ObjectID, reported, now time.Time) time.Time {
	if reported.IsZero() || reported.After(now) {
		return now
	}

	latest, err := s.locationRepo.GetLatestForTrip(ctx, tripID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return reported
		}
		return now
	}
	if reported.Before(latest.Timestamp) {
		return now
	}
	return reported
}

func (s *locationService) GetTripTrail(ctx context.Context, userID, tripID primitive.ObjectID, limit int64) ([]*models.LocationUpdate, error) {
	if _, err := s.tripRepo.GetByIDForUser(ctx, tripID, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.locationRepo.GetTripHistory(ctx, tripID, limit)
}
