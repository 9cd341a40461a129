package services

import (
	"context"
	"fmt"
	"time"

	"safetrails/internal/models"
	"safetrails/internal/repositories/interfaces"
	"safetrails/internal/utils"
	"safetrails/pkg/clock"
	"safetrails/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TripService owns the trip state machine. Every transition is one
// conditional write against the store: the write applies only if the trip is
// still in the status observed at read time, so concurrent writers (user
// calls and reconciliation jobs) can never produce an edge outside the
// transition table.
type TripService interface {
	CreateTrip(ctx context.Context, userID primitive.ObjectID, input *CreateTripInput) (*models.Trip, error)
	GetTrip(ctx context.Context, userID, tripID primitive.ObjectID) (*models.Trip, error)
	ListTrips(ctx context.Context, userID primitive.ObjectID, status models.TripStatus, params *utils.PaginationParams) ([]*models.Trip, int64, error)
	StartTrip(ctx context.Context, userID, tripID primitive.ObjectID, lat, lng float64) (*models.Trip, error)
	EndTrip(ctx context.Context, userID, tripID primitive.ObjectID, lat, lng float64) (*models.Trip, error)
	CancelTrip(ctx context.Context, userID, tripID primitive.ObjectID, reason string) (*models.Trip, error)
	GetTripStats(ctx context.Context, userID, tripID primitive.ObjectID) (*TripStats, error)
}

// TripGuard is the narrow surface handed to the SOS lifecycle manager. No
// other component may move a trip in or out of the emergency state.
type TripGuard interface {
	ForceEmergency(ctx context.Context, tripID primitive.ObjectID) error
	ClearEmergency(ctx context.Context, tripID primitive.ObjectID) error
}

type CreateTripInput struct {
	Title          string    `json:"title" validate:"required,min=1,max=200"`
	Description    string    `json:"description" validate:"max=2000"`
	StartDate      time.Time `json:"start_date" validate:"required"`
	EndDate        time.Time `json:"end_date" validate:"required"`
	StartLocation  string    `json:"start_location"`
	EndLocation    string    `json:"end_location"`
	StartLatitude  float64   `json:"start_latitude" validate:"latitude"`
	StartLongitude float64   `json:"start_longitude" validate:"longitude"`
	EndLatitude    float64   `json:"end_latitude" validate:"latitude"`
	EndLongitude   float64   `json:"end_longitude" validate:"longitude"`
}

type TripStats struct {
	TripID          primitive.ObjectID `json:"trip_id"`
	Status          models.TripStatus  `json:"status"`
	StartTime       *time.Time         `json:"start_time"`
	EndTime         *time.Time         `json:"end_time"`
	DurationMinutes *int               `json:"duration_minutes"`
	TotalDistanceKM float64            `json:"total_distance_km"`
	LocationUpdates int64              `json:"location_updates"`
	SOSAlerts       int64              `json:"sos_alerts"`
	SafetyScore     int                `json:"safety_score"`
}

type tripService struct {
	tripRepo     interfaces.TripRepository
	locationRepo interfaces.LocationRepository
	sosRepo      interfaces.SOSRepository
	safetyRepo   interfaces.SafetyProfileRepository
	clock        clock.Clock
	logger       *logger.Logger
}

func NewTripService(
	tripRepo interfaces.TripRepository,
	locationRepo interfaces.LocationRepository,
	sosRepo interfaces.SOSRepository,
	safetyRepo interfaces.SafetyProfileRepository,
	clk clock.Clock,
	log *logger.Logger,
) TripService {
	return &tripService{
		tripRepo:     tripRepo,
		locationRepo: locationRepo,
		sosRepo:      sosRepo,
		safetyRepo:   safetyRepo,
		clock:        clk,
		logger:       log,
	}
}

// NewTripGuard exposes only the emergency edges of the trip state machine.
func NewTripGuard(svc TripService) TripGuard {
	return svc.(*tripService)
}

func (s *tripService) CreateTrip(ctx context.Context, userID primitive.ObjectID, input *CreateTripInput) (*models.Trip, error) {
	if fields := utils.ValidateStruct(input); fields != nil {
		return nil, NewValidationError(fields)
	}
	if !input.EndDate.After(input.StartDate) {
		return nil, NewValidationError(map[string]string{"end_date": "must be after start_date"})
	}

	now := s.clock.Now()
	profile, err := s.safetyRepo.EnsureProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load safety profile: %w", err)
	}

	trip := &models.Trip{
		UserID:         userID,
		Title:          input.Title,
		Description:    input.Description,
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		StartLocation:  input.StartLocation,
		EndLocation:    input.EndLocation,
		StartLatitude:  input.StartLatitude,
		StartLongitude: input.StartLongitude,
		EndLatitude:    input.EndLatitude,
		EndLongitude:   input.EndLongitude,
		Status:         models.TripStatusPlanned,
		SafetyScore:    profile.SafetyScore,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.tripRepo.Create(ctx, trip); err != nil {
		return nil, fmt.Errorf("failed to create trip: %w", err)
	}

	return trip, nil
}

func (s *tripService) GetTrip(ctx context.Context, userID, tripID primitive.ObjectID) (*models.Trip, error) {
	return s.tripRepo.GetByIDForUser(ctx, tripID, userID)
}

func (s *tripService) ListTrips(ctx context.Context, userID primitive.ObjectID, status models.TripStatus, params *utils.PaginationParams) ([]*models.Trip, int64, error) {
	return s.tripRepo.GetByUserID(ctx, userID, status, params)
}

func (s *tripService) StartTrip(ctx context.Context, userID, tripID primitive.ObjectID, lat, lng float64) (*models.Trip, error) {
	if !utils.IsValidCoordinates(lat, lng) {
		return nil, NewValidationError(map[string]string{"coordinates": "latitude/longitude out of range"})
	}

	trip, err := s.tripRepo.GetByIDForUser(ctx, tripID, userID)
	if err != nil {
		return nil, err
	}
	if trip.Status != models.TripStatusPlanned {
		return nil, ErrInvalidTripState
	}

	now := s.clock.Now()
	updates := map[string]interface{}{
		"status":            models.TripStatusActive,
		"actual_start_time": now,
		"updated_at":        now,
	}
	if err := s.tripRepo.TransitionStatus(ctx, tripID, models.TripStatusPlanned, updates); err != nil {
		return nil, storeErr(err)
	}

	trip.Status = models.TripStatusActive
	trip.ActualStartTime = &now
	trip.UpdatedAt = now

	s.recordTransitionSample(ctx, trip, lat, lng, now)

	return trip, nil
}

func (s *tripService) EndTrip(ctx context.Context, userID, tripID primitive.ObjectID, lat, lng float64) (*models.Trip, error) {
	if !utils.IsValidCoordinates(lat, lng) {
		return nil, NewValidationError(map[string]string{"coordinates": "latitude/longitude out of range"})
	}

	trip, err := s.tripRepo.GetByIDForUser(ctx, tripID, userID)
	if err != nil {
		return nil, err
	}
	if trip.Status != models.TripStatusActive {
		return nil, ErrInvalidTripState
	}

	now := s.clock.Now()
	updates := map[string]interface{}{
		"status":          models.TripStatusCompleted,
		"actual_end_time": now,
		"updated_at":      now,
	}
	if err := s.tripRepo.TransitionStatus(ctx, tripID, models.TripStatusActive, updates); err != nil {
		return nil, storeErr(err)
	}

	trip.Status = models.TripStatusCompleted
	trip.ActualEndTime = &now
	trip.UpdatedAt = now

	s.recordTransitionSample(ctx, trip, lat, lng, now)

	return trip, nil
}

func (s *tripService) CancelTrip(ctx context.Context, userID, tripID primitive.ObjectID, reason string) (*models.Trip, error) {
	trip, err := s.tripRepo.GetByIDForUser(ctx, tripID, userID)
	if err != nil {
		return nil, err
	}
	if trip.Status != models.TripStatusPlanned && trip.Status != models.TripStatusActive {
		return nil, ErrInvalidTripState
	}

	now := s.clock.Now()
	description := trip.Description
	if reason != "" {
		description = fmt.Sprintf("%s\nCancellation reason: %s", trip.Description, reason)
	}
	updates := map[string]interface{}{
		"status":      models.TripStatusCancelled,
		"description": description,
		"updated_at":  now,
	}
	// Conditioned on the status observed above; a concurrent start/end/reap
	// wins the race and this call reports the conflict instead.
	if err := s.tripRepo.TransitionStatus(ctx, tripID, trip.Status, updates); err != nil {
		return nil, storeErr(err)
	}

	trip.Status = models.TripStatusCancelled
	trip.Description = description
	trip.UpdatedAt = now

	return trip, nil
}

// ForceEmergency moves an active trip into the emergency state. Only the SOS
// lifecycle manager calls this, through TripGuard.
func (s *tripService) ForceEmergency(ctx context.Context, tripID primitive.ObjectID) error {
	now := s.clock.Now()
	updates := map[string]interface{}{
		"status":     models.TripStatusEmergency,
		"updated_at": now,
	}
	if err := s.tripRepo.TransitionStatus(ctx, tripID, models.TripStatusActive, updates); err != nil {
		return storeErr(err)
	}
	return nil
}

// ClearEmergency is the single back-edge of the trip state machine,
// Emergency -> Active, taken when the last open ticket for the trip resolves.
func (s *tripService) ClearEmergency(ctx context.Context, tripID primitive.ObjectID) error {
	now := s.clock.Now()
	updates := map[string]interface{}{
		"status":     models.TripStatusActive,
		"updated_at": now,
	}
	if err := s.tripRepo.TransitionStatus(ctx, tripID, models.TripStatusEmergency, updates); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *tripService) GetTripStats(ctx context.Context, userID, tripID primitive.ObjectID) (*TripStats, error) {
	trip, err := s.tripRepo.GetByIDForUser(ctx, tripID, userID)
	if err != nil {
		return nil, err
	}

	history, err := s.locationRepo.GetTripHistory(ctx, tripID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load trip trail: %w", err)
	}

	points := make([][2]float64, len(history))
	for i, update := range history {
		points[i] = [2]float64{update.Latitude, update.Longitude}
	}

	sosCount, err := s.sosRepo.CountByTrip(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to count trip tickets: %w", err)
	}

	stats := &TripStats{
		TripID:          trip.ID,
		Status:          trip.Status,
		StartTime:       trip.ActualStartTime,
		EndTime:         trip.ActualEndTime,
		TotalDistanceKM: utils.TrailDistance(points),
		LocationUpdates: int64(len(history)),
		SOSAlerts:       sosCount,
		SafetyScore:     trip.SafetyScore,
	}
	if trip.ActualStartTime != nil && trip.ActualEndTime != nil {
		minutes := int(trip.ActualEndTime.Sub(*trip.ActualStartTime) / time.Minute)
		stats.DurationMinutes = &minutes
	}

	return stats, nil
}

// recordTransitionSample appends the start/end sample and refreshes the
// owner's last-known position. The status transition already committed, so a
// failure here is logged and left for the backfill job to repair rather than
// surfaced as a failed transition.
func (s *tripService) recordTransitionSample(ctx context.Context, trip *models.Trip, lat, lng float64, now time.Time) {
	update := &models.LocationUpdate{
		TripID:    trip.ID,
		UserID:    trip.UserID,
		Latitude:  lat,
		Longitude: lng,
		Source:    models.LocationSourceTransition,
		Timestamp: now,
		CreatedAt: now,
	}
	if err := s.locationRepo.Create(ctx, update); err != nil {
		s.logger.WithEntityID(trip.ID).WithError(err).Warn("failed to record transition sample")
	}
	if err := s.safetyRepo.UpdateLastKnownPosition(ctx, trip.UserID, lat, lng, now); err != nil {
		s.logger.WithUserID(trip.UserID).WithError(err).Warn("failed to update last-known position")
	}
}
