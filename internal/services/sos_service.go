package services

import (
	"context"
	"errors"
	"fmt"

	"safetrails/internal/models"
	"safetrails/internal/repositories/interfaces"
	"safetrails/internal/utils"
	"safetrails/pkg/clock"
	"safetrails/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SOSService owns the SOS ticket state machine. Resolved and FalseAlarm are
// terminal: any further transition attempt is an idempotent no-op reported as
// ErrAlreadyTerminal, so retried client requests are always safe.
type SOSService interface {
	Trigger(ctx context.Context, userID primitive.ObjectID, input *TriggerSOSInput) (*models.SOSRequest, error)
	GetTicket(ctx context.Context, userID, ticketID primitive.ObjectID) (*models.SOSRequest, error)
	ListTickets(ctx context.Context, userID primitive.ObjectID, status models.SOSStatus, params *utils.PaginationParams) ([]*models.SOSRequest, int64, error)

	// Operator transitions
	Acknowledge(ctx context.Context, operatorID, ticketID primitive.ObjectID) (*models.SOSRequest, error)
	BeginWork(ctx context.Context, operatorID, ticketID primitive.ObjectID) (*models.SOSRequest, error)

	// Operator transitions against any ticket
	Resolve(ctx context.Context, actorID, ticketID primitive.ObjectID, note string) (*models.SOSRequest, error)
	MarkFalseAlarm(ctx context.Context, actorID, ticketID primitive.ObjectID, note string) (*models.SOSRequest, error)

	// Owner variants of the terminal transitions; the ticket must belong to
	// the caller.
	ResolveOwn(ctx context.Context, ownerID, ticketID primitive.ObjectID, note string) (*models.SOSRequest, error)
	MarkFalseAlarmOwn(ctx context.Context, ownerID, ticketID primitive.ObjectID, note string) (*models.SOSRequest, error)

	// Owner-only: accidental trigger, permitted while the ticket is still new.
	Cancel(ctx context.Context, ownerID, ticketID primitive.ObjectID, reason string) (*models.SOSRequest, error)

	GetStatsOverview(ctx context.Context, userID primitive.ObjectID) (*SOSStats, error)
}

type TriggerSOSInput struct {
	Location    string                    `json:"location" validate:"required"`
	Latitude    float64                   `json:"latitude" validate:"latitude"`
	Longitude   float64                   `json:"longitude" validate:"longitude"`
	SOSType     models.SOSType            `json:"sos_type"`
	Description string                    `json:"description" validate:"max=2000"`
	TripID      *primitive.ObjectID       `json:"trip_id"`
	Contacts    []models.EmergencyContact `json:"contacts" validate:"dive"`
}

// SOSStats is the per-user ticket overview: totals grouped by status and
// type, plus the most recent tickets.
type SOSStats struct {
	Total    int64                      `json:"total"`
	ByStatus map[models.SOSStatus]int64 `json:"by_status"`
	ByType   map[models.SOSType]int64   `json:"by_type"`
	Recent   []*models.SOSRequest       `json:"recent"`
}

// sosStatsRecentLimit caps the recent-ticket list in the stats overview.
const sosStatsRecentLimit = 5

// ContactDispatcher is the external notification collaborator. Dispatch is
// fire-and-forget from the core's point of view.
type ContactDispatcher interface {
	Dispatch(ctx context.Context, ticket *models.SOSRequest) error
}

type sosService struct {
	sosRepo    interfaces.SOSRepository
	tripRepo   interfaces.TripRepository
	safetyRepo interfaces.SafetyProfileRepository
	tripGuard  TripGuard
	dispatcher ContactDispatcher
	clock      clock.Clock
	logger     *logger.Logger
}

func NewSOSService(
	sosRepo interfaces.SOSRepository,
	tripRepo interfaces.TripRepository,
	safetyRepo interfaces.SafetyProfileRepository,
	tripGuard TripGuard,
	dispatcher ContactDispatcher,
	clk clock.Clock,
	log *logger.Logger,
) SOSService {
	return &sosService{
		sosRepo:    sosRepo,
		tripRepo:   tripRepo,
		safetyRepo: safetyRepo,
		tripGuard:  tripGuard,
		dispatcher: dispatcher,
		clock:      clk,
		logger:     log,
	}
}

func (s *sosService) Trigger(ctx context.Context, userID primitive.ObjectID, input *TriggerSOSInput) (*models.SOSRequest, error) {
	if fields := utils.ValidateStruct(input); fields != nil {
		return nil, NewValidationError(fields)
	}
	if !utils.IsValidCoordinates(input.Latitude, input.Longitude) {
		return nil, NewValidationError(map[string]string{"coordinates": "latitude/longitude out of range"})
	}

	sosType := input.SOSType
	if sosType == "" {
		sosType = models.SOSTypeGeneral
	}

	now := s.clock.Now()

	// Contacts are frozen into the ticket here. Later edits to the live
	// profile must not rewrite emergency history.
	snapshot := make([]models.EmergencyContact, len(input.Contacts))
	copy(snapshot, input.Contacts)

	ticket := &models.SOSRequest{
		UserID:          userID,
		TripID:          input.TripID,
		Status:          models.SOSStatusNew,
		SOSType:         sosType,
		Location:        input.Location,
		Latitude:        input.Latitude,
		Longitude:       input.Longitude,
		Description:     input.Description,
		ContactSnapshot: snapshot,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.sosRepo.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to create sos ticket: %w", err)
	}

	if input.TripID != nil {
		s.escalateTrip(ctx, userID, *input.TripID, ticket.ID)
	}

	if err := s.safetyRepo.UpdateLastKnownPosition(ctx, userID, input.Latitude, input.Longitude, now); err != nil {
		s.logger.WithUserID(userID).WithError(err).Warn("failed to update last-known position")
	}

	s.requestDispatch(ctx, ticket)

	return ticket, nil
}

// escalateTrip forces the linked trip into the emergency state when it is
// active and owned by the panicking user. Any other state of the trip is
// tolerated: a ticket must never fail to record because the trip moved.
func (s *sosService) escalateTrip(ctx context.Context, userID, tripID, ticketID primitive.ObjectID) {
	trip, err := s.tripRepo.GetByIDForUser(ctx, tripID, userID)
	if err != nil {
		s.logger.WithEntityID(tripID).WithError(err).Warn("sos trigger: linked trip not found")
		return
	}
	if trip.Status != models.TripStatusActive {
		return
	}
	if err := s.tripGuard.ForceEmergency(ctx, tripID); err != nil {
		s.logger.WithEntityID(tripID).WithError(err).Warn("sos trigger: failed to escalate trip")
	}
}

// requestDispatch records that notification was requested and hands the
// ticket to the dispatcher. Delivery runs off the trigger path and its
// outcome is not this core's concern.
func (s *sosService) requestDispatch(ctx context.Context, ticket *models.SOSRequest) {
	if s.dispatcher == nil || len(ticket.ContactSnapshot) == 0 {
		return
	}

	ticket.DispatchRequested = true
	updates := map[string]interface{}{
		"dispatch_requested": true,
		"updated_at":         s.clock.Now(),
	}
	if err := s.sosRepo.TransitionStatus(ctx, ticket.ID, models.SOSStatusNew, updates); err != nil {
		// The ticket may have been cancelled in the meantime; the dispatch
		// record is best-effort.
		s.logger.WithEntityID(ticket.ID).WithError(err).Debug("could not record dispatch request")
	}

	// The request context dies with the HTTP call, so the send runs under
	// its own.
	dispatched := *ticket
	go func() {
		if err := s.dispatcher.Dispatch(context.Background(), &dispatched); err != nil {
			s.logger.WithEntityID(dispatched.ID).WithError(err).Warn("contact dispatch request failed")
		}
	}()
}

func (s *sosService) GetTicket(ctx context.Context, userID, ticketID primitive.ObjectID) (*models.SOSRequest, error) {
	return s.sosRepo.GetByIDForUser(ctx, ticketID, userID)
}

func (s *sosService) ListTickets(ctx context.Context, userID primitive.ObjectID, status models.SOSStatus, params *utils.PaginationParams) ([]*models.SOSRequest, int64, error) {
	return s.sosRepo.GetByUserID(ctx, userID, status, params)
}

// GetStatsOverview summarizes the caller's ticket history grouped by status
// and type, with the few most recent tickets attached.
func (s *sosService) GetStatsOverview(ctx context.Context, userID primitive.ObjectID) (*SOSStats, error) {
	counts, err := s.sosRepo.CountByStatusType(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sos statistics: %w", err)
	}

	recent, err := s.sosRepo.GetRecentByUser(ctx, userID, sosStatsRecentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent sos tickets: %w", err)
	}

	stats := &SOSStats{
		ByStatus: make(map[models.SOSStatus]int64),
		ByType:   make(map[models.SOSType]int64),
		Recent:   recent,
	}
	for _, bucket := range counts {
		stats.Total += bucket.Count
		stats.ByStatus[bucket.Status] += bucket.Count
		stats.ByType[bucket.SOSType] += bucket.Count
	}

	return stats, nil
}

func (s *sosService) Acknowledge(ctx context.Context, operatorID, ticketID primitive.ObjectID) (*models.SOSRequest, error) {
	ticket, err := s.sosRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	updates := map[string]interface{}{
		"status":          models.SOSStatusAcknowledged,
		"acknowledged_by": operatorID,
		"updated_at":      now,
	}
	return s.transition(ctx, ticket, models.SOSStatusAcknowledged, updates)
}

func (s *sosService) BeginWork(ctx context.Context, operatorID, ticketID primitive.ObjectID) (*models.SOSRequest, error) {
	ticket, err := s.sosRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	updates := map[string]interface{}{
		"status":     models.SOSStatusInProgress,
		"updated_at": now,
	}
	return s.transition(ctx, ticket, models.SOSStatusInProgress, updates)
}

func (s *sosService) Resolve(ctx context.Context, actorID, ticketID primitive.ObjectID, note string) (*models.SOSRequest, error) {
	return s.terminate(ctx, actorID, ticketID, models.SOSStatusResolved, note)
}

func (s *sosService) MarkFalseAlarm(ctx context.Context, actorID, ticketID primitive.ObjectID, note string) (*models.SOSRequest, error) {
	return s.terminate(ctx, actorID, ticketID, models.SOSStatusFalseAlarm, note)
}

// ResolveOwn closes the caller's own ticket. Unlike the operator path the
// ticket is loaded with an ownership filter, so another user's ticket reads
// as not found.
func (s *sosService) ResolveOwn(ctx context.Context, ownerID, ticketID primitive.ObjectID, note string) (*models.SOSRequest, error) {
	ticket, err := s.sosRepo.GetByIDForUser(ctx, ticketID, ownerID)
	if err != nil {
		return nil, err
	}
	return s.terminateTicket(ctx, ownerID, ticket, models.SOSStatusResolved, note)
}

func (s *sosService) MarkFalseAlarmOwn(ctx context.Context, ownerID, ticketID primitive.ObjectID, note string) (*models.SOSRequest, error) {
	ticket, err := s.sosRepo.GetByIDForUser(ctx, ticketID, ownerID)
	if err != nil {
		return nil, err
	}
	return s.terminateTicket(ctx, ownerID, ticket, models.SOSStatusFalseAlarm, note)
}

func (s *sosService) Cancel(ctx context.Context, ownerID, ticketID primitive.ObjectID, reason string) (*models.SOSRequest, error) {
	ticket, err := s.sosRepo.GetByIDForUser(ctx, ticketID, ownerID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.IsTerminal() {
		s.maybeClearEmergency(ctx, ticket)
		return ticket, ErrAlreadyTerminal
	}
	// Owner cancellation is only an option while nobody has picked the
	// ticket up yet.
	if ticket.Status != models.SOSStatusNew {
		return nil, ErrStateConflict
	}

	now := s.clock.Now()
	description := ticket.Description
	if reason != "" {
		description = fmt.Sprintf("%s\nCancellation reason: %s", ticket.Description, reason)
	}
	updates := map[string]interface{}{
		"status":      models.SOSStatusFalseAlarm,
		"description": description,
		"resolved_at": now,
		"resolved_by": ownerID,
		"updated_at":  now,
	}

	resolved, err := s.transition(ctx, ticket, models.SOSStatusFalseAlarm, updates)
	if err != nil {
		return resolved, err
	}
	resolved.Description = description

	s.maybeClearEmergency(ctx, resolved)

	return resolved, nil
}

// terminate is the shared path for resolve and false-alarm, used by manual
// actors and by the auto-resolver alike.
func (s *sosService) terminate(ctx context.Context, actorID, ticketID primitive.ObjectID, target models.SOSStatus, note string) (*models.SOSRequest, error) {
	ticket, err := s.sosRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return s.terminateTicket(ctx, actorID, ticket, target, note)
}

func (s *sosService) terminateTicket(ctx context.Context, actorID primitive.ObjectID, ticket *models.SOSRequest, target models.SOSStatus, note string) (*models.SOSRequest, error) {
	now := s.clock.Now()
	updates := map[string]interface{}{
		"status":      target,
		"resolved_at": now,
		"resolved_by": actorID,
		"updated_at":  now,
	}
	if note != "" {
		updates["admin_comments"] = note
	}

	resolved, err := s.transition(ctx, ticket, target, updates)
	if err != nil {
		return resolved, err
	}
	resolved.ResolvedAt = &now
	resolved.ResolvedBy = &actorID
	if note != "" {
		resolved.AdminComments = note
	}

	s.maybeClearEmergency(ctx, resolved)

	return resolved, nil
}

// transition applies one conditional status write. Terminal tickets are
// reported as ErrAlreadyTerminal with the unchanged ticket; a lost race is
// re-read once so a concurrent terminal write also lands on AlreadyTerminal
// rather than a spurious conflict.
//
// Every AlreadyTerminal outcome re-checks the linked trip. The terminal
// write may have committed on an earlier attempt that died before clearing
// the emergency, and no reconciliation job revisits terminal tickets, so
// the retry is the repair path.
func (s *sosService) transition(ctx context.Context, ticket *models.SOSRequest, target models.SOSStatus, updates map[string]interface{}) (*models.SOSRequest, error) {
	if ticket.Status.IsTerminal() {
		s.maybeClearEmergency(ctx, ticket)
		return ticket, ErrAlreadyTerminal
	}
	if !ticket.Status.CanTransition(target) {
		return nil, ErrStateConflict
	}

	err := s.sosRepo.TransitionStatus(ctx, ticket.ID, ticket.Status, updates)
	if err == nil {
		ticket.Status = target
		return ticket, nil
	}

	if errors.Is(err, interfaces.ErrConflict) {
		current, rerr := s.sosRepo.GetByID(ctx, ticket.ID)
		if rerr == nil && current.Status.IsTerminal() {
			s.maybeClearEmergency(ctx, current)
			return current, ErrAlreadyTerminal
		}
		return nil, ErrStateConflict
	}

	return nil, storeErr(err)
}

// maybeClearEmergency returns the linked trip to the active state once the
// terminated ticket was the last open one referencing it. With several
// tickets open for one trip, the emergency holds until all of them are
// terminal; this is what prevents status flapping.
func (s *sosService) maybeClearEmergency(ctx context.Context, ticket *models.SOSRequest) {
	if ticket.TripID == nil {
		return
	}

	open, err := s.sosRepo.CountOpenForTrip(ctx, *ticket.TripID, ticket.ID)
	if err != nil {
		s.logger.WithEntityID(*ticket.TripID).WithError(err).Warn("failed to count open tickets for trip")
		return
	}
	if open > 0 {
		return
	}

	trip, err := s.tripRepo.GetByID(ctx, *ticket.TripID)
	if err != nil {
		s.logger.WithEntityID(*ticket.TripID).WithError(err).Warn("failed to load trip for emergency clearing")
		return
	}
	if trip.Status != models.TripStatusEmergency {
		return
	}

	if err := s.tripGuard.ClearEmergency(ctx, *ticket.TripID); err != nil {
		// Lost to another writer; whatever state the trip reached is legal.
		s.logger.WithEntityID(*ticket.TripID).WithError(err).Warn("failed to clear trip emergency")
	}
}

// resolveStale is the auto-resolver's entry: same path as a manual resolve,
// attributed to no actor, with a note identifying the automatic action.
func (s *sosService) resolveStale(ctx context.Context, ticketID primitive.ObjectID) (*models.SOSRequest, error) {
	return s.terminate(ctx, primitive.NilObjectID, ticketID, models.SOSStatusResolved, utils.SOSAutoResolveNote)
}
