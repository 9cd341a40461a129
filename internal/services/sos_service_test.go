package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"safetrails/internal/models"
	"safetrails/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (env *testEnv) triggerSOS(t *testing.T, userID primitive.ObjectID, tripID *primitive.ObjectID) *models.SOSRequest {
	t.Helper()

	ticket, err := env.sos.Trigger(context.Background(), userID, &TriggerSOSInput{
		Location:  "Mile 4, Cascade Ridge",
		Latitude:  47.61,
		Longitude: -122.31,
		TripID:    tripID,
		Contacts: []models.EmergencyContact{
			{Name: "Jordan", Phone: "+12065550100", Relation: "partner"},
		},
	})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	return ticket
}

func TestSOSTrigger_EscalatesActiveTrip(t *testing.T) {
	env := newTestEnv(t)
	userID := primitive.NewObjectID()

	trip := env.startTrip(t, userID)
	ticket := env.triggerSOS(t, userID, &trip.ID)

	if ticket.Status != models.SOSStatusNew {
		t.Errorf("Status = %s, want %s", ticket.Status, models.SOSStatusNew)
	}
	if got := env.tripRepo.status(trip.ID); got != models.TripStatusEmergency {
		t.Errorf("trip status = %s, want %s", got, models.TripStatusEmergency)
	}
	if dispatched := env.dispatcher.await(t); dispatched.ID != ticket.ID {
		t.Errorf("dispatched ticket = %s, want %s", dispatched.ID.Hex(), ticket.ID.Hex())
	}
	if !ticket.DispatchRequested {
		t.Error("DispatchRequested not recorded")
	}
}

func TestSOSTrigger_WithoutTripOrInactiveTrip(t *testing.T) {
	env := newTestEnv(t)
	userID := primitive.NewObjectID()

	// No trip at all.
	ticket := env.triggerSOS(t, userID, nil)
	if ticket.Status != models.SOSStatusNew {
		t.Errorf("Status = %s, want %s", ticket.Status, models.SOSStatusNew)
	}

	// Planned trip stays planned; the ticket still records.
	trip := env.createTrip(t, userID)
	ticket = env.triggerSOS(t, userID, &trip.ID)
	if ticket.Status != models.SOSStatusNew {
		t.Errorf("Status = %s, want %s", ticket.Status, models.SOSStatusNew)
	}
	if got := env.tripRepo.status(trip.ID); got != models.TripStatusPlanned {
		t.Errorf("trip status = %s, want %s", got, models.TripStatusPlanned)
	}
}

func TestSOSWorkflow_ResolveClearsEmergency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()
	operatorID := primitive.NewObjectID()

	trip := env.startTrip(t, userID)
	ticket := env.triggerSOS(t, userID, &trip.ID)

	acked, err := env.sos.Acknowledge(ctx, operatorID, ticket.ID)
	if err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if acked.Status != models.SOSStatusAcknowledged {
		t.Errorf("Status = %s, want %s", acked.Status, models.SOSStatusAcknowledged)
	}

	working, err := env.sos.BeginWork(ctx, operatorID, ticket.ID)
	if err != nil {
		t.Fatalf("BeginWork: %v", err)
	}
	if working.Status != models.SOSStatusInProgress {
		t.Errorf("Status = %s, want %s", working.Status, models.SOSStatusInProgress)
	}

	resolved, err := env.sos.Resolve(ctx, operatorID, ticket.ID, "hiker located")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Status != models.SOSStatusResolved {
		t.Errorf("Status = %s, want %s", resolved.Status, models.SOSStatusResolved)
	}
	if resolved.ResolvedAt == nil {
		t.Error("ResolvedAt not set")
	}

	// Last open ticket resolved, trip returns to active.
	if got := env.tripRepo.status(trip.ID); got != models.TripStatusActive {
		t.Errorf("trip status = %s, want %s", got, models.TripStatusActive)
	}
}

func TestSOSResolve_IdempotentOnTerminalTicket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()
	operatorID := primitive.NewObjectID()

	ticket := env.triggerSOS(t, userID, nil)
	if _, err := env.sos.Resolve(ctx, operatorID, ticket.ID, ""); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	again, err := env.sos.Resolve(ctx, operatorID, ticket.ID, "")
	if !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("second Resolve: err = %v, want ErrAlreadyTerminal", err)
	}
	if again == nil || again.Status != models.SOSStatusResolved {
		t.Errorf("returned ticket = %+v, want resolved ticket", again)
	}

	// A terminal ticket also rejects non-terminal transitions idempotently.
	if _, err := env.sos.Acknowledge(ctx, operatorID, ticket.ID); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("Acknowledge after resolve: err = %v, want ErrAlreadyTerminal", err)
	}
}

func TestSOSBeginWork_SkippingAcknowledgeRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()
	operatorID := primitive.NewObjectID()

	ticket := env.triggerSOS(t, userID, nil)

	if _, err := env.sos.BeginWork(ctx, operatorID, ticket.ID); !errors.Is(err, ErrStateConflict) {
		t.Errorf("BeginWork on new ticket: err = %v, want ErrStateConflict", err)
	}
	if got := env.sosRepo.status(ticket.ID); got != models.SOSStatusNew {
		t.Errorf("status = %s, want %s", got, models.SOSStatusNew)
	}
}

func TestSOSMultipleTickets_EmergencyHoldsUntilAllTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()
	operatorID := primitive.NewObjectID()

	trip := env.startTrip(t, userID)
	first := env.triggerSOS(t, userID, &trip.ID)
	second := env.triggerSOS(t, userID, &trip.ID)

	if _, err := env.sos.Resolve(ctx, operatorID, first.ID, ""); err != nil {
		t.Fatalf("Resolve first: %v", err)
	}
	// One ticket still open, emergency holds.
	if got := env.tripRepo.status(trip.ID); got != models.TripStatusEmergency {
		t.Errorf("trip status after first resolve = %s, want %s", got, models.TripStatusEmergency)
	}

	if _, err := env.sos.MarkFalseAlarm(ctx, operatorID, second.ID, ""); err != nil {
		t.Fatalf("MarkFalseAlarm second: %v", err)
	}
	if got := env.tripRepo.status(trip.ID); got != models.TripStatusActive {
		t.Errorf("trip status after last resolve = %s, want %s", got, models.TripStatusActive)
	}
}

func TestSOSOwnerResolve_ClosesOwnTicket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()
	operatorID := primitive.NewObjectID()
	stranger := primitive.NewObjectID()

	trip := env.startTrip(t, userID)
	ticket := env.triggerSOS(t, userID, &trip.ID)
	if _, err := env.sos.Acknowledge(ctx, operatorID, ticket.ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	// Another user's ticket reads as not found on the owner path.
	if _, err := env.sos.ResolveOwn(ctx, stranger, ticket.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("ResolveOwn as stranger: err = %v, want ErrNotFound", err)
	}

	// The owner can close their own episode even after an operator picked
	// it up, when cancellation is no longer available.
	resolved, err := env.sos.ResolveOwn(ctx, userID, ticket.ID, "made it back to the trailhead")
	if err != nil {
		t.Fatalf("ResolveOwn: %v", err)
	}
	if resolved.Status != models.SOSStatusResolved {
		t.Errorf("Status = %s, want %s", resolved.Status, models.SOSStatusResolved)
	}
	if got := env.tripRepo.status(trip.ID); got != models.TripStatusActive {
		t.Errorf("trip status = %s, want %s", got, models.TripStatusActive)
	}
}

func TestSOSOwnerFalseAlarm_AfterAcknowledge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()
	operatorID := primitive.NewObjectID()

	ticket := env.triggerSOS(t, userID, nil)
	if _, err := env.sos.Acknowledge(ctx, operatorID, ticket.ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}

	closed, err := env.sos.MarkFalseAlarmOwn(ctx, userID, ticket.ID, "pocket trigger")
	if err != nil {
		t.Fatalf("MarkFalseAlarmOwn: %v", err)
	}
	if closed.Status != models.SOSStatusFalseAlarm {
		t.Errorf("Status = %s, want %s", closed.Status, models.SOSStatusFalseAlarm)
	}
}

func TestSOSResolveRetry_RepairsStrandedEmergency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()
	operatorID := primitive.NewObjectID()

	trip := env.startTrip(t, userID)
	ticket := env.triggerSOS(t, userID, &trip.ID)

	// The terminal write lands directly in the store, as if a previous
	// resolve died after committing but before clearing the trip.
	now := env.clock.Now()
	if err := env.sosRepo.TransitionStatus(ctx, ticket.ID, models.SOSStatusNew, map[string]interface{}{
		"status":      models.SOSStatusResolved,
		"resolved_at": now,
		"updated_at":  now,
	}); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if got := env.tripRepo.status(trip.ID); got != models.TripStatusEmergency {
		t.Fatalf("trip status = %s, want %s", got, models.TripStatusEmergency)
	}

	// The retried resolve is still an idempotent no-op but repairs the trip.
	again, err := env.sos.Resolve(ctx, operatorID, ticket.ID, "")
	if !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("Resolve retry: err = %v, want ErrAlreadyTerminal", err)
	}
	if again == nil || again.Status != models.SOSStatusResolved {
		t.Errorf("returned ticket = %+v, want resolved ticket", again)
	}
	if got := env.tripRepo.status(trip.ID); got != models.TripStatusActive {
		t.Errorf("trip status after retry = %s, want %s", got, models.TripStatusActive)
	}
}

func TestSOSStatsOverview_GroupsAndRecent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()
	operatorID := primitive.NewObjectID()
	otherUser := primitive.NewObjectID()

	first := env.triggerSOS(t, userID, nil)
	env.clock.Advance(time.Minute)
	env.triggerSOS(t, userID, nil)
	env.clock.Advance(time.Minute)
	last := env.triggerSOS(t, userID, nil)
	env.triggerSOS(t, otherUser, nil)

	if _, err := env.sos.Resolve(ctx, operatorID, first.ID, ""); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	stats, err := env.sos.GetStatsOverview(ctx, userID)
	if err != nil {
		t.Fatalf("GetStatsOverview: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if got := stats.ByStatus[models.SOSStatusNew]; got != 2 {
		t.Errorf("ByStatus[new] = %d, want 2", got)
	}
	if got := stats.ByStatus[models.SOSStatusResolved]; got != 1 {
		t.Errorf("ByStatus[resolved] = %d, want 1", got)
	}
	if got := stats.ByType[models.SOSTypeGeneral]; got != 3 {
		t.Errorf("ByType[general] = %d, want 3", got)
	}
	if len(stats.Recent) != 3 {
		t.Fatalf("Recent = %d tickets, want 3", len(stats.Recent))
	}
	if stats.Recent[0].ID != last.ID {
		t.Errorf("Recent[0] = %s, want the newest ticket %s", stats.Recent[0].ID.Hex(), last.ID.Hex())
	}
}

func TestSOSTrigger_FirstActionCreatesProfilePosition(t *testing.T) {
	env := newTestEnv(t)
	userID := primitive.NewObjectID()

	// No trip and no prior profile; the trigger itself must leave a
	// last-known position behind.
	env.triggerSOS(t, userID, nil)

	profile, err := env.safetyRepo.GetByUserID(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetByUserID: %v", err)
	}
	if profile.LastKnownPosition == nil {
		t.Fatal("LastKnownPosition not set")
	}
	if profile.LastKnownPosition.Latitude != 47.61 || profile.LastKnownPosition.Longitude != -122.31 {
		t.Errorf("position = (%v, %v), want (47.61, -122.31)",
			profile.LastKnownPosition.Latitude, profile.LastKnownPosition.Longitude)
	}
	if profile.SafetyScore != utils.SafetyScoreMax {
		t.Errorf("SafetyScore = %d, want %d", profile.SafetyScore, utils.SafetyScoreMax)
	}
}

func TestSOSCancel_OwnerOnlyWhileNew(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()
	operatorID := primitive.NewObjectID()
	stranger := primitive.NewObjectID()

	ticket := env.triggerSOS(t, userID, nil)

	if _, err := env.sos.Cancel(ctx, stranger, ticket.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel as stranger: err = %v, want ErrNotFound", err)
	}

	cancelled, err := env.sos.Cancel(ctx, userID, ticket.ID, "pressed by accident")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != models.SOSStatusFalseAlarm {
		t.Errorf("Status = %s, want %s", cancelled.Status, models.SOSStatusFalseAlarm)
	}

	// Once an operator picked a ticket up, the owner can no longer cancel.
	picked := env.triggerSOS(t, userID, nil)
	if _, err := env.sos.Acknowledge(ctx, operatorID, picked.ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if _, err := env.sos.Cancel(ctx, userID, picked.ID, ""); !errors.Is(err, ErrStateConflict) {
		t.Errorf("Cancel after acknowledge: err = %v, want ErrStateConflict", err)
	}
}

func TestSOSTrigger_SnapshotFrozenAtCreation(t *testing.T) {
	env := newTestEnv(t)
	userID := primitive.NewObjectID()

	contacts := []models.EmergencyContact{{Name: "Jordan", Phone: "+12065550100"}}
	ticket, err := env.sos.Trigger(context.Background(), userID, &TriggerSOSInput{
		Location:  "trailhead",
		Latitude:  47.6,
		Longitude: -122.3,
		Contacts:  contacts,
	})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	// Mutating the caller's slice must not reach the stored snapshot.
	contacts[0].Phone = "+19995550000"
	stored, err := env.sosRepo.GetByID(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.ContactSnapshot[0].Phone != "+12065550100" {
		t.Errorf("snapshot phone = %s, want +12065550100", stored.ContactSnapshot[0].Phone)
	}
}

func TestSOSAutoResolve_StaleTicketWithNote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()

	trip := env.startTrip(t, userID)
	ticket := env.triggerSOS(t, userID, &trip.ID)

	env.clock.Advance(80 * time.Hour)

	svc := env.sos.(*sosService)
	resolved, err := svc.resolveStale(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("resolveStale: %v", err)
	}
	if resolved.Status != models.SOSStatusResolved {
		t.Errorf("Status = %s, want %s", resolved.Status, models.SOSStatusResolved)
	}
	if resolved.AdminComments != utils.SOSAutoResolveNote {
		t.Errorf("AdminComments = %q, want %q", resolved.AdminComments, utils.SOSAutoResolveNote)
	}
	if got := env.tripRepo.status(trip.ID); got != models.TripStatusActive {
		t.Errorf("trip status = %s, want %s", got, models.TripStatusActive)
	}

	// Auto-resolving an already terminal ticket is the usual no-op.
	if _, err := svc.resolveStale(ctx, ticket.ID); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("second resolveStale: err = %v, want ErrAlreadyTerminal", err)
	}
}
