package services

// In-memory repositories with the same conditional-write semantics as the
// MongoDB implementations, used by the lifecycle and scheduler tests.

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"safetrails/internal/models"
	"safetrails/internal/repositories/interfaces"
	"safetrails/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memTripRepo struct {
	mu    sync.Mutex
	trips map[primitive.ObjectID]*models.Trip

	failNext error
}

func newMemTripRepo() *memTripRepo {
	return &memTripRepo{trips: make(map[primitive.ObjectID]*models.Trip)}
}

func (r *memTripRepo) takeFailure() error {
	err := r.failNext
	r.failNext = nil
	return err
}

func (r *memTripRepo) Create(ctx context.Context, trip *models.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	if trip.ID.IsZero() {
		trip.ID = primitive.NewObjectID()
	}
	clone := *trip
	r.trips[trip.ID] = &clone
	return nil
}

func (r *memTripRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return nil, err
	}
	trip, ok := r.trips[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	clone := *trip
	return &clone, nil
}

func (r *memTripRepo) GetByIDForUser(ctx context.Context, id, userID primitive.ObjectID) (*models.Trip, error) {
	trip, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if trip.UserID != userID {
		return nil, interfaces.ErrNotFound
	}
	return trip, nil
}

func (r *memTripRepo) GetByUserID(ctx context.Context, userID primitive.ObjectID, status models.TripStatus, params *utils.PaginationParams) ([]*models.Trip, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var trips []*models.Trip
	for _, trip := range r.trips {
		if trip.UserID != userID {
			continue
		}
		if status != "" && trip.Status != status {
			continue
		}
		clone := *trip
		trips = append(trips, &clone)
	}
	return trips, int64(len(trips)), nil
}

func (r *memTripRepo) TransitionStatus(ctx context.Context, id primitive.ObjectID, from models.TripStatus, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	trip, ok := r.trips[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	if trip.Status != from {
		return interfaces.ErrConflict
	}
	applyTripUpdates(trip, updates)
	return nil
}

func applyTripUpdates(trip *models.Trip, updates map[string]interface{}) {
	for key, value := range updates {
		switch key {
		case "status":
			trip.Status = value.(models.TripStatus)
		case "actual_start_time":
			t := value.(time.Time)
			trip.ActualStartTime = &t
		case "actual_end_time":
			t := value.(time.Time)
			trip.ActualEndTime = &t
		case "description":
			trip.Description = value.(string)
		case "updated_at":
			trip.UpdatedAt = value.(time.Time)
		}
	}
}

func (r *memTripRepo) GetActiveTrips(ctx context.Context, limit int64) ([]*models.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return nil, err
	}
	var trips []*models.Trip
	for _, trip := range r.trips {
		if trip.Status != models.TripStatusActive {
			continue
		}
		clone := *trip
		trips = append(trips, &clone)
	}
	sort.Slice(trips, func(i, j int) bool { return trips[i].ID.Hex() < trips[j].ID.Hex() })
	if limit > 0 && int64(len(trips)) > limit {
		trips = trips[:limit]
	}
	return trips, nil
}

func (r *memTripRepo) CountCompletedByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, trip := range r.trips {
		if trip.UserID == userID && trip.Status == models.TripStatusCompleted {
			count++
		}
	}
	return count, nil
}

func (r *memTripRepo) status(id primitive.ObjectID) models.TripStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trips[id].Status
}

type memLocationRepo struct {
	mu      sync.Mutex
	updates []*models.LocationUpdate

	failNext error
}

func newMemLocationRepo() *memLocationRepo {
	return &memLocationRepo{}
}

func (r *memLocationRepo) Create(ctx context.Context, update *models.LocationUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	if update.ID.IsZero() {
		update.ID = primitive.NewObjectID()
	}
	clone := *update
	r.updates = append(r.updates, &clone)
	return nil
}

func (r *memLocationRepo) GetLatestForTrip(ctx context.Context, tripID primitive.ObjectID) (*models.LocationUpdate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.LocationUpdate
	for _, update := range r.updates {
		if update.TripID != tripID {
			continue
		}
		if latest == nil || update.Timestamp.After(latest.Timestamp) {
			latest = update
		}
	}
	if latest == nil {
		return nil, interfaces.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (r *memLocationRepo) GetTripHistory(ctx context.Context, tripID primitive.ObjectID, limit int64) ([]*models.LocationUpdate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var history []*models.LocationUpdate
	for _, update := range r.updates {
		if update.TripID != tripID {
			continue
		}
		clone := *update
		history = append(history, &clone)
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Timestamp.Before(history[j].Timestamp) })
	if limit > 0 && int64(len(history)) > limit {
		history = history[:limit]
	}
	return history, nil
}

func (r *memLocationRepo) CountForTrip(ctx context.Context, tripID primitive.ObjectID) (int64, error) {
	history, _ := r.GetTripHistory(ctx, tripID, 0)
	return int64(len(history)), nil
}

type memSOSRepo struct {
	mu      sync.Mutex
	tickets map[primitive.ObjectID]*models.SOSRequest
}

func newMemSOSRepo() *memSOSRepo {
	return &memSOSRepo{tickets: make(map[primitive.ObjectID]*models.SOSRequest)}
}

func (r *memSOSRepo) Create(ctx context.Context, sos *models.SOSRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sos.ID.IsZero() {
		sos.ID = primitive.NewObjectID()
	}
	clone := *sos
	r.tickets[sos.ID] = &clone
	return nil
}

func (r *memSOSRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.SOSRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	clone := *ticket
	return &clone, nil
}

func (r *memSOSRepo) GetByIDForUser(ctx context.Context, id, userID primitive.ObjectID) (*models.SOSRequest, error) {
	ticket, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != userID {
		return nil, interfaces.ErrNotFound
	}
	return ticket, nil
}

func (r *memSOSRepo) GetByUserID(ctx context.Context, userID primitive.ObjectID, status models.SOSStatus, params *utils.PaginationParams) ([]*models.SOSRequest, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tickets []*models.SOSRequest
	for _, ticket := range r.tickets {
		if ticket.UserID != userID {
			continue
		}
		if status != "" && ticket.Status != status {
			continue
		}
		clone := *ticket
		tickets = append(tickets, &clone)
	}
	return tickets, int64(len(tickets)), nil
}

func (r *memSOSRepo) TransitionStatus(ctx context.Context, id primitive.ObjectID, from models.SOSStatus, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	if ticket.Status != from {
		return interfaces.ErrConflict
	}
	applySOSUpdates(ticket, updates)
	return nil
}

func applySOSUpdates(ticket *models.SOSRequest, updates map[string]interface{}) {
	for key, value := range updates {
		switch key {
		case "status":
			ticket.Status = value.(models.SOSStatus)
		case "acknowledged_by":
			id := value.(primitive.ObjectID)
			ticket.AcknowledgedBy = &id
		case "resolved_by":
			id := value.(primitive.ObjectID)
			ticket.ResolvedBy = &id
		case "resolved_at":
			t := value.(time.Time)
			ticket.ResolvedAt = &t
		case "admin_comments":
			ticket.AdminComments = value.(string)
		case "description":
			ticket.Description = value.(string)
		case "dispatch_requested":
			ticket.DispatchRequested = value.(bool)
		case "updated_at":
			ticket.UpdatedAt = value.(time.Time)
		}
	}
}

func (r *memSOSRepo) CountOpenForTrip(ctx context.Context, tripID primitive.ObjectID, excludeID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, ticket := range r.tickets {
		if ticket.TripID == nil || *ticket.TripID != tripID {
			continue
		}
		if ticket.ID == excludeID {
			continue
		}
		if ticket.Status.IsOpen() {
			count++
		}
	}
	return count, nil
}

func (r *memSOSRepo) CountByTrip(ctx context.Context, tripID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, ticket := range r.tickets {
		if ticket.TripID != nil && *ticket.TripID == tripID {
			count++
		}
	}
	return count, nil
}

func (r *memSOSRepo) GetStaleOpen(ctx context.Context, updatedBefore time.Time, limit int64) ([]*models.SOSRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tickets []*models.SOSRequest
	for _, ticket := range r.tickets {
		if ticket.Status.IsTerminal() {
			continue
		}
		if !ticket.UpdatedAt.Before(updatedBefore) {
			continue
		}
		clone := *ticket
		tickets = append(tickets, &clone)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].UpdatedAt.Before(tickets[j].UpdatedAt) })
	if limit > 0 && int64(len(tickets)) > limit {
		tickets = tickets[:limit]
	}
	return tickets, nil
}

func (r *memSOSRepo) CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, ticket := range r.tickets {
		if ticket.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *memSOSRepo) CountByStatusType(ctx context.Context, userID primitive.ObjectID) ([]interfaces.SOSStatusTypeCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buckets := make(map[[2]string]int64)
	for _, ticket := range r.tickets {
		if ticket.UserID != userID {
			continue
		}
		buckets[[2]string{string(ticket.Status), string(ticket.SOSType)}]++
	}
	var counts []interfaces.SOSStatusTypeCount
	for key, count := range buckets {
		counts = append(counts, interfaces.SOSStatusTypeCount{
			Status:  models.SOSStatus(key[0]),
			SOSType: models.SOSType(key[1]),
			Count:   count,
		})
	}
	return counts, nil
}

func (r *memSOSRepo) GetRecentByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]*models.SOSRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tickets []*models.SOSRequest
	for _, ticket := range r.tickets {
		if ticket.UserID != userID {
			continue
		}
		clone := *ticket
		tickets = append(tickets, &clone)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].CreatedAt.After(tickets[j].CreatedAt) })
	if limit > 0 && int64(len(tickets)) > limit {
		tickets = tickets[:limit]
	}
	return tickets, nil
}

func (r *memSOSRepo) status(id primitive.ObjectID) models.SOSStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tickets[id].Status
}

type memSafetyRepo struct {
	mu       sync.Mutex
	profiles map[primitive.ObjectID]*models.UserSafetyProfile
}

func newMemSafetyRepo() *memSafetyRepo {
	return &memSafetyRepo{profiles: make(map[primitive.ObjectID]*models.UserSafetyProfile)}
}

func (r *memSafetyRepo) GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.UserSafetyProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	profile, ok := r.profiles[userID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	clone := *profile
	return &clone, nil
}

func (r *memSafetyRepo) EnsureProfile(ctx context.Context, userID primitive.ObjectID) (*models.UserSafetyProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if profile, ok := r.profiles[userID]; ok {
		clone := *profile
		return &clone, nil
	}
	profile := &models.UserSafetyProfile{
		ID:          primitive.NewObjectID(),
		UserID:      userID,
		SafetyScore: utils.SafetyScoreMax,
	}
	r.profiles[userID] = profile
	clone := *profile
	return &clone, nil
}

func (r *memSafetyRepo) UpdateLastKnownPosition(ctx context.Context, userID primitive.ObjectID, lat, lng float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	profile, ok := r.profiles[userID]
	if !ok {
		profile = &models.UserSafetyProfile{
			ID:          primitive.NewObjectID(),
			UserID:      userID,
			SafetyScore: utils.SafetyScoreMax,
		}
		r.profiles[userID] = profile
	}
	profile.LastKnownPosition = &models.LastKnownPosition{Latitude: lat, Longitude: lng, UpdatedAt: at}
	profile.UpdatedAt = at
	return nil
}

func (r *memSafetyRepo) UpdateSafetyScore(ctx context.Context, userID primitive.ObjectID, score int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	profile, ok := r.profiles[userID]
	if !ok {
		return interfaces.ErrNotFound
	}
	profile.SafetyScore = score
	profile.LastRecomputedAt = &at
	profile.UpdatedAt = at
	return nil
}

func (r *memSafetyRepo) ListUserIDs(ctx context.Context, afterID primitive.ObjectID, limit int64) ([]primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []primitive.ObjectID
	for userID := range r.profiles {
		if afterID != primitive.NilObjectID && userID.Hex() <= afterID.Hex() {
			continue
		}
		ids = append(ids, userID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Hex() < ids[j].Hex() })
	if limit > 0 && int64(len(ids)) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type memCommunityCounter struct {
	mu     sync.Mutex
	counts map[primitive.ObjectID]int64
}

func newMemCommunityCounter() *memCommunityCounter {
	return &memCommunityCounter{counts: make(map[primitive.ObjectID]int64)}
}

func (r *memCommunityCounter) CountPostsByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[userID], nil
}

// recordingDispatcher captures dispatched tickets for assertions. Dispatch
// runs on its own goroutine, so assertions go through await.
type recordingDispatcher struct {
	calls chan *models.SOSRequest
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{calls: make(chan *models.SOSRequest, 16)}
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, ticket *models.SOSRequest) error {
	d.calls <- ticket
	return nil
}

func (d *recordingDispatcher) await(t *testing.T) *models.SOSRequest {
	t.Helper()
	select {
	case ticket := <-d.calls:
		return ticket
	case <-time.After(2 * time.Second):
		t.Fatal("contact dispatch never requested")
		return nil
	}
}
