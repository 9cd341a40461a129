package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"safetrails/internal/config"
	"safetrails/internal/models"
	"safetrails/internal/repositories/interfaces"
	"safetrails/pkg/clock"
	"safetrails/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SchedulerService runs the four reconciliation jobs on independent timers:
// location backfill, stale-trip reaping, SOS auto-resolution and safety-score
// recomputation. Jobs share a discipline: scan a bounded working set, apply
// per-entity conditional writes, log a pass summary, and never let one bad
// entity abort the pass. A store-wide failure aborts the pass; the next tick
// retries.
type SchedulerService interface {
	Start(ctx context.Context)
	Stop()
	Health() map[string]interface{}
}

// RunLocker is the optional cross-replica run-lock (redis SET NX in
// production). The in-process TryLock below already prevents overlapping
// passes within one process.
type RunLocker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
}

type sosResolver interface {
	resolveStale(ctx context.Context, ticketID primitive.ObjectID) (*models.SOSRequest, error)
}

type schedulerService struct {
	cfg          *config.SchedulerConfig
	tripRepo     interfaces.TripRepository
	locationRepo interfaces.LocationRepository
	sosRepo      interfaces.SOSRepository
	safetyRepo   interfaces.SafetyProfileRepository
	community    interfaces.CommunityCounter
	resolver     sosResolver
	locker       RunLocker
	clock        clock.Clock
	logger       *logger.Logger

	jobs []*job
	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context)

	mu        sync.Mutex // run-lock: held for the duration of one pass
	lastRun   time.Time
	lastState string
	stateMu   sync.Mutex
}

func NewSchedulerService(
	cfg *config.SchedulerConfig,
	tripRepo interfaces.TripRepository,
	locationRepo interfaces.LocationRepository,
	sosRepo interfaces.SOSRepository,
	safetyRepo interfaces.SafetyProfileRepository,
	community interfaces.CommunityCounter,
	sosService SOSService,
	locker RunLocker,
	clk clock.Clock,
	log *logger.Logger,
) SchedulerService {
	s := &schedulerService{
		cfg:          cfg,
		tripRepo:     tripRepo,
		locationRepo: locationRepo,
		sosRepo:      sosRepo,
		safetyRepo:   safetyRepo,
		community:    community,
		resolver:     sosService.(sosResolver),
		locker:       locker,
		clock:        clk,
		logger:       log,
		stop:         make(chan struct{}),
	}

	s.jobs = []*job{
		{name: "location_backfill", interval: cfg.LocationBackfillInterval, run: s.runLocationBackfill},
		{name: "stale_trip_reaper", interval: cfg.StaleTripReapInterval, run: s.runStaleTripReaper},
		{name: "sos_auto_resolver", interval: cfg.SOSAutoResolveInterval, run: s.runSOSAutoResolver},
		{name: "safety_score_recompute", interval: cfg.SafetyScoreInterval, run: s.runSafetyScoreRecompute},
	}

	return s
}

func (s *schedulerService) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.logger.WithField("jobs", len(s.jobs)).Info("reconciliation scheduler started")
}

func (s *schedulerService) loop(ctx context.Context, j *job) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C():
			s.runJob(ctx, j)
		}
	}
}

func (s *schedulerService) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// runJob executes one pass under the job's run-lock. If the previous pass of
// the same job is still running, this tick is skipped rather than overlapped.
func (s *schedulerService) runJob(ctx context.Context, j *job) {
	if !j.mu.TryLock() {
		s.logger.WithField("job", j.name).Warn("previous pass still running, skipping tick")
		return
	}
	defer j.mu.Unlock()

	if s.locker != nil {
		acquired, err := s.locker.AcquireLock(ctx, "scheduler:"+j.name, j.interval)
		if err != nil {
			s.logger.WithField("job", j.name).WithError(err).Warn("run-lock unavailable, skipping tick")
			return
		}
		if !acquired {
			return
		}
		defer s.locker.ReleaseLock(ctx, "scheduler:"+j.name)
	}

	j.setState(s.clock.Now(), "running")
	j.run(ctx)
	j.setState(s.clock.Now(), "idle")
}

func (j *job) setState(at time.Time, state string) {
	j.stateMu.Lock()
	defer j.stateMu.Unlock()
	j.lastRun = at
	j.lastState = state
}

func (s *schedulerService) Health() map[string]interface{} {
	health := make(map[string]interface{}, len(s.jobs))
	for _, j := range s.jobs {
		j.stateMu.Lock()
		entry := map[string]interface{}{
			"interval": j.interval.String(),
			"state":    j.lastState,
		}
		if !j.lastRun.IsZero() {
			entry["last_run"] = j.lastRun
		}
		j.stateMu.Unlock()
		health[j.name] = entry
	}
	return health
}

// runLocationBackfill appends a sample from the owner's last-known position
// for every active trip whose trail has gone quiet for longer than the
// backfill interval, guaranteeing a trail even when the client under-reports.
func (s *schedulerService) runLocationBackfill(ctx context.Context) {
	log := s.logger.WithField("job", "location_backfill")

	trips, err := s.tripRepo.GetActiveTrips(ctx, int64(s.cfg.BatchLimit))
	if err != nil {
		log.WithError(err).Error("failed to scan active trips, aborting pass")
		return
	}

	now := s.clock.Now()
	threshold := now.Add(-s.cfg.LocationBackfillInterval)
	var created, skipped, failed int

	for _, trip := range trips {
		ok, err := s.backfillTrip(ctx, trip, threshold, now)
		if err != nil {
			failed++
			log.WithEntityID(trip.ID).WithError(err).Warn("backfill failed for trip")
			continue
		}
		if ok {
			created++
		} else {
			skipped++
		}
	}

	log.WithFields(map[string]interface{}{
		"scanned": len(trips),
		"created": created,
		"skipped": skipped,
		"failed":  failed,
	}).Info("location backfill pass complete")
}

func (s *schedulerService) backfillTrip(ctx context.Context, trip *models.Trip, threshold, now time.Time) (bool, error) {
	profile, err := s.safetyRepo.GetByUserID(ctx, trip.UserID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if profile.LastKnownPosition == nil {
		return false, nil
	}

	latest, err := s.locationRepo.GetLatestForTrip(ctx, trip.ID)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return false, err
	}
	if latest != nil && latest.Timestamp.After(threshold) {
		return false, nil
	}

	update := &models.LocationUpdate{
		TripID:    trip.ID,
		UserID:    trip.UserID,
		Latitude:  profile.LastKnownPosition.Latitude,
		Longitude: profile.LastKnownPosition.Longitude,
		Source:    models.LocationSourceBackfill,
		Timestamp: now,
		CreatedAt: now,
	}
	if err := s.locationRepo.Create(ctx, update); err != nil {
		return false, err
	}
	return true, nil
}

// runStaleTripReaper completes active trips whose trail (or start time, when
// no sample exists) is older than the staleness window. This reclaims trips
// abandoned by clients that crashed or lost connectivity without calling end.
func (s *schedulerService) runStaleTripReaper(ctx context.Context) {
	log := s.logger.WithField("job", "stale_trip_reaper")

	trips, err := s.tripRepo.GetActiveTrips(ctx, int64(s.cfg.BatchLimit))
	if err != nil {
		log.WithError(err).Error("failed to scan active trips, aborting pass")
		return
	}

	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.TripStalenessWindow)
	var reaped, fresh, failed int

	for _, trip := range trips {
		stale, err := s.isTripStale(ctx, trip, cutoff)
		if err != nil {
			failed++
			log.WithEntityID(trip.ID).WithError(err).Warn("staleness check failed for trip")
			continue
		}
		if !stale {
			fresh++
			continue
		}

		updates := map[string]interface{}{
			"status":          models.TripStatusCompleted,
			"actual_end_time": now,
			"updated_at":      now,
		}
		err = s.tripRepo.TransitionStatus(ctx, trip.ID, models.TripStatusActive, updates)
		if err != nil {
			if errors.Is(err, interfaces.ErrConflict) {
				// The owner ended or cancelled it first. Their write wins.
				fresh++
				continue
			}
			failed++
			log.WithEntityID(trip.ID).WithError(err).Warn("failed to reap trip")
			continue
		}
		reaped++
	}

	log.WithFields(map[string]interface{}{
		"scanned": len(trips),
		"reaped":  reaped,
		"fresh":   fresh,
		"failed":  failed,
	}).Info("stale trip pass complete")
}

func (s *schedulerService) isTripStale(ctx context.Context, trip *models.Trip, cutoff time.Time) (bool, error) {
	latest, err := s.locationRepo.GetLatestForTrip(ctx, trip.ID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			if trip.ActualStartTime == nil {
				return false, nil
			}
			return trip.ActualStartTime.Before(cutoff), nil
		}
		return false, err
	}
	return latest.Timestamp.Before(cutoff), nil
}

// runSOSAutoResolver terminates open tickets with no update inside the
// inactivity window, walking the same resolution path as a manual resolve so
// trip emergency clearing applies.
func (s *schedulerService) runSOSAutoResolver(ctx context.Context) {
	log := s.logger.WithField("job", "sos_auto_resolver")

	cutoff := s.clock.Now().Add(-s.cfg.SOSInactivityWindow)
	tickets, err := s.sosRepo.GetStaleOpen(ctx, cutoff, int64(s.cfg.BatchLimit))
	if err != nil {
		log.WithError(err).Error("failed to scan stale tickets, aborting pass")
		return
	}

	var resolved, skipped, failed int
	for _, ticket := range tickets {
		_, err := s.resolver.resolveStale(ctx, ticket.ID)
		switch {
		case err == nil:
			resolved++
		case errors.Is(err, ErrAlreadyTerminal):
			skipped++
		default:
			failed++
			log.WithEntityID(ticket.ID).WithError(err).Warn("auto-resolution failed for ticket")
		}
	}

	log.WithFields(map[string]interface{}{
		"scanned":  len(tickets),
		"resolved": resolved,
		"skipped":  skipped,
		"failed":   failed,
	}).Info("sos auto-resolution pass complete")
}

// runSafetyScoreRecompute rewrites every user's safety score from their
// ticket, community and completed-trip history. Unchanged scores are not
// rewritten.
func (s *schedulerService) runSafetyScoreRecompute(ctx context.Context) {
	log := s.logger.WithField("job", "safety_score_recompute")

	var scanned, updated, unchanged, failed int
	afterID := primitive.NilObjectID

	for {
		userIDs, err := s.safetyRepo.ListUserIDs(ctx, afterID, int64(s.cfg.BatchLimit))
		if err != nil {
			log.WithError(err).Error("failed to page safety profiles, aborting pass")
			return
		}
		if len(userIDs) == 0 {
			break
		}

		for _, userID := range userIDs {
			scanned++
			changed, err := s.recomputeUserScore(ctx, userID)
			if err != nil {
				failed++
				log.WithUserID(userID).WithError(err).Warn("score recomputation failed for user")
				continue
			}
			if changed {
				updated++
			} else {
				unchanged++
			}
		}

		afterID = userIDs[len(userIDs)-1]
	}

	log.WithFields(map[string]interface{}{
		"scanned":   scanned,
		"updated":   updated,
		"unchanged": unchanged,
		"failed":    failed,
	}).Info("safety score pass complete")
}

func (s *schedulerService) recomputeUserScore(ctx context.Context, userID primitive.ObjectID) (bool, error) {
	profile, err := s.safetyRepo.GetByUserID(ctx, userID)
	if err != nil {
		return false, err
	}

	sosCount, err := s.sosRepo.CountByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	postCount, err := s.community.CountPostsByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	tripCount, err := s.tripRepo.CountCompletedByUser(ctx, userID)
	if err != nil {
		return false, err
	}

	score := ComputeSafetyScore(sosCount, postCount, tripCount)
	if score == profile.SafetyScore {
		return false, nil
	}

	if err := s.safetyRepo.UpdateSafetyScore(ctx, userID, score, s.clock.Now()); err != nil {
		return false, err
	}
	return true, nil
}
