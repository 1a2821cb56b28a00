package trip

import (
	"context"
	"errors"
	"math"
	"time"

	"backend-tanquecheio/internal/shared/apperr"
	"backend-tanquecheio/internal/shared/fuel"
	"backend-tanquecheio/internal/shared/geo"

	"github.com/google/uuid"
)

// sameInstantJitterKm is how far two fixes with the same timestamp may be
// apart before the pair counts as an impossible jump.
const sameInstantJitterKm = 0.05

// Policy decides what Start does when the user already has an active trip.
type Policy string

const (
	PolicyReplaceActive  Policy = "replace"
	PolicyRejectIfActive Policy = "reject"
)

func ParsePolicy(s string) Policy {
	if Policy(s) == PolicyRejectIfActive {
		return PolicyRejectIfActive
	}
	return PolicyReplaceActive
}

// Metrics receives trip lifecycle and sample outcomes.
type Metrics interface {
	TripStarted()
	TripCompleted()
	SampleAccepted()
	SampleRejected(reason string)
}

type nopMetrics struct{}

func (nopMetrics) TripStarted()          {}
func (nopMetrics) TripCompleted()        {}
func (nopMetrics) SampleAccepted()       {}
func (nopMetrics) SampleRejected(string) {}

type Options struct {
	Policy Policy
	// MaxSpeedKmh rejects samples whose implied speed is above it. Zero disables the check.
	MaxSpeedKmh float64
	Now         func() time.Time
	NewID       func() string
	Metrics     Metrics
}

// Tracker owns trip state. Calls for the same trip are serialized; calls for
// different trips run in parallel.
type Tracker struct {
	store Store
	locks *keyedMutex
	opts  Options
}

func NewTracker(store Store, opts Options) *Tracker {
	if opts.Policy == "" {
		opts.Policy = PolicyReplaceActive
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	return &Tracker{store: store, locks: newKeyedMutex(), opts: opts}
}

func (t *Tracker) Start(ctx context.Context, in StartInput) (Trip, error) {
	if in.UserID == "" {
		return Trip{}, ErrMissingUser
	}
	fuelType := fuel.Gasoline
	if in.FuelType != "" {
		if fuelType = fuel.Normalize(in.FuelType); fuelType == "" {
			return Trip{}, ErrInvalidFuelType
		}
	}
	if !(in.IntervalKm > 0) || math.IsInf(in.IntervalKm, 0) {
		return Trip{}, ErrInvalidInterval
	}
	if in.Destination != nil {
		if err := in.Destination.Validate(); err != nil {
			return Trip{}, ErrInvalidLocation
		}
	}

	unlock := t.locks.Lock("user:" + in.UserID)
	defer unlock()

	active, err := t.store.ActiveByUser(ctx, in.UserID)
	switch {
	case err == nil:
		if t.opts.Policy == PolicyRejectIfActive {
			return Trip{}, ErrTripAlreadyActive
		}
		if _, err := t.complete(ctx, active.ID); err != nil && !errors.Is(err, ErrTripNotFound) {
			return Trip{}, err
		}
	case !errors.Is(err, ErrTripNotFound):
		return Trip{}, apperr.Dependency("trip store", err)
	}

	trip := Trip{
		ID:                     t.opts.NewID(),
		UserID:                 in.UserID,
		FuelType:               fuelType,
		NotificationIntervalKm: in.IntervalKm,
		Status:                 StatusActive,
		Destination:            in.Destination,
		StartedAt:              t.opts.Now(),
	}
	if err := t.store.Create(ctx, trip); err != nil {
		if errors.Is(err, ErrTripAlreadyActive) {
			return Trip{}, err
		}
		return Trip{}, apperr.Dependency("trip store", err)
	}
	t.opts.Metrics.TripStarted()
	return trip.clone(), nil
}

// Update ingests one GPS sample. It never resets the notification counter;
// callers do that through ConfirmNotification once a notification went out.
func (t *Tracker) Update(ctx context.Context, tripID string, sample geo.Point) (UpdateResult, error) {
	res, err := t.update(ctx, tripID, sample)
	if err != nil {
		t.opts.Metrics.SampleRejected(rejectReason(err))
		return UpdateResult{}, err
	}
	t.opts.Metrics.SampleAccepted()
	return res, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidLocation):
		return "invalid"
	case errors.Is(err, ErrImpossibleDelta):
		return "impossible"
	case errors.Is(err, ErrTripNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (t *Tracker) update(ctx context.Context, tripID string, sample geo.Point) (UpdateResult, error) {
	if err := sample.Validate(); err != nil {
		return UpdateResult{}, ErrInvalidLocation
	}

	unlock := t.locks.Lock(tripID)
	defer unlock()

	trip, err := t.loadActive(ctx, tripID)
	if err != nil {
		return UpdateResult{}, err
	}

	delta := 0.0
	if prev := trip.LastSample; prev != nil {
		delta, err = t.delta(*prev, sample)
		if err != nil {
			return UpdateResult{}, err
		}
	}

	trip.DistanceTraveledKm += delta
	trip.LastSample = &sample
	trip.SamplesAccepted++
	if err := t.saveSample(ctx, trip, sample); err != nil {
		return UpdateResult{}, err
	}

	return UpdateResult{
		TripID:             trip.ID,
		UserID:             trip.UserID,
		FuelType:           trip.FuelType,
		DistanceDeltaKm:    delta,
		TotalKm:            trip.DistanceTraveledKm,
		ShouldNotify:       trip.notificationDue(),
		NextNotificationKm: trip.NextNotificationKm(),
		Destination:        trip.clone().Destination,
	}, nil
}

func (t *Tracker) delta(prev, sample geo.Point) (float64, error) {
	d := geo.Distance(prev, sample)
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0, ErrImpossibleDelta
	}
	if prev.Timestamp.IsZero() || sample.Timestamp.IsZero() {
		return d, nil
	}
	dt := sample.Timestamp.Sub(prev.Timestamp)
	if dt < 0 {
		return 0, ErrImpossibleDelta
	}
	if t.opts.MaxSpeedKmh <= 0 {
		return d, nil
	}
	if dt == 0 {
		// no elapsed time: only receiver jitter can move the fix
		if d > sameInstantJitterKm {
			return 0, ErrImpossibleDelta
		}
		return d, nil
	}
	if d/dt.Hours() > t.opts.MaxSpeedKmh {
		return 0, ErrImpossibleDelta
	}
	return d, nil
}

// ConfirmNotification records that a notification produced at atKm was
// delivered. atKm is clamped to the trip's current distance. A confirm that
// does not move LastNotificationKm forward changes nothing.
func (t *Tracker) ConfirmNotification(ctx context.Context, tripID string, atKm float64) (Trip, error) {
	unlock := t.locks.Lock(tripID)
	defer unlock()

	trip, err := t.loadActive(ctx, tripID)
	if err != nil {
		return Trip{}, err
	}
	if math.IsNaN(atKm) || atKm > trip.DistanceTraveledKm {
		atKm = trip.DistanceTraveledKm
	}
	if !(atKm > trip.LastNotificationKm) {
		return trip, nil
	}
	trip.LastNotificationKm = atKm
	trip.NotificationsSent++
	if err := t.save(ctx, trip); err != nil {
		return Trip{}, err
	}
	return trip, nil
}

// Stop completes the trip. Stopping a completed trip returns its frozen summary.
func (t *Tracker) Stop(ctx context.Context, tripID string) (Summary, error) {
	trip, err := t.complete(ctx, tripID)
	if err != nil {
		return Summary{}, err
	}
	return trip.Summary(), nil
}

func (t *Tracker) complete(ctx context.Context, tripID string) (Trip, error) {
	unlock := t.locks.Lock(tripID)
	defer unlock()

	trip, err := t.load(ctx, tripID)
	if err != nil {
		return Trip{}, err
	}
	if trip.Status == StatusCompleted {
		return trip, nil
	}
	now := t.opts.Now()
	trip.Status = StatusCompleted
	trip.EndedAt = &now
	if err := t.save(ctx, trip); err != nil {
		return Trip{}, err
	}
	t.opts.Metrics.TripCompleted()
	return trip, nil
}

func (t *Tracker) GetActive(ctx context.Context, userID string) (Trip, bool, error) {
	trip, err := t.store.ActiveByUser(ctx, userID)
	if errors.Is(err, ErrTripNotFound) {
		return Trip{}, false, nil
	}
	if err != nil {
		return Trip{}, false, apperr.Dependency("trip store", err)
	}
	return trip, true, nil
}

func (t *Tracker) Get(ctx context.Context, tripID string) (Trip, error) {
	return t.load(ctx, tripID)
}

// GetOwned is Get for callers acting on behalf of userID. Trips of other
// users are reported as ErrTripNotFound.
func (t *Tracker) GetOwned(ctx context.Context, tripID, userID string) (Trip, error) {
	trip, err := t.load(ctx, tripID)
	if err != nil {
		return Trip{}, err
	}
	if userID == "" || trip.UserID != userID {
		return Trip{}, ErrTripNotFound
	}
	return trip, nil
}

// Points returns the accepted samples of the trip in arrival order.
func (t *Tracker) Points(ctx context.Context, tripID string) ([]geo.Point, error) {
	if _, err := t.load(ctx, tripID); err != nil {
		return nil, err
	}
	points, err := t.store.Points(ctx, tripID)
	if err != nil {
		return nil, apperr.Dependency("trip store", err)
	}
	return points, nil
}

func (t *Tracker) load(ctx context.Context, tripID string) (Trip, error) {
	trip, err := t.store.Get(ctx, tripID)
	if errors.Is(err, ErrTripNotFound) {
		return Trip{}, ErrTripNotFound
	}
	if err != nil {
		return Trip{}, apperr.Dependency("trip store", err)
	}
	return trip, nil
}

func (t *Tracker) loadActive(ctx context.Context, tripID string) (Trip, error) {
	trip, err := t.load(ctx, tripID)
	if err != nil {
		return Trip{}, err
	}
	if trip.Status != StatusActive {
		return Trip{}, ErrTripNotFound
	}
	return trip, nil
}

func (t *Tracker) save(ctx context.Context, trip Trip) error {
	return storeErr(t.store.Save(ctx, trip))
}

func (t *Tracker) saveSample(ctx context.Context, trip Trip, sample geo.Point) error {
	return storeErr(t.store.SaveSample(ctx, trip, sample))
}

func storeErr(err error) error {
	if err == nil || errors.Is(err, ErrTripNotFound) {
		return err
	}
	return apperr.Dependency("trip store", err)
}
