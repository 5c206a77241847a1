// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/logger"
	"github.com/wneessen/fuelwatch/internal/pricelookup"
)

// Machine owns the tracking state and the active trip. All methods are safe for concurrent use.
type Machine struct {
	config   Config
	sampler  Sampler
	lookup   pricelookup.Client
	notifier Notifier
	recorder Recorder
	observer Observer
	labeler  Labeler
	status   func(Status)
	logger   *logger.Logger
	now      func() time.Time
	acc      *Accumulator
	policy   Policy

	mu         sync.Mutex
	state      State
	trip       *Trip
	generation uint64
	inFlight   bool
	jumps      int
	tripCtx    context.Context
	tripCancel context.CancelFunc

	parent     context.Context
	pumpCancel context.CancelFunc
	pumpDone   chan struct{}

	lastSeen geobus.Fix
	haveSeen bool
}

// New returns a Machine in StateIdle.
func New(config Config, deps Deps, log *logger.Logger) (*Machine, error) {
	if deps.Sampler == nil {
		return nil, errors.New("sampler is required")
	}
	if deps.Lookup == nil {
		return nil, errors.New("price lookup client is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("notifier is required")
	}

	if config.LookupTimeout <= 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}
	if config.LookupRadiusKm <= 0 {
		config.LookupRadiusKm = DefaultRadiusKm
	}
	if config.DefaultIntervalKm <= 0 {
		config.DefaultIntervalKm = DefaultIntervalKm
	}
	if config.DefaultFuelType == "" {
		config.DefaultFuelType = DefaultFuelType
	}
	if log == nil {
		log = logger.Discard()
	}

	machine := &Machine{
		config:   config,
		sampler:  deps.Sampler,
		lookup:   deps.Lookup,
		notifier: deps.Notifier,
		recorder: deps.Recorder,
		observer: deps.Observer,
		labeler:  deps.Labeler,
		status:   deps.Status,
		logger:   log,
		now:      deps.Now,
		acc:      NewAccumulator(config.Accumulator),
	}
	if machine.recorder == nil {
		machine.recorder = nopRecorder{}
	}
	if machine.observer == nil {
		machine.observer = nopObserver{}
	}
	if machine.status == nil {
		machine.status = func(Status) {}
	}
	if machine.now == nil {
		machine.now = time.Now
	}
	return machine, nil
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the active trip. ok is false if no trip is active.
func (m *Machine) Snapshot() (trip Trip, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trip == nil {
		return Trip{}, false
	}
	return m.trip.clone(), true
}

// EnableTracking switches to StateTracking and starts sampling. ctx bounds the lifetime of
// the sampling, not the call. Calling it while tracking is a no-op unless sampling has given
// up, in which case it is restarted.
func (m *Machine) EnableTracking(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateIdle {
		m.setState(StateTracking)
	} else if m.pumpAlive() {
		return nil
	}
	m.startPump(ctx)
	return nil
}

// DisableTracking stops sampling and switches to StateIdle from any state. An active trip is
// ended as aborted and its summary returned.
func (m *Machine) DisableTracking() *Summary {
	m.mu.Lock()
	var summary *Summary
	if m.state == StateTripActive {
		s := m.endTrip(TripStatusAborted)
		summary = &s
		m.logger.Warn("tracking disabled during an active trip", slog.String("trip_id", s.TripID),
			slog.Float64("distance_km", s.DistanceTraveledKm))
	}
	cancel, done := m.pumpCancel, m.pumpDone
	m.pumpCancel, m.pumpDone = nil, nil
	m.setState(StateIdle)
	m.mu.Unlock()

	stopPump(cancel, done)
	return summary
}

// Shutdown stops sampling and releases an active trip without ending it. The trip stays
// active upstream, so the next start can reconcile it.
func (m *Machine) Shutdown() (trip Trip, ok bool) {
	m.mu.Lock()
	if m.trip != nil {
		trip, ok = m.trip.clone(), true
		if m.tripCancel != nil {
			m.tripCancel()
		}
		m.generation++
		m.inFlight = false
		m.trip = nil
	}
	cancel, done := m.pumpCancel, m.pumpDone
	m.pumpCancel, m.pumpDone = nil, nil
	m.setState(StateIdle)
	m.mu.Unlock()

	stopPump(cancel, done)
	return trip, ok
}

// RestartSampler ends the current sampling session and starts a new one, e.g. after the
// system resumed from sleep.
func (m *Machine) RestartSampler() {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	cancel, done := m.pumpCancel, m.pumpDone
	m.pumpCancel, m.pumpDone = nil, nil
	m.mu.Unlock()

	stopPump(cancel, done)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle && m.pumpDone == nil {
		m.startPump(m.parent)
	}
}

// StartTrip opens a new trip. Tracking must be enabled and no trip may be active.
func (m *Machine) StartTrip(params Params) (Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireTracking("start trip"); err != nil {
		return Trip{}, err
	}
	params, err := m.normalize(params)
	if err != nil {
		return Trip{}, err
	}

	trip := &Trip{
		ID:                     uuid.NewString(),
		StartedAt:              m.now(),
		Origin:                 params.Origin,
		Destination:            params.Destination,
		FuelType:               params.FuelType,
		NotificationIntervalKm: params.NotificationIntervalKm,
		Status:                 TripStatusActive,
	}
	m.openTrip(trip)
	m.observer.TripStarted()
	m.record(trip.ID, m.recorder.TripStarted(trip.clone()))
	m.logger.Info("trip started", slog.String("trip_id", trip.ID), slog.String("fuel_type", trip.FuelType),
		slog.Float64("interval_km", trip.NotificationIntervalKm))

	return trip.clone(), nil
}

// ResumeTrip re-opens a trip that was active when the daemon stopped. Distance and
// notification marks are kept, the next fix becomes the new baseline.
func (m *Machine) ResumeTrip(trip Trip) (Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireTracking("resume trip"); err != nil {
		return Trip{}, err
	}
	if trip.ID == "" {
		return Trip{}, fmt.Errorf("%w: trip ID is required", ErrInvalidParams)
	}
	params, err := m.normalize(Params{
		Origin:                 trip.Origin,
		Destination:            trip.Destination,
		FuelType:               trip.FuelType,
		NotificationIntervalKm: trip.NotificationIntervalKm,
	})
	if err != nil {
		return Trip{}, err
	}

	resumed := trip.clone()
	resumed.FuelType = params.FuelType
	resumed.NotificationIntervalKm = params.NotificationIntervalKm
	resumed.Status = TripStatusActive
	resumed.EndedAt = time.Time{}
	resumed.LastFix = nil
	if resumed.StartedAt.IsZero() {
		resumed.StartedAt = m.now()
	}
	m.openTrip(&resumed)
	m.logger.Info("trip resumed", slog.String("trip_id", resumed.ID),
		slog.Float64("distance_km", resumed.DistanceTraveledKm))

	return resumed.clone(), nil
}

// StopTrip ends the active trip and switches back to StateTracking.
func (m *Machine) StopTrip() (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateTripActive || m.trip == nil {
		err := fmt.Errorf("%w: cannot stop trip in state %s", ErrPrecondition, m.state)
		m.logger.Error("rejected state transition", logger.Err(err))
		return Summary{}, err
	}
	summary := m.endTrip(TripStatusCompleted)
	m.setState(StateTracking)
	m.logger.Info("trip stopped", slog.String("trip_id", summary.TripID),
		slog.Float64("distance_km", summary.DistanceTraveledKm), slog.Duration("duration", summary.Duration))
	return summary, nil
}

// HandleFix processes a fix. Outside of StateTripActive it is a no-op.
func (m *Machine) HandleFix(fix geobus.Fix) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fix.Valid() {
		m.lastSeen = fix
		m.haveSeen = true
	}
	if m.state != StateTripActive || m.trip == nil {
		return
	}
	trip := m.trip

	if trip.LastFix == nil {
		if reason := m.acc.Usable(fix); reason != DiscountNone {
			m.observer.FixDiscounted(reason)
			return
		}
		baseline := fix
		trip.LastFix = &baseline
		m.record(trip.ID, m.recorder.FixAccepted(trip.ID, fix, trip.DistanceTraveledKm))
		if trip.Origin == "" && m.labeler != nil {
			go m.labelOrigin(m.tripCtx, m.generation, fix)
		}
		return
	}

	increment, reason := m.acc.Check(*trip.LastFix, fix)
	if reason != DiscountNone {
		m.observer.FixDiscounted(reason)
		m.logger.Debug("fix discounted", slog.String("reason", string(reason)),
			slog.Float64("lat", fix.Lat), slog.Float64("lon", fix.Lon))
		if reason == DiscountJump {
			m.rebaseline(trip, fix)
		}
		return
	}
	m.jumps = 0
	accepted := fix
	trip.LastFix = &accepted
	trip.DistanceTraveledKm += increment
	m.observer.FixAccepted(increment, trip.DistanceTraveledKm)
	m.record(trip.ID, m.recorder.FixAccepted(trip.ID, fix, trip.DistanceTraveledKm))

	decision := m.policy.Evaluate(*trip)
	if !decision.Fire || m.inFlight {
		return
	}
	trip.LastNotifiedAtKm = trip.DistanceTraveledKm
	m.inFlight = true
	m.record(trip.ID, m.recorder.ThresholdCommitted(trip.ID, trip.LastNotifiedAtKm))
	m.logger.Debug("notification interval crossed", slog.String("trip_id", trip.ID),
		slog.Float64("distance_km", trip.DistanceTraveledKm))
	go m.lookupStation(m.tripCtx, m.generation, trip.clone(), fix)
}

// rebaseline moves the baseline to fix once too many fixes in a row were discounted as
// jumps, so an outlier baseline cannot swallow the trip. No distance is added.
func (m *Machine) rebaseline(trip *Trip, fix geobus.Fix) {
	m.jumps++
	if m.jumps < maxJumps {
		return
	}
	m.jumps = 0
	baseline := fix
	trip.LastFix = &baseline
	m.logger.Info("moved trip baseline after repeated position jumps", slog.String("trip_id", trip.ID),
		slog.Float64("lat", fix.Lat), slog.Float64("lon", fix.Lon))
	m.record(trip.ID, m.recorder.FixAccepted(trip.ID, fix, trip.DistanceTraveledKm))
}

// CurrentPosition returns the most recent valid fix seen by the sampler if it is fresh.
func (m *Machine) CurrentPosition(context.Context) (geobus.Fix, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	maxAge := m.config.Sampling.MaxFixAge
	if maxAge <= 0 {
		maxAge = positionMaxAge
	}
	if !m.haveSeen || m.lastSeen.Age(m.now()) > maxAge {
		return geobus.Fix{}, geobus.NewGeoError(geobus.PositionUnavailable, m.sampler.Name(), errNoRecentFix)
	}
	return m.lastSeen, nil
}

func (m *Machine) lookupStation(ctx context.Context, generation uint64, trip Trip, fix geobus.Fix) {
	defer func() {
		m.mu.Lock()
		if m.generation == generation {
			m.inFlight = false
		}
		m.mu.Unlock()
	}()

	lookupCtx, cancel := context.WithTimeout(ctx, m.config.LookupTimeout)
	defer cancel()

	start := m.now()
	result, err := m.lookup.Cheapest(lookupCtx, pricelookup.Request{
		Lat:      fix.Lat,
		Lon:      fix.Lon,
		FuelType: trip.FuelType,
		RadiusKm: m.config.LookupRadiusKm,
	})
	took := m.now().Sub(start)

	m.mu.Lock()
	if !m.current(generation, trip.ID) {
		m.mu.Unlock()
		m.logger.Debug("discarding price lookup of ended trip", slog.String("trip_id", trip.ID))
		return
	}
	switch {
	case err != nil:
		m.observer.LookupFinished(LookupFailed, took)
		m.logger.Warn("price lookup failed", slog.String("trip_id", trip.ID), logger.Err(err))
		m.report(Status{Kind: StatusLookupFailure, TripID: trip.ID, Err: fmt.Errorf("%w: %w", ErrLookupFailure, err)})
		m.mu.Unlock()
		return
	case !result.Found || result.Station == nil:
		m.observer.LookupFinished(LookupNone, took)
		m.logger.Info("no fuel station found", slog.String("trip_id", trip.ID),
			slog.Float64("radius_km", m.config.LookupRadiusKm))
		m.report(Status{Kind: StatusNoStation, TripID: trip.ID})
		m.mu.Unlock()
		return
	}
	m.observer.LookupFinished(LookupFound, took)
	station := *result.Station
	event := NotificationEvent{
		ID:            uuid.NewString(),
		TriggeredAtKm: trip.LastNotifiedAtKm,
		StationID:     station.ID,
		StationName:   station.Name,
		Price:         station.Price,
		SentAt:        m.now(),
	}
	notification := Notification{Trip: m.trip.clone(), Station: station, Event: event}
	m.mu.Unlock()

	presentCtx, presentCancel := context.WithTimeout(ctx, presentTimeout)
	err = m.notifier.NotifyStation(presentCtx, notification)
	presentCancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current(generation, trip.ID) {
		m.logger.Debug("trip ended while presenting notification", slog.String("trip_id", trip.ID))
		return
	}
	if err != nil {
		m.logger.Error("failed to present notification", slog.String("trip_id", trip.ID), logger.Err(err))
		m.report(Status{Kind: StatusPresentFailure, TripID: trip.ID, Err: err, Station: &station})
		return
	}
	m.trip.Notifications = append(m.trip.Notifications, event)
	m.record(trip.ID, m.recorder.NotificationSent(trip.ID, event))
	m.logger.Info("fuel station notification sent", slog.String("trip_id", trip.ID),
		slog.String("station", station.Name), slog.Float64("price", station.Price))
	m.report(Status{Kind: StatusNotified, TripID: trip.ID, Station: &station})
}

// current reports whether the trip of a background task is still the active one. The caller
// must hold the lock.
func (m *Machine) current(generation uint64, tripID string) bool {
	return m.generation == generation && m.trip != nil && m.trip.ID == tripID
}

func (m *Machine) labelOrigin(ctx context.Context, generation uint64, fix geobus.Fix) {
	labelCtx, cancel := context.WithTimeout(ctx, m.config.LookupTimeout)
	defer cancel()

	label, err := m.labeler.Label(labelCtx, fix.Lat, fix.Lon)
	if err != nil || label == "" {
		m.logger.Debug("failed to label trip origin", logger.Err(err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != generation || m.trip == nil || m.trip.Origin != "" {
		return
	}
	m.trip.Origin = label
}

// openTrip makes trip the active trip. The caller must hold the lock.
func (m *Machine) openTrip(trip *Trip) {
	m.generation++
	parent := m.parent
	if parent == nil {
		parent = context.Background()
	}
	m.tripCtx, m.tripCancel = context.WithCancel(parent)
	m.inFlight = false
	m.jumps = 0
	m.trip = trip
	m.setState(StateTripActive)
}

// endTrip closes the active trip and returns its summary. The caller must hold the lock and
// set the next state.
func (m *Machine) endTrip(status TripStatus) Summary {
	if m.tripCancel != nil {
		m.tripCancel()
	}
	m.generation++
	m.inFlight = false

	trip := m.trip
	trip.EndedAt = m.now()
	trip.Status = status
	summary := newSummary(*trip)
	m.observer.TripEnded(summary.Abnormal)
	m.record(trip.ID, m.recorder.TripEnded(trip.clone()))
	m.trip = nil
	return summary
}

func (m *Machine) requireTracking(op string) error {
	if m.state == StateTracking {
		return nil
	}
	var err error
	switch m.state {
	case StateTripActive:
		err = fmt.Errorf("%w: cannot %s, trip %s is still active", ErrPrecondition, op, m.trip.ID)
	default:
		err = fmt.Errorf("%w: cannot %s, tracking is not enabled", ErrPrecondition, op)
	}
	m.logger.Error("rejected state transition", logger.Err(err))
	return err
}

func (m *Machine) normalize(params Params) (Params, error) {
	params.FuelType = strings.ToLower(strings.TrimSpace(params.FuelType))
	if params.FuelType == "" {
		params.FuelType = m.config.DefaultFuelType
	}
	if len(m.config.FuelTypes) > 0 && !slices.Contains(m.config.FuelTypes, params.FuelType) {
		return params, fmt.Errorf("%w: unsupported fuel type %q", ErrInvalidParams, params.FuelType)
	}
	switch {
	case params.NotificationIntervalKm == 0:
		params.NotificationIntervalKm = m.config.DefaultIntervalKm
	case params.NotificationIntervalKm < 0:
		return params, fmt.Errorf("%w: notification interval must be positive", ErrInvalidParams)
	}
	params.Origin = strings.TrimSpace(params.Origin)
	params.Destination = strings.TrimSpace(params.Destination)
	return params, nil
}

func (m *Machine) setState(state State) {
	if m.state == state {
		return
	}
	m.logger.Debug("state changed", slog.String("from", m.state.String()), slog.String("to", state.String()))
	m.state = state
	m.observer.StateChanged(state)
}

func (m *Machine) record(tripID string, err error) {
	if err == nil {
		return
	}
	m.logger.Warn("failed to record trip update", slog.String("trip_id", tripID), logger.Err(err))
	m.report(Status{Kind: StatusPersistenceLag, TripID: tripID, Err: err})
}

func (m *Machine) report(status Status) {
	if status.At.IsZero() {
		status.At = m.now()
	}
	m.status(status)
}
