// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package tracker implements the trip state machine. It accumulates the distance of the
// active trip from the sampled fixes and asks for the cheapest fuel station each time the
// trip crosses its notification interval.
package tracker

import (
	"context"
	"time"

	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/pricelookup"
)

const (
	DefaultLookupTimeout = time.Second * 10
	DefaultIntervalKm    = 100
	DefaultRadiusKm      = 5
	DefaultFuelType      = "gasoline"

	presentTimeout = time.Second * 5
	positionMaxAge = time.Minute
	// maxJumps consecutive jump discounts move the baseline to the latest fix.
	maxJumps = 3
)

// Sampler starts sampling sessions. It is satisfied by *geobus.Sampler.
type Sampler interface {
	Name() string
	Start(ctx context.Context, opts geobus.Options) (*geobus.Subscription, error)
}

// Notification is handed to the Notifier once a station was found.
type Notification struct {
	Trip    Trip
	Station pricelookup.Station
	Event   NotificationEvent
}

// Notifier presents a station recommendation to the user. It is called without the Machine
// lock held.
type Notifier interface {
	NotifyStation(ctx context.Context, n Notification) error
}

// Recorder mirrors trip state upstream. Implementations must not block.
type Recorder interface {
	TripStarted(trip Trip) error
	FixAccepted(tripID string, fix geobus.Fix, distanceKm float64) error
	// ThresholdCommitted is called once per interval crossing, before the lookup runs.
	ThresholdCommitted(tripID string, markKm float64) error
	NotificationSent(tripID string, event NotificationEvent) error
	TripEnded(trip Trip) error
}

// Labeler turns a position into a human readable place name.
type Labeler interface {
	Label(ctx context.Context, lat, lon float64) (string, error)
}

// LookupOutcome is the result class of a price lookup.
type LookupOutcome string

const (
	LookupFound  LookupOutcome = "found"
	LookupNone   LookupOutcome = "none"
	LookupFailed LookupOutcome = "failed"
)

// Observer receives instrumentation callbacks. Calls happen under the Machine lock.
type Observer interface {
	StateChanged(state State)
	TripStarted()
	TripEnded(abnormal bool)
	FixAccepted(incrementKm, totalKm float64)
	FixDiscounted(reason Discount)
	LookupFinished(outcome LookupOutcome, took time.Duration)
}

// Config configures the Machine.
type Config struct {
	Sampling          geobus.Options
	Accumulator       AccumulatorConfig
	LookupTimeout     time.Duration
	LookupRadiusKm    float64
	DefaultFuelType   string
	DefaultIntervalKm float64
	// FuelTypes limits the accepted fuel types. Empty accepts any.
	FuelTypes []string
}

// Deps are the collaborators of the Machine. Sampler, Lookup and Notifier are required.
type Deps struct {
	Sampler  Sampler
	Lookup   pricelookup.Client
	Notifier Notifier
	Recorder Recorder
	Observer Observer
	Labeler  Labeler
	// Status receives recoverable conditions. It must not block or call into the Machine.
	Status func(Status)
	Now    func() time.Time
}

type nopRecorder struct{}

func (nopRecorder) TripStarted(Trip) error                           { return nil }
func (nopRecorder) FixAccepted(string, geobus.Fix, float64) error    { return nil }
func (nopRecorder) ThresholdCommitted(string, float64) error         { return nil }
func (nopRecorder) NotificationSent(string, NotificationEvent) error { return nil }
func (nopRecorder) TripEnded(Trip) error                             { return nil }

type nopObserver struct{}

func (nopObserver) StateChanged(State)                          {}
func (nopObserver) TripStarted()                                {}
func (nopObserver) TripEnded(bool)                              {}
func (nopObserver) FixAccepted(float64, float64)                {}
func (nopObserver) FixDiscounted(Discount)                      {}
func (nopObserver) LookupFinished(LookupOutcome, time.Duration) {}
