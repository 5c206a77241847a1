// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/tracker"
)

// Multi fans events out to several dispatchers. It implements tracker.Recorder.
type Multi struct {
	dispatchers []*Dispatcher
}

func NewMulti(dispatchers ...*Dispatcher) *Multi {
	return &Multi{dispatchers: dispatchers}
}

func (m *Multi) TripStarted(trip tracker.Trip) error {
	return m.each(func(d *Dispatcher) error { return d.TripStarted(trip) })
}

func (m *Multi) FixAccepted(tripID string, fix geobus.Fix, distanceKm float64) error {
	return m.each(func(d *Dispatcher) error { return d.FixAccepted(tripID, fix, distanceKm) })
}

func (m *Multi) ThresholdCommitted(tripID string, markKm float64) error {
	return m.each(func(d *Dispatcher) error { return d.ThresholdCommitted(tripID, markKm) })
}

func (m *Multi) NotificationSent(tripID string, event tracker.NotificationEvent) error {
	return m.each(func(d *Dispatcher) error { return d.NotificationSent(tripID, event) })
}

func (m *Multi) TripEnded(trip tracker.Trip) error {
	return m.each(func(d *Dispatcher) error { return d.TripEnded(trip) })
}

// ActiveTrip returns the active trip of the first backend that knows one.
func (m *Multi) ActiveTrip(ctx context.Context) (tracker.Trip, bool, error) {
	var errs []error
	for _, d := range m.dispatchers {
		trip, ok, err := d.ActiveTrip(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
			continue
		}
		if ok {
			return trip, true, nil
		}
	}
	return tracker.Trip{}, false, errors.Join(errs...)
}

// Run runs all dispatchers and returns once every one of them has shut down.
func (m *Multi) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, d := range m.dispatchers {
		wg.Go(func() { d.Run(ctx) })
	}
	wg.Wait()
}

func (m *Multi) each(fn func(d *Dispatcher) error) error {
	var errs []error
	for _, d := range m.dispatchers {
		if err := fn(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
