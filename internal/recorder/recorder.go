// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package recorder mirrors trip state to upstream backends. Events are queued and delivered
// asynchronously, so a slow or unreachable backend never stalls the trip state machine.
package recorder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/tracker"
)

var (
	// ErrPersistenceLag is returned when an event could not be queued because the backend
	// is falling behind.
	ErrPersistenceLag = errors.New("persistence is lagging behind")

	// ErrRejected is returned by backends that will never accept an event. Such events are
	// dropped instead of retried.
	ErrRejected = errors.New("event rejected by backend")
)

type EventKind string

const (
	EventTripStarted      EventKind = "trip_started"
	EventFixAccepted      EventKind = "fix_accepted"
	EventThreshold        EventKind = "threshold_committed"
	EventNotificationSent EventKind = "notification_sent"
	EventTripEnded        EventKind = "trip_ended"
)

// Event is a single trip state change. ID is unique per event so backends can drop
// redelivered events.
type Event struct {
	ID           string                     `json:"id"`
	Kind         EventKind                  `json:"kind"`
	TripID       string                     `json:"trip_id"`
	Trip         *tracker.Trip              `json:"trip,omitempty"`
	Fix          *geobus.Fix                `json:"fix,omitempty"`
	DistanceKm   float64                    `json:"distance_km,omitempty"`
	MarkKm       float64                    `json:"mark_km,omitempty"`
	Notification *tracker.NotificationEvent `json:"notification,omitempty"`
	At           time.Time                  `json:"at"`
}

// Backend writes events synchronously.
type Backend interface {
	Name() string
	Write(ctx context.Context, ev Event) error
	Close() error
}

// Store is implemented by backends that can answer which trip is still active upstream.
type Store interface {
	ActiveTrip(ctx context.Context) (tracker.Trip, bool, error)
}

// Observer is notified about deliveries. It may be nil.
type Observer interface {
	Delivered(backend string)
	Failed(backend string)
}

func newEvent(kind EventKind, tripID string, now time.Time) Event {
	return Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		TripID: tripID,
		At:     now,
	}
}

func tripStartedEvent(trip tracker.Trip, now time.Time) Event {
	ev := newEvent(EventTripStarted, trip.ID, now)
	ev.Trip = &trip
	return ev
}

func fixAcceptedEvent(tripID string, fix geobus.Fix, distanceKm float64, now time.Time) Event {
	ev := newEvent(EventFixAccepted, tripID, now)
	ev.Fix = &fix
	ev.DistanceKm = distanceKm
	return ev
}

func thresholdEvent(tripID string, markKm float64, now time.Time) Event {
	ev := newEvent(EventThreshold, tripID, now)
	ev.MarkKm = markKm
	return ev
}

func notificationSentEvent(tripID string, event tracker.NotificationEvent, now time.Time) Event {
	ev := newEvent(EventNotificationSent, tripID, now)
	ev.Notification = &event
	return ev
}

func tripEndedEvent(trip tracker.Trip, now time.Time) Event {
	ev := newEvent(EventTripEnded, trip.ID, now)
	ev.Trip = &trip
	ev.DistanceKm = trip.DistanceTraveledKm
	return ev
}
