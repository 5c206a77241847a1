// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package tracker

import (
	"slices"
	"time"

	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/pricelookup"
)

// State is the state of the Machine.
type State int

const (
	StateIdle State = iota
	StateTracking
	StateTripActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	case StateTripActive:
		return "trip_active"
	default:
		return "unknown"
	}
}

// TripStatus tells how a trip ended.
type TripStatus string

const (
	TripStatusActive    TripStatus = "active"
	TripStatusCompleted TripStatus = "completed"
	TripStatusAborted   TripStatus = "aborted"
	TripStatusOrphaned  TripStatus = "orphaned"
)

// Params are the user supplied parameters of a new trip. Zero values fall back to the
// configured defaults.
type Params struct {
	Origin                 string  `json:"origin"`
	Destination            string  `json:"destination"`
	FuelType               string  `json:"fuel_type"`
	NotificationIntervalKm float64 `json:"notification_interval_km"`
}

// Trip is a bounded tracking session between an explicit start and stop.
type Trip struct {
	ID                     string              `json:"id"`
	StartedAt              time.Time           `json:"started_at"`
	EndedAt                time.Time           `json:"ended_at,omitzero"`
	Origin                 string              `json:"origin,omitempty"`
	Destination            string              `json:"destination,omitempty"`
	FuelType               string              `json:"fuel_type"`
	NotificationIntervalKm float64             `json:"notification_interval_km"`
	DistanceTraveledKm     float64             `json:"distance_traveled_km"`
	LastNotifiedAtKm       float64             `json:"last_notified_at_km"`
	Status                 TripStatus          `json:"status"`
	LastFix                *geobus.Fix         `json:"last_fix,omitempty"`
	Notifications          []NotificationEvent `json:"notifications,omitempty"`
}

// NextNotificationAtKm returns the distance at which the next price lookup fires.
func (t Trip) NextNotificationAtKm() float64 {
	return t.LastNotifiedAtKm + t.NotificationIntervalKm
}

func (t Trip) clone() Trip {
	c := t
	if t.LastFix != nil {
		fix := *t.LastFix
		c.LastFix = &fix
	}
	c.Notifications = slices.Clone(t.Notifications)
	return c
}

// NotificationEvent records a presented station recommendation.
type NotificationEvent struct {
	ID            string    `json:"id"`
	TriggeredAtKm float64   `json:"triggered_at_km"`
	StationID     string    `json:"station_id"`
	StationName   string    `json:"station_name"`
	Price         float64   `json:"price"`
	SentAt        time.Time `json:"sent_at"`
}

// Summary is emitted when a trip ends.
type Summary struct {
	TripID             string        `json:"trip_id"`
	DistanceTraveledKm float64       `json:"distance_traveled_km"`
	Duration           time.Duration `json:"duration"`
	Abnormal           bool          `json:"abnormal"`
	Status             TripStatus    `json:"status"`
	FuelType           string        `json:"fuel_type"`
	Origin             string        `json:"origin,omitempty"`
	Destination        string        `json:"destination,omitempty"`
	Notifications      int           `json:"notifications"`
	StartedAt          time.Time     `json:"started_at"`
	EndedAt            time.Time     `json:"ended_at"`
}

func newSummary(t Trip) Summary {
	return Summary{
		TripID:             t.ID,
		DistanceTraveledKm: t.DistanceTraveledKm,
		Duration:           t.EndedAt.Sub(t.StartedAt),
		Abnormal:           t.Status != TripStatusCompleted,
		Status:             t.Status,
		FuelType:           t.FuelType,
		Origin:             t.Origin,
		Destination:        t.Destination,
		Notifications:      len(t.Notifications),
		StartedAt:          t.StartedAt,
		EndedAt:            t.EndedAt,
	}
}

// StatusKind classifies a Status.
type StatusKind int

const (
	StatusGeoError StatusKind = iota
	StatusLookupFailure
	StatusNoStation
	StatusNotified
	StatusPresentFailure
	StatusPersistenceLag
)

func (k StatusKind) String() string {
	switch k {
	case StatusGeoError:
		return "geo_error"
	case StatusLookupFailure:
		return "lookup_failure"
	case StatusNoStation:
		return "no_station"
	case StatusNotified:
		return "notified"
	case StatusPresentFailure:
		return "present_failure"
	case StatusPersistenceLag:
		return "persistence_lag"
	default:
		return "unknown"
	}
}

// Status reports a recoverable condition or an outcome to the status sink. None of them
// end the trip.
type Status struct {
	Kind    StatusKind
	TripID  string
	Err     error
	Station *pricelookup.Station
	At      time.Time
}
