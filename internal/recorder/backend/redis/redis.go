// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package redis mirrors the active trip into Redis. The trip is kept as a JSON document and
// the accepted fixes as a GEO set, so other tools can follow the trip live.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wneessen/fuelwatch/internal/recorder"
	"github.com/wneessen/fuelwatch/internal/tracker"
)

const (
	name        = "redis"
	keyPrefix   = "fuelwatch:"
	activeKey   = keyPrefix + "active_trip"
	endedTTL    = time.Hour * 24 * 7
	dialTimeout = time.Second * 5
)

var errNotFound = errors.New("key not found")

// store is the subset of Redis commands the backend needs.
type store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	GeoAdd(ctx context.Context, key, member string, lat, lon float64) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Close() error
}

type Backend struct {
	store store
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, addr, password string, db int) (*Backend, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: dialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Backend{store: &clientStore{client: client}}, nil
}

func (b *Backend) Name() string {
	return name
}

func (b *Backend) Write(ctx context.Context, ev recorder.Event) error {
	switch ev.Kind {
	case recorder.EventTripStarted:
		if ev.Trip == nil {
			return fmt.Errorf("%w: trip_started event without trip", recorder.ErrRejected)
		}
		if err := b.putTrip(ctx, *ev.Trip, 0); err != nil {
			return err
		}
		if err := b.store.Set(ctx, activeKey, ev.TripID, 0); err != nil {
			return fmt.Errorf("failed to mark trip as active: %w", err)
		}
	case recorder.EventFixAccepted:
		if ev.Fix == nil {
			return fmt.Errorf("%w: fix_accepted event without fix", recorder.ErrRejected)
		}
		member := strconv.FormatInt(ev.Fix.Timestamp.UnixMilli(), 10)
		if err := b.store.GeoAdd(ctx, trackKey(ev.TripID), member, ev.Fix.Lat, ev.Fix.Lon); err != nil {
			return fmt.Errorf("failed to add fix to track: %w", err)
		}
		return b.updateTrip(ctx, ev.TripID, func(trip *tracker.Trip) {
			trip.DistanceTraveledKm = max(trip.DistanceTraveledKm, ev.DistanceKm)
			fix := *ev.Fix
			trip.LastFix = &fix
		})
	case recorder.EventThreshold:
		return b.updateTrip(ctx, ev.TripID, func(trip *tracker.Trip) {
			trip.LastNotifiedAtKm = max(trip.LastNotifiedAtKm, ev.MarkKm)
		})
	case recorder.EventNotificationSent:
		if ev.Notification == nil {
			return fmt.Errorf("%w: notification_sent event without notification", recorder.ErrRejected)
		}
		return b.updateTrip(ctx, ev.TripID, func(trip *tracker.Trip) {
			for _, n := range trip.Notifications {
				if n.ID == ev.Notification.ID {
					return
				}
			}
			trip.Notifications = append(trip.Notifications, *ev.Notification)
			trip.LastNotifiedAtKm = max(trip.LastNotifiedAtKm, ev.Notification.TriggeredAtKm)
		})
	case recorder.EventTripEnded:
		if ev.Trip == nil {
			return fmt.Errorf("%w: trip_ended event without trip", recorder.ErrRejected)
		}
		if err := b.putTrip(ctx, *ev.Trip, endedTTL); err != nil {
			return err
		}
		if err := b.store.Expire(ctx, trackKey(ev.TripID), endedTTL); err != nil {
			return fmt.Errorf("failed to expire track: %w", err)
		}
		active, err := b.store.Get(ctx, activeKey)
		if err != nil && !errors.Is(err, errNotFound) {
			return fmt.Errorf("failed to read active trip: %w", err)
		}
		if active == ev.TripID {
			if err = b.store.Del(ctx, activeKey); err != nil {
				return fmt.Errorf("failed to clear active trip: %w", err)
			}
		}
	default:
		return fmt.Errorf("%w: unknown event kind %q", recorder.ErrRejected, ev.Kind)
	}
	return nil
}

// ActiveTrip returns the trip the active marker points to.
func (b *Backend) ActiveTrip(ctx context.Context) (tracker.Trip, bool, error) {
	id, err := b.store.Get(ctx, activeKey)
	if errors.Is(err, errNotFound) {
		return tracker.Trip{}, false, nil
	}
	if err != nil {
		return tracker.Trip{}, false, fmt.Errorf("failed to read active trip: %w", err)
	}
	trip, err := b.getTrip(ctx, id)
	if errors.Is(err, errNotFound) {
		return tracker.Trip{}, false, nil
	}
	if err != nil {
		return tracker.Trip{}, false, err
	}
	return trip, trip.Status == tracker.TripStatusActive, nil
}

func (b *Backend) Close() error {
	return b.store.Close()
}

func (b *Backend) updateTrip(ctx context.Context, id string, fn func(trip *tracker.Trip)) error {
	trip, err := b.getTrip(ctx, id)
	if errors.Is(err, errNotFound) {
		// the trip document expired or was never written; the next trip_ended restores it
		return nil
	}
	if err != nil {
		return err
	}
	fn(&trip)
	return b.putTrip(ctx, trip, 0)
}

func (b *Backend) getTrip(ctx context.Context, id string) (tracker.Trip, error) {
	var trip tracker.Trip
	raw, err := b.store.Get(ctx, tripKey(id))
	if err != nil {
		return trip, fmt.Errorf("failed to read trip %s: %w", id, err)
	}
	if err = json.Unmarshal([]byte(raw), &trip); err != nil {
		return trip, fmt.Errorf("failed to decode trip %s: %w", id, err)
	}
	return trip, nil
}

func (b *Backend) putTrip(ctx context.Context, trip tracker.Trip, ttl time.Duration) error {
	raw, err := json.Marshal(trip)
	if err != nil {
		return fmt.Errorf("%w: failed to encode trip: %w", recorder.ErrRejected, err)
	}
	if err = b.store.Set(ctx, tripKey(trip.ID), string(raw), ttl); err != nil {
		return fmt.Errorf("failed to store trip: %w", err)
	}
	return nil
}

func tripKey(id string) string  { return keyPrefix + "trip:" + id }
func trackKey(id string) string { return keyPrefix + "track:" + id }

// clientStore implements store on top of a go-redis client.
type clientStore struct {
	client *goredis.Client
}

func (s *clientStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", errNotFound
	}
	return val, err
}

func (s *clientStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *clientStore) Del(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

func (s *clientStore) GeoAdd(ctx context.Context, key, member string, lat, lon float64) error {
	return s.client.GeoAdd(ctx, key, &goredis.GeoLocation{Name: member, Latitude: lat, Longitude: lon}).Err()
}

func (s *clientStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *clientStore) Close() error {
	return s.client.Close()
}
