// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package postgres records trips, accepted fixes and notifications in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/wneessen/fuelwatch/internal/recorder"
	"github.com/wneessen/fuelwatch/internal/tracker"
)

const (
	name        = "postgres"
	pingTimeout = time.Second * 5
)

const schema = `
CREATE TABLE IF NOT EXISTS trips (
	id                       TEXT PRIMARY KEY,
	started_at               TIMESTAMPTZ NOT NULL,
	ended_at                 TIMESTAMPTZ,
	origin                   TEXT NOT NULL DEFAULT '',
	destination              TEXT NOT NULL DEFAULT '',
	fuel_type                TEXT NOT NULL,
	notification_interval_km DOUBLE PRECISION NOT NULL,
	distance_traveled_km     DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_notified_at_km      DOUBLE PRECISION NOT NULL DEFAULT 0,
	status                   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trip_fixes (
	event_id    TEXT PRIMARY KEY,
	trip_id     TEXT NOT NULL REFERENCES trips (id),
	latitude    DOUBLE PRECISION NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
	accuracy    DOUBLE PRECISION,
	distance_km DOUBLE PRECISION NOT NULL,
	fixed_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS trip_notifications (
	id              TEXT PRIMARY KEY,
	trip_id         TEXT NOT NULL REFERENCES trips (id),
	triggered_at_km DOUBLE PRECISION NOT NULL,
	station_id      TEXT NOT NULL,
	station_name    TEXT NOT NULL,
	price           DOUBLE PRECISION NOT NULL,
	sent_at         TIMESTAMPTZ NOT NULL
);`

type Backend struct {
	db *sql.DB
}

// Open connects to the database with the pgx driver and makes sure the schema exists.
func Open(ctx context.Context, dsn string) (*Backend, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	backend := New(db)
	if err = backend.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return backend, nil
}

func New(db *sql.DB) *Backend {
	return &Backend{db: db}
}

func (b *Backend) Name() string {
	return name
}

func (b *Backend) Migrate(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (b *Backend) Write(ctx context.Context, ev recorder.Event) error {
	switch ev.Kind {
	case recorder.EventTripStarted:
		return b.tripStarted(ctx, ev)
	case recorder.EventFixAccepted:
		return b.fixAccepted(ctx, ev)
	case recorder.EventThreshold:
		return b.thresholdCommitted(ctx, ev)
	case recorder.EventNotificationSent:
		return b.notificationSent(ctx, ev)
	case recorder.EventTripEnded:
		return b.tripEnded(ctx, ev)
	default:
		return fmt.Errorf("%w: unknown event kind %q", recorder.ErrRejected, ev.Kind)
	}
}

func (b *Backend) tripStarted(ctx context.Context, ev recorder.Event) error {
	if ev.Trip == nil {
		return fmt.Errorf("%w: trip_started event without trip", recorder.ErrRejected)
	}
	t := ev.Trip
	_, err := b.db.ExecContext(ctx, `INSERT INTO trips (id, started_at, origin, destination, fuel_type,
notification_interval_km, distance_traveled_km, last_notified_at_km, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (id) DO NOTHING`,
		t.ID, t.StartedAt, t.Origin, t.Destination, t.FuelType, t.NotificationIntervalKm,
		t.DistanceTraveledKm, t.LastNotifiedAtKm, string(t.Status))
	if err != nil {
		return fmt.Errorf("failed to insert trip: %w", err)
	}
	return nil
}

func (b *Backend) fixAccepted(ctx context.Context, ev recorder.Event) error {
	if ev.Fix == nil {
		return fmt.Errorf("%w: fix_accepted event without fix", recorder.ErrRejected)
	}
	fixedAt := ev.Fix.Timestamp
	if fixedAt.IsZero() {
		fixedAt = ev.At
	}
	var accuracy sql.NullFloat64
	if ev.Fix.Accuracy.IsSet() {
		accuracy = sql.NullFloat64{Float64: ev.Fix.Accuracy.Value(), Valid: true}
	}

	return b.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO trip_fixes (event_id, trip_id, latitude, longitude, accuracy,
distance_km, fixed_at) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (event_id) DO NOTHING`,
			ev.ID, ev.TripID, ev.Fix.Lat, ev.Fix.Lon, accuracy, ev.DistanceKm, fixedAt); err != nil {
			return fmt.Errorf("failed to insert fix: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE trips SET distance_traveled_km = GREATEST(distance_traveled_km, $2)
WHERE id = $1`, ev.TripID, ev.DistanceKm); err != nil {
			return fmt.Errorf("failed to update trip distance: %w", err)
		}
		return nil
	})
}

func (b *Backend) thresholdCommitted(ctx context.Context, ev recorder.Event) error {
	_, err := b.db.ExecContext(ctx, `UPDATE trips SET last_notified_at_km = GREATEST(last_notified_at_km, $2)
WHERE id = $1`, ev.TripID, ev.MarkKm)
	if err != nil {
		return fmt.Errorf("failed to update trip notification mark: %w", err)
	}
	return nil
}

func (b *Backend) notificationSent(ctx context.Context, ev recorder.Event) error {
	if ev.Notification == nil {
		return fmt.Errorf("%w: notification_sent event without notification", recorder.ErrRejected)
	}
	n := ev.Notification
	return b.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO trip_notifications (id, trip_id, triggered_at_km, station_id,
station_name, price, sent_at) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
			n.ID, ev.TripID, n.TriggeredAtKm, n.StationID, n.StationName, n.Price, n.SentAt); err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE trips SET last_notified_at_km = GREATEST(last_notified_at_km, $2)
WHERE id = $1`, ev.TripID, n.TriggeredAtKm); err != nil {
			return fmt.Errorf("failed to update trip notification mark: %w", err)
		}
		return nil
	})
}

func (b *Backend) tripEnded(ctx context.Context, ev recorder.Event) error {
	if ev.Trip == nil {
		return fmt.Errorf("%w: trip_ended event without trip", recorder.ErrRejected)
	}
	t := ev.Trip
	_, err := b.db.ExecContext(ctx, `UPDATE trips SET ended_at = $2, distance_traveled_km = $3,
last_notified_at_km = $4, status = $5 WHERE id = $1`,
		t.ID, t.EndedAt, t.DistanceTraveledKm, t.LastNotifiedAtKm, string(t.Status))
	if err != nil {
		return fmt.Errorf("failed to update trip: %w", err)
	}
	return nil
}

// ActiveTrip returns the most recently started trip that never ended.
func (b *Backend) ActiveTrip(ctx context.Context) (tracker.Trip, bool, error) {
	var trip tracker.Trip
	var status string
	row := b.db.QueryRowContext(ctx, `SELECT id, started_at, origin, destination, fuel_type,
notification_interval_km, distance_traveled_km, last_notified_at_km, status
FROM trips WHERE status = $1 ORDER BY started_at DESC LIMIT 1`, string(tracker.TripStatusActive))
	err := row.Scan(&trip.ID, &trip.StartedAt, &trip.Origin, &trip.Destination, &trip.FuelType,
		&trip.NotificationIntervalKm, &trip.DistanceTraveledKm, &trip.LastNotifiedAtKm, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return tracker.Trip{}, false, nil
	}
	if err != nil {
		return tracker.Trip{}, false, fmt.Errorf("failed to query active trip: %w", err)
	}
	trip.Status = tracker.TripStatus(status)
	return trip, true, nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
