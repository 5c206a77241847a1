// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/job"
	"github.com/wneessen/fuelwatch/internal/logger"
	"github.com/wneessen/fuelwatch/internal/tracker"
)

const (
	DefaultQueueSize     = 256
	DefaultRetryInterval = time.Second * 5
	DefaultMaxRetry      = time.Minute * 5
	writeTimeout         = time.Second * 10
	drainTimeout         = time.Second * 5
)

type pendingEvent struct {
	event    Event
	attempts int
}

// Dispatcher queues events for a single Backend and delivers them in order from its own
// goroutine. Failed deliveries are kept and retried with exponential backoff, starting at
// the retry interval.
type Dispatcher struct {
	backend       Backend
	log           *logger.Logger
	observer      Observer
	retryJob      *job.Job
	maxAttempts   int
	maxPending    int
	now           func() time.Time

	queue chan Event

	mu      sync.Mutex
	pending []pendingEvent
}

// Options configure a Dispatcher. Zero values fall back to the defaults. A MaxAttempts of 0
// retries forever.
type Options struct {
	QueueSize        int
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
	MaxAttempts      int
	Observer         Observer
}

func NewDispatcher(backend Backend, opts Options, log *logger.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.MaxRetryInterval <= 0 {
		opts.MaxRetryInterval = DefaultMaxRetry
	}
	if log == nil {
		log = logger.Discard()
	}
	dispatcher := &Dispatcher{
		backend:     backend,
		log:         log.With(slog.String("backend", backend.Name())),
		observer:    opts.Observer,
		maxAttempts: opts.MaxAttempts,
		maxPending:  opts.QueueSize * 4,
		now:         time.Now,
		queue:       make(chan Event, opts.QueueSize),
	}
	dispatcher.retryJob = job.New(opts.RetryInterval, opts.MaxRetryInterval, dispatcher.retry)
	return dispatcher
}

func (d *Dispatcher) Name() string {
	return d.backend.Name()
}

func (d *Dispatcher) TripStarted(trip tracker.Trip) error {
	return d.enqueue(tripStartedEvent(trip, d.now()))
}

func (d *Dispatcher) FixAccepted(tripID string, fix geobus.Fix, distanceKm float64) error {
	return d.enqueue(fixAcceptedEvent(tripID, fix, distanceKm, d.now()))
}

func (d *Dispatcher) ThresholdCommitted(tripID string, markKm float64) error {
	return d.enqueue(thresholdEvent(tripID, markKm, d.now()))
}

func (d *Dispatcher) NotificationSent(tripID string, event tracker.NotificationEvent) error {
	return d.enqueue(notificationSentEvent(tripID, event, d.now()))
}

func (d *Dispatcher) TripEnded(trip tracker.Trip) error {
	return d.enqueue(tripEndedEvent(trip, d.now()))
}

// ActiveTrip asks the backend for a trip that is still active upstream.
func (d *Dispatcher) ActiveTrip(ctx context.Context) (tracker.Trip, bool, error) {
	store, ok := d.backend.(Store)
	if !ok {
		return tracker.Trip{}, false, nil
	}
	return store.ActiveTrip(ctx)
}

// Pending returns the number of events waiting for a retry.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) enqueue(ev Event) error {
	select {
	case d.queue <- ev:
		return nil
	default:
		return fmt.Errorf("%w: %s queue is full, dropped %s event", ErrPersistenceLag, d.backend.Name(), ev.Kind)
	}
}

// Run delivers queued events until ctx is done. Events still queued at that point get one
// last delivery attempt before Run closes the backend.
func (d *Dispatcher) Run(ctx context.Context) {
	go d.retryJob.Start(ctx)

	for {
		select {
		case <-ctx.Done():
			d.drain()
			if err := d.backend.Close(); err != nil {
				d.log.Error("failed to close recorder backend", logger.Err(err))
			}
			return
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		}
	}
}

// deliver writes ev unless older events are still waiting for a retry, in which case ev is
// queued behind them to keep the order.
func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) > 0 {
		d.addPending(pendingEvent{event: ev})
		return
	}
	if err := d.write(ctx, ev); err != nil {
		d.log.Warn("failed to record event, will retry", logger.Err(err), slog.String("kind", string(ev.Kind)),
			slog.String("trip_id", ev.TripID))
		d.addPending(pendingEvent{event: ev, attempts: 1})
	}
}

// retry writes pending events in order and reports whether none are left.
func (d *Dispatcher) retry(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.pending) > 0 {
		next := &d.pending[0]
		err := d.write(ctx, next.event)
		if err == nil {
			d.pending = d.pending[1:]
			continue
		}
		next.attempts++
		if d.maxAttempts > 0 && next.attempts >= d.maxAttempts {
			d.log.Error("giving up on event", logger.Err(err), slog.String("kind", string(next.event.Kind)),
				slog.String("trip_id", next.event.TripID), slog.Int("attempts", next.attempts))
			d.pending = d.pending[1:]
			continue
		}
		d.log.Debug("event retry failed", logger.Err(err), slog.Int("pending", len(d.pending)))
		return false
	}
	return true
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		default:
			d.retry(ctx)
			if left := d.Pending(); left > 0 {
				d.log.Warn("events were not recorded before shutdown", slog.Int("events", left))
			}
			return
		}
	}
}

func (d *Dispatcher) write(ctx context.Context, ev Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	err := d.backend.Write(writeCtx, ev)
	if d.observer != nil {
		if err != nil {
			d.observer.Failed(d.backend.Name())
		} else {
			d.observer.Delivered(d.backend.Name())
		}
	}
	if errors.Is(err, ErrRejected) {
		d.log.Error("event was rejected, dropping it", logger.Err(err), slog.String("kind", string(ev.Kind)),
			slog.String("trip_id", ev.TripID))
		return nil
	}
	return err
}

func (d *Dispatcher) addPending(ev pendingEvent) {
	if len(d.pending) >= d.maxPending {
		dropped := d.pending[0]
		d.log.Error("retry buffer is full, dropping oldest event", slog.String("kind", string(dropped.event.Kind)),
			slog.String("trip_id", dropped.event.TripID))
		d.pending = d.pending[1:]
	}
	d.pending = append(d.pending, ev)
	d.retryJob.Trigger()
}
