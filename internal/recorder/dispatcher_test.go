// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/logger"
	"github.com/wneessen/fuelwatch/internal/tracker"
)

var errUnavailable = errors.New("backend unavailable")

type fakeBackend struct {
	mu      sync.Mutex
	name    string
	written []Event
	err     error
	closed  bool
	trip    *tracker.Trip
}

func (b *fakeBackend) Name() string {
	if b.name == "" {
		return "fake"
	}
	return b.name
}

func (b *fakeBackend) Write(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.written = append(b.written, ev)
	return nil
}

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBackend) setErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *fakeBackend) kinds() []EventKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds := make([]EventKind, 0, len(b.written))
	for _, ev := range b.written {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (b *fakeBackend) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type storeBackend struct {
	fakeBackend
}

func (b *storeBackend) ActiveTrip(context.Context) (tracker.Trip, bool, error) {
	if b.trip == nil {
		return tracker.Trip{}, false, nil
	}
	return *b.trip, true, nil
}

type countingObserver struct {
	mu        sync.Mutex
	delivered int
	failed    int
}

func (o *countingObserver) Delivered(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered++
}

func (o *countingObserver) Failed(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed++
}

var testTrip = tracker.Trip{ID: "trip-1", FuelType: "diesel", NotificationIntervalKm: 50}

func equalKinds(a, b []EventKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDispatcher_Run(t *testing.T) {
	t.Run("events are delivered in order", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			backend := &fakeBackend{}
			observer := &countingObserver{}
			dispatcher := NewDispatcher(backend, Options{Observer: observer}, logger.Discard())

			ctx, cancel := context.WithCancel(t.Context())
			go dispatcher.Run(ctx)

			if err := dispatcher.TripStarted(testTrip); err != nil {
				t.Fatal(err)
			}
			if err := dispatcher.FixAccepted(testTrip.ID, geobus.Fix{Lat: 1, Lon: 1}, 0.5); err != nil {
				t.Fatal(err)
			}
			if err := dispatcher.TripEnded(testTrip); err != nil {
				t.Fatal(err)
			}
			synctest.Wait()

			want := []EventKind{EventTripStarted, EventFixAccepted, EventTripEnded}
			if got := backend.kinds(); !equalKinds(got, want) {
				t.Errorf("expected %v, got %v", want, got)
			}
			if observer.delivered != 3 {
				t.Errorf("expected 3 deliveries, got %d", observer.delivered)
			}

			cancel()
			synctest.Wait()
			if !backend.isClosed() {
				t.Error("expected backend to be closed on shutdown")
			}
		})
	})
	t.Run("failed events are retried in order", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			backend := &fakeBackend{err: errUnavailable}
			dispatcher := NewDispatcher(backend, Options{}, logger.Discard())

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()
			go dispatcher.Run(ctx)

			_ = dispatcher.TripStarted(testTrip)
			synctest.Wait()
			backend.setErr(nil)
			_ = dispatcher.NotificationSent(testTrip.ID, tracker.NotificationEvent{ID: "n-1", TriggeredAtKm: 50})
			synctest.Wait()

			if len(backend.kinds()) != 0 {
				t.Fatalf("expected newer events to wait for the failed one, got %v", backend.kinds())
			}
			if dispatcher.Pending() != 2 {
				t.Fatalf("expected 2 pending events, got %d", dispatcher.Pending())
			}

			time.Sleep(DefaultRetryInterval + time.Millisecond)
			synctest.Wait()

			want := []EventKind{EventTripStarted, EventNotificationSent}
			if got := backend.kinds(); !equalKinds(got, want) {
				t.Errorf("expected %v, got %v", want, got)
			}
			if dispatcher.Pending() != 0 {
				t.Errorf("expected no pending events, got %d", dispatcher.Pending())
			}
		})
	})
	t.Run("retries back off while the backend is down", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			backend := &fakeBackend{err: errUnavailable}
			observer := &countingObserver{}
			dispatcher := NewDispatcher(backend, Options{
				RetryInterval: time.Second, MaxRetryInterval: time.Second * 4, Observer: observer,
			}, logger.Discard())

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()
			go dispatcher.Run(ctx)

			_ = dispatcher.TripStarted(testTrip)
			// retries after 1s, 3s, 7s, 11s and 15s
			time.Sleep(time.Second*15 + time.Millisecond)
			synctest.Wait()
			observer.mu.Lock()
			failed := observer.failed
			observer.mu.Unlock()
			if failed != 6 {
				t.Errorf("expected 6 failed writes, got %d", failed)
			}

			backend.setErr(nil)
			time.Sleep(time.Second * 4)
			synctest.Wait()
			if dispatcher.Pending() != 0 {
				t.Errorf("expected event to be delivered, got %d pending", dispatcher.Pending())
			}
		})
	})
	t.Run("rejected events are dropped", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			backend := &fakeBackend{err: ErrRejected}
			observer := &countingObserver{}
			dispatcher := NewDispatcher(backend, Options{Observer: observer}, logger.Discard())

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()
			go dispatcher.Run(ctx)

			_ = dispatcher.TripStarted(testTrip)
			synctest.Wait()
			if dispatcher.Pending() != 0 {
				t.Errorf("expected rejected event to be dropped, got %d pending", dispatcher.Pending())
			}
			if observer.failed != 1 {
				t.Errorf("expected 1 failure, got %d", observer.failed)
			}
		})
	})
	t.Run("events are given up after max attempts", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			backend := &fakeBackend{err: errUnavailable}
			dispatcher := NewDispatcher(backend, Options{MaxAttempts: 2, RetryInterval: time.Second},
				logger.Discard())

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()
			go dispatcher.Run(ctx)

			_ = dispatcher.TripStarted(testTrip)
			synctest.Wait()
			if dispatcher.Pending() != 1 {
				t.Fatalf("expected 1 pending event, got %d", dispatcher.Pending())
			}
			time.Sleep(time.Second + time.Millisecond)
			synctest.Wait()
			if dispatcher.Pending() != 0 {
				t.Errorf("expected event to be given up, got %d pending", dispatcher.Pending())
			}
		})
	})
	t.Run("pending events are flushed on shutdown", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			backend := &fakeBackend{err: errUnavailable}
			dispatcher := NewDispatcher(backend, Options{RetryInterval: time.Hour}, logger.Discard())

			ctx, cancel := context.WithCancel(t.Context())
			go dispatcher.Run(ctx)

			_ = dispatcher.TripEnded(testTrip)
			synctest.Wait()
			backend.setErr(nil)

			cancel()
			synctest.Wait()
			if got := backend.kinds(); !equalKinds(got, []EventKind{EventTripEnded}) {
				t.Errorf("expected trip_ended to be flushed, got %v", got)
			}
			if !backend.isClosed() {
				t.Error("expected backend to be closed")
			}
		})
	})
}

func TestDispatcher_enqueue(t *testing.T) {
	t.Run("full queue reports persistence lag", func(t *testing.T) {
		dispatcher := NewDispatcher(&fakeBackend{}, Options{QueueSize: 1}, nil)
		if err := dispatcher.TripStarted(testTrip); err != nil {
			t.Fatalf("expected first event to be queued, got %s", err)
		}
		err := dispatcher.FixAccepted(testTrip.ID, geobus.Fix{}, 1)
		if !errors.Is(err, ErrPersistenceLag) {
			t.Errorf("expected persistence lag, got %v", err)
		}
	})
	t.Run("retry buffer drops the oldest event", func(t *testing.T) {
		dispatcher := NewDispatcher(&fakeBackend{}, Options{QueueSize: 1}, nil)
		for i := range dispatcher.maxPending + 1 {
			ev := newEvent(EventFixAccepted, testTrip.ID, time.Now())
			ev.DistanceKm = float64(i)
			dispatcher.addPending(pendingEvent{event: ev})
		}
		if dispatcher.Pending() != dispatcher.maxPending {
			t.Fatalf("expected %d pending events, got %d", dispatcher.maxPending, dispatcher.Pending())
		}
		if dispatcher.pending[0].event.DistanceKm != 1 {
			t.Errorf("expected oldest event to be dropped, got %+v", dispatcher.pending[0].event)
		}
	})
}

func TestDispatcher_ActiveTrip(t *testing.T) {
	t.Run("backend without store", func(t *testing.T) {
		dispatcher := NewDispatcher(&fakeBackend{}, Options{}, nil)
		if _, ok, err := dispatcher.ActiveTrip(t.Context()); ok || err != nil {
			t.Errorf("expected no trip, got %t, %v", ok, err)
		}
	})
	t.Run("backend with store", func(t *testing.T) {
		trip := testTrip
		backend := &storeBackend{fakeBackend: fakeBackend{trip: &trip}}
		dispatcher := NewDispatcher(backend, Options{}, nil)
		got, ok, err := dispatcher.ActiveTrip(t.Context())
		if err != nil || !ok || got.ID != testTrip.ID {
			t.Errorf("expected active trip, got %+v, %t, %v", got, ok, err)
		}
	})
}
