// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package recorder

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
)

func TestMulti(t *testing.T) {
	t.Run("events reach every backend", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			first, second := &fakeBackend{name: "first"}, &fakeBackend{name: "second"}
			multi := NewMulti(NewDispatcher(first, Options{}, nil), NewDispatcher(second, Options{}, nil))

			ctx, cancel := context.WithCancel(t.Context())
			done := make(chan struct{})
			go func() {
				multi.Run(ctx)
				close(done)
			}()

			if err := multi.TripStarted(testTrip); err != nil {
				t.Fatal(err)
			}
			if err := multi.ThresholdCommitted(testTrip.ID, 50); err != nil {
				t.Fatal(err)
			}
			synctest.Wait()
			want := []EventKind{EventTripStarted, EventThreshold}
			for _, backend := range []*fakeBackend{first, second} {
				if !equalKinds(backend.kinds(), want) {
					t.Errorf("expected %s to receive %v, got %v", backend.Name(), want, backend.kinds())
				}
			}
			first.mu.Lock()
			mark := first.written[1].MarkKm
			first.mu.Unlock()
			if mark != 50 {
				t.Errorf("expected mark of 50 km, got %f", mark)
			}

			cancel()
			<-done
			if !first.isClosed() || !second.isClosed() {
				t.Error("expected all backends to be closed")
			}
		})
	})
	t.Run("one lagging backend does not block the others", func(t *testing.T) {
		lagging := NewDispatcher(&fakeBackend{name: "lagging"}, Options{QueueSize: 1}, nil)
		healthy := NewDispatcher(&fakeBackend{name: "healthy"}, Options{QueueSize: 2}, nil)
		multi := NewMulti(lagging, healthy)

		_ = multi.TripStarted(testTrip)
		err := multi.TripEnded(testTrip)
		if !errors.Is(err, ErrPersistenceLag) {
			t.Errorf("expected persistence lag, got %v", err)
		}
		if len(healthy.queue) != 2 {
			t.Errorf("expected healthy backend to queue both events, got %d", len(healthy.queue))
		}
	})
	t.Run("active trip comes from the first backend that knows it", func(t *testing.T) {
		trip := testTrip
		multi := NewMulti(
			NewDispatcher(&fakeBackend{}, Options{}, nil),
			NewDispatcher(&storeBackend{fakeBackend: fakeBackend{trip: &trip}}, Options{}, nil),
		)
		got, ok, err := multi.ActiveTrip(t.Context())
		if err != nil || !ok || got.ID != trip.ID {
			t.Errorf("expected active trip, got %+v, %t, %v", got, ok, err)
		}
	})
	t.Run("no active trip anywhere", func(t *testing.T) {
		multi := NewMulti(NewDispatcher(&storeBackend{}, Options{}, nil))
		if _, ok, err := multi.ActiveTrip(t.Context()); ok || err != nil {
			t.Errorf("expected no trip, got %t, %v", ok, err)
		}
	})
}
