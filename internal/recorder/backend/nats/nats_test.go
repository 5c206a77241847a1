// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nats

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/wneessen/fuelwatch/internal/recorder"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	messages []message
	err      error
}

func (p *fakePublisher) Publish(subj string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message{subject: subj, data: data})
	return nil
}

func TestBackend_Write(t *testing.T) {
	t.Run("event is published to its subject", func(t *testing.T) {
		pub := &fakePublisher{}
		backend := newBackend(pub, "fuel.watch")
		ev := recorder.Event{ID: "ev-1", Kind: recorder.EventFixAccepted, TripID: "trip 1", DistanceKm: 3.2}
		if err := backend.Write(t.Context(), ev); err != nil {
			t.Fatalf("failed to write event: %s", err)
		}
		if len(pub.messages) != 1 {
			t.Fatalf("expected 1 message, got %d", len(pub.messages))
		}
		if want := "fuel_watch.fix_accepted.trip_1"; pub.messages[0].subject != want {
			t.Errorf("expected subject %q, got %q", want, pub.messages[0].subject)
		}
		var got recorder.Event
		if err := json.Unmarshal(pub.messages[0].data, &got); err != nil {
			t.Fatal(err)
		}
		if got.ID != "ev-1" || got.DistanceKm != 3.2 {
			t.Errorf("unexpected event %+v", got)
		}
	})
	t.Run("publish errors are retried", func(t *testing.T) {
		backend := newBackend(&fakePublisher{err: errors.New("nats: connection closed")}, "fuelwatch")
		err := backend.Write(t.Context(), recorder.Event{Kind: recorder.EventTripEnded, TripID: "trip-1"})
		if err == nil || errors.Is(err, recorder.ErrRejected) {
			t.Errorf("expected retryable error, got %v", err)
		}
	})
	t.Run("events without trip are rejected", func(t *testing.T) {
		backend := newBackend(&fakePublisher{}, "fuelwatch")
		err := backend.Write(t.Context(), recorder.Event{Kind: recorder.EventTripEnded})
		if !errors.Is(err, recorder.ErrRejected) {
			t.Errorf("expected rejection, got %v", err)
		}
	})
	t.Run("close without connection", func(t *testing.T) {
		backend := newBackend(&fakePublisher{}, "fuelwatch")
		if err := backend.Close(); err != nil {
			t.Error(err)
		}
		if backend.Name() != name {
			t.Errorf("unexpected name %s", backend.Name())
		}
	})
}

func TestSubjectToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"trip-1", "trip-1"},
		{" a.b ", "a_b"},
		{"x>*y/z", "x__y_z"},
		{"", "_"},
	}
	for _, tc := range tests {
		if got := subjectToken(tc.in); got != tc.want {
			t.Errorf("subjectToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
