// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wneessen/fuelwatch/internal/recorder"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	published []published
	err       error
	closed    bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool,
	msg amqp.Publishing,
) error {
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestBackend_Write(t *testing.T) {
	at := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

	t.Run("event is published", func(t *testing.T) {
		ch := &fakeChannel{}
		backend := newBackend(ch, "fuelwatch.events")
		ev := recorder.Event{ID: "ev-1", Kind: recorder.EventTripStarted, TripID: "trip-1", At: at}
		if err := backend.Write(t.Context(), ev); err != nil {
			t.Fatalf("failed to write event: %s", err)
		}
		if len(ch.published) != 1 {
			t.Fatalf("expected 1 message, got %d", len(ch.published))
		}
		got := ch.published[0]
		if got.exchange != "fuelwatch.events" || got.key != "trip_started" {
			t.Errorf("unexpected exchange %q or key %q", got.exchange, got.key)
		}
		if got.msg.MessageId != "ev-1" || got.msg.DeliveryMode != amqp.Persistent || !got.msg.Timestamp.Equal(at) {
			t.Errorf("unexpected message properties %+v", got.msg)
		}
		var decoded recorder.Event
		if err := json.Unmarshal(got.msg.Body, &decoded); err != nil {
			t.Fatal(err)
		}
		if decoded.TripID != "trip-1" {
			t.Errorf("unexpected trip id %q", decoded.TripID)
		}
	})
	t.Run("publish errors are retried", func(t *testing.T) {
		backend := newBackend(&fakeChannel{err: amqp.ErrClosed}, "fuelwatch.events")
		err := backend.Write(t.Context(), recorder.Event{Kind: recorder.EventTripEnded, TripID: "trip-1"})
		if !errors.Is(err, amqp.ErrClosed) || errors.Is(err, recorder.ErrRejected) {
			t.Errorf("expected retryable error, got %v", err)
		}
	})
	t.Run("events without kind are rejected", func(t *testing.T) {
		backend := newBackend(&fakeChannel{}, "fuelwatch.events")
		if err := backend.Write(t.Context(), recorder.Event{TripID: "trip-1"}); !errors.Is(err, recorder.ErrRejected) {
			t.Errorf("expected rejection, got %v", err)
		}
	})
	t.Run("close closes the channel", func(t *testing.T) {
		ch := &fakeChannel{}
		backend := newBackend(ch, "fuelwatch.events")
		if err := backend.Close(); err != nil || !ch.closed {
			t.Errorf("expected channel to be closed, got %v", err)
		}
		if backend.Name() != name {
			t.Errorf("unexpected name %s", backend.Name())
		}
	})
}
