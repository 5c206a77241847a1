// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package owntracks

import (
	"context"
	"errors"
	"math"
	"testing"
	"testing/synctest"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/wneessen/fuelwatch/internal/geobus"
)

const testPayload = `{"_type":"location","tid":"fw","lat":-26.9906,"lon":-48.6356,"acc":12,"vel":72,"cog":45,"tst":1759320000}`

type fakeBroker struct {
	onMessage    func([]byte)
	onLost       func(error)
	disconnected bool
}

func (b *fakeBroker) connect(_ context.Context, onMessage func([]byte), onLost func(error)) (func(), error) {
	b.onMessage = onMessage
	b.onLost = onLost
	return func() { b.disconnected = true }, nil
}

func TestNew(t *testing.T) {
	provider := New(Config{Broker: "tcp://localhost:1883", Topic: "owntracks/+/+"})
	if provider == nil {
		t.Fatal("expected provider to be non-nil")
	}
	if provider.Name() != name {
		t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
	}
}

func TestParseLocation(t *testing.T) {
	t.Run("location payload is converted", func(t *testing.T) {
		fix, err := parseLocation([]byte(testPayload))
		if err != nil {
			t.Fatalf("failed to parse location: %s", err)
		}
		if fix.Lat != -26.9906 || fix.Lon != -48.6356 {
			t.Errorf("unexpected position %f,%f", fix.Lat, fix.Lon)
		}
		if fix.Accuracy.Value() != 12 {
			t.Errorf("expected accuracy to be 12, got %s", fix.Accuracy)
		}
		if math.Abs(fix.Speed.Value()-20) > 1e-9 {
			t.Errorf("expected speed to be 20 m/s, got %s", fix.Speed)
		}
		if fix.Heading.Value() != 45 {
			t.Errorf("expected heading to be 45, got %s", fix.Heading)
		}
		if !fix.Timestamp.Equal(time.Unix(1759320000, 0)) {
			t.Errorf("unexpected timestamp %s", fix.Timestamp)
		}
	})
	t.Run("missing optional fields stay unset", func(t *testing.T) {
		fix, err := parseLocation([]byte(`{"_type":"location","lat":1,"lon":2}`))
		if err != nil {
			t.Fatalf("failed to parse location: %s", err)
		}
		if fix.Accuracy.IsSet() || fix.Speed.IsSet() || fix.Heading.IsSet() {
			t.Errorf("expected optional values to be unset: %+v", fix)
		}
		if !fix.Timestamp.IsZero() {
			t.Errorf("expected timestamp to be zero, got %s", fix.Timestamp)
		}
	})
	t.Run("invalid payloads fail", func(t *testing.T) {
		tests := []struct {
			name    string
			payload string
		}{
			{"broken JSON", "NOT_JSON"},
			{"not a location", `{"_type":"transition","lat":1,"lon":2}`},
			{"out of range", `{"_type":"location","lat":100,"lon":2}`},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				if _, err := parseLocation([]byte(tc.payload)); err == nil {
					t.Error("expected parsing to fail")
				}
			})
		}
	})
}

func TestProvider_Stream(t *testing.T) {
	t.Run("messages are streamed and retained duplicates suppressed", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			broker := &fakeBroker{}
			provider := New(Config{})
			provider.connectFn = broker.connect

			ctx, cancel := context.WithCancel(t.Context())
			out := provider.Stream(ctx, geobus.Options{})
			synctest.Wait()

			broker.onMessage([]byte(testPayload))
			ev := <-out
			if ev.Err != nil {
				t.Fatalf("unexpected error: %s", ev.Err)
			}
			if ev.Fix.Lat != -26.9906 {
				t.Errorf("unexpected latitude %f", ev.Fix.Lat)
			}

			broker.onMessage([]byte(testPayload))
			broker.onMessage([]byte(`{"_type":"location","lat":-26.98,"lon":-48.6356,"tst":1759320010}`))
			ev = <-out
			if ev.Fix.Lat != -26.98 {
				t.Errorf("expected duplicate to be suppressed, got %+v", ev.Fix)
			}

			cancel()
			synctest.Wait()
			if !broker.disconnected {
				t.Error("expected broker connection to be closed")
			}
		})
	})
	t.Run("high accuracy drops imprecise locations", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			broker := &fakeBroker{}
			provider := New(Config{})
			provider.connectFn = broker.connect

			out := provider.Stream(t.Context(), geobus.Options{HighAccuracy: true})
			synctest.Wait()
			broker.onMessage([]byte(`{"_type":"location","lat":1,"lon":1,"acc":1500,"tst":1759320000}`))
			broker.onMessage([]byte(`{"_type":"location","lat":2,"lon":2,"acc":15,"tst":1759320010}`))
			ev := <-out
			if ev.Fix.Lat != 2 {
				t.Errorf("expected imprecise location to be dropped, got %+v", ev.Fix)
			}
		})
	})
	t.Run("lost connection ends the stream", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			broker := &fakeBroker{}
			provider := New(Config{})
			provider.connectFn = broker.connect

			out := provider.Stream(t.Context(), geobus.Options{})
			synctest.Wait()
			broker.onLost(errors.New("EOF"))
			ev := <-out
			if ev.Err == nil || ev.Err.Kind != geobus.PositionUnavailable {
				t.Fatalf("expected position unavailable, got %+v", ev)
			}
			if _, ok := <-out; ok {
				t.Error("expected stream to be closed")
			}
		})
	})
	t.Run("rejected credentials are reported as denied", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider := New(Config{})
			provider.connectFn = func(context.Context, func([]byte), func(error)) (func(), error) {
				return nil, packets.ErrorRefusedNotAuthorised
			}
			ev := <-provider.Stream(t.Context(), geobus.Options{})
			if ev.Err == nil || !errors.Is(ev.Err, geobus.ErrPermissionDenied) {
				t.Fatalf("expected permission denied, got %+v", ev)
			}
		})
	})
	t.Run("unreachable broker is reported as unavailable", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider := New(Config{})
			provider.connectFn = func(context.Context, func([]byte), func(error)) (func(), error) {
				return nil, errors.New("connection refused")
			}
			ev := <-provider.Stream(t.Context(), geobus.Options{})
			if ev.Err == nil || !errors.Is(ev.Err, geobus.ErrPositionUnavailable) {
				t.Fatalf("expected position unavailable, got %+v", ev)
			}
		})
	})
}
