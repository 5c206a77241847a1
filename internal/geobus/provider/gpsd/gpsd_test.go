// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"errors"
	"testing"
	"testing/synctest"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/fuelwatch/internal/geobus"
)

const (
	testLat = -26.9906
	testLon = -48.6356
)

func TestNew(t *testing.T) {
	provider := New("localhost", 2947)
	if provider == nil {
		t.Fatal("expected provider to be non-nil")
	}
	if provider.addr != "localhost:2947" {
		t.Errorf("expected address to be localhost:2947, got %s", provider.addr)
	}
	if provider.Name() != name {
		t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
	}
}

func TestToFix(t *testing.T) {
	tests := []struct {
		name         string
		tpv          *gpsd.TPVReport
		highAccuracy bool
		ok           bool
		acc          float64
	}{
		{"nil report", nil, false, false, 0},
		{"no fix", &gpsd.TPVReport{Mode: gpsd.NoFix, Lat: testLat, Lon: testLon}, false, false, 0},
		{"2d fix", &gpsd.TPVReport{Mode: gpsd.Mode2D, Lat: testLat, Lon: testLon}, false, true, 25},
		{"2d fix with high accuracy", &gpsd.TPVReport{Mode: gpsd.Mode2D, Lat: testLat, Lon: testLon}, true, false, 0},
		{"3d fix with error estimates", &gpsd.TPVReport{Mode: gpsd.Mode3D, Lat: testLat, Lon: testLon, Epx: 3, Epy: 4},
			true, true, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fix, ok := toFix(tc.tpv, tc.highAccuracy)
			if ok != tc.ok {
				t.Fatalf("expected ok to be %t, got %t", tc.ok, ok)
			}
			if !ok {
				return
			}
			if fix.Lat != testLat || fix.Lon != testLon {
				t.Errorf("expected position %f,%f, got %f,%f", testLat, testLon, fix.Lat, fix.Lon)
			}
			if fix.Accuracy.Value() != tc.acc {
				t.Errorf("expected accuracy to be %f, got %s", tc.acc, fix.Accuracy)
			}
			if fix.Source != name {
				t.Errorf("expected source to be %s, got %s", name, fix.Source)
			}
		})
	}
	t.Run("speed and track are carried over", func(t *testing.T) {
		fix, ok := toFix(&gpsd.TPVReport{Mode: gpsd.Mode3D, Lat: testLat, Lon: testLon, Speed: 22.2, Track: 45}, false)
		if !ok {
			t.Fatal("expected fix to be usable")
		}
		if fix.Speed.Value() != 22.2 {
			t.Errorf("expected speed to be 22.2, got %s", fix.Speed)
		}
		if fix.Heading.Value() != 45 {
			t.Errorf("expected heading to be 45, got %s", fix.Heading)
		}
	})
}

func TestProvider_Stream(t *testing.T) {
	t.Run("dial failure ends the stream", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider := New("localhost", 2947)
			provider.dialFn = func(string, func(*gpsd.TPVReport)) (func() chan bool, error) {
				return nil, errors.New("connection refused")
			}
			out := provider.Stream(t.Context(), geobus.Options{})
			ev := <-out
			if ev.Err == nil || !errors.Is(ev.Err, geobus.ErrPositionUnavailable) {
				t.Fatalf("expected position unavailable, got %+v", ev)
			}
			if _, ok := <-out; ok {
				t.Error("expected stream to be closed")
			}
		})
	})
	t.Run("reports are streamed and duplicates suppressed", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			var filter func(*gpsd.TPVReport)
			done := make(chan bool)
			provider := New("localhost", 2947)
			provider.dialFn = func(_ string, f func(*gpsd.TPVReport)) (func() chan bool, error) {
				filter = f
				return func() chan bool { return done }, nil
			}

			out := provider.Stream(t.Context(), geobus.Options{})
			synctest.Wait()
			filter(&gpsd.TPVReport{Mode: gpsd.Mode3D, Lat: testLat, Lon: testLon})
			ev := <-out
			if ev.Err != nil {
				t.Fatalf("expected fix, got error: %s", ev.Err)
			}
			if ev.Fix.Lat != testLat {
				t.Errorf("expected latitude to be %f, got %f", testLat, ev.Fix.Lat)
			}

			filter(&gpsd.TPVReport{Mode: gpsd.Mode3D, Lat: testLat, Lon: testLon})
			filter(&gpsd.TPVReport{Mode: gpsd.Mode3D, Lat: testLat + 0.01, Lon: testLon})
			ev = <-out
			if ev.Fix.Lat != testLat+0.01 {
				t.Errorf("expected duplicate to be suppressed, got %+v", ev.Fix)
			}

			close(done)
			ev = <-out
			if ev.Err == nil || ev.Err.Kind != geobus.PositionUnavailable {
				t.Fatalf("expected watch end to be reported, got %+v", ev)
			}
		})
	})
}
