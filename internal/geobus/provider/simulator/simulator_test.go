// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package simulator

import (
	"math"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/fuelwatch/internal/geobus"
)

var testConfig = Config{
	StartLat:       -26.9906,
	StartLon:       -48.6356,
	TargetLat:      -23.5505,
	TargetLon:      -46.6333,
	SpeedKmh:       80,
	UpdateInterval: time.Second * 10,
}

func TestNew(t *testing.T) {
	provider := New(testConfig)
	if provider.Name() != name {
		t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
	}
	if provider.Interval() != testConfig.UpdateInterval {
		t.Errorf("expected interval to be %s, got %s", testConfig.UpdateInterval, provider.Interval())
	}
	if New(Config{}).Interval() != time.Second*10 {
		t.Error("expected zero interval to fall back to 10s")
	}
}

func TestProvider_advance(t *testing.T) {
	t.Run("vehicle moves towards the target at the configured speed", func(t *testing.T) {
		provider := New(testConfig)
		start := provider.current()
		var fix geobus.Fix
		for i := 0; i < 45; i++ {
			fix = provider.advance()
		}
		// 45 steps of 10s at 80 km/h
		want := 80.0 * 450 / 3600
		got := geobus.Distance(start.Lat, start.Lon, fix.Lat, fix.Lon)
		if math.Abs(got-want) > 0.01 {
			t.Errorf("expected to have travelled %.3f km, got %.3f km", want, got)
		}
		if math.Abs(fix.Speed.Value()-80/3.6) > 1e-9 {
			t.Errorf("expected speed of %f m/s, got %s", 80/3.6, fix.Speed)
		}
		if !fix.Heading.IsSet() {
			t.Error("expected heading to be set while moving")
		}
		if fix.Accuracy.Value() != accuracy {
			t.Errorf("expected accuracy to be %f, got %s", accuracy, fix.Accuracy)
		}
	})
	t.Run("vehicle stops at the target", func(t *testing.T) {
		cfg := testConfig
		cfg.StartLat, cfg.StartLon = geobus.Destination(cfg.TargetLat, cfg.TargetLon, 180, 0.5)
		provider := New(cfg)
		for i := 0; i < 5; i++ {
			provider.advance()
		}
		if !provider.Arrived() {
			t.Fatal("expected vehicle to have arrived")
		}
		fix := provider.advance()
		if fix.Lat != geobus.Truncate(cfg.TargetLat, geobus.TruncPrecision) {
			t.Errorf("expected vehicle to be parked at the target, got %f", fix.Lat)
		}
		if fix.Speed.Value() != 0 {
			t.Errorf("expected parked vehicle to report zero speed, got %s", fix.Speed)
		}
		if fix.Heading.IsSet() {
			t.Error("expected parked vehicle to report no heading")
		}
	})
}

func TestProvider_Stream(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		provider := New(testConfig)
		out := provider.Stream(t.Context(), geobus.Options{})
		start := time.Now()

		first := <-out
		if first.Err != nil {
			t.Fatalf("unexpected error: %s", first.Err)
		}
		if math.Abs(first.Fix.Lat-testConfig.StartLat) > 1e-5 {
			t.Errorf("expected first fix at the start, got %f", first.Fix.Lat)
		}
		second := <-out
		if elapsed := time.Since(start); elapsed != testConfig.UpdateInterval {
			t.Errorf("expected second fix after %s, got %s", testConfig.UpdateInterval, elapsed)
		}
		step := geobus.Distance(first.Fix.Lat, first.Fix.Lon, second.Fix.Lat, second.Fix.Lon)
		if math.Abs(step-80.0*10/3600) > 0.001 {
			t.Errorf("unexpected step length %f km", step)
		}
	})
}
