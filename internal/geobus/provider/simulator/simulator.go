// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package simulator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/wneessen/fuelwatch/internal/geobus"
	"github.com/wneessen/fuelwatch/internal/vartype"
)

const (
	name = "simulator"

	// arrivalKm is the remaining distance at which the vehicle counts as arrived.
	arrivalKm = 0.1
	// accuracy is the accuracy reported for every simulated fix.
	accuracy = 10.0
)

// Config describes a simulated drive.
type Config struct {
	StartLat, StartLon   float64
	TargetLat, TargetLon float64
	SpeedKmh             float64
	UpdateInterval       time.Duration
}

// Provider simulates a vehicle driving at constant speed on the great circle from a start to
// a target position. The position is kept across sampling sessions. After arrival the vehicle
// stays parked at the target.
type Provider struct {
	name   string
	config Config

	mu       sync.Mutex
	lat, lon float64
}

// New returns a simulator Provider for the given drive.
func New(config Config) *Provider {
	if config.UpdateInterval <= 0 {
		config.UpdateInterval = time.Second * 10
	}
	return &Provider{
		name:   name,
		config: config,
		lat:    config.StartLat,
		lon:    config.StartLon,
	}
}

// Name returns the name of the provider.
func (p *Provider) Name() string {
	return p.name
}

// Interval returns the time between two simulated fixes.
func (p *Provider) Interval() time.Duration {
	return p.config.UpdateInterval
}

// Stream emits the current simulated position right away and an advanced one every update
// interval.
func (p *Provider) Stream(ctx context.Context, _ geobus.Options) <-chan geobus.Event {
	out := make(chan geobus.Event)
	go func() {
		defer close(out)

		fix := p.current()
		for {
			select {
			case <-ctx.Done():
				return
			case out <- geobus.Event{Fix: fix}:
			}
			if !geobus.SleepOrDone(ctx, p.config.UpdateInterval) {
				return
			}
			fix = p.advance()
		}
	}()
	return out
}

// Arrived reports whether the simulated vehicle reached its target.
func (p *Provider) Arrived() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remaining() < arrivalKm
}

func (p *Provider) current() geobus.Fix {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fix(false, 0)
}

// advance moves the vehicle by one update interval and returns the new fix.
func (p *Provider) advance() geobus.Fix {
	p.mu.Lock()
	defer p.mu.Unlock()

	remaining := p.remaining()
	if remaining < arrivalKm {
		return p.fix(false, 0)
	}

	step := p.config.SpeedKmh * p.config.UpdateInterval.Hours()
	bearing := geobus.Bearing(p.lat, p.lon, p.config.TargetLat, p.config.TargetLon)
	if step >= remaining {
		p.lat, p.lon = p.config.TargetLat, p.config.TargetLon
	} else {
		p.lat, p.lon = geobus.Destination(p.lat, p.lon, bearing, step)
	}
	return p.fix(true, bearing)
}

func (p *Provider) remaining() float64 {
	return geobus.Distance(p.lat, p.lon, p.config.TargetLat, p.config.TargetLon)
}

// fix must be called with the lock held.
func (p *Provider) fix(moving bool, heading float64) geobus.Fix {
	fix := geobus.Fix{
		Lat:       geobus.Truncate(p.lat, geobus.TruncPrecision),
		Lon:       geobus.Truncate(p.lon, geobus.TruncPrecision),
		Accuracy:  vartype.NewVariable(accuracy),
		Timestamp: time.Now(),
		Source:    p.name,
	}
	if moving && p.config.SpeedKmh > 0 {
		fix.Speed.Set(p.config.SpeedKmh / 3.6)
		fix.Heading.Set(math.Round(heading*10) / 10)
	} else {
		fix.Speed.Set(0)
	}
	return fix
}
