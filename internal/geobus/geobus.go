// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geobus implements the position sampling side of fuelwatch. Providers stream raw
// fixes, the Sampler turns a provider stream into a cancellable Subscription.
package geobus

import (
	"context"
	"math"
	"time"
)

const (
	InitialBackoff = time.Second
	MaxBackoff     = 30 * time.Second
	TruncPrecision = 6

	// AccuracyHigh is the accuracy a non-GPS provider must reach to satisfy Options.HighAccuracy.
	AccuracyHigh = 100.0
)

// Provider defines an interface for position sources. Stream must close the returned channel
// once ctx is done or after it emitted an error event.
type Provider interface {
	Name() string
	Stream(ctx context.Context, opts Options) <-chan Event
}

// Locator is implemented by sources that can answer a one-shot position request.
type Locator interface {
	CurrentPosition(ctx context.Context) (Fix, error)
}

// Options configures a sampling session.
type Options struct {
	// HighAccuracy asks the provider for its best fix quality.
	HighAccuracy bool
	// Timeout is the longest the session waits for a usable fix, measured from start or
	// from the previous fix. Zero waits forever.
	Timeout time.Duration
	// MaxFixAge drops fixes whose timestamp is older than this. Zero accepts any age.
	MaxFixAge time.Duration
}

// Event is either a Fix or a terminal error of the sampling session.
type Event struct {
	Fix Fix
	Err *GeoError
}

// SleepOrDone waits for d and reports whether it did so without ctx being done.
func SleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// NextBackoff doubles d, capped at MaxBackoff.
func NextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > MaxBackoff {
		return MaxBackoff
	}
	return d
}

func Truncate(x float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Trunc(x*p) / p
}
