// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package tracker

import (
	"math"

	"github.com/wneessen/fuelwatch/internal/geobus"
)

// Discount names the reason a fix did not contribute distance.
type Discount string

const (
	DiscountNone       Discount = ""
	DiscountInvalid    Discount = "invalid"
	DiscountInaccurate Discount = "inaccurate"
	DiscountJump       Discount = "jump"
	DiscountTime       Discount = "time"
)

// AccumulatorConfig configures the noise filters of the Accumulator.
type AccumulatorConfig struct {
	// MaxAccuracyMeters rejects fixes with a worse accuracy. 0 accepts any accuracy.
	MaxAccuracyMeters float64
	// MaxSpeedKmh rejects fixes that imply a higher speed than this since the previous
	// accepted fix. 0 disables the check.
	MaxSpeedKmh float64
}

// Accumulator computes the distance contributed by consecutive fixes.
type Accumulator struct {
	config AccumulatorConfig
}

func NewAccumulator(config AccumulatorConfig) *Accumulator {
	return &Accumulator{config: config}
}

// Usable reports whether a fix may serve as a baseline at all.
func (a *Accumulator) Usable(fix geobus.Fix) Discount {
	if !fix.Valid() {
		return DiscountInvalid
	}
	if a.config.MaxAccuracyMeters > 0 && fix.Accuracy.IsSet() && fix.Accuracy.Value() > a.config.MaxAccuracyMeters {
		return DiscountInaccurate
	}
	return DiscountNone
}

// Accumulate returns the distance in km between prev and next. If next is discounted the
// increment is 0 and accepted is false; the caller keeps prev as its baseline.
func (a *Accumulator) Accumulate(prev, next geobus.Fix) (incrementKm float64, accepted bool) {
	inc, reason := a.Check(prev, next)
	return inc, reason == DiscountNone
}

// Check works like Accumulate but names the reason for a discount.
func (a *Accumulator) Check(prev, next geobus.Fix) (float64, Discount) {
	if reason := a.Usable(next); reason != DiscountNone {
		return 0, reason
	}

	dist := prev.DistanceTo(next)
	if math.IsNaN(dist) || dist < 0 {
		return 0, DiscountInvalid
	}
	if dist == 0 {
		return 0, DiscountNone
	}
	if prev.Timestamp.IsZero() || next.Timestamp.IsZero() {
		return dist, DiscountNone
	}

	elapsed := next.Timestamp.Sub(prev.Timestamp)
	if elapsed <= 0 {
		return 0, DiscountTime
	}
	if a.config.MaxSpeedKmh > 0 && dist/elapsed.Hours() > a.config.MaxSpeedKmh {
		return 0, DiscountJump
	}
	return dist, DiscountNone
}
