// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"math"
	"time"

	"github.com/wneessen/fuelwatch/internal/vartype"
)

// Fix is a single position sample reported by a provider.
type Fix struct {
	Lat       float64            `json:"lat"`
	Lon       float64            `json:"lon"`
	Accuracy  vartype.VarFloat64 `json:"accuracy_m"`
	Speed     vartype.VarFloat64 `json:"speed_mps"`
	Heading   vartype.VarFloat64 `json:"heading_deg"`
	Timestamp time.Time          `json:"timestamp"`
	Source    string             `json:"source"`
}

// Valid checks the coordinate ranges and, if known, that the accuracy is not negative.
func (f Fix) Valid() bool {
	if math.IsNaN(f.Lat) || math.IsNaN(f.Lon) {
		return false
	}
	if f.Lat < -90 || f.Lat > 90 || f.Lon < -180 || f.Lon > 180 {
		return false
	}
	if f.Accuracy.IsSet() && f.Accuracy.Value() < 0 {
		return false
	}
	return true
}

// Age returns how old the fix is relative to now.
func (f Fix) Age(now time.Time) time.Duration {
	return now.Sub(f.Timestamp)
}

// DistanceTo returns the great-circle distance in kilometers between f and other.
func (f Fix) DistanceTo(other Fix) float64 {
	return Distance(f.Lat, f.Lon, other.Lat, other.Lon)
}
