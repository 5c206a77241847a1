// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

// FixState remembers the last fix a provider emitted, so that re-delivered reports (gpsd
// sending the same TPV for several devices, retained MQTT messages after a reconnect) are
// not passed on twice.
type FixState struct {
	last     Fix
	haveLast bool
}

// Update stores f as the last emitted fix.
func (s *FixState) Update(f Fix) {
	s.last = f
	s.haveLast = true
}

// HasChanged reports whether f differs from the last emitted fix in time or position.
func (s *FixState) HasChanged(f Fix) bool {
	if !s.haveLast {
		return true
	}
	if !f.Timestamp.Equal(s.last.Timestamp) {
		return true
	}
	return Truncate(f.Lat, TruncPrecision) != Truncate(s.last.Lat, TruncPrecision) ||
		Truncate(f.Lon, TruncPrecision) != Truncate(s.last.Lon, TruncPrecision)
}
