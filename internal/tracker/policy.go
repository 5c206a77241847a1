// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package tracker

// thresholdSlack absorbs float rounding of the summed increments
const thresholdSlack = 1e-9

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Fire       bool
	DistanceKm float64
	NextAtKm   float64
}

// Policy decides when a trip has crossed its notification interval.
type Policy struct{}

// Evaluate fires once the distance since the last notification reaches the trip interval.
func (Policy) Evaluate(trip Trip) Decision {
	next := trip.NextNotificationAtKm()
	return Decision{
		Fire:       trip.NotificationIntervalKm > 0 && trip.DistanceTraveledKm-trip.LastNotifiedAtKm >= trip.NotificationIntervalKm-thresholdSlack,
		DistanceKm: trip.DistanceTraveledKm,
		NextAtKm:   next,
	}
}
