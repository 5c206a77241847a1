// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package metrics exposes tracking, lookup, notification and recorder counters in the
// Prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wneessen/fuelwatch/internal/notify"
	"github.com/wneessen/fuelwatch/internal/tracker"
)

const namespace = "fuelwatch"

var states = []tracker.State{tracker.StateIdle, tracker.StateTracking, tracker.StateTripActive}

// Collector implements tracker.Observer and recorder.Observer on its own registry.
type Collector struct {
	reg *prometheus.Registry

	State          *prometheus.GaugeVec
	TripsStarted   prometheus.Counter
	TripsEnded     *prometheus.CounterVec // result label: completed|aborted
	DistanceKm     prometheus.Counter
	TripDistanceKm prometheus.Gauge
	FixesAccepted  prometheus.Counter
	FixesDiscarded *prometheus.CounterVec // reason label: invalid|inaccurate|jump|time
	Lookups        *prometheus.CounterVec // outcome label: found|none|failed
	LookupDuration prometheus.Histogram
	Notifications  *prometheus.CounterVec // channel label: native|fallback
	Statuses       *prometheus.CounterVec
	Recorded       *prometheus.CounterVec // backend and result labels
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current tracking state, 0 for all others.",
		}, []string{"state"}),
		TripsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trips_started_total",
			Help:      "Total trips started or resumed.",
		}),
		TripsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trips_ended_total",
			Help:      "Total trips ended, by result.",
		}, []string{"result"}),
		DistanceKm: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "distance_km_total",
			Help:      "Total distance traveled on trips in kilometers.",
		}),
		TripDistanceKm: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trip_distance_km",
			Help:      "Distance traveled on the active trip in kilometers.",
		}),
		FixesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fixes_accepted_total",
			Help:      "Total fixes that contributed distance.",
		}),
		FixesDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fixes_discarded_total",
			Help:      "Total fixes that did not contribute distance, by reason.",
		}, []string{"reason"}),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_lookups_total",
			Help:      "Total price lookups, by outcome.",
		}, []string{"outcome"}),
		LookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "price_lookup_duration_seconds",
			Help:      "Duration of price lookups.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_presented_total",
			Help:      "Total notifications presented, by channel.",
		}, []string{"channel"}),
		Statuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_reports_total",
			Help:      "Total status reports, by kind.",
		}, []string{"kind"}),
		Recorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_writes_total",
			Help:      "Total recorder writes, by backend and result.",
		}, []string{"backend", "result"}),
	}

	reg.MustRegister(
		c.State, c.TripsStarted, c.TripsEnded, c.DistanceKm, c.TripDistanceKm,
		c.FixesAccepted, c.FixesDiscarded, c.Lookups, c.LookupDuration,
		c.Notifications, c.Statuses, c.Recorded,
	)
	c.StateChanged(tracker.StateIdle)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

func (c *Collector) StateChanged(state tracker.State) {
	for _, s := range states {
		value := 0.0
		if s == state {
			value = 1
		}
		c.State.WithLabelValues(s.String()).Set(value)
	}
}

func (c *Collector) TripStarted() {
	c.TripsStarted.Inc()
	c.TripDistanceKm.Set(0)
}

func (c *Collector) TripEnded(abnormal bool) {
	result := string(tracker.TripStatusCompleted)
	if abnormal {
		result = string(tracker.TripStatusAborted)
	}
	c.TripsEnded.WithLabelValues(result).Inc()
}

func (c *Collector) FixAccepted(incrementKm, totalKm float64) {
	c.FixesAccepted.Inc()
	c.DistanceKm.Add(incrementKm)
	c.TripDistanceKm.Set(totalKm)
}

func (c *Collector) FixDiscounted(reason tracker.Discount) {
	if reason == tracker.DiscountNone {
		return
	}
	c.FixesDiscarded.WithLabelValues(string(reason)).Inc()
}

func (c *Collector) LookupFinished(outcome tracker.LookupOutcome, took time.Duration) {
	c.Lookups.WithLabelValues(string(outcome)).Inc()
	c.LookupDuration.Observe(took.Seconds())
}

// NotificationPresented counts a notification shown on channel.
func (c *Collector) NotificationPresented(channel notify.Channel) {
	c.Notifications.WithLabelValues(string(channel)).Inc()
}

// StatusReported counts a status report.
func (c *Collector) StatusReported(status tracker.Status) {
	c.Statuses.WithLabelValues(status.Kind.String()).Inc()
}

func (c *Collector) Delivered(backend string) {
	c.Recorded.WithLabelValues(backend, "ok").Inc()
}

func (c *Collector) Failed(backend string) {
	c.Recorded.WithLabelValues(backend, "error").Inc()
}
