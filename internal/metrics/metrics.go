// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

// Package metrics declares the Prometheus collectors exported on /metrics.
//
// Collectors are registered with the default registry through promauto.
// Callers use the Record* helpers rather than touching collectors directly,
// so label sets stay consistent.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailguard_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trailguard_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trailguard_api_active_requests",
			Help: "Requests currently being served",
		},
	)

	// Event store
	StoreAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailguard_store_appends_total",
			Help: "Entries appended to the event log by kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: persisted, memory_only
	)

	StoreEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trailguard_store_evictions_total",
			Help: "Entries evicted from the head of the event log",
		},
	)

	StoreAppendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trailguard_store_append_duration_seconds",
			Help:    "Time spent appending and persisting one entry",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	StoreEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trailguard_store_entries",
			Help: "Entries currently held in the event log",
		},
	)

	// Broadcast bus
	BusPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trailguard_bus_published_total",
			Help: "Entries published on the broadcast bus",
		},
	)

	BusDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailguard_bus_dropped_total",
			Help: "Entries dropped for a subscriber whose queue was full",
		},
		[]string{"subscriber"},
	)

	BusSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trailguard_bus_subscribers",
			Help: "Active broadcast bus subscriptions",
		},
	)

	// Geofence
	GeofenceSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailguard_geofence_samples_total",
			Help: "Position samples by evaluation result",
		},
		[]string{"result"}, // inside, deviated, suppressed, no_area, invalid, stale
	)

	GeofenceTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailguard_geofence_transitions_total",
			Help: "Subject state transitions",
		},
		[]string{"to"},
	)

	// Incident capture
	CaptureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailguard_capture_total",
			Help: "Incident captures by outcome",
		},
		[]string{"outcome"}, // persisted, memory_only, total_failure, in_progress
	)

	CaptureSourceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailguard_capture_source_total",
			Help: "Evidence source results",
		},
		[]string{"source", "status"},
	)

	CaptureDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trailguard_capture_duration_seconds",
			Help:    "Wall time of one incident capture",
			Buckets: []float64{.1, .5, 1, 2, 4, 6, 8, 10, 15},
		},
	)

	// WebSocket consoles
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trailguard_ws_connections",
			Help: "Connected monitoring consoles",
		},
	)

	WSMessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailguard_ws_messages_sent_total",
			Help: "Messages pushed to consoles by type",
		},
		[]string{"type"},
	)

	DashboardReconciledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trailguard_dashboard_reconciled_total",
			Help: "Entries a console first learned about from a reconciliation poll",
		},
	)

	// Relay
	RelayMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailguard_relay_messages_total",
			Help: "Messages exchanged with NATS by direction and outcome",
		},
		[]string{"direction", "outcome"},
	)

	// Notifier
	NotifyDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailguard_notify_deliveries_total",
			Help: "Escalation deliveries by notifier and outcome",
		},
		[]string{"notifier", "outcome"},
	)

	// Circuit breakers
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trailguard_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordAPIRequest records one served request.
func RecordAPIRequest(method, endpoint, status string, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
		return
	}
	APIActiveRequests.Dec()
}

// RecordAppend records one event log append.
func RecordAppend(kind string, persisted bool, d time.Duration) {
	outcome := "persisted"
	if !persisted {
		outcome = "memory_only"
	}
	StoreAppendsTotal.WithLabelValues(kind, outcome).Inc()
	StoreAppendDuration.Observe(d.Seconds())
}

// RecordEviction records n entries evicted from the log head.
func RecordEviction(n int) {
	if n > 0 {
		StoreEvictionsTotal.Add(float64(n))
	}
}

// RecordBusDrop records an entry dropped for subscriber.
func RecordBusDrop(subscriber string) {
	BusDroppedTotal.WithLabelValues(subscriber).Inc()
}

// RecordGeofenceSample records the evaluation result of one sample.
func RecordGeofenceSample(result string) {
	GeofenceSamplesTotal.WithLabelValues(result).Inc()
}

// RecordGeofenceTransition records a state change to the given state.
func RecordGeofenceTransition(to string) {
	GeofenceTransitionsTotal.WithLabelValues(to).Inc()
}

// RecordCapture records a finished capture.
func RecordCapture(outcome string, d time.Duration) {
	CaptureTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		CaptureDuration.Observe(d.Seconds())
	}
}

// RecordCaptureSource records the result of one evidence source.
func RecordCaptureSource(source, status string) {
	CaptureSourceTotal.WithLabelValues(source, status).Inc()
}

// RecordRelay records a relay message.
func RecordRelay(direction, outcome string) {
	RelayMessagesTotal.WithLabelValues(direction, outcome).Inc()
}

// RecordNotify records an escalation delivery attempt.
func RecordNotify(notifier string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	NotifyDeliveriesTotal.WithLabelValues(notifier, outcome).Inc()
}
