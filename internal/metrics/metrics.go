// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

// Package metrics provides Prometheus instrumentation for the sharing
// pipeline and the health monitor. Metrics are exposed at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sharing pipeline metrics

	SharesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_shares_total",
			Help: "Total per-recipient share outcomes",
		},
		[]string{"state"}, // "delivered", "queued"
	)

	CaptureFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_capture_failures_total",
			Help: "Geolocation capture failures (terminal, not queued)",
		},
	)

	RemotePersistFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_remote_persist_failures_total",
			Help: "Remote database insert failures by operation form",
		},
		[]string{"operation"}, // "rpc", "direct"
	)

	PendingShares = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_pending_shares",
			Help: "Current depth of the pending-share retry queue",
		},
	)

	PendingShareAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beacon_pending_share_attempts",
			Help:    "Attempt count observed when a pending share is finally delivered",
			Buckets: []float64{1, 2, 3, 5, 10, 25, 50},
		},
	)

	ReconcilePasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_reconcile_passes_total",
			Help: "Reconciliation passes by result",
		},
		[]string{"result"}, // "completed", "skipped_in_flight"
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beacon_reconcile_duration_seconds",
			Help:    "Duration of a reconciliation pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Cache metrics

	CacheFaults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_cache_faults_total",
			Help: "Storage faults swallowed at the cache manager boundary",
		},
		[]string{"operation"},
	)

	CachedLocations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_cached_locations",
			Help: "Number of locations currently in the local cache",
		},
	)

	// Health monitor metrics

	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_health_checks_total",
			Help: "System health checks by outcome",
		},
		[]string{"outcome"}, // "healthy", "degraded", "cached"
	)

	ServiceEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_service_events_total",
			Help: "Service events recorded by service and severity",
		},
		[]string{"service", "severity"},
	)

	// Delivery channel metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beacon_circuit_breaker_state",
			Help: "Delivery circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	DeliveryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_delivery_requests_total",
			Help: "Delivery channel requests by result",
		},
		[]string{"result"}, // "success", "failure", "rejected"
	)
)
