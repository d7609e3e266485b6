// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

// Package monitor implements the service health monitor: it records
// timestamped events per external dependency, derives per-dependency health
// signals, and throttles the expensive system health check.
package monitor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/educonnect/beacon/internal/logging"
	"github.com/educonnect/beacon/internal/metrics"
	"github.com/educonnect/beacon/internal/models"
	"github.com/educonnect/beacon/internal/store"
)

const (
	// maxEvents caps the stored event collection, newest-first.
	maxEvents = 50

	// resolvedRetention is how long resolved events are kept before
	// garbage collection. Unresolved events are never auto-removed.
	resolvedRetention = 7 * 24 * time.Hour

	// deliveryFailureWindow: one unresolved ERROR delivery event inside
	// this window marks the channel unhealthy.
	deliveryFailureWindow = 30 * time.Minute

	// staleSyncThreshold: pending locations older than this since the last
	// reconciliation pass mark location sync unhealthy.
	staleSyncThreshold = 5 * time.Minute

	// checkThrottle: system health checks closer together than this return
	// the cached result without re-probing.
	checkThrottle = 5 * time.Minute
)

// AlertSink receives ERROR and CRITICAL events for user-facing alerting.
// Implementations must not block; the monitor treats the sink as
// fire-and-forget and its behavior is outside the health contract.
type AlertSink interface {
	Alert(event models.ServiceEvent)
}

// SyncState is the slice of location-cache state the monitor reads.
// Satisfied by *cache.Manager.
type SyncState interface {
	HasPendingLocations() bool
	LastSync() (time.Time, bool)
}

// CredentialCheck validates the delivery credential without calling the
// provider's send endpoint (a cross-origin-safe existence/format check).
type CredentialCheck func(ctx context.Context) error

// Monitor tracks service health events and runs health checks.
type Monitor struct {
	store     store.Store
	syncState SyncState
	credCheck CredentialCheck
	alerts    AlertSink
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string

	mu sync.Mutex
	// overlay holds events whose storage write failed. RecordEvent must
	// always succeed, so these live in memory only.
	overlay []models.ServiceEvent
	// lastStatus is the result returned while the check throttle holds.
	lastStatus *models.HealthStatus
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithAlertSink registers the user-facing alert sink.
func WithAlertSink(sink AlertSink) Option {
	return func(m *Monitor) { m.alerts = sink }
}

// WithClock overrides the time source. Tests use this.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithIDGenerator overrides the id source. Tests use this.
func WithIDGenerator(gen func() string) Option {
	return func(m *Monitor) { m.newID = gen }
}

// New creates a Monitor. credCheck validates the delivery credential; a nil
// check marks the delivery channel permanently unconfigured.
func New(s store.Store, syncState SyncState, credCheck CredentialCheck, opts ...Option) *Monitor {
	m := &Monitor{
		store:     s,
		syncState: syncState,
		credCheck: credCheck,
		log:       logging.With().Str("component", "monitor").Logger(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// readEvents loads stored events (newest-first) plus the in-memory overlay.
// Callers must hold mu.
func (m *Monitor) readEvents() []models.ServiceEvent {
	var events []models.ServiceEvent
	raw, err := m.store.Get(store.KeyHealthEvents)
	if err == nil && len(raw) > 0 {
		if uerr := json.Unmarshal(raw, &events); uerr != nil {
			m.log.Warn().Err(uerr).Msg("Corrupt health events collection, starting empty")
			events = nil
		}
	} else if err != nil {
		m.log.Warn().Err(err).Msg("Health events read failed, using in-memory overlay only")
	}
	if len(m.overlay) > 0 {
		events = append(append([]models.ServiceEvent{}, m.overlay...), events...)
		if len(events) > maxEvents {
			events = events[:maxEvents]
		}
	}
	return events
}

// writeEvents persists events. Returns false when the write failed and the
// caller should fall back to the overlay. Callers must hold mu.
func (m *Monitor) writeEvents(events []models.ServiceEvent) bool {
	raw, err := json.Marshal(events)
	if err == nil {
		err = m.store.Set(store.KeyHealthEvents, raw)
	}
	if err != nil {
		m.log.Warn().Err(err).Msg("Health events write failed")
		return false
	}
	return true
}

// RecordEvent records a service event. It always succeeds: when the storage
// write fails the event is kept in memory only. ERROR and CRITICAL events are
// forwarded to the alert sink.
func (m *Monitor) RecordEvent(service models.Service, severity models.Severity, message string, detail *models.EventDetail) models.ServiceEvent {
	event := models.ServiceEvent{
		ID:         m.newID(),
		Service:    service,
		Severity:   severity,
		Message:    message,
		Detail:     detail,
		OccurredAt: m.now(),
	}

	m.mu.Lock()
	events := append([]models.ServiceEvent{event}, m.readEventsStoredOnly()...)
	if len(events) > maxEvents {
		events = events[:maxEvents]
	}
	if !m.writeEvents(events) {
		m.overlay = append([]models.ServiceEvent{event}, m.overlay...)
		if len(m.overlay) > maxEvents {
			m.overlay = m.overlay[:maxEvents]
		}
	}
	m.mu.Unlock()

	metrics.ServiceEvents.WithLabelValues(string(service), string(severity)).Inc()

	logEvent := m.log.Info()
	switch severity {
	case models.SeverityWarning:
		logEvent = m.log.Warn()
	case models.SeverityError, models.SeverityCritical:
		logEvent = m.log.Error()
	}
	logEvent.
		Str("event_id", event.ID).
		Str("service", string(service)).
		Str("severity", string(severity)).
		Msg(message)

	if severity.IsCritical() && m.alerts != nil {
		m.alerts.Alert(event)
	}
	return event
}

// readEventsStoredOnly loads only the persisted events. Callers must hold mu.
func (m *Monitor) readEventsStoredOnly() []models.ServiceEvent {
	var events []models.ServiceEvent
	raw, err := m.store.Get(store.KeyHealthEvents)
	if err != nil || len(raw) == 0 {
		return nil
	}
	if uerr := json.Unmarshal(raw, &events); uerr != nil {
		return nil
	}
	return events
}

// Events returns all current events, newest-first.
func (m *Monitor) Events() []models.ServiceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readEvents()
}

// ResolveEvent marks an event resolved. Returns false if the id is unknown.
func (m *Monitor) ResolveEvent(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for i := range m.overlay {
		if m.overlay[i].ID == id && !m.overlay[i].Resolved {
			m.overlay[i].Resolved = true
			m.overlay[i].ResolvedAt = &now
			return true
		}
	}

	events := m.readEventsStoredOnly()
	for i := range events {
		if events[i].ID != id {
			continue
		}
		events[i].Resolved = true
		events[i].ResolvedAt = &now
		m.writeEvents(events)
		return true
	}
	return false
}

// CleanupResolvedEvents removes resolved events past the retention window.
// Unresolved events are kept regardless of age.
func (m *Monitor) CleanupResolvedEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-resolvedRetention)
	expired := func(e models.ServiceEvent) bool {
		return e.Resolved && e.ResolvedAt != nil && e.ResolvedAt.Before(cutoff)
	}

	kept := m.overlay[:0]
	for _, e := range m.overlay {
		if !expired(e) {
			kept = append(kept, e)
		}
	}
	m.overlay = kept

	events := m.readEventsStoredOnly()
	keptStored := events[:0]
	removed := 0
	for _, e := range events {
		if expired(e) {
			removed++
			continue
		}
		keptStored = append(keptStored, e)
	}
	if removed > 0 {
		m.writeEvents(keptStored)
		m.log.Debug().Int("removed", removed).Msg("Resolved events purged")
	}
}

// HasCriticalEvents reports whether any unresolved event is ERROR or
// CRITICAL severity.
func (m *Monitor) HasCriticalEvents() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.readEvents() {
		if !e.Resolved && e.Severity.IsCritical() {
			return true
		}
	}
	return false
}

// CheckDeliveryChannelHealth reports whether the delivery channel is usable.
// It never calls the provider's send endpoint: the credential check is an
// existence/format probe, and the rest is derived from recorded events.
func (m *Monitor) CheckDeliveryChannelHealth(ctx context.Context) bool {
	if m.credCheck == nil {
		return false
	}
	if err := m.credCheck(ctx); err != nil {
		m.log.Warn().Err(err).Msg("Delivery credential check failed")
		return false
	}

	cutoff := m.now().Add(-deliveryFailureWindow)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.readEvents() {
		if e.Service == models.ServiceDelivery &&
			!e.Resolved &&
			e.Severity == models.SeverityError &&
			e.OccurredAt.After(cutoff) {
			return false
		}
	}
	return true
}

// CheckLocationSyncHealth reports whether location sync is keeping up.
// Before any reconciliation pass has completed, pending locations alone mark
// it unhealthy; afterwards, only pending locations combined with a stale
// last-sync timestamp do.
func (m *Monitor) CheckLocationSyncHealth() bool {
	pending := m.syncState.HasPendingLocations()
	last, ok := m.syncState.LastSync()

	if !ok {
		if pending {
			m.RecordEvent(models.ServiceLocation, models.SeverityWarning,
				"Pending locations exist but no sync pass has ever completed", nil)
			return false
		}
		return true
	}

	if pending && m.now().Sub(last) > staleSyncThreshold {
		m.RecordEvent(models.ServiceLocation, models.SeverityWarning,
			"Pending locations not synced within the expected window", nil)
		return false
	}
	return true
}

// RunSystemHealthCheck runs the full health check. Checks within five
// minutes of the previous one return the cached result without re-probing.
func (m *Monitor) RunSystemHealthCheck(ctx context.Context) models.HealthStatus {
	now := m.now()

	m.mu.Lock()
	lastCheck, ok := m.readLastCheck()
	if ok && now.Sub(lastCheck) < checkThrottle {
		status := m.cachedStatus(lastCheck)
		m.mu.Unlock()
		metrics.HealthChecks.WithLabelValues("cached").Inc()
		return status
	}
	m.mu.Unlock()

	deliveryOK := m.CheckDeliveryChannelHealth(ctx)
	locationOK := m.CheckLocationSyncHealth()
	m.CleanupResolvedEvents()

	status := models.HealthStatus{
		Delivery:  deliveryOK,
		Location:  locationOK,
		Overall:   deliveryOK && locationOK && !m.HasCriticalEvents(),
		CheckedAt: now,
	}

	m.mu.Lock()
	m.lastStatus = &status
	m.writeLastCheck(now)
	m.mu.Unlock()

	outcome := "healthy"
	if !status.Overall {
		outcome = "degraded"
	}
	metrics.HealthChecks.WithLabelValues(outcome).Inc()
	m.log.Info().
		Bool("overall", status.Overall).
		Bool("delivery", status.Delivery).
		Bool("location", status.Location).
		Msg("System health check completed")
	return status
}

// cachedStatus returns the remembered status, or an optimistic one when the
// process restarted inside the throttle window. Callers must hold mu.
func (m *Monitor) cachedStatus(checkedAt time.Time) models.HealthStatus {
	if m.lastStatus != nil {
		status := *m.lastStatus
		status.Cached = true
		return status
	}
	return models.HealthStatus{
		Overall:   true,
		Delivery:  true,
		Location:  true,
		Cached:    true,
		CheckedAt: checkedAt,
	}
}

// readLastCheck loads the persisted check timestamp (epoch milliseconds).
// Callers must hold mu.
func (m *Monitor) readLastCheck() (time.Time, bool) {
	raw, err := m.store.Get(store.KeyLastCheck)
	if err != nil || len(raw) == 0 {
		return time.Time{}, false
	}
	millis, serr := strconv.ParseInt(string(raw), 10, 64)
	if serr != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}

// writeLastCheck persists the check timestamp. Callers must hold mu.
func (m *Monitor) writeLastCheck(t time.Time) {
	if err := m.store.Set(store.KeyLastCheck, []byte(strconv.FormatInt(t.UnixMilli(), 10))); err != nil {
		m.log.Warn().Err(err).Msg("Health check timestamp write failed")
	}
}
