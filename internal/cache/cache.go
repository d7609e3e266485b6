// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

// Package cache implements the location cache manager: a typed accessor over
// the persistent local store for captured locations and pending shares.
//
// The manager never propagates a storage error to callers. Location capture
// must not fail the user-facing flow because of a cache fault, so reads
// degrade to an empty collection and writes are logged and swallowed. Every
// swallow is counted in metrics and reported through the optional FaultHook
// so tests and telemetry can observe the failure path.
package cache

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/educonnect/beacon/internal/logging"
	"github.com/educonnect/beacon/internal/metrics"
	"github.com/educonnect/beacon/internal/models"
	"github.com/educonnect/beacon/internal/store"
)

// maxLocations caps the location collection. Oldest entries past the cap are
// silently dropped; synced records are mirrored server-side, so this is a
// retention policy, not data loss.
const maxLocations = 200

// FaultHook receives every storage fault the manager swallows.
// op identifies the failing operation ("cache_location", "pending_shares", ...).
type FaultHook func(op string, err error)

// Manager is the typed accessor over the persistent local store.
type Manager struct {
	store store.Store
	log   zerolog.Logger
	fault FaultHook
	now   func() time.Time
	newID func() string
}

// Option customizes a Manager.
type Option func(*Manager)

// WithFaultHook registers a hook invoked on every swallowed storage fault.
func WithFaultHook(hook FaultHook) Option {
	return func(m *Manager) { m.fault = hook }
}

// WithClock overrides the time source. Tests use this.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides the id source. Tests use this.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

// WithLogger overrides the component logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a cache manager over the given store.
func NewManager(s store.Store, opts ...Option) *Manager {
	m := &Manager{
		store: s,
		log:   logging.With().Str("component", "cache").Logger(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// reportFault logs and counts a swallowed storage fault.
func (m *Manager) reportFault(op string, err error) {
	m.log.Warn().Err(err).Str("operation", op).Msg("Storage fault swallowed")
	metrics.CacheFaults.WithLabelValues(op).Inc()
	if m.fault != nil {
		m.fault(op, err)
	}
}

// readLocations loads the location collection, degrading to empty on fault.
func (m *Manager) readLocations() []models.CapturedLocation {
	raw, err := m.store.Get(store.KeyLocations)
	if err != nil {
		m.reportFault("read_locations", err)
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	var locations []models.CapturedLocation
	if err := json.Unmarshal(raw, &locations); err != nil {
		m.reportFault("decode_locations", err)
		return nil
	}
	return locations
}

// writeLocations persists the location collection, swallowing faults.
func (m *Manager) writeLocations(locations []models.CapturedLocation) {
	raw, err := json.Marshal(locations)
	if err != nil {
		m.reportFault("encode_locations", err)
		return
	}
	if err := m.store.Set(store.KeyLocations, raw); err != nil {
		m.reportFault("write_locations", err)
		return
	}
	metrics.CachedLocations.Set(float64(len(locations)))
}

// CacheLocation stores a captured location most-recent-first.
//
// A missing LocalID is assigned, PendingSync is forced true (only the sync
// step may clear it), and the collection is truncated to the newest 200.
func (m *Manager) CacheLocation(loc *models.CapturedLocation) {
	if loc.LocalID == "" {
		loc.LocalID = m.newID()
	}
	loc.PendingSync = true
	if loc.CapturedAt.IsZero() {
		loc.CapturedAt = m.now()
	}

	locations := m.readLocations()
	locations = append([]models.CapturedLocation{*loc}, locations...)
	if len(locations) > maxLocations {
		locations = locations[:maxLocations]
	}
	m.writeLocations(locations)

	m.log.Debug().
		Str("local_id", loc.LocalID).
		Float64("latitude", loc.Latitude).
		Float64("longitude", loc.Longitude).
		Msg("Location cached")
}

// Locations returns the cached locations, most-recent-first.
func (m *Manager) Locations() []models.CapturedLocation {
	return m.readLocations()
}

// HasPendingLocations reports whether any cached entry awaits remote sync.
func (m *Manager) HasPendingLocations() bool {
	for _, loc := range m.readLocations() {
		if loc.PendingSync {
			return true
		}
	}
	return false
}

// MarkLocationSynced records that the server confirmed a location.
// The server id is applied when non-empty. Unknown localID is a no-op, which
// makes the call idempotent.
func (m *Manager) MarkLocationSynced(localID, serverID string) {
	locations := m.readLocations()
	for i := range locations {
		if locations[i].LocalID != localID {
			continue
		}
		if serverID != "" {
			locations[i].ID = serverID
		}
		locations[i].PendingSync = false
		m.writeLocations(locations)
		m.log.Debug().Str("local_id", localID).Str("server_id", serverID).Msg("Location marked synced")
		return
	}
}

// readShares loads the pending-share queue, degrading to empty on fault.
func (m *Manager) readShares() []models.PendingShare {
	raw, err := m.store.Get(store.KeyPendingShares)
	if err != nil {
		m.reportFault("read_pending_shares", err)
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	var shares []models.PendingShare
	if err := json.Unmarshal(raw, &shares); err != nil {
		m.reportFault("decode_pending_shares", err)
		return nil
	}
	return shares
}

// writeShares persists the pending-share queue, swallowing faults.
func (m *Manager) writeShares(shares []models.PendingShare) {
	raw, err := json.Marshal(shares)
	if err != nil {
		m.reportFault("encode_pending_shares", err)
		return
	}
	if err := m.store.Set(store.KeyPendingShares, raw); err != nil {
		m.reportFault("write_pending_shares", err)
		return
	}
	metrics.PendingShares.Set(float64(len(shares)))
}

// AddPendingShare queues a failed notification for retry and returns the
// fresh share id for correlation.
func (m *Manager) AddPendingShare(address, label string, latitude, longitude float64) string {
	share := models.PendingShare{
		ID:               m.newID(),
		RecipientAddress: address,
		RecipientLabel:   label,
		Latitude:         latitude,
		Longitude:        longitude,
		CreatedAt:        m.now(),
		AttemptCount:     0,
	}

	shares := append(m.readShares(), share)
	m.writeShares(shares)

	m.log.Info().
		Str("share_id", share.ID).
		Str("recipient", address).
		Msg("Pending share queued")
	return share.ID
}

// PendingShares returns the queued shares in enqueue order.
func (m *Manager) PendingShares() []models.PendingShare {
	return m.readShares()
}

// RemovePendingShare deletes a share after confirmed delivery. Removing an
// absent id is a no-op, so concurrent reconciliation passes cannot trip over
// each other even if the in-flight guard is imperfect.
func (m *Manager) RemovePendingShare(shareID string) {
	shares := m.readShares()
	kept := shares[:0]
	for _, share := range shares {
		if share.ID != shareID {
			kept = append(kept, share)
		}
	}
	if len(kept) == len(shares) {
		return
	}
	m.writeShares(kept)
	m.log.Info().Str("share_id", shareID).Msg("Pending share removed")
}

// IncrementShareAttempt bumps the retry counter. No-op if the id is absent.
func (m *Manager) IncrementShareAttempt(shareID string) {
	shares := m.readShares()
	for i := range shares {
		if shares[i].ID == shareID {
			shares[i].AttemptCount++
			m.writeShares(shares)
			return
		}
	}
}

// UpdateLastSync records that a full reconciliation pass completed.
func (m *Manager) UpdateLastSync() {
	if err := m.store.Set(store.KeyLastSync, []byte(m.now().UTC().Format(time.RFC3339))); err != nil {
		m.reportFault("write_last_sync", err)
	}
}

// LastSync returns the timestamp of the last completed reconciliation pass.
// ok is false if no pass has ever completed.
func (m *Manager) LastSync() (t time.Time, ok bool) {
	raw, err := m.store.Get(store.KeyLastSync)
	if err != nil {
		m.reportFault("read_last_sync", err)
		return time.Time{}, false
	}
	if len(raw) == 0 {
		return time.Time{}, false
	}
	t, err = time.Parse(time.RFC3339, string(raw))
	if err != nil {
		m.reportFault("decode_last_sync", err)
		return time.Time{}, false
	}
	return t, true
}

// ClearLocationCache empties the location collection. With keepPending, the
// entries still awaiting remote sync are retained.
func (m *Manager) ClearLocationCache(keepPending bool) {
	if !keepPending {
		if err := m.store.Remove(store.KeyLocations); err != nil {
			m.reportFault("clear_locations", err)
		}
		metrics.CachedLocations.Set(0)
		return
	}

	locations := m.readLocations()
	pending := locations[:0]
	for _, loc := range locations {
		if loc.PendingSync {
			pending = append(pending, loc)
		}
	}
	m.writeLocations(pending)
	m.log.Debug().Int("kept", len(pending)).Msg("Location cache cleared, pending entries kept")
}
