// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educonnect/beacon/internal/models"
	"github.com/educonnect/beacon/internal/store"
)

func newTestManager(t *testing.T, s store.Store, opts ...Option) *Manager {
	t.Helper()
	return NewManager(s, opts...)
}

func TestCacheLocationAssignsIDAndForcesPendingSync(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore())

	loc := models.CapturedLocation{
		Latitude:    -23.5489,
		Longitude:   -46.6388,
		PendingSync: false,
	}
	m.CacheLocation(&loc)

	require.NotEmpty(t, loc.LocalID)
	assert.True(t, loc.PendingSync, "caching must mark the entry pending sync")
	assert.False(t, loc.CapturedAt.IsZero())

	stored := m.Locations()
	require.Len(t, stored, 1)
	assert.Equal(t, loc.LocalID, stored[0].LocalID)
	assert.True(t, stored[0].PendingSync)
}

func TestCacheLocationOrdersMostRecentFirst(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore())

	first := models.CapturedLocation{Latitude: 1, Longitude: 1}
	second := models.CapturedLocation{Latitude: 2, Longitude: 2}
	m.CacheLocation(&first)
	m.CacheLocation(&second)

	stored := m.Locations()
	require.Len(t, stored, 2)
	assert.Equal(t, second.LocalID, stored[0].LocalID)
	assert.Equal(t, first.LocalID, stored[1].LocalID)
}

func TestCacheLocationTruncatesToCap(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore())

	for i := 0; i < maxLocations+25; i++ {
		loc := models.CapturedLocation{Latitude: float64(i), Longitude: float64(i)}
		m.CacheLocation(&loc)
	}

	stored := m.Locations()
	require.Len(t, stored, maxLocations)
	// Newest entry survives; the oldest 25 were dropped.
	assert.Equal(t, float64(maxLocations+24), stored[0].Latitude)
	assert.Equal(t, float64(25), stored[len(stored)-1].Latitude)
}

func TestMarkLocationSynced(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore())

	loc := models.CapturedLocation{Latitude: 1, Longitude: 2}
	m.CacheLocation(&loc)

	m.MarkLocationSynced(loc.LocalID, "srv-42")

	stored := m.Locations()
	require.Len(t, stored, 1)
	assert.False(t, stored[0].PendingSync)
	assert.Equal(t, "srv-42", stored[0].ID)
	assert.False(t, m.HasPendingLocations())
}

func TestMarkLocationSyncedUnknownIDIsNoOp(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore())

	loc := models.CapturedLocation{Latitude: 1, Longitude: 2}
	m.CacheLocation(&loc)

	m.MarkLocationSynced("no-such-id", "srv-1")
	m.MarkLocationSynced(loc.LocalID, "srv-2")
	// Second call with the same id must not disturb anything.
	m.MarkLocationSynced(loc.LocalID, "srv-2")

	stored := m.Locations()
	require.Len(t, stored, 1)
	assert.Equal(t, "srv-2", stored[0].ID)
	assert.False(t, stored[0].PendingSync)
}

func TestKeepsEmptyServerID(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore())

	loc := models.CapturedLocation{Latitude: 1, Longitude: 2}
	m.CacheLocation(&loc)
	m.MarkLocationSynced(loc.LocalID, "")

	stored := m.Locations()
	require.Len(t, stored, 1)
	assert.Empty(t, stored[0].ID)
	assert.False(t, stored[0].PendingSync)
}

func TestPendingShareLifecycle(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore())

	id := m.AddPendingShare("guardian@example.com", "Maria", -23.5489, -46.6388)
	require.NotEmpty(t, id)

	shares := m.PendingShares()
	require.Len(t, shares, 1)
	assert.Equal(t, "guardian@example.com", shares[0].RecipientAddress)
	assert.Equal(t, "Maria", shares[0].RecipientLabel)
	assert.Equal(t, 0, shares[0].AttemptCount)

	m.IncrementShareAttempt(id)
	m.IncrementShareAttempt(id)
	shares = m.PendingShares()
	require.Len(t, shares, 1)
	assert.Equal(t, 2, shares[0].AttemptCount)

	m.RemovePendingShare(id)
	assert.Empty(t, m.PendingShares())

	// Removing again is a no-op.
	m.RemovePendingShare(id)
	assert.Empty(t, m.PendingShares())
}

func TestEachFailedRecipientQueuesItsOwnShare(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore())

	for i := 0; i < 3; i++ {
		m.AddPendingShare(fmt.Sprintf("g%d@example.com", i), "", 1, 2)
	}
	assert.Len(t, m.PendingShares(), 3)
}

func TestStorageFaultsAreSwallowed(t *testing.T) {
	mem := store.NewMemoryStore()
	var faults []string
	m := newTestManager(t, mem, WithFaultHook(func(op string, _ error) {
		faults = append(faults, op)
	}))

	mem.FailWrites = true
	loc := models.CapturedLocation{Latitude: 1, Longitude: 2}
	m.CacheLocation(&loc) // must not panic or error out
	assert.Contains(t, faults, "write_locations")

	mem.FailWrites = false
	mem.FailReads = true
	assert.Empty(t, m.Locations(), "read faults degrade to empty")
	assert.False(t, m.HasPendingLocations())
	assert.Contains(t, faults, "read_locations")
}

func TestCorruptCollectionDegradesToEmpty(t *testing.T) {
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Set(store.KeyLocations, []byte("{not json")))

	m := newTestManager(t, mem)
	assert.Empty(t, m.Locations())
}

func TestLastSyncRoundTrip(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	m := newTestManager(t, store.NewMemoryStore(), WithClock(func() time.Time { return fixed }))

	_, ok := m.LastSync()
	assert.False(t, ok, "no pass has completed yet")

	m.UpdateLastSync()
	got, ok := m.LastSync()
	require.True(t, ok)
	assert.True(t, got.Equal(fixed))
}

func TestClearLocationCache(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore())

	synced := models.CapturedLocation{Latitude: 1, Longitude: 1}
	pending := models.CapturedLocation{Latitude: 2, Longitude: 2}
	m.CacheLocation(&synced)
	m.CacheLocation(&pending)
	m.MarkLocationSynced(synced.LocalID, "srv-1")

	m.ClearLocationCache(true)
	stored := m.Locations()
	require.Len(t, stored, 1)
	assert.Equal(t, pending.LocalID, stored[0].LocalID)

	m.ClearLocationCache(false)
	assert.Empty(t, m.Locations())
}
