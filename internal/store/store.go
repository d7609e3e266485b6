// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

// Package store provides the persistent local key-value store that backs the
// location cache and the service health monitor.
//
// The contract is deliberately small: whole values in, whole values out.
// Higher layers keep each collection as a single JSON-encoded array under a
// fixed key and rewrite the whole collection on mutation. Collections are
// capped upstream (200 locations, 50 health events), so the simplicity wins
// over indexed access.
//
// Reading a missing key returns (nil, nil), never an error. Callers that can
// tolerate storage faults (the cache manager must, per its never-throw
// contract) treat any error as "empty collection".
package store

// Keys under which the three collections and their scalars are persisted.
// The layout is shared with the mobile app, so these are part of the wire
// contract and must not change.
const (
	KeyLocations     = "app.locations.cache"
	KeyPendingShares = "app.locations.pending_shares"
	KeyLastSync      = "app.locations.last_sync"
	KeyHealthEvents  = "app.monitoring.events"
	KeyLastCheck     = "app.monitoring.last_check"
)

// Store is the persistent local key-value store.
//
// Implementations must be safe for use from multiple goroutines and must be
// synchronous: a call returns only once the mutation is applied.
type Store interface {
	// Get returns the value for key, or (nil, nil) if the key is absent.
	Get(key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error

	// Clear removes all keys.
	Clear() error
}
