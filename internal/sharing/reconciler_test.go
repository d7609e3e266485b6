// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

package sharing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilerRunsImmediatelyAndStopsOnCancel(t *testing.T) {
	f := newFixture(t, testRecipients())
	f.cache.AddPendingShare("maria@example.com", "Maria", testLat, testLng)

	r := NewReconciler(f.orchestrator, time.Hour)
	assert.Equal(t, "reconciler", r.String())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Serve(ctx)
	}()

	// The first pass runs without waiting for a tick.
	require.Eventually(t, func() bool {
		return len(f.cache.PendingShares()) == 0
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop on cancel")
	}
}

func TestNewReconcilerDefaultInterval(t *testing.T) {
	r := NewReconciler(nil, 0)
	assert.Equal(t, 2*time.Minute, r.interval)
}
