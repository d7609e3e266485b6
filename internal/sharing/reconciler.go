// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

package sharing

import (
	"context"
	"time"

	"github.com/educonnect/beacon/internal/logging"
)

// Reconciler runs the pending-share reconciliation pass on a fixed interval
// as a supervised service.
//
// Implements suture.Service.
type Reconciler struct {
	orchestrator *Orchestrator
	interval     time.Duration
}

// NewReconciler wraps an orchestrator as a periodic reconciliation service.
func NewReconciler(o *Orchestrator, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &Reconciler{orchestrator: o, interval: interval}
}

// Serve implements suture.Service. The first pass runs immediately so a
// restart after a long offline stretch drains the queue without waiting a
// full interval.
func (r *Reconciler) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", r.interval).Msg("Reconciler started")

	r.orchestrator.ProcessPendingShares(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			r.orchestrator.ProcessPendingShares(ctx)
		}
	}
}

// String names the service in supervisor logs.
func (r *Reconciler) String() string {
	return "reconciler"
}
