// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

package monitor

import (
	"context"
	"time"

	"github.com/educonnect/beacon/internal/logging"
)

// Service runs the monitor's periodic health check as a supervised service.
// It is the one long-lived background task in the monitoring subsystem: one
// immediate check on start, then one per interval until the context ends.
//
// Implements suture.Service.
type Service struct {
	monitor  *Monitor
	interval time.Duration
}

// NewService wraps a Monitor as a supervised periodic checker.
func NewService(m *Monitor, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Service{monitor: m, interval: interval}
}

// Serve implements suture.Service. It runs detached from any share flow and
// never blocks on orchestrator activity.
func (s *Service) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", s.interval).Msg("Health monitoring started")

	s.monitor.RunSystemHealthCheck(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Health monitoring stopped")
			return ctx.Err()
		case <-ticker.C:
			s.monitor.RunSystemHealthCheck(ctx)
		}
	}
}

// String names the service in supervisor logs.
func (s *Service) String() string {
	return "health-monitor"
}
