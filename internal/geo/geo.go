// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

// Package geo acquires the device's current position.
//
// The production source queries a local positioning agent over HTTP. The
// Source interface keeps the orchestrator independent of where coordinates
// come from; tests substitute a fixed or failing source.
package geo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/educonnect/beacon/internal/metrics"
)

// Options tunes one position request.
type Options struct {
	// HighAccuracy requests the best available fix.
	HighAccuracy bool

	// Timeout bounds the acquisition. Zero means the source default.
	Timeout time.Duration

	// MaxAge is the oldest acceptable cached fix. Zero forces a fresh fix.
	MaxAge time.Duration
}

// DefaultOptions is the acquisition profile used for shares: fresh
// high-accuracy fix, bounded at fifteen seconds.
func DefaultOptions() Options {
	return Options{
		HighAccuracy: true,
		Timeout:      15 * time.Second,
		MaxAge:       0,
	}
}

// Position is one coordinate fix.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	FixedAt   time.Time `json:"fixed_at,omitempty"`
}

// Source produces the current position.
type Source interface {
	// Current returns a fix or an error. Acquisition failures are errors
	// here; the orchestrator decides whether a share can proceed.
	Current(ctx context.Context, opts Options) (Position, error)
}

// HTTPSource reads positions from a local positioning agent.
type HTTPSource struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSource creates a source backed by the agent at endpoint.
func NewHTTPSource(endpoint string) *HTTPSource {
	return &HTTPSource{
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

// agentResponse is the positioning agent's reply.
type agentResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	FixedAt   int64   `json:"fixed_at_ms"`
}

// Current implements Source.
func (s *HTTPSource) Current(ctx context.Context, opts Options) (Position, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("%s?high_accuracy=%t&max_age_ms=%d",
		s.endpoint, opts.HighAccuracy, opts.MaxAge.Milliseconds())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Position{}, fmt.Errorf("build position request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.CaptureFailures.Inc()
		return Position{}, fmt.Errorf("query positioning agent: %w", err)
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // best effort cleanup

	if resp.StatusCode != http.StatusOK {
		metrics.CaptureFailures.Inc()
		return Position{}, fmt.Errorf("positioning agent returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		metrics.CaptureFailures.Inc()
		return Position{}, fmt.Errorf("read position response: %w", err)
	}

	var parsed agentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		metrics.CaptureFailures.Inc()
		return Position{}, fmt.Errorf("decode position response: %w", err)
	}

	pos := Position{
		Latitude:  parsed.Latitude,
		Longitude: parsed.Longitude,
		Accuracy:  parsed.Accuracy,
	}
	if parsed.FixedAt > 0 {
		pos.FixedAt = time.UnixMilli(parsed.FixedAt)
	}
	return pos, nil
}

// StaticSource returns a fixed position. Used in tests and demo setups.
type StaticSource struct {
	Position Position
	Err      error
}

// Current implements Source.
func (s *StaticSource) Current(_ context.Context, _ Options) (Position, error) {
	if s.Err != nil {
		return Position{}, s.Err
	}
	return s.Position, nil
}
