// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

// Package remote implements the client for the hosted location database.
//
// Two write forms are supported, matching the backend's API surface: a
// remote-procedure insert (preferred) and a direct table insert (fallback).
// The orchestrator treats them as equivalent; the fallback exists because
// the RPC is occasionally redeployed and briefly absent.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/educonnect/beacon/internal/logging"
	"github.com/educonnect/beacon/internal/metrics"
)

// LocationWriter is the remote persistence contract the orchestrator uses.
type LocationWriter interface {
	// InsertLocation writes one location and returns the server id.
	InsertLocation(ctx context.Context, latitude, longitude float64, shared bool) (string, error)
}

// Config configures the remote database client.
type Config struct {
	// URL is the database REST base URL.
	URL string

	// ServiceKey authenticates requests.
	ServiceKey string

	// Timeout bounds one request. Default 10s.
	Timeout time.Duration

	// RetryMax bounds automatic retries of transient failures per request.
	RetryMax int
}

// Client talks to the hosted location database over REST.
type Client struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

// NewClient creates a remote database client with bounded transient-failure
// retries.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	log := logging.With().Str("component", "remote").Logger()

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = leveledLogger{log: log}

	return &Client{
		cfg:    cfg,
		client: rc.StandardClient(),
		log:    log,
	}
}

// rpcInsertRequest is the RPC form payload.
type rpcInsertRequest struct {
	Latitude  float64 `json:"p_latitude"`
	Longitude float64 `json:"p_longitude"`
	Shared    bool    `json:"p_shared"`
}

// locationRow is the direct-insert payload and response row.
type locationRow struct {
	ID                  string  `json:"id,omitempty"`
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	SharedWithGuardians bool    `json:"shared_with_guardians"`
}

// InsertLocation writes one location, trying the RPC form first and falling
// back to the direct table insert. Both failing returns the direct-insert
// error; the RPC error is logged.
func (c *Client) InsertLocation(ctx context.Context, latitude, longitude float64, shared bool) (string, error) {
	id, rpcErr := c.insertRPC(ctx, latitude, longitude, shared)
	if rpcErr == nil {
		return id, nil
	}
	metrics.RemotePersistFailures.WithLabelValues("rpc").Inc()
	c.log.Warn().Err(rpcErr).Msg("RPC insert failed, trying direct insert")

	id, directErr := c.insertDirect(ctx, latitude, longitude, shared)
	if directErr == nil {
		return id, nil
	}
	metrics.RemotePersistFailures.WithLabelValues("direct").Inc()
	return "", fmt.Errorf("insert location: %w", directErr)
}

// insertRPC calls the remote-procedure insert form.
func (c *Client) insertRPC(ctx context.Context, latitude, longitude float64, shared bool) (string, error) {
	body, err := json.Marshal(rpcInsertRequest{Latitude: latitude, Longitude: longitude, Shared: shared})
	if err != nil {
		return "", fmt.Errorf("encode rpc payload: %w", err)
	}

	raw, err := c.post(ctx, c.cfg.URL+"/rest/v1/rpc/insert_location", body, "")
	if err != nil {
		return "", err
	}

	// The RPC returns the new row id as a JSON string.
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("decode rpc response: %w", err)
	}
	return id, nil
}

// insertDirect writes the row through the table endpoint.
func (c *Client) insertDirect(ctx context.Context, latitude, longitude float64, shared bool) (string, error) {
	body, err := json.Marshal(locationRow{Latitude: latitude, Longitude: longitude, SharedWithGuardians: shared})
	if err != nil {
		return "", fmt.Errorf("encode row: %w", err)
	}

	raw, err := c.post(ctx, c.cfg.URL+"/rest/v1/locations", body, "return=representation")
	if err != nil {
		return "", err
	}

	var rows []locationRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return "", fmt.Errorf("decode insert response: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("insert returned no rows")
	}
	return rows[0].ID, nil
}

// post issues one authenticated JSON POST and returns the response body.
func (c *Client) post(ctx context.Context, url string, body []byte, prefer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+c.cfg.ServiceKey)
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // best effort cleanup

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return raw, nil
}

// leveledLogger adapts zerolog to retryablehttp's LeveledLogger.
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}
