// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educonnect/beacon/internal/cache"
	"github.com/educonnect/beacon/internal/delivery"
	"github.com/educonnect/beacon/internal/geo"
	"github.com/educonnect/beacon/internal/models"
	"github.com/educonnect/beacon/internal/monitor"
	"github.com/educonnect/beacon/internal/notify"
	"github.com/educonnect/beacon/internal/sharing"
	"github.com/educonnect/beacon/internal/store"
)

// okChannel always delivers.
type okChannel struct{}

func (okChannel) Send(context.Context, *delivery.SendParams) (*delivery.Result, error) {
	now := time.Now()
	return &delivery.Result{Success: true, DeliveredAt: &now}, nil
}

func (okChannel) VerifyCredential(context.Context) error { return nil }

// okWriter always persists.
type okWriter struct{}

func (okWriter) InsertLocation(context.Context, float64, float64, bool) (string, error) {
	return "srv-1", nil
}

type apiFixture struct {
	server  *Server
	cache   *cache.Manager
	monitor *monitor.Monitor
	source  *geo.StaticSource
}

func newAPIFixture(t *testing.T, recipients []models.Recipient) *apiFixture {
	t.Helper()

	mem := store.NewMemoryStore()
	cacheMgr := cache.NewManager(mem)
	mon := monitor.New(mem, cacheMgr, func(context.Context) error { return nil })
	source := &geo.StaticSource{Position: geo.Position{Latitude: -23.5489, Longitude: -46.6388}}

	orchestrator := sharing.New(
		sharing.Config{SenderName: "Ana Souza", SendsPerSecond: 1000},
		cacheMgr, okWriter{}, okChannel{}, source, mon, &notify.Recorder{}, recipients,
	)
	srv := NewServer(Config{Host: "127.0.0.1", Port: 0, Timeout: 5 * time.Second}, orchestrator, mon, cacheMgr)
	return &apiFixture{server: srv, cache: cacheMgr, monitor: mon, source: source}
}

func defaultRecipients() []models.Recipient {
	return []models.Recipient{{Address: "maria@example.com", Label: "Maria"}}
}

func (f *apiFixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) doBody(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestShareEndpoint(t *testing.T) {
	f := newAPIFixture(t, defaultRecipients())

	rec := f.do(t, http.MethodPost, "/api/v1/share")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary models.ShareSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Delivered)
	assert.Equal(t, 0, summary.Queued)
	assert.True(t, summary.Synced)
	assert.NotEmpty(t, summary.LocalID)
}

func TestShareEndpointNoRecipients(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/share")
	require.Equal(t, http.StatusOK, rec.Code, "capture without recipients still succeeds")

	var summary models.ShareSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 0, summary.Delivered)
	assert.Empty(t, summary.Outcomes)
}

func TestShareEndpointExplicitRecipients(t *testing.T) {
	f := newAPIFixture(t, nil)

	body := `{"recipients":[{"address":"extra@example.com","label":"Extra"}]}`
	rec := f.doBody(t, http.MethodPost, "/api/v1/share", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary models.ShareSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Delivered)
}

func TestShareEndpointRejectsBadBody(t *testing.T) {
	f := newAPIFixture(t, defaultRecipients())

	rec := f.doBody(t, http.MethodPost, "/api/v1/share", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.doBody(t, http.MethodPost, "/api/v1/share", `{"recipients":[{"address":"nope"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestShareEndpointCaptureFailure(t *testing.T) {
	f := newAPIFixture(t, defaultRecipients())
	f.source.Err = errors.New("no fix available")

	rec := f.do(t, http.MethodPost, "/api/v1/share")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "capture")
}

func TestSyncEndpoint(t *testing.T) {
	f := newAPIFixture(t, defaultRecipients())
	f.cache.AddPendingShare("maria@example.com", "Maria", -23.5489, -46.6388)

	rec := f.do(t, http.MethodPost, "/api/v1/share/sync")
	require.Equal(t, http.StatusOK, rec.Code)

	var result sharing.ReconcileResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Skipped)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, 0, result.Remaining)
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t, defaultRecipients())

	rec := f.do(t, http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Overall)
}

func TestHealthEndpointDegraded(t *testing.T) {
	f := newAPIFixture(t, defaultRecipients())
	f.monitor.RecordEvent(models.ServiceDelivery, models.SeverityError, "send failed", nil)

	rec := f.do(t, http.MethodGet, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventsEndpoint(t *testing.T) {
	f := newAPIFixture(t, defaultRecipients())

	rec := f.do(t, http.MethodGet, "/api/v1/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	f.monitor.RecordEvent(models.ServiceDatabase, models.SeverityWarning, "insert failed", nil)
	rec = f.do(t, http.MethodGet, "/api/v1/events")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []models.ServiceEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "insert failed", events[0].Message)
}

func TestResolveEventEndpoint(t *testing.T) {
	f := newAPIFixture(t, defaultRecipients())
	event := f.monitor.RecordEvent(models.ServiceDelivery, models.SeverityError, "send failed", nil)

	rec := f.do(t, http.MethodPost, "/api/v1/events/"+event.ID+"/resolve")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/events/no-such-id/resolve")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLocationsEndpoint(t *testing.T) {
	f := newAPIFixture(t, defaultRecipients())
	loc := models.CapturedLocation{Latitude: -23.5489, Longitude: -46.6388}
	f.cache.CacheLocation(&loc)

	rec := f.do(t, http.MethodGet, "/api/v1/locations")
	require.Equal(t, http.StatusOK, rec.Code)

	var locations []models.CapturedLocation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &locations))
	require.Len(t, locations, 1)
	assert.Equal(t, loc.LocalID, locations[0].LocalID)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t, defaultRecipients())

	rec := f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "beacon_")
}
