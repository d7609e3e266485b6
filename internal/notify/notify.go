// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

// Package notify carries user-facing feedback out of the pipeline. The
// production sink writes structured log lines that the desktop shell tails;
// tests capture the calls directly.
package notify

import (
	"sync"

	"github.com/educonnect/beacon/internal/logging"
	"github.com/educonnect/beacon/internal/models"
)

// Sink receives user-facing outcome messages and health alerts.
type Sink interface {
	// Notify reports the outcome of a user-initiated action. success=false
	// covers both hard failures and degraded outcomes the message explains.
	Notify(success bool, title, detail string)

	// Alert surfaces an ERROR or CRITICAL service event.
	Alert(event models.ServiceEvent)
}

// LogSink emits notifications as structured log lines.
type LogSink struct{}

// Notify implements Sink.
func (LogSink) Notify(success bool, title, detail string) {
	evt := logging.Info()
	if !success {
		evt = logging.Warn()
	}
	evt.Bool("success", success).Str("detail", detail).Msg(title)
}

// Alert implements Sink.
func (LogSink) Alert(event models.ServiceEvent) {
	logging.Error().
		Str("event_id", event.ID).
		Str("service", string(event.Service)).
		Str("severity", string(event.Severity)).
		Msg("Service alert: " + event.Message)
}

// Recorder captures notifications for assertions in tests.
type Recorder struct {
	mu      sync.Mutex
	Notices []Notice
	Alerts  []models.ServiceEvent
}

// Notice is one captured Notify call.
type Notice struct {
	Success bool
	Title   string
	Detail  string
}

// Notify implements Sink.
func (r *Recorder) Notify(success bool, title, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Notices = append(r.Notices, Notice{Success: success, Title: title, Detail: detail})
}

// Alert implements Sink.
func (r *Recorder) Alert(event models.ServiceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Alerts = append(r.Alerts, event)
}

// Last returns the most recent notice, or false when none were recorded.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Notices) == 0 {
		return Notice{}, false
	}
	return r.Notices[len(r.Notices)-1], true
}
