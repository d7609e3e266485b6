// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

// Package models defines the data types shared across the location-sharing
// pipeline: captured locations, pending shares, service health events and
// share outcomes.
package models

import "time"

// CapturedLocation is one position fix held in the local cache.
//
// LocalID is assigned client-side, is unique and never changes for the life
// of the record. ID is the server-assigned identifier, set only once remote
// persistence is confirmed; until then PendingSync stays true. The sync step
// is the only mutator.
type CapturedLocation struct {
	ID                  string    `json:"id,omitempty"`
	LocalID             string    `json:"local_id"`
	Latitude            float64   `json:"latitude"`
	Longitude           float64   `json:"longitude"`
	CapturedAt          time.Time `json:"captured_at"`
	SharedWithGuardians bool      `json:"shared_with_guardians"`
	PendingSync         bool      `json:"pending_sync"`
}

// PendingShare is a notification that failed to deliver and is queued for
// retry. It exists only while delivery remains unconfirmed: it is created on
// the first failed send, its AttemptCount is incremented on each retry, and
// it is removed exactly once, on the first retry that succeeds.
//
// A queued share replays the coordinates it was created with; it never
// becomes "fresher" on retry.
type PendingShare struct {
	ID               string    `json:"id"`
	RecipientAddress string    `json:"recipient_address"`
	RecipientLabel   string    `json:"recipient_label"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	CreatedAt        time.Time `json:"created_at"`
	AttemptCount     int       `json:"attempt_count"`
}
