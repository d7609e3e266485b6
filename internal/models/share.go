// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

package models

import "time"

// Recipient is one guardian a location is shared with.
type Recipient struct {
	Address string `json:"address"`
	Label   string `json:"label,omitempty"`
}

// ShareState is the terminal state of one recipient within a share attempt.
type ShareState string

// Terminal per-recipient states.
const (
	// ShareDelivered means the delivery channel confirmed the notification.
	ShareDelivered ShareState = "delivered"

	// ShareQueued means delivery failed and the share is stored for later
	// delivery. This is not a failure from the user's point of view.
	ShareQueued ShareState = "queued"
)

// RecipientOutcome is the result for a single recipient.
type RecipientOutcome struct {
	Recipient Recipient  `json:"recipient"`
	State     ShareState `json:"state"`
	ShareID   string     `json:"share_id,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// ShareSummary aggregates a multi-recipient share attempt into the single
// message surfaced to the user.
type ShareSummary struct {
	LocalID    string             `json:"local_id"`
	Latitude   float64            `json:"latitude"`
	Longitude  float64            `json:"longitude"`
	CapturedAt time.Time          `json:"captured_at"`
	Synced     bool               `json:"synced"`
	Delivered  int                `json:"delivered"`
	Queued     int                `json:"queued"`
	Outcomes   []RecipientOutcome `json:"outcomes"`
}

// HealthStatus is the result of a full system health check.
type HealthStatus struct {
	Overall   bool      `json:"overall"`
	Delivery  bool      `json:"delivery"`
	Location  bool      `json:"location"`
	Cached    bool      `json:"cached"`
	CheckedAt time.Time `json:"checked_at"`
}
