// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

package models

import "time"

// Service identifies an external dependency tracked by the health monitor.
type Service string

// Monitored services.
const (
	ServiceDelivery Service = "delivery"
	ServiceLocation Service = "location"
	ServiceDatabase Service = "database"
	ServiceAuth     Service = "auth"
)

// Valid reports whether s is a known service.
func (s Service) Valid() bool {
	switch s {
	case ServiceDelivery, ServiceLocation, ServiceDatabase, ServiceAuth:
		return true
	default:
		return false
	}
}

// Severity classifies a service event.
type Severity string

// Event severities, in increasing order of concern.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// IsCritical reports whether the severity makes an unresolved event count
// toward HasCriticalEvents.
func (s Severity) IsCritical() bool {
	return s == SeverityError || s == SeverityCritical
}

// ServiceEvent is one timestamped failure (or notable observation) recorded
// against an external dependency.
//
// Events are stored newest-first, the collection is capped at 50 entries,
// and resolved events are garbage-collected after seven days. Unresolved
// events are never auto-removed regardless of age.
type ServiceEvent struct {
	ID         string       `json:"id"`
	Service    Service      `json:"service"`
	Severity   Severity     `json:"severity"`
	Message    string       `json:"message"`
	Detail     *EventDetail `json:"detail,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
	Resolved   bool         `json:"resolved"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

// EventDetail carries the typed payload of a ServiceEvent. At most one
// variant is set, matching the event's Service. The union replaces the
// untyped metadata bag the web client attached to events, keeping the
// open-ended logging use without losing type safety.
type EventDetail struct {
	Delivery *DeliveryDetail `json:"delivery,omitempty"`
	Location *LocationDetail `json:"location,omitempty"`
	Database *DatabaseDetail `json:"database,omitempty"`
	Auth     *AuthDetail     `json:"auth,omitempty"`
}

// DeliveryDetail describes a delivery-channel failure.
type DeliveryDetail struct {
	Recipient  string `json:"recipient,omitempty"`
	ShareID    string `json:"share_id,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// LocationDetail describes a location capture or sync observation.
type LocationDetail struct {
	Latitude     float64 `json:"latitude,omitempty"`
	Longitude    float64 `json:"longitude,omitempty"`
	PendingCount int     `json:"pending_count,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// DatabaseDetail describes a remote persistence failure.
type DatabaseDetail struct {
	Operation string `json:"operation,omitempty"`
	Error     string `json:"error,omitempty"`
}

// AuthDetail describes an authentication dependency failure.
type AuthDetail struct {
	Error string `json:"error,omitempty"`
}
