// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

// Package delivery implements the outbound notification channel that carries
// location shares to guardians.
//
// The production channel talks to the hosted email provider's REST API. Send
// failures are captured in the Result struct rather than returned as errors:
// a failed send is an expected outcome the orchestrator turns into a queued
// share, not an exceptional condition.
package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Channel is the delivery channel contract consumed by the orchestrator and
// the health monitor.
type Channel interface {
	// Send delivers one location notification. The error return is reserved
	// for programming mistakes (nil params); delivery failures come back in
	// the Result with Success=false.
	Send(ctx context.Context, params *SendParams) (*Result, error)

	// VerifyCredential checks the provider credential without sending. Used
	// by diagnostics; the routine health rule only checks key format.
	VerifyCredential(ctx context.Context) error
}

// SendParams carries one notification.
type SendParams struct {
	// RecipientAddress is the guardian's email address.
	RecipientAddress string

	// RecipientLabel is the guardian's display name, may be empty.
	RecipientLabel string

	// Latitude and Longitude are the shared coordinates.
	Latitude  float64
	Longitude float64

	// SenderName is the student display name shown to the guardian.
	SenderName string
}

// Result is the outcome of one send attempt.
type Result struct {
	// Success indicates the provider accepted the notification.
	Success bool

	// Message is the provider's human-readable response, if any.
	Message string

	// ErrorCode is a machine-readable failure class.
	ErrorCode string

	// StatusCode is the provider HTTP status, when one was received.
	StatusCode int

	// IsTransient indicates the failure may clear on retry.
	IsTransient bool

	// DeliveredAt is set on success.
	DeliveredAt *time.Time

	// ExternalID is the provider's message id, when returned.
	ExternalID string
}

// Error codes for delivery failures.
const (
	ErrorCodeInvalidRecipient = "INVALID_RECIPIENT"
	ErrorCodeInvalidKey       = "INVALID_KEY"
	ErrorCodeConnectionFailed = "CONNECTION_FAILED"
	ErrorCodeRateLimited      = "RATE_LIMITED"
	ErrorCodeServerError      = "SERVER_ERROR"
	ErrorCodeTimeout          = "TIMEOUT"
	ErrorCodeUnknown          = "UNKNOWN"
)

// apiKeyPrefix is the provider's key format; anything else fails the local
// format check before a single request is made.
const apiKeyPrefix = "re_"

// ValidateEmail validates an email address format.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email address is required")
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid email address format: %s", email)
	}
	if !strings.Contains(parts[1], ".") {
		return fmt.Errorf("invalid email domain: %s", parts[1])
	}
	return nil
}

// ValidateAPIKeyFormat checks the provider key shape without any network
// call. An empty key means the channel is unconfigured.
func ValidateAPIKeyFormat(key string) error {
	if key == "" {
		return fmt.Errorf("delivery API key is not configured")
	}
	if !strings.HasPrefix(key, apiKeyPrefix) {
		return fmt.Errorf("delivery API key has unexpected format")
	}
	if len(key) < len(apiKeyPrefix)+8 {
		return fmt.Errorf("delivery API key is too short")
	}
	return nil
}

// isTransientCode reports whether a failure class may clear on retry.
func isTransientCode(code string) bool {
	switch code {
	case ErrorCodeConnectionFailed, ErrorCodeTimeout, ErrorCodeRateLimited, ErrorCodeServerError:
		return true
	default:
		return false
	}
}
