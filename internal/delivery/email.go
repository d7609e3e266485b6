// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/educonnect/beacon/internal/logging"
)

// EmailConfig configures the email API channel.
type EmailConfig struct {
	// APIKey is the provider bearer credential.
	APIKey string

	// Endpoint is the provider send URL.
	Endpoint string

	// VerifyEndpoint is an authenticated read-only endpoint used to verify
	// the credential without sending mail.
	VerifyEndpoint string

	// FromAddress is the sender address.
	FromAddress string

	// Timeout bounds one request. Default 30s.
	Timeout time.Duration
}

// EmailChannel delivers location notifications through the hosted email
// provider's REST API.
type EmailChannel struct {
	cfg    EmailConfig
	client *http.Client
	log    zerolog.Logger
}

// NewEmailChannel creates the email API channel.
func NewEmailChannel(cfg EmailConfig) *EmailChannel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &EmailChannel{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logging.With().Str("component", "delivery").Logger(),
	}
}

// sendRequest is the provider send payload.
type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// sendResponse is the provider send response.
type sendResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Send delivers one location notification. Failures come back in the Result.
func (c *EmailChannel) Send(ctx context.Context, params *SendParams) (*Result, error) {
	if params == nil {
		return nil, fmt.Errorf("send params are required")
	}

	result := &Result{}

	if err := ValidateEmail(params.RecipientAddress); err != nil {
		result.Message = err.Error()
		result.ErrorCode = ErrorCodeInvalidRecipient
		return result, nil //nolint:nilerr // failure is captured in the result struct
	}
	if err := ValidateAPIKeyFormat(c.cfg.APIKey); err != nil {
		result.Message = err.Error()
		result.ErrorCode = ErrorCodeInvalidKey
		return result, nil //nolint:nilerr // failure is captured in the result struct
	}

	payload := sendRequest{
		From:    fmt.Sprintf("%s <%s>", params.SenderName, c.cfg.FromAddress),
		To:      []string{params.RecipientAddress},
		Subject: fmt.Sprintf("%s shared a location with you", params.SenderName),
		HTML:    buildLocationBody(params),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		result.Message = fmt.Sprintf("encode payload: %v", err)
		result.ErrorCode = ErrorCodeUnknown
		return result, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		result.Message = fmt.Sprintf("build request: %v", err)
		result.ErrorCode = ErrorCodeUnknown
		return result, nil
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		result.Message = err.Error()
		result.ErrorCode = classifyTransportError(err)
		result.IsTransient = isTransientCode(result.ErrorCode)
		return result, nil
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // best effort cleanup

	result.StatusCode = resp.StatusCode
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16)) //nolint:errcheck // partial body still useful

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.ErrorCode = classifyStatus(resp.StatusCode)
		result.IsTransient = isTransientCode(result.ErrorCode)
		result.Message = providerErrorMessage(respBody, resp.StatusCode)
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("error_code", result.ErrorCode).
			Msg("Delivery provider rejected notification")
		return result, nil
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err == nil {
		result.ExternalID = parsed.ID
	}

	now := time.Now()
	result.Success = true
	result.DeliveredAt = &now
	c.log.Debug().Str("recipient", params.RecipientAddress).Msg("Notification delivered")
	return result, nil
}

// VerifyCredential probes an authenticated read-only provider endpoint.
// It never touches the send endpoint.
func (c *EmailChannel) VerifyCredential(ctx context.Context) error {
	if err := ValidateAPIKeyFormat(c.cfg.APIKey); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.VerifyEndpoint, nil)
	if err != nil {
		return fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("verify credential: %w", err)
	}
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck // best effort cleanup

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("delivery API key rejected by provider (status %d)", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("credential verification failed with status %d", resp.StatusCode)
	}
	return nil
}

// buildLocationBody renders the notification HTML with a map link.
func buildLocationBody(params *SendParams) string {
	mapURL := fmt.Sprintf("https://www.google.com/maps?q=%.6f,%.6f", params.Latitude, params.Longitude)
	label := params.RecipientLabel
	if label == "" {
		label = params.RecipientAddress
	}

	var b bytes.Buffer
	b.WriteString(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">`)
	fmt.Fprintf(&b, `<h2 style="color: #4a6cf7;">%s shared a location</h2>`, params.SenderName)
	fmt.Fprintf(&b, `<p>Hello %s,</p>`, label)
	fmt.Fprintf(&b, `<p>%s shared their current location with you:</p>`, params.SenderName)
	fmt.Fprintf(&b, `<p><strong>Latitude:</strong> %.6f<br><strong>Longitude:</strong> %.6f</p>`, params.Latitude, params.Longitude)
	fmt.Fprintf(&b, `<p><a href="%s" style="background-color: #4a6cf7; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px;">Open on the map</a></p>`, mapURL)
	b.WriteString(`<hr style="border: none; border-top: 1px solid #e0e0e0;">`)
	b.WriteString(`<p style="font-size: 12px; color: #777;">This is an automated message. Please do not reply.</p>`)
	b.WriteString(`</div>`)
	return b.String()
}

// classifyTransportError classifies a request-level error.
func classifyTransportError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeTimeout
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorCodeTimeout
	}
	return ErrorCodeConnectionFailed
}

// classifyStatus classifies a provider HTTP status.
func classifyStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorCodeInvalidKey
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return ErrorCodeInvalidRecipient
	case status == http.StatusTooManyRequests:
		return ErrorCodeRateLimited
	case status >= 500:
		return ErrorCodeServerError
	default:
		return ErrorCodeUnknown
	}
}

// providerErrorMessage extracts the provider error message, falling back to
// the HTTP status.
func providerErrorMessage(body []byte, status int) string {
	var parsed sendResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return fmt.Sprintf("provider returned status %d", status)
}
