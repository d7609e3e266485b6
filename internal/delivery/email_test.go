// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "re_test_1234567890"

func testParams() *SendParams {
	return &SendParams{
		RecipientAddress: "guardian@example.com",
		RecipientLabel:   "Maria",
		Latitude:         -23.5489,
		Longitude:        -46.6388,
		SenderName:       "Ana Souza",
	}
}

func newTestChannel(endpoint, verifyEndpoint string) *EmailChannel {
	return NewEmailChannel(EmailConfig{
		APIKey:         testAPIKey,
		Endpoint:       endpoint,
		VerifyEndpoint: verifyEndpoint,
		FromAddress:    "noreply@example.com",
		Timeout:        2 * time.Second,
	})
}

func TestSendSuccess(t *testing.T) {
	var gotAuth string
	var gotBody sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg-123"}`))
	}))
	defer srv.Close()

	c := newTestChannel(srv.URL, srv.URL)
	result, err := c.Send(context.Background(), testParams())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "msg-123", result.ExternalID)
	require.NotNil(t, result.DeliveredAt)
	assert.Equal(t, "Bearer "+testAPIKey, gotAuth)
	assert.Equal(t, []string{"guardian@example.com"}, gotBody.To)
	assert.Contains(t, gotBody.Subject, "Ana Souza")
	assert.Contains(t, gotBody.HTML, "-23.548900")
	assert.Contains(t, gotBody.HTML, "https://www.google.com/maps?q=")
}

func TestSendClassifiesProviderStatus(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantCode      string
		wantTransient bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"invalid key"}}`, ErrorCodeInvalidKey, false},
		{"forbidden", http.StatusForbidden, `{}`, ErrorCodeInvalidKey, false},
		{"bad recipient", http.StatusUnprocessableEntity, `{"error":{"message":"bad to"}}`, ErrorCodeInvalidRecipient, false},
		{"rate limited", http.StatusTooManyRequests, `{}`, ErrorCodeRateLimited, true},
		{"server error", http.StatusInternalServerError, `{}`, ErrorCodeServerError, true},
		{"teapot", http.StatusTeapot, `{}`, ErrorCodeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestChannel(srv.URL, srv.URL)
			result, err := c.Send(context.Background(), testParams())
			require.NoError(t, err, "delivery failures are results, not errors")

			assert.False(t, result.Success)
			assert.Equal(t, tt.wantCode, result.ErrorCode)
			assert.Equal(t, tt.wantTransient, result.IsTransient)
			assert.Equal(t, tt.status, result.StatusCode)
		})
	}
}

func TestSendExtractsProviderMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"message":"recipient domain rejected"}}`))
	}))
	defer srv.Close()

	c := newTestChannel(srv.URL, srv.URL)
	result, err := c.Send(context.Background(), testParams())
	require.NoError(t, err)
	assert.Equal(t, "recipient domain rejected", result.Message)
}

func TestSendConnectionRefused(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestChannel(url, url)
	result, err := c.Send(context.Background(), testParams())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, ErrorCodeConnectionFailed, result.ErrorCode)
	assert.True(t, result.IsTransient)
}

func TestSendRejectsLocallyWithoutRequest(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		requests++
	}))
	defer srv.Close()

	t.Run("invalid recipient", func(t *testing.T) {
		c := newTestChannel(srv.URL, srv.URL)
		params := testParams()
		params.RecipientAddress = "not-an-email"
		result, err := c.Send(context.Background(), params)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, ErrorCodeInvalidRecipient, result.ErrorCode)
		assert.False(t, result.IsTransient)
	})

	t.Run("malformed key", func(t *testing.T) {
		c := NewEmailChannel(EmailConfig{
			APIKey:      "sk_wrong_prefix",
			Endpoint:    srv.URL,
			FromAddress: "noreply@example.com",
		})
		result, err := c.Send(context.Background(), testParams())
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, ErrorCodeInvalidKey, result.ErrorCode)
	})

	assert.Equal(t, 0, requests, "local validation failures must not reach the provider")
}

func TestSendNilParams(t *testing.T) {
	c := newTestChannel("http://127.0.0.1:0", "http://127.0.0.1:0")
	_, err := c.Send(context.Background(), nil)
	assert.Error(t, err)
}

func TestVerifyCredential(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr string
	}{
		{"accepted", http.StatusOK, ""},
		{"rejected", http.StatusUnauthorized, "rejected"},
		{"forbidden", http.StatusForbidden, "rejected"},
		{"provider down", http.StatusInternalServerError, "status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := newTestChannel(srv.URL, srv.URL)
			err := c.VerifyCredential(context.Background())
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestVerifyCredentialChecksFormatFirst(t *testing.T) {
	c := NewEmailChannel(EmailConfig{APIKey: "", VerifyEndpoint: "http://127.0.0.1:0"})
	err := c.VerifyCredential(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		ok    bool
	}{
		{"guardian@example.com", true},
		{"a@b.co", true},
		{"", false},
		{"no-at-sign", false},
		{"@example.com", false},
		{"user@", false},
		{"user@nodot", false},
		{"two@@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateAPIKeyFormat(t *testing.T) {
	tests := []struct {
		name string
		key  string
		ok   bool
	}{
		{"valid", "re_abcdefgh123", true},
		{"empty", "", false},
		{"wrong prefix", "sk_abcdefgh123", false},
		{"too short", "re_abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKeyFormat(tt.key)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestBuildLocationBodyFallsBackToAddress(t *testing.T) {
	params := testParams()
	params.RecipientLabel = ""
	body := buildLocationBody(params)
	assert.True(t, strings.Contains(body, "guardian@example.com"))
}
