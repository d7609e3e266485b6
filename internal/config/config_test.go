// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4780, cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Monitor.CheckInterval)
	assert.Equal(t, 2*time.Minute, cfg.Sharing.ReconcileInterval)
	assert.Zero(t, cfg.Geo.MaxAge, "shares use a fresh fix by default")
	assert.True(t, cfg.Geo.HighAccuracy)
}

func TestMissingAPIKeyIsNotAValidationError(t *testing.T) {
	cfg := defaultConfig()
	cfg.Delivery.APIKey = ""
	assert.NoError(t, cfg.Validate(), "the daemon must start and queue shares without a key")
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty store path", func(c *Config) { c.Store.Path = "" }},
		{"bad delivery endpoint", func(c *Config) { c.Delivery.Endpoint = "not a url" }},
		{"bad from address", func(c *Config) { c.Delivery.FromAddress = "not-an-email" }},
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"negative sends per second", func(c *Config) { c.Sharing.SendsPerSecond = -1 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad guardian address", func(c *Config) {
			c.Guardians = []GuardianEntry{{Address: "nope"}}
		}},
		{"retry max too high", func(c *Config) { c.Remote.RetryMax = 10 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beacon.yaml")
	content := []byte(`
server:
  port: 9999
sharing:
  sender_name: "Ana Souza"
guardians:
  - address: maria@example.com
    label: Maria
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "Ana Souza", cfg.Sharing.SenderName)
	// Untouched values keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)

	recipients := cfg.DefaultRecipients()
	require.Len(t, recipients, 1)
	assert.Equal(t, "maria@example.com", recipients[0].Address)
	assert.Equal(t, "Maria", recipients[0].Label)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beacon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o600))

	t.Setenv("BEACON_HTTP_PORT", "8888")
	t.Setenv("BEACON_DELIVERY_API_KEY", "re_env_12345678")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8888, cfg.Server.Port)
	assert.Equal(t, "re_env_12345678", cfg.Delivery.APIKey)
}

func TestEnvTransformSkipsUnmappedVariables(t *testing.T) {
	assert.Equal(t, "server.port", envTransformFunc("BEACON_HTTP_PORT"))
	assert.Equal(t, "", envTransformFunc("PATH"))
	assert.Equal(t, "", envTransformFunc("BEACON_UNKNOWN"))
}

func TestLoadMissingDefaultFileIsFine(t *testing.T) {
	// Run from a directory with no config file and no env overrides.
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4780, cfg.Server.Port)
}
