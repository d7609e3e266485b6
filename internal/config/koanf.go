// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"beacon.yaml",
	"beacon.yml",
	"/etc/beacon/config.yaml",
	"/etc/beacon/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "BEACON_CONFIG"

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
//
// An explicit non-empty path skips file discovery and must exist.
func Load(explicitPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// Layer 2: config file, if one exists
	path := explicitPath
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so unrelated environment noise never leaks
// into the configuration.
func envTransformFunc(key string) string {
	mappings := map[string]string{
		"BEACON_STORE_PATH": "store.path",

		"BEACON_DELIVERY_API_KEY":         "delivery.api_key",
		"BEACON_DELIVERY_ENDPOINT":        "delivery.endpoint",
		"BEACON_DELIVERY_VERIFY_ENDPOINT": "delivery.verify_endpoint",
		"BEACON_DELIVERY_FROM":            "delivery.from_address",
		"BEACON_DELIVERY_TIMEOUT":         "delivery.timeout",

		"BEACON_REMOTE_URL":         "remote.url",
		"BEACON_REMOTE_SERVICE_KEY": "remote.service_key",
		"BEACON_REMOTE_TIMEOUT":     "remote.timeout",
		"BEACON_REMOTE_RETRY_MAX":   "remote.retry_max",

		"BEACON_GEO_ENDPOINT":      "geo.endpoint",
		"BEACON_GEO_TIMEOUT":       "geo.timeout",
		"BEACON_GEO_HIGH_ACCURACY": "geo.high_accuracy",
		"BEACON_GEO_MAX_AGE":       "geo.max_age",

		"BEACON_SENDER_NAME":        "sharing.sender_name",
		"BEACON_RECONCILE_INTERVAL": "sharing.reconcile_interval",
		"BEACON_SENDS_PER_SECOND":   "sharing.sends_per_second",

		"BEACON_MONITOR_INTERVAL": "monitor.check_interval",

		"BEACON_HTTP_HOST":    "server.host",
		"BEACON_HTTP_PORT":    "server.port",
		"BEACON_HTTP_TIMEOUT": "server.timeout",

		"BEACON_LOG_LEVEL":  "logging.level",
		"BEACON_LOG_FORMAT": "logging.format",
		"BEACON_LOG_CALLER": "logging.caller",
	}

	if mapped, ok := mappings[strings.ToUpper(key)]; ok {
		return mapped
	}
	return ""
}
