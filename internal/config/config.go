// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

// Package config loads and validates Beacon configuration from layered
// sources: built-in defaults, an optional YAML file, then environment
// variables (highest priority).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/educonnect/beacon/internal/models"
)

// Config is the root configuration for the Beacon daemon.
type Config struct {
	Store     StoreConfig     `koanf:"store"`
	Delivery  DeliveryConfig  `koanf:"delivery"`
	Remote    RemoteConfig    `koanf:"remote"`
	Geo       GeoConfig       `koanf:"geo"`
	Sharing   SharingConfig   `koanf:"sharing"`
	Monitor   MonitorConfig   `koanf:"monitor"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Guardians []GuardianEntry `koanf:"guardians"`
}

// StoreConfig configures the persistent local store.
type StoreConfig struct {
	// Path is the BadgerDB directory.
	Path string `koanf:"path" validate:"required"`
}

// DeliveryConfig configures the outbound notification provider.
type DeliveryConfig struct {
	// APIKey is the provider credential. Provider keys are prefixed "re_";
	// the health monitor checks the prefix without calling the provider.
	APIKey string `koanf:"api_key"`

	// Endpoint is the provider send URL.
	Endpoint string `koanf:"endpoint" validate:"required,url"`

	// VerifyEndpoint is probed by VerifyCredential diagnostics.
	VerifyEndpoint string `koanf:"verify_endpoint" validate:"required,url"`

	// FromAddress is the sender address notifications originate from.
	FromAddress string `koanf:"from_address" validate:"required,email"`

	// Timeout bounds one send call.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// RemoteConfig configures the remote location database.
type RemoteConfig struct {
	// URL is the database REST base URL.
	URL string `koanf:"url" validate:"required,url"`

	// ServiceKey authenticates writes.
	ServiceKey string `koanf:"service_key"`

	// Timeout bounds one insert call.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// RetryMax is how many times a transient insert failure is retried
	// before falling through to the direct-insert form.
	RetryMax int `koanf:"retry_max" validate:"gte=0,lte=5"`
}

// GeoConfig configures the geolocation source.
type GeoConfig struct {
	// Endpoint is the position provider URL.
	Endpoint string `koanf:"endpoint" validate:"required,url"`

	// Timeout bounds position acquisition. Default 15s.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// HighAccuracy requests a high-accuracy fix from the provider.
	HighAccuracy bool `koanf:"high_accuracy"`

	// MaxAge is the oldest acceptable cached fix. Zero forces a fresh fix.
	MaxAge time.Duration `koanf:"max_age" validate:"gte=0"`
}

// SharingConfig configures the orchestrator.
type SharingConfig struct {
	// SenderName is the display name recipients see ("Ana Souza").
	SenderName string `koanf:"sender_name" validate:"required"`

	// ReconcileInterval is how often the periodic reconciler replays the
	// pending-share queue. Zero disables the periodic pass (manual only).
	ReconcileInterval time.Duration `koanf:"reconcile_interval" validate:"gte=0"`

	// SendsPerSecond paces reconciliation sends to keep delivery-channel
	// load predictable.
	SendsPerSecond float64 `koanf:"sends_per_second" validate:"gt=0"`
}

// MonitorConfig configures the service health monitor.
type MonitorConfig struct {
	// CheckInterval is the periodic health check cadence. Default 15m.
	CheckInterval time.Duration `koanf:"check_interval" validate:"gt=0"`
}

// ServerConfig configures the HTTP control surface.
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// GuardianEntry is one configured default recipient.
type GuardianEntry struct {
	Address string `koanf:"address" validate:"required,email"`
	Label   string `koanf:"label"`
}

// defaultConfig returns a Config with all defaults applied. File and env
// layers override these.
func defaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path: "/data/beacon",
		},
		Delivery: DeliveryConfig{
			APIKey:         "",
			Endpoint:       "https://api.resend.com/emails",
			VerifyEndpoint: "https://api.resend.com/domains",
			FromAddress:    "onboarding@resend.dev",
			Timeout:        30 * time.Second,
		},
		Remote: RemoteConfig{
			URL:        "http://127.0.0.1:8000",
			ServiceKey: "",
			Timeout:    10 * time.Second,
			RetryMax:   2,
		},
		Geo: GeoConfig{
			Endpoint:     "http://127.0.0.1:2947/position",
			Timeout:      15 * time.Second,
			HighAccuracy: true,
			MaxAge:       0, // always a fresh fix
		},
		Sharing: SharingConfig{
			SenderName:        "EduConnect",
			ReconcileInterval: 2 * time.Minute,
			SendsPerSecond:    2,
		},
		Monitor: MonitorConfig{
			CheckInterval: 15 * time.Minute,
		},
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    4780,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for structural problems. A missing
// delivery API key is deliberately not an error here: the daemon starts and
// queues shares, and the health monitor reports the channel unhealthy.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// DefaultRecipients converts the configured guardian list to recipients.
func (c *Config) DefaultRecipients() []models.Recipient {
	recipients := make([]models.Recipient, 0, len(c.Guardians))
	for _, g := range c.Guardians {
		recipients = append(recipients, models.Recipient{Address: g.Address, Label: g.Label})
	}
	return recipients
}
