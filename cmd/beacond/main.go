// Beacon - Resilient Student-Guardian Location Sharing
// Copyright 2026 EduConnect
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/educonnect/beacon

// Command beacond runs the Beacon daemon: the local pipeline that captures,
// caches, and shares the student's location with guardians, together with the
// health monitor and the HTTP control surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/educonnect/beacon/internal/api"
	"github.com/educonnect/beacon/internal/cache"
	"github.com/educonnect/beacon/internal/config"
	"github.com/educonnect/beacon/internal/delivery"
	"github.com/educonnect/beacon/internal/geo"
	"github.com/educonnect/beacon/internal/logging"
	"github.com/educonnect/beacon/internal/monitor"
	"github.com/educonnect/beacon/internal/notify"
	"github.com/educonnect/beacon/internal/remote"
	"github.com/educonnect/beacon/internal/sharing"
	"github.com/educonnect/beacon/internal/store"
	"github.com/educonnect/beacon/internal/supervisor"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Daemon exited with error")
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("beacond " + version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("version", version).Msg("Beacon starting")

	localStore, err := store.OpenBadger(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer func() {
		if cerr := localStore.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Local store close failed")
		}
	}()

	sink := notify.LogSink{}
	cacheMgr := cache.NewManager(localStore)

	channel := delivery.NewEmailChannel(delivery.EmailConfig{
		APIKey:         cfg.Delivery.APIKey,
		Endpoint:       cfg.Delivery.Endpoint,
		VerifyEndpoint: cfg.Delivery.VerifyEndpoint,
		FromAddress:    cfg.Delivery.FromAddress,
		Timeout:        cfg.Delivery.Timeout,
	})

	// Routine health checks only validate the key shape locally; the
	// provider round trip is reserved for explicit diagnostics.
	credCheck := func(context.Context) error {
		return delivery.ValidateAPIKeyFormat(cfg.Delivery.APIKey)
	}
	mon := monitor.New(localStore, cacheMgr, credCheck, monitor.WithAlertSink(sink))

	writer := remote.NewClient(remote.Config{
		URL:        cfg.Remote.URL,
		ServiceKey: cfg.Remote.ServiceKey,
		Timeout:    cfg.Remote.Timeout,
		RetryMax:   cfg.Remote.RetryMax,
	})

	source := geo.NewHTTPSource(cfg.Geo.Endpoint)

	orchestrator := sharing.New(
		sharing.Config{
			SenderName:     cfg.Sharing.SenderName,
			SendsPerSecond: cfg.Sharing.SendsPerSecond,
		},
		cacheMgr, writer, channel, source, mon, sink,
		cfg.DefaultRecipients(),
	)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if cfg.Sharing.ReconcileInterval > 0 {
		tree.AddPipelineService(sharing.NewReconciler(orchestrator, cfg.Sharing.ReconcileInterval))
	}
	tree.AddPipelineService(monitor.NewService(mon, cfg.Monitor.CheckInterval))
	tree.AddAPIService(api.NewServer(api.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Timeout: cfg.Server.Timeout,
	}, orchestrator, mon, cacheMgr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}
	logging.Info().Msg("Beacon stopped")
	return nil
}
