// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/trailguard/internal/api"
	"github.com/tomtom215/trailguard/internal/broadcast"
	"github.com/tomtom215/trailguard/internal/config"
	"github.com/tomtom215/trailguard/internal/eventstore"
	"github.com/tomtom215/trailguard/internal/geofence"
	"github.com/tomtom215/trailguard/internal/incident"
	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/notify"
	"github.com/tomtom215/trailguard/internal/supervisor"
	"github.com/tomtom215/trailguard/internal/supervisor/services"
	ws "github.com/tomtom215/trailguard/internal/websocket"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(cfg.Logging.Logger())
	logging.Info().
		Str("store_path", cfg.Store.Path).
		Int("capacity", cfg.Store.Capacity).
		Float64("threshold_m", cfg.Geofence.ThresholdMeters).
		Bool("relay", cfg.Relay.Enabled).
		Msg("Starting Trailguard")

	bus := broadcast.New(cfg.Bus.QueueSize)
	defer bus.Close()

	store, err := eventstore.Open(cfg.EventStore(), bus)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open event store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event store")
		}
	}()

	tracker := geofence.NewTracker()
	monitor := geofence.NewMonitor(cfg.Geofence.Monitor(), store, tracker)

	// Devices upload the transcript and audio clip after the trigger; the
	// inbox hands them to the capture waiting for that subject.
	inbox := incident.NewInbox()
	orchestrator := incident.NewOrchestrator(cfg.Capture.Orchestrator(), store, incident.Sources{
		Position:   &incident.TrackerPositionSource{Tracker: tracker, MaxAge: cfg.Capture.PositionMaxAge},
		Transcript: inbox,
		Audio:      inbox,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if cfg.Store.Path != "" {
		tree.AddDataService(eventstore.NewGCService(store))
	}

	rel, err := initRelay(ctx, cfg, store, bus, tree)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize relay")
	}
	if rel != nil {
		defer func() {
			if err := rel.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing relay")
			}
		}()
	}

	dispatcher := notify.NewDispatcher(cfg.Notify.Dispatcher, bus, notify.NewWebhookNotifier(cfg.Notify.Webhook))
	if rel != nil {
		// The node that recorded an entry escalates it.
		dispatcher.SetSkip(rel.IsForeign)
	}
	if dispatcher.Active() > 0 {
		tree.AddMessagingService(dispatcher)
		logging.Info().Int("notifiers", dispatcher.Active()).Msg("Escalation enabled")
	}

	hub := ws.NewHub(store, bus, cfg.Dashboard.View())
	tree.AddMessagingService(hub)

	handler := api.NewHandler(api.Deps{
		Store:    store,
		Monitor:  monitor,
		Incident: orchestrator,
		Inbox:    inbox,
		Hub:      hub,
		Bus:      bus,
	}, api.Config{
		CORSOrigins:      cfg.Security.CORSOrigins,
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		DefaultListLimit: cfg.Server.DefaultListLimit,
		MaxListLimit:     cfg.Server.MaxListLimit,
	})

	mwCfg := api.DefaultChiMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mwCfg.RateLimitRequests = cfg.Security.RateLimitReqs
	mwCfg.RateLimitWindow = cfg.Security.RateLimitWindow
	mwCfg.RateLimitDisabled = cfg.Security.RateLimitDisabled
	router := api.NewRouter(handler, api.NewChiMiddleware(mwCfg))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Trailguard stopped")
}
