// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/trailguard/internal/broadcast"
	"github.com/tomtom215/trailguard/internal/config"
	"github.com/tomtom215/trailguard/internal/eventstore"
	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/relay"
	"github.com/tomtom215/trailguard/internal/supervisor"
)

// initRelay connects the relay and adds it, and the embedded server when
// configured, to the tree. It returns nil when the relay is disabled.
func initRelay(ctx context.Context, cfg *config.Config, store *eventstore.Store, bus *broadcast.Bus, tree *supervisor.SupervisorTree) (*relay.Relay, error) {
	if !cfg.Relay.Enabled {
		logging.Info().Msg("Relay disabled (RELAY_ENABLED=false), running single node")
		return nil, nil
	}

	clientCfg := cfg.Relay.Client
	if cfg.NATS.Embedded {
		srv, err := relay.NewEmbeddedServer(cfg.NATS.Server)
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS server: %w", err)
		}
		tree.AddDataService(srv)
		clientCfg.URL = srv.ClientURL()
		logging.Info().Str("url", clientCfg.URL).Msg("Embedded NATS server started")
	}

	rel, err := relay.New(ctx, clientCfg, store, bus)
	if err != nil {
		return nil, err
	}
	tree.AddMessagingService(rel)

	logging.Info().
		Str("node_id", rel.NodeID()).
		Str("stream", clientCfg.Stream.Name).
		Msg("Relay connected")
	return rel, nil
}
