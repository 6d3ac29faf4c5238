// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

/*
Package main is the entry point for the Trailguard server.

Trailguard watches tourists' reported positions against their itinerary area,
records deviations and distress incidents in a bounded event log, and pushes
every new entry to the tourism and police consoles.

# Application Architecture

	trailguard (root)
	├── data-layer
	│   ├── nats-embedded (relay with NATS_EMBEDDED=true)
	│   └── event-store-gc (persisted store)
	├── messaging-layer
	│   ├── relay (RELAY_ENABLED=true)
	│   ├── notify-dispatcher (NOTIFY_WEBHOOK_ENABLED=true)
	│   └── websocket-hub
	└── api-layer
	    └── http-server

Initialization order:

 1. Configuration: koanf defaults, config.yaml, environment
 2. Logging: zerolog with the configured level and format
 3. Broadcast bus and event store (BadgerDB unless STORE_PATH is empty)
 4. Geofence monitor and incident orchestrator
 5. Relay and embedded NATS server (optional)
 6. Notifier dispatcher (optional)
 7. HTTP server with the chi router

# Signal Handling

SIGINT and SIGTERM cancel the root context. The tree stops every service,
the HTTP server drains open requests, and the event store is closed last.

# Example Usage

Single node, memory-only log:

	export STORE_PATH=
	export CORS_ORIGINS=http://localhost:5173
	./trailguard

Two nodes sharing one NATS server:

	export RELAY_ENABLED=true
	export NATS_EMBEDDED=false
	export RELAY_URL=nats://nats.internal:4222
	export RELAY_NODE_ID=delhi-1
	./trailguard
*/
package main
