// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

/*
Package config loads Trailguard configuration.

Configuration is layered with koanf: built-in defaults, then an optional YAML
file (CONFIG_PATH, ./config.yaml or /etc/trailguard/config.yaml), then
environment variables. Later layers win.

# Sections

  - server: HTTP listener, timeouts and request limits
  - store: event log capacity and BadgerDB tuning
  - bus: per-subscriber queue size
  - geofence: deviation threshold in meters
  - capture: incident evidence timeouts
  - dashboard: console view size and reconciliation interval
  - relay, nats: optional multi-node sharing over NATS JetStream
  - notify: emergency webhook escalation
  - security: CORS origins and rate limiting
  - logging: level, format and caller

# Environment Variables

Only mapped variables are read, for example:

  - HTTP_PORT: listen port (default: 8080)
  - STORE_PATH: BadgerDB directory, empty for memory only (default: /data/events)
  - STORE_CAPACITY: entries kept (default: 100)
  - GEOFENCE_THRESHOLD_METERS: allowed distance (default: 5000)
  - RELAY_ENABLED, RELAY_NODE_ID, RELAY_URL: multi-node relay
  - NOTIFY_WEBHOOK_ENABLED, NOTIFY_WEBHOOK_URL: escalation endpoint
  - CORS_ORIGINS: comma-separated list
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER

# Usage

	cfg, err := config.LoadWithKoanf()
	if err != nil {
	    log.Fatal(err)
	}
*/
package config
