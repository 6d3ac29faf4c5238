// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

/*
Package supervisor runs Trailguard's long-lived components under a suture v4
supervision tree.

	trailguard (root)
	├── data-layer
	│   ├── nats-embedded      (when the relay uses the in-process server)
	│   └── event-store-gc     (when the store is persisted)
	├── messaging-layer
	│   ├── relay              (when enabled)
	│   ├── notify-dispatcher  (when a notifier is enabled)
	│   └── websocket-hub
	└── api-layer
	    └── http-server

A service that returns an error is restarted with backoff. Supervisor events
are logged through sutureslog into the zerolog-backed slog handler.

Components with a Serve(ctx) error method are added directly. The services
subpackage adapts components with other lifecycles, such as *http.Server.
*/
package supervisor
