// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

/*
Package middleware provides HTTP middleware shared by the API router.

Key Components:

  - RequestID: UUID request ids propagated to logs and the X-Request-ID header
  - AccessLog: one structured log line per request
  - PrometheusMetrics: request counters, latency histogram and in-flight gauge

All middleware has the chi signature func(http.Handler) http.Handler. Metrics
and logs label requests by chi route pattern, not raw path, so subject ids
in URLs do not create new series:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(middleware.PrometheusMetrics)

The response wrapper keeps http.Hijacker working so WebSocket upgrades pass
through the stack.
*/
package middleware
