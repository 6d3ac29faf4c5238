// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package middleware

import (
	"net/http"
	"time"

	"github.com/tomtom215/trailguard/internal/logging"
)

// SlowRequestThreshold marks requests logged at warn level.
const SlowRequestThreshold = time.Second

// AccessLog writes one log line per request using the request's logging
// context. Server errors log at error level, slow requests at warn level.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := newStatusRecorder(w)
		next.ServeHTTP(wrapper, r)
		duration := time.Since(start)

		log := logging.Ctx(r.Context())
		ev := log.Debug()
		switch {
		case wrapper.statusCode >= 500:
			ev = log.Error()
		case duration > SlowRequestThreshold && wrapper.statusCode != http.StatusSwitchingProtocols:
			ev = log.Warn()
		}
		ev.Str("method", r.Method).
			Str("route", routePattern(r)).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}
