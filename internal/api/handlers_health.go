// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/trailguard/internal/eventstore"
)

// HealthStatus is the body of GET /api/v1/health.
type HealthStatus struct {
	Status         string           `json:"status"` // healthy, degraded
	Store          eventstore.Stats `json:"store"`
	BusSubscribers int              `json:"bus_subscribers"`
	Consoles       int              `json:"consoles"`
	Uptime         float64          `json:"uptime"`
}

// Health reports store and bus statistics. The service is degraded while
// the most recent append could not be persisted.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.deps.Store.Stats()

	status := "healthy"
	if stats.Closed || (stats.Persistent && stats.LastPersistFailed) {
		status = "degraded"
	}

	health := HealthStatus{
		Status: status,
		Store:  stats,
		Uptime: time.Since(h.startTime).Seconds(),
	}
	if h.deps.Bus != nil {
		health.BusSubscribers = h.deps.Bus.SubscriberCount()
	}
	if h.deps.Hub != nil {
		health.Consoles = h.deps.Hub.GetClientCount()
	}

	respondSuccess(w, r, http.StatusOK, health)
}

// HealthLive returns 200 while the process is alive.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady returns 200 once the event store accepts writes, 503 otherwise.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store == nil || h.deps.Store.Stats().Closed {
		respondErrorDetails(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Event store not ready", nil, nil)
		return
	}
	respondSuccess(w, r, http.StatusOK, map[string]bool{"ready": true})
}
