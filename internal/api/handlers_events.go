// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/models"
	"github.com/tomtom215/trailguard/internal/validation"
	ws "github.com/tomtom215/trailguard/internal/websocket"
)

// ListEvents returns the newest entries, most recent first.
//
// Query parameters: limit (1..MaxListLimit) and subject.
//
// @Summary List recent events
// @Description Returns deviation and incident entries in store order, newest first.
// @Tags Events
// @Produce json
// @Param limit query int false "Maximum entries" default(50) minimum(1)
// @Param subject query string false "Only entries for this subject"
// @Success 200 {object} models.APIResponse{data=[]models.Entry}
// @Failure 400 {object} models.APIResponse "Invalid parameters"
// @Router /events [get]
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := getIntParam(r, "limit", h.config.DefaultListLimit)
	if !ok || limit < 1 || limit > h.config.MaxListLimit {
		respondErrorDetails(w, r, http.StatusBadRequest, "VALIDATION_ERROR",
			"limit must be between 1 and "+strconv.Itoa(h.config.MaxListLimit), nil, nil)
		return
	}

	var entries []models.Entry
	if subject := r.URL.Query().Get("subject"); subject != "" {
		if ve := validation.ValidateVar(subject, "subject", "subjectid"); ve != nil {
			respondValidation(w, r, toAPIError(ve))
			return
		}
		entries = h.deps.Store.ListSubject(subject, limit)
	} else {
		entries = h.deps.Store.List(limit)
	}
	if entries == nil {
		entries = []models.Entry{}
	}

	count := len(entries)
	md := newMetadata(r)
	md.Count = &count
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     entries,
		Metadata: md,
	})
}

// GetEvent returns one entry by id.
//
// @Summary Get one event
// @Tags Events
// @Produce json
// @Param entryID path string true "Entry id"
// @Success 200 {object} models.APIResponse{data=models.Entry}
// @Failure 404 {object} models.APIResponse "Entry not found"
// @Router /events/{entryID} [get]
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entryID")
	entry, ok := h.deps.Store.Get(id)
	if !ok {
		respondErrorDetails(w, r, http.StatusNotFound, "NOT_FOUND", "Entry not found", nil, nil)
		return
	}
	respondSuccess(w, r, http.StatusOK, entry)
}

// WebSocket upgrades the connection and streams entries to a console.
//
// @Summary Stream events to a console
// @Description Upgrades to a WebSocket. The server sends a snapshot message, then one event message per new entry.
// @Tags Events
// @Success 101 "Switching protocols"
// @Router /ws [get]
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		logging.Warn().Msg("WebSocket connection rejected: hub not initialized")
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "WebSocket service unavailable", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(h.deps.Hub, conn)
	select {
	case h.deps.Hub.Register <- client:
	case <-h.deps.Hub.Done():
		_ = conn.Close()
		return
	case <-r.Context().Done():
		_ = conn.Close()
		return
	}
	client.Start()
}
