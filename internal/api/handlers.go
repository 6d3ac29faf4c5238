// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/trailguard/internal/eventstore"
	"github.com/tomtom215/trailguard/internal/geofence"
	"github.com/tomtom215/trailguard/internal/incident"
	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/models"
	ws "github.com/tomtom215/trailguard/internal/websocket"
)

// EventReader is the read side of the event store.
type EventReader interface {
	List(limit int) []models.Entry
	ListSubject(subjectID string, limit int) []models.Entry
	Get(id string) (models.Entry, bool)
	Stats() eventstore.Stats
}

// PositionMonitor evaluates position samples against reference areas.
type PositionMonitor interface {
	ReportFix(ctx context.Context, subjectID string, fix models.Fix) (*models.DeviationEvent, error)
	SetActiveArea(subjectID string, area *models.ReferenceArea)
	ActiveArea(subjectID string) *models.ReferenceArea
	State(subjectID string) geofence.State
	ThresholdMeters() float64
}

// IncidentTrigger runs incident captures.
type IncidentTrigger interface {
	TriggerWith(ctx context.Context, subjectID string, inline incident.Inline) (*incident.Summary, error)
}

// EvidenceInbox accepts evidence uploaded by devices.
type EvidenceInbox interface {
	PutTranscript(subjectID, text string)
	PutAudio(subjectID string, clip incident.AudioClip)
}

// SubscriberCounter reports live bus subscriptions.
type SubscriberCounter interface {
	SubscriberCount() int
}

// Deps bundles the components served by the API. Hub, Inbox and Bus may be
// nil; the endpoints depending on them then answer 503.
type Deps struct {
	Store    EventReader
	Monitor  PositionMonitor
	Incident IncidentTrigger
	Inbox    EvidenceInbox
	Hub      *ws.Hub
	Bus      SubscriberCounter
}

// Config holds handler limits.
type Config struct {
	// CORSOrigins also gates WebSocket upgrades. "*" allows any origin.
	CORSOrigins []string

	MaxBodyBytes     int64
	DefaultListLimit int
	MaxListLimit     int
}

// DefaultConfig returns handler defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:     2 << 20, // audio clips are sent inline as base64
		DefaultListLimit: 50,
		MaxListLimit:     1000,
	}
}

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers_subjects.go: positions and reference areas
//   - handlers_incidents.go: incident capture and evidence upload
//   - handlers_events.go: event listing and the WebSocket feed
//   - handlers_health.go: health probes
type Handler struct {
	deps      Deps
	config    Config
	startTime time.Time
}

// NewHandler creates a handler. Zero config fields take their defaults.
func NewHandler(deps Deps, cfg Config) *Handler {
	def := DefaultConfig()
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.DefaultListLimit <= 0 {
		cfg.DefaultListLimit = def.DefaultListLimit
	}
	if cfg.MaxListLimit <= 0 {
		cfg.MaxListLimit = def.MaxListLimit
	}
	if cfg.DefaultListLimit > cfg.MaxListLimit {
		cfg.DefaultListLimit = cfg.MaxListLimit
	}
	return &Handler{
		deps:      deps,
		config:    cfg,
		startTime: time.Now(),
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Browsers always send Origin; an empty one would bypass CORS.
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	for _, allowed := range h.config.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
