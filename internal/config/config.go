// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package config

import (
	"time"

	"github.com/tomtom215/trailguard/internal/dashboard"
	"github.com/tomtom215/trailguard/internal/eventstore"
	"github.com/tomtom215/trailguard/internal/geofence"
	"github.com/tomtom215/trailguard/internal/incident"
	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/notify"
	"github.com/tomtom215/trailguard/internal/relay"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Bus       BusConfig       `koanf:"bus"`
	Geofence  GeofenceConfig  `koanf:"geofence"`
	Capture   CaptureConfig   `koanf:"capture"`
	Dashboard DashboardConfig `koanf:"dashboard"`
	Relay     RelayConfig     `koanf:"relay"` // Optional: share entries with other nodes over NATS JetStream
	NATS      NATSConfig      `koanf:"nats"`
	Notify    NotifyConfig    `koanf:"notify"` // Optional: escalate incidents to an emergency endpoint
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies. Inline audio evidence is the
	// largest payload.
	MaxBodyBytes     int64 `koanf:"max_body_bytes"`
	DefaultListLimit int   `koanf:"default_list_limit"`
	MaxListLimit     int   `koanf:"max_list_limit"`
}

// StoreConfig holds event log settings.
type StoreConfig struct {
	// Path is the BadgerDB directory. Empty keeps the log in memory.
	Path             string        `koanf:"path"`
	Capacity         int           `koanf:"capacity"`
	Retention        time.Duration `koanf:"retention"`
	SyncWrites       bool          `koanf:"sync_writes"`
	Compression      bool          `koanf:"compression"`
	MemTableSize     int64         `koanf:"mem_table_size"`
	ValueLogFileSize int64         `koanf:"value_log_file_size"`
	NumCompactors    int           `koanf:"num_compactors"`
	GCInterval       time.Duration `koanf:"gc_interval"`
	GCRatio          float64       `koanf:"gc_ratio"`
	CloseTimeout     time.Duration `koanf:"close_timeout"`
}

// EventStore converts to the event store configuration.
func (s StoreConfig) EventStore() eventstore.Config {
	return eventstore.Config{
		Path:             s.Path,
		Capacity:         s.Capacity,
		Retention:        s.Retention,
		SyncWrites:       s.SyncWrites,
		Compression:      s.Compression,
		MemTableSize:     s.MemTableSize,
		ValueLogFileSize: s.ValueLogFileSize,
		NumCompactors:    s.NumCompactors,
		GCInterval:       s.GCInterval,
		GCRatio:          s.GCRatio,
		CloseTimeout:     s.CloseTimeout,
	}
}

// EventStore returns the event store configuration. With the relay enabled,
// generated ids carry the relay node id so nodes never hand out the same id.
func (c *Config) EventStore() eventstore.Config {
	sc := c.Store.EventStore()
	if c.Relay.Enabled {
		sc.NodeID = c.Relay.Client.NodeID
	}
	return sc
}

// BusConfig holds broadcast bus settings.
type BusConfig struct {
	// QueueSize is the per-subscriber buffer. A full queue drops the
	// delivery for that subscriber only.
	QueueSize int `koanf:"queue_size"`
}

// GeofenceConfig holds the deviation threshold.
type GeofenceConfig struct {
	ThresholdMeters float64 `koanf:"threshold_meters"`
}

// Monitor converts to the geofence monitor configuration.
func (g GeofenceConfig) Monitor() geofence.Config {
	return geofence.Config{ThresholdMeters: g.ThresholdMeters}
}

// CaptureConfig holds incident capture timings.
type CaptureConfig struct {
	PositionTimeout   time.Duration `koanf:"position_timeout"`
	TranscriptTimeout time.Duration `koanf:"transcript_timeout"`
	AudioDuration     time.Duration `koanf:"audio_duration"`
	AudioGrace        time.Duration `koanf:"audio_grace"`

	// PositionMaxAge is how old the last reported fix may be and still
	// count as the incident location.
	PositionMaxAge time.Duration `koanf:"position_max_age"`
}

// Orchestrator converts to the incident orchestrator configuration.
func (c CaptureConfig) Orchestrator() incident.Config {
	return incident.Config{
		PositionTimeout:   c.PositionTimeout,
		TranscriptTimeout: c.TranscriptTimeout,
		AudioDuration:     c.AudioDuration,
		AudioGrace:        c.AudioGrace,
	}
}

// DashboardConfig holds console view settings.
type DashboardConfig struct {
	Interval   time.Duration `koanf:"interval"`
	MaxEntries int           `koanf:"max_entries"`
}

// View converts to the dashboard consumer configuration.
func (d DashboardConfig) View() dashboard.Config {
	return dashboard.Config{Interval: d.Interval, MaxEntries: d.MaxEntries}
}

// RelayConfig enables multi-node sharing of the event log.
type RelayConfig struct {
	Enabled bool         `koanf:"enabled"`
	Client  relay.Config `koanf:"client"`
}

// NATSConfig controls the embedded NATS server. When Embedded is set and
// the relay is enabled, the relay connects to the in-process server
// instead of Relay.Client.URL.
type NATSConfig struct {
	Embedded bool               `koanf:"embedded"`
	Server   relay.ServerConfig `koanf:"server"`
}

// NotifyConfig holds escalation settings.
type NotifyConfig struct {
	Webhook    notify.WebhookConfig    `koanf:"webhook"`
	Dispatcher notify.DispatcherConfig `koanf:"dispatcher"`
}

// SecurityConfig holds CORS and rate limiting settings
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
//
// Environment variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Logger converts to the logging package configuration.
func (l LoggingConfig) Logger() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = l.Format
	cfg.Caller = l.Caller
	return cfg
}
