// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/trailguard/internal/dashboard"
	"github.com/tomtom215/trailguard/internal/eventstore"
	"github.com/tomtom215/trailguard/internal/geofence"
	"github.com/tomtom215/trailguard/internal/incident"
	"github.com/tomtom215/trailguard/internal/notify"
	"github.com/tomtom215/trailguard/internal/relay"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/trailguard/config.yaml",
	"/etc/trailguard/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	store := eventstore.DefaultConfig()
	capture := incident.DefaultConfig()
	relayClient := relay.DefaultConfig()
	relayClient.NodeID = defaultNodeID()

	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      60 * time.Second,
			ShutdownTimeout:  10 * time.Second,
			MaxBodyBytes:     2 << 20,
			DefaultListLimit: 50,
			MaxListLimit:     1000,
		},
		Store: StoreConfig{
			Path:             store.Path,
			Capacity:         store.Capacity,
			Retention:        store.Retention,
			SyncWrites:       store.SyncWrites,
			Compression:      store.Compression,
			MemTableSize:     store.MemTableSize,
			ValueLogFileSize: store.ValueLogFileSize,
			NumCompactors:    store.NumCompactors,
			GCInterval:       store.GCInterval,
			GCRatio:          store.GCRatio,
			CloseTimeout:     store.CloseTimeout,
		},
		Bus: BusConfig{
			QueueSize: 256,
		},
		Geofence: GeofenceConfig{
			ThresholdMeters: geofence.DefaultThresholdMeters,
		},
		Capture: CaptureConfig{
			PositionTimeout:   capture.PositionTimeout,
			TranscriptTimeout: capture.TranscriptTimeout,
			AudioDuration:     capture.AudioDuration,
			AudioGrace:        capture.AudioGrace,
			PositionMaxAge:    30 * time.Second,
		},
		Dashboard: DashboardConfig{
			Interval:   dashboard.DefaultInterval,
			MaxEntries: dashboard.DefaultMaxEntries,
		},
		Relay: RelayConfig{
			Enabled: false, // single node by default
			Client:  relayClient,
		},
		NATS: NATSConfig{
			Embedded: true,
			Server:   relay.DefaultServerConfig(),
		},
		Notify: NotifyConfig{
			Webhook: notify.WebhookConfig{
				Enabled:         false,
				Headers:         map[string]string{},
				MinInterval:     500 * time.Millisecond,
				Burst:           5,
				Timeout:         10 * time.Second,
				BreakerFailures: 5,
				BreakerTimeout:  30 * time.Second,
			},
			Dispatcher: notify.DispatcherConfig{
				EscalateDeviations: false,
				QueueSize:          64,
			},
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// defaultNodeID derives a relay node id from the hostname.
func defaultNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "trailguard"
	}
	var b strings.Builder
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
		if b.Len() == 64 {
			break
		}
	}
	return b.String()
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// GEOFENCE_THRESHOLD_METERS -> geofence.threshold_meters
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are accepted as comma-separated strings from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"http_host":             "server.host",
		"http_port":             "server.port",
		"http_read_timeout":     "server.read_timeout",
		"http_write_timeout":    "server.write_timeout",
		"http_idle_timeout":     "server.idle_timeout",
		"http_shutdown_timeout": "server.shutdown_timeout",
		"http_max_body_bytes":   "server.max_body_bytes",
		"api_default_limit":     "server.default_list_limit",
		"api_max_limit":         "server.max_list_limit",

		"store_path":           "store.path",
		"store_capacity":       "store.capacity",
		"store_retention":      "store.retention",
		"store_sync_writes":    "store.sync_writes",
		"store_compression":    "store.compression",
		"store_gc_interval":    "store.gc_interval",
		"store_gc_ratio":       "store.gc_ratio",
		"store_close_timeout":  "store.close_timeout",
		"store_num_compactors": "store.num_compactors",

		"bus_queue_size": "bus.queue_size",

		"geofence_threshold_meters": "geofence.threshold_meters",

		"capture_position_timeout":   "capture.position_timeout",
		"capture_transcript_timeout": "capture.transcript_timeout",
		"capture_audio_duration":     "capture.audio_duration",
		"capture_audio_grace":        "capture.audio_grace",
		"capture_position_max_age":   "capture.position_max_age",

		"dashboard_interval":    "dashboard.interval",
		"dashboard_max_entries": "dashboard.max_entries",

		"relay_enabled":          "relay.enabled",
		"relay_node_id":          "relay.client.node_id",
		"relay_url":              "relay.client.url",
		"relay_stream":           "relay.client.stream.name",
		"relay_subject_prefix":   "relay.client.stream.subject_prefix",
		"relay_stream_max_age":   "relay.client.stream.max_age",
		"relay_stream_replicas":  "relay.client.stream.replicas",
		"relay_durable_prefix":   "relay.client.durable_prefix",
		"relay_ack_wait":         "relay.client.ack_wait",
		"relay_max_deliver":      "relay.client.max_deliver",
		"relay_breaker_failures": "relay.client.breaker_failures",
		"relay_breaker_timeout":  "relay.client.breaker_timeout",

		"nats_embedded":   "nats.embedded",
		"nats_host":       "nats.server.host",
		"nats_port":       "nats.server.port",
		"nats_store_dir":  "nats.server.store_dir",
		"nats_max_memory": "nats.server.max_memory",
		"nats_max_store":  "nats.server.max_store",
		"nats_logging":    "nats.server.logging",

		"notify_webhook_enabled":      "notify.webhook.enabled",
		"notify_webhook_url":          "notify.webhook.url",
		"notify_webhook_timeout":      "notify.webhook.timeout",
		"notify_webhook_min_interval": "notify.webhook.min_interval",
		"notify_webhook_burst":        "notify.webhook.burst",
		"notify_escalate_deviations":  "notify.dispatcher.escalate_deviations",
		"notify_queue_size":           "notify.dispatcher.queue_size",

		"cors_origins":        "security.cors_origins",
		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"disable_rate_limit":  "security.rate_limit_disabled",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped variables are skipped so unrelated environment does not leak in.
	return ""
}
