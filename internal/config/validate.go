// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	storeCfg := c.EventStore()
	if err := storeCfg.Validate(); err != nil {
		return err
	}

	if c.Bus.QueueSize < 1 {
		return fmt.Errorf("BUS_QUEUE_SIZE must be at least 1, got %d", c.Bus.QueueSize)
	}

	if c.Geofence.ThresholdMeters <= 0 {
		return fmt.Errorf("GEOFENCE_THRESHOLD_METERS must be positive, got %v", c.Geofence.ThresholdMeters)
	}

	if err := c.validateCapture(); err != nil {
		return err
	}

	if c.Dashboard.Interval <= 0 || c.Dashboard.MaxEntries < 1 {
		return fmt.Errorf("dashboard interval and max_entries must be positive")
	}

	if err := c.validateRelay(); err != nil {
		return err
	}

	if err := c.validateNotify(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes < 1024 {
		return fmt.Errorf("HTTP_MAX_BODY_BYTES must be at least 1024, got %d", c.Server.MaxBodyBytes)
	}
	if c.Server.DefaultListLimit < 1 || c.Server.DefaultListLimit > c.Server.MaxListLimit {
		return fmt.Errorf("API_DEFAULT_LIMIT must be between 1 and API_MAX_LIMIT (%d), got %d",
			c.Server.MaxListLimit, c.Server.DefaultListLimit)
	}
	return nil
}

func (c *Config) validateCapture() error {
	cc := c.Capture
	if cc.PositionTimeout <= 0 || cc.TranscriptTimeout <= 0 || cc.AudioDuration <= 0 {
		return fmt.Errorf("capture timeouts and audio duration must be positive")
	}
	if cc.AudioGrace < 0 {
		return fmt.Errorf("CAPTURE_AUDIO_GRACE must not be negative")
	}
	if cc.PositionMaxAge <= 0 {
		return fmt.Errorf("CAPTURE_POSITION_MAX_AGE must be positive")
	}
	return nil
}

// validateRelay only checks the relay when it is enabled.
func (c *Config) validateRelay() error {
	if !c.Relay.Enabled {
		return nil
	}
	if err := c.Relay.Client.Validate(); err != nil {
		return err
	}
	if c.NATS.Embedded && c.NATS.Server.Port == 0 {
		return fmt.Errorf("NATS_PORT must be set for the embedded server (-1 picks a free port)")
	}
	return nil
}

func (c *Config) validateNotify() error {
	wh := c.Notify.Webhook
	if !wh.Enabled {
		return nil
	}
	if wh.URL == "" {
		return fmt.Errorf("NOTIFY_WEBHOOK_URL is required when NOTIFY_WEBHOOK_ENABLED=true")
	}
	u, err := url.Parse(wh.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("NOTIFY_WEBHOOK_URL must be an absolute http(s) URL, got %q", wh.URL)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got %d", c.Security.RateLimitReqs)
	}
	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
