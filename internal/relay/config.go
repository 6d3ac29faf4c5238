// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package relay

import (
	"fmt"
	"regexp"
	"time"
)

// Metadata header carrying the publishing node id.
const HeaderOrigin = "origin"

// Config configures the relay.
type Config struct {
	NodeID string `koanf:"node_id"`
	URL    string `koanf:"url"`

	Stream StreamConfig `koanf:"stream"`

	// DurablePrefix names this node's consumer; it defaults to the node id.
	DurablePrefix  string        `koanf:"durable_prefix"`
	AckWaitTimeout time.Duration `koanf:"ack_wait"`
	MaxDeliver     int           `koanf:"max_deliver"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
	CloseTimeout   time.Duration `koanf:"close_timeout"`

	// SeenSize bounds the set of relayed entry ids remembered for loop and
	// duplicate suppression.
	SeenSize int           `koanf:"seen_size"`
	SeenTTL  time.Duration `koanf:"seen_ttl"`

	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

// StreamConfig defines the JetStream stream holding relayed entries.
type StreamConfig struct {
	Name            string        `koanf:"name"`
	SubjectPrefix   string        `koanf:"subject_prefix"`
	MaxAge          time.Duration `koanf:"max_age"`
	MaxMsgs         int64         `koanf:"max_msgs"`
	DuplicateWindow time.Duration `koanf:"duplicate_window"`
	Replicas        int           `koanf:"replicas"`
	MemoryStorage   bool          `koanf:"memory_storage"`
}

// DefaultConfig returns relay defaults.
func DefaultConfig() Config {
	return Config{
		URL:             "nats://127.0.0.1:4222",
		Stream:          DefaultStreamConfig(),
		AckWaitTimeout:  30 * time.Second,
		MaxDeliver:      5,
		MaxReconnects:   -1, // unlimited
		ReconnectWait:   2 * time.Second,
		CloseTimeout:    10 * time.Second,
		SeenSize:        10000,
		SeenTTL:         24 * time.Hour,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// DefaultStreamConfig returns the stream layout shared by all nodes.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:            "TRAILGUARD_EVENTS",
		SubjectPrefix:   "trailguard.events",
		MaxAge:          7 * 24 * time.Hour,
		MaxMsgs:         -1,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

var nodeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !nodeIDPattern.MatchString(c.NodeID) {
		return fmt.Errorf("relay: node_id %q must be 1-64 letters, digits, '-' or '_'", c.NodeID)
	}
	if c.URL == "" {
		return fmt.Errorf("relay: url is required")
	}
	if c.Stream.Name == "" || c.Stream.SubjectPrefix == "" {
		return fmt.Errorf("relay: stream name and subject prefix are required")
	}
	if c.Stream.Replicas < 1 {
		return fmt.Errorf("relay: stream replicas must be at least 1")
	}
	return nil
}

// Subject returns the subject entries of the given kind are published on.
func (s StreamConfig) Subject(kind string) string {
	return s.SubjectPrefix + "." + kind
}

// Wildcard returns the subject filter covering every kind.
func (s StreamConfig) Wildcard() string {
	return s.SubjectPrefix + ".>"
}
