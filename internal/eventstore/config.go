// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package eventstore

import (
	"regexp"
	"time"
)

// Config configures the event log and its BadgerDB backing store.
type Config struct {
	// Path is the BadgerDB directory. Empty keeps the log in memory only.
	Path string

	// Capacity is the maximum number of entries kept (N). Appending beyond
	// it evicts the oldest entry.
	Capacity int

	// NodeID is appended to generated ids (prefix_<ms>_<node>) so entries
	// created on different nodes never share an id. Empty gives prefix_<ms>.
	NodeID string

	// Retention expires persisted entries after this long. Zero keeps them
	// until evicted.
	Retention time.Duration

	// SyncWrites fsyncs every append.
	SyncWrites bool

	// Compression enables Snappy block compression.
	Compression bool

	MemTableSize     int64
	ValueLogFileSize int64
	NumCompactors    int

	// GCInterval is how often value log garbage collection runs.
	GCInterval time.Duration

	// GCRatio is the discard ratio passed to RunValueLogGC.
	GCRatio float64

	// CloseTimeout bounds how long Close waits for BadgerDB.
	CloseTimeout time.Duration
}

// DefaultConfig favors durability; the log is small so throughput is not a concern.
func DefaultConfig() Config {
	return Config{
		Path:             "/data/events",
		Capacity:         100,
		SyncWrites:       true,
		Compression:      true,
		MemTableSize:     16 * 1024 * 1024,
		ValueLogFileSize: 16 * 1024 * 1024,
		NumCompactors:    2,
		GCInterval:       30 * time.Minute,
		GCRatio:          0.5,
		CloseTimeout:     10 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Capacity < 1 {
		return &ConfigError{Field: "Capacity", Message: "must be at least 1"}
	}
	if c.Retention < 0 {
		return &ConfigError{Field: "Retention", Message: "must not be negative"}
	}
	if c.NodeID != "" && !nodeIDPattern.MatchString(c.NodeID) {
		return &ConfigError{Field: "NodeID", Message: "must be 1-64 letters, digits, '-' or '_'"}
	}
	if c.Path == "" {
		return nil
	}
	if c.MemTableSize < 1024*1024 {
		return &ConfigError{Field: "MemTableSize", Message: "must be at least 1MB"}
	}
	if c.ValueLogFileSize < 1024*1024 {
		return &ConfigError{Field: "ValueLogFileSize", Message: "must be at least 1MB"}
	}
	if c.NumCompactors < 2 {
		return &ConfigError{Field: "NumCompactors", Message: "must be at least 2 (BadgerDB requirement)"}
	}
	if c.GCRatio <= 0 || c.GCRatio >= 1 {
		return &ConfigError{Field: "GCRatio", Message: "must be between 0 and 1"}
	}
	return nil
}

var nodeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "event store config error: " + e.Field + ": " + e.Message
}
