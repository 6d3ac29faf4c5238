// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package api

import "errors"

var (
	// ErrEmptyBody is returned when a request requires a JSON body.
	ErrEmptyBody = errors.New("request body is required")

	// ErrBodyTooLarge is returned when a body exceeds the configured limit.
	ErrBodyTooLarge = errors.New("request body too large")
)

// Warnings placed in response metadata.
const (
	WarningNotPersisted = "entry was broadcast but could not be persisted"
	WarningUnknownCity  = "unknown city, using the default city center"
)
