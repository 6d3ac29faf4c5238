// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package incident

import "errors"

var (
	// ErrAcquisitionTimeout marks an evidence source that did not answer in
	// time. It is absorbed into the summary and never returned by Trigger.
	ErrAcquisitionTimeout = errors.New("evidence acquisition timed out")

	// ErrSourceUnavailable is returned by a source that cannot run at all,
	// for example when no device is attached.
	ErrSourceUnavailable = errors.New("evidence source unavailable")

	// ErrCaptureTotalFailure means no usable record could be kept: the store
	// rejected it and there was no evidence worth broadcasting.
	ErrCaptureTotalFailure = errors.New("incident capture failed")

	// ErrCaptureInProgress is returned while a capture for the same subject
	// is still running.
	ErrCaptureInProgress = errors.New("incident capture already in progress")

	// ErrMissingSubject is returned when Trigger is called without a subject.
	ErrMissingSubject = errors.New("subject id is required")
)
