// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

// Package notify escalates stored entries to external emergency endpoints.
//
// Every incident is escalated at level high. Deviations are escalated at
// level medium unless disabled in configuration. Delivery is best effort:
// failures are logged and counted but never affect the event log.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/trailguard/internal/geo"
	"github.com/tomtom215/trailguard/internal/models"
)

// Level is the emergency level sent to responders.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
)

// Alert is the payload escalated for one entry.
type Alert struct {
	EntryID        string          `json:"entry_id"`
	Kind           string          `json:"kind"`
	Level          Level           `json:"emergency_level"`
	SubjectID      string          `json:"subject_id"`
	Message        string          `json:"message"`
	Location       *geo.Coordinate `json:"location,omitempty"`
	AccuracyMeters float64         `json:"accuracy,omitempty"`
	MapsURL        string          `json:"maps_url,omitempty"`
	Transcript     string          `json:"transcript,omitempty"`
	AudioURL       string          `json:"audio_url,omitempty"`
	At             time.Time       `json:"at"`
}

// Notifier delivers alerts to one destination.
type Notifier interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, alert *Alert) error
}

// AlertFromEntry builds the alert for e.
func AlertFromEntry(e models.Entry) *Alert {
	switch {
	case e.Incident != nil:
		rec := e.Incident
		a := &Alert{
			EntryID:   rec.ID,
			Kind:      string(models.KindIncident),
			Level:     LevelHigh,
			SubjectID: rec.SubjectID,
			At:        rec.At,
			Message:   fmt.Sprintf("Distress signal from %s", rec.SubjectID),
		}
		if rec.Location != nil {
			loc := rec.Location.Coordinate
			a.Location = &loc
			a.AccuracyMeters = rec.Location.AccuracyMeters
			a.MapsURL = loc.MapsURL()
		} else {
			a.Message += ", location unknown"
		}
		if rec.Transcript != nil {
			a.Transcript = *rec.Transcript
			a.Message += fmt.Sprintf(": %q", *rec.Transcript)
		}
		if rec.Audio != nil {
			a.AudioURL = rec.Audio.URL
		}
		return a

	case e.Deviation != nil:
		ev := e.Deviation
		loc := ev.Location
		return &Alert{
			EntryID:   ev.ID,
			Kind:      string(models.KindDeviation),
			Level:     LevelMedium,
			SubjectID: ev.SubjectID,
			Message: fmt.Sprintf("%s is %d m from %s (allowed %.0f m)",
				ev.SubjectID, ev.DistanceMeters, ev.AreaLabel, ev.ThresholdMeters),
			Location: &loc,
			MapsURL:  loc.MapsURL(),
			At:       ev.At,
		}
	}
	return nil
}
