// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package models

import (
	"fmt"
	"time"

	"github.com/tomtom215/trailguard/internal/geo"
)

// EntryKind discriminates the records held in the event log.
type EntryKind string

const (
	KindDeviation EntryKind = "deviation"
	KindIncident  EntryKind = "incident"
)

// ID prefixes for generated entry ids. The numeric part is Unix milliseconds.
const (
	DeviationIDPrefix = "dev"
	IncidentIDPrefix  = "inc"
)

// Source names an evidence source of an incident capture.
type Source string

const (
	SourcePosition   Source = "position"
	SourceTranscript Source = "transcript"
	SourceAudio      Source = "audio"
)

// DeviationEvent marks the onset of an excursion outside a reference area.
// DistanceMeters is rounded up to whole meters and is always greater than
// ThresholdMeters.
type DeviationEvent struct {
	ID              string         `json:"id"`
	SubjectID       string         `json:"subject_id"`
	DistanceMeters  int64          `json:"distance_m"`
	ThresholdMeters float64        `json:"threshold_m"`
	AreaID          string         `json:"area_id,omitempty"`
	AreaLabel       string         `json:"city"`
	Location        geo.Coordinate `json:"location"`
	PlannedCenter   geo.Coordinate `json:"planned_center"`
	At              time.Time      `json:"at"`
}

// Fix is a position reading with its reported accuracy radius.
type Fix struct {
	geo.Coordinate
	AccuracyMeters float64   `json:"accuracy,omitempty"`
	At             time.Time `json:"at,omitempty"`
}

// AudioRef points at a captured audio clip. URL is a data: URL so that
// consoles can play it without a second fetch.
type AudioRef struct {
	MIMEType string        `json:"mime_type"`
	Bytes    int           `json:"bytes"`
	Duration time.Duration `json:"duration_ns,omitempty"`
	URL      string        `json:"url"`
}

// IncidentRecord is the evidence bundle of one distress trigger. ID,
// SubjectID and At are always set; every other field may be absent when its
// source failed or timed out.
type IncidentRecord struct {
	ID         string    `json:"id"`
	SubjectID  string    `json:"subject_id"`
	At         time.Time `json:"at"`
	Location   *Fix      `json:"location,omitempty"`
	Transcript *string   `json:"transcript,omitempty"`
	Audio      *AudioRef `json:"audio,omitempty"`
	Omitted    []Source  `json:"omitted,omitempty"`
}

// HasEvidence reports whether at least one evidence source contributed.
func (r *IncidentRecord) HasEvidence() bool {
	return r.Location != nil || r.Transcript != nil || r.Audio != nil
}

// Entry is one record of the event log. Exactly one of Deviation or
// Incident is set, matching Kind.
type Entry struct {
	Kind      EntryKind       `json:"kind"`
	Deviation *DeviationEvent `json:"deviation,omitempty"`
	Incident  *IncidentRecord `json:"incident,omitempty"`
}

// NewDeviationEntry wraps ev.
func NewDeviationEntry(ev DeviationEvent) Entry {
	return Entry{Kind: KindDeviation, Deviation: &ev}
}

// NewIncidentEntry wraps rec.
func NewIncidentEntry(rec IncidentRecord) Entry {
	return Entry{Kind: KindIncident, Incident: &rec}
}

// ID returns the id of the wrapped record.
func (e Entry) ID() string {
	switch {
	case e.Deviation != nil:
		return e.Deviation.ID
	case e.Incident != nil:
		return e.Incident.ID
	}
	return ""
}

// SetID sets the id of the wrapped record.
func (e Entry) SetID(id string) {
	switch {
	case e.Deviation != nil:
		e.Deviation.ID = id
	case e.Incident != nil:
		e.Incident.ID = id
	}
}

// SubjectID returns the tracked subject of the wrapped record.
func (e Entry) SubjectID() string {
	switch {
	case e.Deviation != nil:
		return e.Deviation.SubjectID
	case e.Incident != nil:
		return e.Incident.SubjectID
	}
	return ""
}

// Timestamp returns when the wrapped record was created.
func (e Entry) Timestamp() time.Time {
	switch {
	case e.Deviation != nil:
		return e.Deviation.At
	case e.Incident != nil:
		return e.Incident.At
	}
	return time.Time{}
}

// IDPrefix returns the id prefix for the entry kind.
func (e Entry) IDPrefix() string {
	if e.Kind == KindIncident {
		return IncidentIDPrefix
	}
	return DeviationIDPrefix
}

// Validate checks that Kind and payload agree.
func (e Entry) Validate() error {
	switch e.Kind {
	case KindDeviation:
		if e.Deviation == nil || e.Incident != nil {
			return fmt.Errorf("deviation entry must carry exactly a deviation payload")
		}
	case KindIncident:
		if e.Incident == nil || e.Deviation != nil {
			return fmt.Errorf("incident entry must carry exactly an incident payload")
		}
	default:
		return fmt.Errorf("unknown entry kind %q", e.Kind)
	}
	if e.SubjectID() == "" {
		return fmt.Errorf("%s entry has no subject", e.Kind)
	}
	return nil
}

// Clone returns a deep copy so callers cannot reach into stored records.
func (e Entry) Clone() Entry {
	out := Entry{Kind: e.Kind}
	if e.Deviation != nil {
		d := *e.Deviation
		out.Deviation = &d
	}
	if e.Incident != nil {
		r := *e.Incident
		if r.Location != nil {
			loc := *r.Location
			r.Location = &loc
		}
		if r.Transcript != nil {
			s := *r.Transcript
			r.Transcript = &s
		}
		if r.Audio != nil {
			a := *r.Audio
			r.Audio = &a
		}
		r.Omitted = append([]Source(nil), r.Omitted...)
		out.Incident = &r
	}
	return out
}
