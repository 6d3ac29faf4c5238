// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

// Package geofence raises a deviation event when a tracked subject strays
// from its active reference area.
//
// Each subject moves between two states. A sample farther than the threshold
// from the area center moves an Inside subject to Deviated and records one
// DeviationEvent. Further distant samples are suppressed. A sample back
// within the threshold returns the subject to Inside without an event, so
// the next excursion is reported again.
package geofence

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/trailguard/internal/eventstore"
	"github.com/tomtom215/trailguard/internal/geo"
	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/metrics"
	"github.com/tomtom215/trailguard/internal/models"
)

// DefaultThresholdMeters is the allowed distance from the area center.
const DefaultThresholdMeters = 5000.0

// State is the per-subject geofence state.
type State int

const (
	Inside State = iota
	Deviated
)

func (s State) String() string {
	if s == Deviated {
		return "deviated"
	}
	return "inside"
}

// Appender stores entries. *eventstore.Store satisfies it.
type Appender interface {
	Append(ctx context.Context, entry models.Entry) (models.Entry, error)
}

// Config configures the monitor.
type Config struct {
	ThresholdMeters float64
}

type subjectState struct {
	mu     sync.Mutex
	area   *models.ReferenceArea
	state  State
	lastAt time.Time
}

// Monitor evaluates position samples against each subject's active area.
type Monitor struct {
	threshold float64
	store     Appender
	tracker   *Tracker
	log       zerolog.Logger

	mu       sync.Mutex
	subjects map[string]*subjectState

	now func() time.Time
}

// NewMonitor returns a monitor that appends deviation events to store.
// tracker may be nil.
func NewMonitor(cfg Config, store Appender, tracker *Tracker) *Monitor {
	threshold := cfg.ThresholdMeters
	if threshold <= 0 {
		threshold = DefaultThresholdMeters
	}
	return &Monitor{
		threshold: threshold,
		store:     store,
		tracker:   tracker,
		log:       logging.WithComponent("geofence"),
		subjects:  make(map[string]*subjectState),
		now:       time.Now,
	}
}

func (m *Monitor) subject(id string) *subjectState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subjects[id]
	if !ok {
		s = &subjectState{}
		m.subjects[id] = s
	}
	return s
}

// lookup returns the state of a subject seen before, without creating one.
func (m *Monitor) lookup(id string) (*subjectState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subjects[id]
	return s, ok
}

// SetActiveArea replaces the reference area of subjectID. nil clears it.
// The subject starts Inside relative to the new area.
func (m *Monitor) SetActiveArea(subjectID string, area *models.ReferenceArea) {
	s := m.subject(subjectID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if area == nil {
		s.area = nil
	} else {
		cp := *area
		s.area = &cp
	}
	s.state = Inside

	ev := m.log.Info().Str("subject_id", subjectID)
	if area != nil {
		ev = ev.Str("area_id", area.ID).Str("city", area.Label)
	}
	ev.Bool("active", area != nil).Msg("Reference area updated")
}

// ActiveArea returns a copy of the subject's area, or nil.
func (m *Monitor) ActiveArea(subjectID string) *models.ReferenceArea {
	s, ok := m.lookup(subjectID)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.area == nil {
		return nil
	}
	cp := *s.area
	return &cp
}

// State returns the subject's current state. Unknown subjects are Inside.
func (m *Monitor) State(subjectID string) State {
	s, ok := m.lookup(subjectID)
	if !ok {
		return Inside
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ThresholdMeters returns the default threshold.
func (m *Monitor) ThresholdMeters() float64 {
	return m.threshold
}

// ReportPosition evaluates one sample. It returns the DeviationEvent when
// the sample starts a new excursion and nil otherwise.
func (m *Monitor) ReportPosition(ctx context.Context, subjectID string, coord geo.Coordinate, at time.Time) (*models.DeviationEvent, error) {
	return m.ReportFix(ctx, subjectID, models.Fix{Coordinate: coord, At: at})
}

// ReportFix is ReportPosition for a fix carrying an accuracy radius.
//
// Invalid coordinates are ignored. Samples older than the last processed
// one are accepted but leave the state untouched. If the event could be
// published but not persisted, both the event and
// eventstore.ErrPersistenceUnavailable are returned and the subject is
// Deviated.
func (m *Monitor) ReportFix(ctx context.Context, subjectID string, fix models.Fix) (*models.DeviationEvent, error) {
	if subjectID == "" || !fix.Valid() {
		metrics.RecordGeofenceSample("invalid")
		return nil, nil
	}
	if fix.At.IsZero() {
		fix.At = m.now()
	}
	fix.At = fix.At.UTC()

	if m.tracker != nil {
		m.tracker.Record(subjectID, fix)
	}

	s := m.subject(subjectID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if fix.At.Before(s.lastAt) {
		metrics.RecordGeofenceSample("stale")
		return nil, nil
	}
	s.lastAt = fix.At

	if s.area == nil {
		metrics.RecordGeofenceSample("no_area")
		return nil, nil
	}

	threshold := m.threshold
	if s.area.RadiusMeters > 0 {
		threshold = s.area.RadiusMeters
	}
	distance := geo.Distance(fix.Coordinate, s.area.Center)

	if distance <= threshold {
		if s.state == Deviated {
			s.state = Inside
			metrics.RecordGeofenceTransition(Inside.String())
			m.log.Info().Str("subject_id", subjectID).Float64("distance_m", distance).Msg("Subject back inside reference area")
		}
		metrics.RecordGeofenceSample("inside")
		return nil, nil
	}

	if s.state == Deviated {
		metrics.RecordGeofenceSample("suppressed")
		return nil, nil
	}

	ev := models.DeviationEvent{
		SubjectID: subjectID,
		// Rounded up so the stored distance still exceeds the threshold.
		DistanceMeters:  int64(math.Ceil(distance)),
		ThresholdMeters: threshold,
		AreaID:          s.area.ID,
		AreaLabel:       s.area.Label,
		Location:        fix.Coordinate,
		PlannedCenter:   s.area.Center,
		At:              fix.At,
	}

	stored, err := m.store.Append(ctx, models.NewDeviationEntry(ev))
	if err != nil && !errors.Is(err, eventstore.ErrPersistenceUnavailable) {
		metrics.RecordGeofenceSample("error")
		return nil, err
	}

	s.state = Deviated
	metrics.RecordGeofenceSample("deviated")
	metrics.RecordGeofenceTransition(Deviated.String())

	out := *stored.Deviation
	logging.Ctx(ctx).Warn().
		Str("subject_id", subjectID).
		Str("entry_id", out.ID).
		Int64("distance_m", out.DistanceMeters).
		Float64("threshold_m", threshold).
		Str("city", out.AreaLabel).
		Msg("Route deviation detected")
	return &out, err
}
