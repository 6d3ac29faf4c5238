// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

// Package incident assembles an IncidentRecord when a subject raises a
// distress signal.
//
// A capture runs three evidence sources at once (position, voice transcript,
// audio clip), each under its own deadline. It waits for all of them, builds
// one record from whatever arrived and appends it to the event store. A
// failed or late source is reported in the Summary as omitted; it never
// fails the capture. Total capture time is bounded by the largest deadline.
package incident

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/trailguard/internal/eventstore"
	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/metrics"
	"github.com/tomtom215/trailguard/internal/models"
)

// Status is the outcome of one evidence source.
type Status string

const (
	StatusOK          Status = "ok"
	StatusTimeout     Status = "timeout"
	StatusFailed      Status = "failed"
	StatusUnavailable Status = "unavailable"
)

// SourceResult describes how one source fared.
type SourceResult struct {
	Status  Status        `json:"status"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// OK reports whether the source contributed evidence.
func (r SourceResult) OK() bool { return r.Status == StatusOK }

// Summary is returned to the caller of Trigger.
type Summary struct {
	Record     models.IncidentRecord `json:"record"`
	Position   SourceResult          `json:"position"`
	Transcript SourceResult          `json:"transcript"`
	Audio      SourceResult          `json:"audio"`

	// Persisted is false when the record was broadcast but not stored durably.
	Persisted bool   `json:"persisted"`
	MapsURL   string `json:"maps_url,omitempty"`
}

// Succeeded lists the sources that contributed evidence.
func (s *Summary) Succeeded() []models.Source {
	var out []models.Source
	if s.Position.OK() {
		out = append(out, models.SourcePosition)
	}
	if s.Transcript.OK() {
		out = append(out, models.SourceTranscript)
	}
	if s.Audio.OK() {
		out = append(out, models.SourceAudio)
	}
	return out
}

// Config holds per-source deadlines.
type Config struct {
	PositionTimeout   time.Duration
	TranscriptTimeout time.Duration

	// AudioDuration is how long the device records. AudioGrace is added on
	// top for the upload to arrive.
	AudioDuration time.Duration
	AudioGrace    time.Duration
}

// DefaultConfig mirrors the timings of the mobile client.
func DefaultConfig() Config {
	return Config{
		PositionTimeout:   10 * time.Second,
		TranscriptTimeout: 4500 * time.Millisecond,
		AudioDuration:     5 * time.Second,
		AudioGrace:        3 * time.Second,
	}
}

// Sources bundles the evidence sources. Any of them may be nil.
type Sources struct {
	Position   PositionSource
	Transcript TranscriptSource
	Audio      AudioSource
}

// Inline is evidence supplied together with the trigger. A present field
// replaces the corresponding source for that capture.
type Inline struct {
	Fix        *models.Fix
	Transcript *string
	Audio      *AudioClip
}

// Appender stores entries. *eventstore.Store satisfies it.
type Appender interface {
	Append(ctx context.Context, entry models.Entry) (models.Entry, error)
}

// Orchestrator runs incident captures.
type Orchestrator struct {
	cfg     Config
	store   Appender
	sources Sources

	mu       sync.Mutex
	inFlight map[string]struct{}

	now func() time.Time
}

// NewOrchestrator returns an orchestrator appending to store.
func NewOrchestrator(cfg Config, store Appender, sources Sources) *Orchestrator {
	def := DefaultConfig()
	if cfg.PositionTimeout <= 0 {
		cfg.PositionTimeout = def.PositionTimeout
	}
	if cfg.TranscriptTimeout <= 0 {
		cfg.TranscriptTimeout = def.TranscriptTimeout
	}
	if cfg.AudioDuration <= 0 {
		cfg.AudioDuration = def.AudioDuration
	}
	if cfg.AudioGrace < 0 {
		cfg.AudioGrace = 0
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		sources:  sources,
		inFlight: make(map[string]struct{}),
		now:      time.Now,
	}
}

// Trigger captures evidence for subjectID and records one incident.
func (o *Orchestrator) Trigger(ctx context.Context, subjectID string) (*Summary, error) {
	return o.TriggerWith(ctx, subjectID, Inline{})
}

// TriggerWith is Trigger with evidence already supplied by the caller.
//
// The returned Summary is never nil unless the subject is missing or a
// capture for it is already running. Store failures are only reported as an
// error when nothing could be kept: the store rejected the record outright,
// or persistence failed and no source produced evidence.
func (o *Orchestrator) TriggerWith(ctx context.Context, subjectID string, inline Inline) (*Summary, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, ErrMissingSubject
	}
	if !o.acquire(subjectID) {
		metrics.RecordCapture("in_progress", 0)
		return nil, ErrCaptureInProgress
	}
	defer o.release(subjectID)

	if logging.CorrelationIDFromContext(ctx) == "" {
		ctx = logging.ContextWithCorrelationID(ctx, logging.GenerateCorrelationID())
	}
	ctx = logging.ContextWithSubject(ctx, subjectID)
	log := logging.Ctx(ctx)

	start := o.now()
	log.Warn().Msg("Incident capture started")

	summary := &Summary{}
	rec := models.IncidentRecord{SubjectID: subjectID, At: start.UTC()}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		fix, res := o.capturePosition(ctx, subjectID, start, inline.Fix)
		summary.Position = res
		if res.OK() {
			rec.Location = &fix
		}
	}()
	go func() {
		defer wg.Done()
		text, res := o.captureTranscript(ctx, subjectID, start, inline.Transcript)
		summary.Transcript = res
		if res.OK() {
			rec.Transcript = &text
		}
	}()
	go func() {
		defer wg.Done()
		clip, res := o.captureAudio(ctx, subjectID, start, inline.Audio)
		summary.Audio = res
		if res.OK() {
			rec.Audio = clip.Ref()
		}
	}()
	wg.Wait()

	for src, res := range map[models.Source]SourceResult{
		models.SourcePosition:   summary.Position,
		models.SourceTranscript: summary.Transcript,
		models.SourceAudio:      summary.Audio,
	} {
		metrics.RecordCaptureSource(string(src), string(res.Status))
	}
	if !summary.Position.OK() {
		rec.Omitted = append(rec.Omitted, models.SourcePosition)
	}
	if !summary.Transcript.OK() {
		rec.Omitted = append(rec.Omitted, models.SourceTranscript)
	}
	if !summary.Audio.OK() {
		rec.Omitted = append(rec.Omitted, models.SourceAudio)
	}
	if rec.Location != nil {
		summary.MapsURL = rec.Location.MapsURL()
	}

	// The alert must be stored even if the caller has gone away.
	stored, err := o.store.Append(context.WithoutCancel(ctx), models.NewIncidentEntry(rec))
	elapsed := o.now().Sub(start)

	switch {
	case err == nil:
		summary.Record = *stored.Incident
		summary.Persisted = true
		metrics.RecordCapture("persisted", elapsed)

	case errors.Is(err, eventstore.ErrPersistenceUnavailable) && rec.HasEvidence():
		summary.Record = *stored.Incident
		metrics.RecordCapture("memory_only", elapsed)
		log.Warn().Err(err).Str("entry_id", stored.ID()).Msg("Incident broadcast but not persisted")

	default:
		if stored.Incident != nil {
			summary.Record = *stored.Incident
		} else {
			rec.ID = models.IncidentIDPrefix + "_" + strconv.FormatInt(start.UnixMilli(), 10)
			summary.Record = rec
		}
		metrics.RecordCapture("total_failure", elapsed)
		log.Error().Err(err).Msg("Incident capture could not be recorded")
		return summary, fmt.Errorf("%w: %w", ErrCaptureTotalFailure, err)
	}

	log.Warn().
		Str("entry_id", summary.Record.ID).
		Str("position", string(summary.Position.Status)).
		Str("transcript", string(summary.Transcript.Status)).
		Str("audio", string(summary.Audio.Status)).
		Dur("elapsed", elapsed).
		Msg("Incident recorded")
	return summary, nil
}

func (o *Orchestrator) acquire(subjectID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[subjectID]; busy {
		return false
	}
	o.inFlight[subjectID] = struct{}{}
	return true
}

func (o *Orchestrator) release(subjectID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, subjectID)
}

// runTask runs fn under timeout and classifies its error.
func runTask[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, SourceResult) {
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	type result struct {
		v   T
		err error
	}
	// The source may not honor ctx promptly; stop waiting at the deadline
	// regardless and let it finish in the background.
	done := make(chan result, 1)
	go func() {
		v, err := fn(taskCtx)
		done <- result{v, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-taskCtx.Done():
		r.err = taskCtx.Err()
		if errors.Is(r.err, context.DeadlineExceeded) {
			r.err = fmt.Errorf("%w after %v", ErrAcquisitionTimeout, timeout)
		}
	}

	res := SourceResult{Status: classify(taskCtx, r.err), Elapsed: time.Since(start)}
	if r.err != nil {
		res.Error = r.err.Error()
		var zero T
		return zero, res
	}
	return r.v, res
}

func (o *Orchestrator) capturePosition(ctx context.Context, subjectID string, since time.Time, inline *models.Fix) (models.Fix, SourceResult) {
	if inline != nil {
		if !inline.Valid() {
			return models.Fix{}, SourceResult{Status: StatusFailed, Error: "invalid coordinate"}
		}
		return *inline, SourceResult{Status: StatusOK}
	}
	if o.sources.Position == nil {
		return models.Fix{}, SourceResult{Status: StatusUnavailable, Error: ErrSourceUnavailable.Error()}
	}
	fix, res := runTask(ctx, o.cfg.PositionTimeout, func(c context.Context) (models.Fix, error) {
		return o.sources.Position.AcquirePosition(c, subjectID, since)
	})
	if res.OK() && !fix.Valid() {
		return models.Fix{}, SourceResult{Status: StatusFailed, Error: "invalid coordinate", Elapsed: res.Elapsed}
	}
	return fix, res
}

func (o *Orchestrator) captureTranscript(ctx context.Context, subjectID string, since time.Time, inline *string) (string, SourceResult) {
	if inline != nil {
		return checkTranscript(*inline, SourceResult{Status: StatusOK})
	}
	if o.sources.Transcript == nil {
		return "", SourceResult{Status: StatusUnavailable, Error: ErrSourceUnavailable.Error()}
	}
	text, res := runTask(ctx, o.cfg.TranscriptTimeout, func(c context.Context) (string, error) {
		return o.sources.Transcript.Transcribe(c, subjectID, since)
	})
	return checkTranscript(text, res)
}

func checkTranscript(text string, res SourceResult) (string, SourceResult) {
	if !res.OK() {
		return "", res
	}
	text = strings.TrimSpace(text)
	if text == "" {
		res.Status = StatusFailed
		res.Error = "empty transcript"
		return "", res
	}
	return text, res
}

func (o *Orchestrator) captureAudio(ctx context.Context, subjectID string, since time.Time, inline *AudioClip) (AudioClip, SourceResult) {
	if inline != nil {
		return checkClip(*inline, SourceResult{Status: StatusOK})
	}
	if o.sources.Audio == nil {
		return AudioClip{}, SourceResult{Status: StatusUnavailable, Error: ErrSourceUnavailable.Error()}
	}
	timeout := o.cfg.AudioDuration + o.cfg.AudioGrace
	clip, res := runTask(ctx, timeout, func(c context.Context) (AudioClip, error) {
		return o.sources.Audio.RecordClip(c, subjectID, o.cfg.AudioDuration, since)
	})
	return checkClip(clip, res)
}

func checkClip(clip AudioClip, res SourceResult) (AudioClip, SourceResult) {
	if res.OK() && len(clip.Data) == 0 {
		res.Status = StatusFailed
		res.Error = "empty audio clip"
		return AudioClip{}, res
	}
	return clip, res
}
