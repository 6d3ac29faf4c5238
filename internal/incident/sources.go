// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package incident

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/trailguard/internal/models"
)

// PositionSource acquires the subject's position. since is the trigger time.
type PositionSource interface {
	AcquirePosition(ctx context.Context, subjectID string, since time.Time) (models.Fix, error)
}

// TranscriptSource acquires a short voice transcript.
type TranscriptSource interface {
	Transcribe(ctx context.Context, subjectID string, since time.Time) (string, error)
}

// AudioSource records a clip of roughly d.
type AudioSource interface {
	RecordClip(ctx context.Context, subjectID string, d time.Duration, since time.Time) (AudioClip, error)
}

// AudioClip is raw captured audio.
type AudioClip struct {
	MIMEType string
	Data     []byte
	Duration time.Duration
}

// DefaultAudioMIMEType is assumed when a clip does not name its encoding.
const DefaultAudioMIMEType = "audio/webm"

// Ref converts the clip to a playable data: URL reference.
func (c AudioClip) Ref() *models.AudioRef {
	mime := c.MIMEType
	if mime == "" {
		mime = DefaultAudioMIMEType
	}
	return &models.AudioRef{
		MIMEType: mime,
		Bytes:    len(c.Data),
		Duration: c.Duration,
		URL:      "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(c.Data),
	}
}

// FixWaiter is the part of the position tracker used for capture.
type FixWaiter interface {
	Wait(ctx context.Context, subjectID string, since time.Time) (models.Fix, error)
}

// TrackerPositionSource reads positions reported by the subject's device.
// A fix no older than MaxAge at trigger time is used as is; otherwise the
// source waits for the next report.
type TrackerPositionSource struct {
	Tracker FixWaiter
	MaxAge  time.Duration
}

// AcquirePosition implements PositionSource.
func (s *TrackerPositionSource) AcquirePosition(ctx context.Context, subjectID string, since time.Time) (models.Fix, error) {
	if s == nil || s.Tracker == nil {
		return models.Fix{}, ErrSourceUnavailable
	}
	return s.Tracker.Wait(ctx, subjectID, since.Add(-s.MaxAge))
}

// mailbox keeps the last value uploaded per subject and wakes waiters.
type mailbox[T any] struct {
	mu      sync.Mutex
	last    map[string]stamped[T]
	waiters map[string][]chan stamped[T]
}

type stamped[T any] struct {
	value T
	at    time.Time
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{
		last:    make(map[string]stamped[T]),
		waiters: make(map[string][]chan stamped[T]),
	}
}

func (m *mailbox[T]) put(subjectID string, v T, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := stamped[T]{value: v, at: at}
	m.last[subjectID] = s
	for _, ch := range m.waiters[subjectID] {
		ch <- s
	}
	delete(m.waiters, subjectID)
}

// wait returns the first value received at or after since.
func (m *mailbox[T]) wait(ctx context.Context, subjectID string, since time.Time) (T, error) {
	m.mu.Lock()
	if s, ok := m.last[subjectID]; ok && !s.at.Before(since) {
		m.mu.Unlock()
		return s.value, nil
	}
	ch := make(chan stamped[T], 1)
	m.waiters[subjectID] = append(m.waiters[subjectID], ch)
	m.mu.Unlock()

	select {
	case s := <-ch:
		return s.value, nil
	case <-ctx.Done():
		m.mu.Lock()
		list := m.waiters[subjectID]
		for i, c := range list {
			if c == ch {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(m.waiters, subjectID)
		} else {
			m.waiters[subjectID] = list
		}
		m.mu.Unlock()
		var zero T
		return zero, ctx.Err()
	}
}

// Inbox receives evidence uploaded by subject devices. A capture waits on
// the inbox for uploads made after it was triggered.
type Inbox struct {
	transcripts *mailbox[string]
	clips       *mailbox[AudioClip]
	now         func() time.Time
}

// NewInbox returns an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{
		transcripts: newMailbox[string](),
		clips:       newMailbox[AudioClip](),
		now:         time.Now,
	}
}

// PutTranscript stores a transcript upload.
func (in *Inbox) PutTranscript(subjectID, text string) {
	in.transcripts.put(subjectID, text, in.now())
}

// PutAudio stores an audio upload.
func (in *Inbox) PutAudio(subjectID string, clip AudioClip) {
	in.clips.put(subjectID, clip, in.now())
}

// Transcribe implements TranscriptSource.
func (in *Inbox) Transcribe(ctx context.Context, subjectID string, since time.Time) (string, error) {
	return in.transcripts.wait(ctx, subjectID, since)
}

// RecordClip implements AudioSource. The device records for d; the inbox
// only waits for the upload.
func (in *Inbox) RecordClip(ctx context.Context, subjectID string, _ time.Duration, since time.Time) (AudioClip, error) {
	return in.clips.wait(ctx, subjectID, since)
}

// classify maps a source error to a result status.
func classify(taskCtx context.Context, err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrSourceUnavailable):
		return StatusUnavailable
	case errors.Is(err, ErrAcquisitionTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(taskCtx.Err(), context.DeadlineExceeded):
		return StatusTimeout
	default:
		return StatusFailed
	}
}
