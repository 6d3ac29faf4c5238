// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package geofence

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/trailguard/internal/models"
)

// Tracker remembers the latest fix per subject and lets callers wait for
// the next one.
type Tracker struct {
	mu      sync.Mutex
	latest  map[string]models.Fix
	waiters map[string][]*fixWaiter
}

// fixWaiter is woken by the first recorded fix taken after since.
type fixWaiter struct {
	since time.Time
	ch    chan models.Fix
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		latest:  make(map[string]models.Fix),
		waiters: make(map[string][]*fixWaiter),
	}
}

// Record stores fix if it is not older than the current one and wakes the
// waiters for subjectID whose since it is after. The rest keep waiting.
func (t *Tracker) Record(subjectID string, fix models.Fix) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.latest[subjectID]; ok && fix.At.Before(cur.At) {
		return
	}
	t.latest[subjectID] = fix

	pending := t.waiters[subjectID][:0]
	for _, w := range t.waiters[subjectID] {
		if fix.At.After(w.since) {
			w.ch <- fix
			continue
		}
		pending = append(pending, w)
	}
	if len(pending) == 0 {
		delete(t.waiters, subjectID)
		return
	}
	t.waiters[subjectID] = pending
}

// Latest returns the most recent fix for subjectID.
func (t *Tracker) Latest(subjectID string) (models.Fix, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fix, ok := t.latest[subjectID]
	return fix, ok
}

// Wait returns the latest fix taken after since, blocking until one is
// recorded or ctx ends.
func (t *Tracker) Wait(ctx context.Context, subjectID string, since time.Time) (models.Fix, error) {
	t.mu.Lock()
	if fix, ok := t.latest[subjectID]; ok && fix.At.After(since) {
		t.mu.Unlock()
		return fix, nil
	}
	w := &fixWaiter{since: since, ch: make(chan models.Fix, 1)}
	t.waiters[subjectID] = append(t.waiters[subjectID], w)
	t.mu.Unlock()

	select {
	case fix := <-w.ch:
		return fix, nil
	case <-ctx.Done():
		t.removeWaiter(subjectID, w)
		// Record may have delivered between ctx ending and the removal.
		select {
		case fix := <-w.ch:
			return fix, nil
		default:
		}
		return models.Fix{}, ctx.Err()
	}
}

func (t *Tracker) removeWaiter(subjectID string, w *fixWaiter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.waiters[subjectID]
	for i, c := range list {
		if c == w {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(t.waiters, subjectID)
		return
	}
	t.waiters[subjectID] = list
}
