// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

// Package eventstore is the bounded, persisted log of deviation and incident
// entries.
//
// Appends are serialized. Each append assigns a time-ordered id, evicts the
// oldest entry once capacity is reached, writes the change to BadgerDB and
// then publishes the entry. When BadgerDB cannot be written the entry is
// still kept in memory and published, and Append reports
// ErrPersistenceUnavailable so the caller knows durability was lost.
//
// Reads work on an in-memory copy and never wait for disk.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/metrics"
	"github.com/tomtom215/trailguard/internal/models"
)

var (
	// ErrPersistenceUnavailable means the entry was accepted in memory and
	// published, but could not be written durably.
	ErrPersistenceUnavailable = errors.New("event store persistence unavailable")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("event store closed")

	// ErrInvalidEntry is returned when an entry's kind and payload disagree.
	ErrInvalidEntry = errors.New("invalid entry")

	// ErrDuplicateEntry is returned, with the held copy, when an entry's id
	// is already in the log. Nothing is stored or published.
	ErrDuplicateEntry = errors.New("entry id already stored")
)

// Publisher receives every appended entry.
type Publisher interface {
	Publish(entry models.Entry)
}

type record struct {
	seq   uint64
	entry models.Entry
}

// Stats is a point-in-time view of the store.
type Stats struct {
	Entries         int       `json:"entries"`
	Capacity        int       `json:"capacity"`
	Persistent      bool      `json:"persistent"`
	PersistFailures int64     `json:"persist_failures"`
	LastAppend      time.Time `json:"last_append,omitempty"`

	// LastPersistFailed is true while the most recent append failed to
	// reach disk.
	LastPersistFailed bool `json:"last_persist_failed"`
	Closed            bool `json:"closed"`
}

// Store is the event log.
type Store struct {
	cfg     Config
	backend persister
	pub     Publisher

	// writeMu serializes appends end to end so ids, eviction and publish
	// order all follow one sequence.
	writeMu sync.Mutex
	lastMs  int64
	nextSeq uint64

	// lifeMu is held shared by background GC and exclusively by Close.
	lifeMu sync.RWMutex

	mu         sync.RWMutex
	records    []record
	closed     bool
	failures   int64
	lastFailed bool
	lastAppend time.Time

	now func() time.Time
}

// Open opens (or creates) the log at cfg.Path and restores its entries.
// pub may be nil.
func Open(cfg Config, pub Publisher) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event store config: %w", err)
	}

	var backend persister
	if cfg.Path != "" {
		b, err := openBadger(&cfg)
		if err != nil {
			return nil, err
		}
		backend = b
	}

	s, err := newStore(cfg, backend, pub)
	if err != nil {
		if backend != nil {
			_ = backend.close()
		}
		return nil, err
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("capacity", cfg.Capacity).
		Int("restored", s.Len()).
		Msg("Event store opened")
	return s, nil
}

func newStore(cfg Config, backend persister, pub Publisher) (*Store, error) {
	s := &Store{
		cfg:     cfg,
		backend: backend,
		pub:     pub,
		nextSeq: 1,
		now:     time.Now,
	}
	if backend == nil {
		return s, nil
	}

	recs, err := backend.load()
	if err != nil {
		return nil, fmt.Errorf("load event log: %w", err)
	}

	if over := len(recs) - cfg.Capacity; over > 0 {
		evicted := make([]uint64, 0, over)
		for _, r := range recs[:over] {
			evicted = append(evicted, r.seq)
		}
		recs = recs[over:]
		// Capacity shrank since the last run. Drop the surplus on disk by
		// rewriting the newest entry together with the deletions.
		if err := backend.write(recs[len(recs)-1], evicted); err != nil {
			logging.Warn().Err(err).Int("surplus", over).Msg("Could not trim restored event log")
		}
	}

	for _, r := range recs {
		if r.seq >= s.nextSeq {
			s.nextSeq = r.seq + 1
		}
		if ms := idMillis(r.entry.ID()); ms > s.lastMs {
			s.lastMs = ms
		}
	}
	s.records = recs
	metrics.StoreEntries.Set(float64(len(recs)))
	return s, nil
}

// SetPublisher replaces the publisher notified on append.
func (s *Store) SetPublisher(pub Publisher) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.pub = pub
}

// Append adds entry to the tail of the log and returns the stored copy.
//
// On ErrPersistenceUnavailable the returned entry is valid, kept in memory
// and already published. On ErrDuplicateEntry it is the copy already held.
func (s *Store) Append(ctx context.Context, entry models.Entry) (models.Entry, error) {
	if err := entry.Validate(); err != nil {
		return models.Entry{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	entry = entry.Clone()

	start := s.now()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return models.Entry{}, ErrStoreClosed
	}

	if entry.ID() == "" {
		entry.SetID(s.nextID(entry.IDPrefix(), start))
	} else if held, ok := s.heldLocked(entry.ID()); ok {
		return held, ErrDuplicateEntry
	} else if ms := idMillis(entry.ID()); ms > s.lastMs {
		// Relayed entries keep their id; later local ids stay above it.
		s.lastMs = ms
	}
	rec := record{seq: s.nextSeq, entry: entry}
	s.nextSeq++

	// Only this goroutine mutates records, so reading it here is safe.
	var evicted []uint64
	if over := len(s.records) + 1 - s.cfg.Capacity; over > 0 {
		for _, r := range s.records[:over] {
			evicted = append(evicted, r.seq)
		}
	}

	var persistErr error
	if s.backend != nil {
		if err := s.backend.write(rec, evicted); err != nil {
			persistErr = fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
		}
	}

	s.mu.Lock()
	if n := len(evicted); n > 0 {
		s.records = append(s.records[:0:0], s.records[n:]...)
	}
	s.records = append(s.records, rec)
	size := len(s.records)
	s.lastAppend = start
	s.lastFailed = persistErr != nil
	if persistErr != nil {
		s.failures++
	}
	s.mu.Unlock()

	metrics.RecordEviction(len(evicted))
	metrics.RecordAppend(string(entry.Kind), persistErr == nil && s.backend != nil, s.now().Sub(start))
	metrics.StoreEntries.Set(float64(size))

	if persistErr != nil {
		logging.CtxErr(ctx, persistErr).
			Str("entry_id", entry.ID()).
			Str("kind", string(entry.Kind)).
			Msg("Entry kept in memory only")
	}

	if s.pub != nil {
		s.pub.Publish(entry.Clone())
	}
	return entry.Clone(), persistErr
}

// heldLocked returns the stored copy of id. Must be called with writeMu
// held; only the writer mutates records.
func (s *Store) heldLocked(id string) (models.Entry, bool) {
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].entry.ID() == id {
			return s.records[i].entry.Clone(), true
		}
	}
	return models.Entry{}, false
}

// nextID returns prefix_<ms>[_<node>] with ms strictly greater than any id
// handed out before. Must be called with writeMu held.
func (s *Store) nextID(prefix string, now time.Time) string {
	ms := now.UnixMilli()
	if ms <= s.lastMs {
		ms = s.lastMs + 1
	}
	s.lastMs = ms
	id := prefix + "_" + strconv.FormatInt(ms, 10)
	if s.cfg.NodeID != "" {
		id += "_" + s.cfg.NodeID
	}
	return id
}

// idMillis extracts the millisecond field of a generated id, or 0. Node ids
// may contain '_', so the field is the one after the prefix.
func idMillis(id string) int64 {
	_, rest, ok := strings.Cut(id, "_")
	if !ok {
		return 0
	}
	ms, _, _ := strings.Cut(rest, "_")
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// List returns up to limit entries, most recent first. limit <= 0 returns
// the whole log. The result is a copy.
func (s *Store) List(limit int) []models.Entry {
	return s.collect(limit, func(models.Entry) bool { return true })
}

// ListSubject is List restricted to one subject.
func (s *Store) ListSubject(subjectID string, limit int) []models.Entry {
	return s.collect(limit, func(e models.Entry) bool { return e.SubjectID() == subjectID })
}

func (s *Store) collect(limit int, keep func(models.Entry) bool) []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.Entry, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		if keep(s.records[i].entry) {
			out = append(out, s.records[i].entry.Clone())
		}
	}
	return out
}

// Get returns the entry with the given id.
func (s *Store) Get(id string) (models.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].entry.ID() == id {
			return s.records[i].entry.Clone(), true
		}
	}
	return models.Entry{}, false
}

// Len returns the number of entries held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Stats returns current counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Entries:           len(s.records),
		Capacity:          s.cfg.Capacity,
		Persistent:        s.backend != nil,
		PersistFailures:   s.failures,
		LastAppend:        s.lastAppend,
		LastPersistFailed: s.lastFailed,
		Closed:            s.closed,
	}
}

// Clear empties the log, in memory and on disk.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	s.records = nil
	s.mu.Unlock()
	metrics.StoreEntries.Set(0)

	if s.backend != nil {
		if err := s.backend.clear(); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
		}
	}
	logging.Ctx(ctx).Info().Msg("Event log cleared")
	return nil
}

// Close flushes and closes the backing store. It is safe to call twice.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if err := s.backend.close(); err != nil {
		return err
	}
	logging.Info().Msg("Event store closed")
	return nil
}
