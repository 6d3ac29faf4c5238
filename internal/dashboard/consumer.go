// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

// Package dashboard keeps a console's view of recent entries.
//
// A Consumer combines the live bus with periodic polls of the event store.
// The bus gives low latency but drops entries for slow or late subscribers;
// the poll fills those gaps. Entries are deduplicated by id, so an entry
// seen on both paths is reported once. The view follows store order, not
// device timestamps, so a backdated entry still shows as the newest.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/trailguard/internal/broadcast"
	"github.com/tomtom215/trailguard/internal/cache"
	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/metrics"
	"github.com/tomtom215/trailguard/internal/models"
)

const (
	DefaultInterval   = 10 * time.Second
	DefaultMaxEntries = 100

	goneTTL = time.Hour
)

// Lister reads the newest entries, most recent first.
type Lister interface {
	List(limit int) []models.Entry
}

// Subscriber registers for live entries. *broadcast.Bus satisfies it.
type Subscriber interface {
	Subscribe(name string, handler broadcast.Handler) *broadcast.Subscription
}

// Config controls a Consumer.
type Config struct {
	// Interval between reconciliation polls.
	Interval time.Duration

	// MaxEntries bounds the view.
	MaxEntries int
}

// Consumer maintains a deduplicated view of recent entries in store order,
// newest first.
type Consumer struct {
	name  string
	cfg   Config
	store Lister
	bus   Subscriber
	log   zerolog.Logger

	onNew func(models.Entry)

	mu      sync.Mutex
	entries []models.Entry // newest first
	inView  map[string]struct{}
	gone    *cache.LRU[struct{}] // ids that left the view, so late pushes stay quiet
	seeded  bool
}

// NewConsumer returns a consumer reading from store and bus. name
// identifies it in logs and bus metrics.
func NewConsumer(name string, cfg Config, store Lister, bus Subscriber) *Consumer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	return &Consumer{
		name:   name,
		cfg:    cfg,
		store:  store,
		bus:    bus,
		log:    logging.WithComponent("dashboard").With().Str("consumer", name).Logger(),
		inView: make(map[string]struct{}),
		gone:   cache.NewLRU[struct{}](cfg.MaxEntries, goneTTL),
	}
}

// OnNew sets the callback for entries not seen before. Seeded entries are
// not reported. It must be set before Run and must not block for long.
func (c *Consumer) OnNew(fn func(models.Entry)) {
	c.mu.Lock()
	c.onNew = fn
	c.mu.Unlock()
}

// Seed loads the current store contents into the view. Run seeds
// automatically if Seed was not called.
func (c *Consumer) Seed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebuildLocked()
	c.seeded = true
}

// Run subscribes to the bus and polls the store until ctx ends.
func (c *Consumer) Run(ctx context.Context) error {
	c.mu.Lock()
	seeded := c.seeded
	c.mu.Unlock()
	if !seeded {
		c.Seed()
	}

	sub := c.bus.Subscribe(c.name, c.add)
	defer sub.Close()

	// Entries stored between Seed and Subscribe are only visible to a poll.
	c.reconcile()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Debug().Int64("dropped", sub.Dropped()).Msg("Consumer stopped")
			return ctx.Err()
		case <-ticker.C:
			c.reconcile()
		}
	}
}

// Snapshot returns a copy of the view, newest first.
func (c *Consumer) Snapshot() []models.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Clone()
	}
	return out
}

// Len returns the number of entries in the view.
func (c *Consumer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// reconcile replaces the view with the newest stored entries and reports
// the ones not seen before, oldest first.
func (c *Consumer) reconcile() {
	c.mu.Lock()
	fresh := c.rebuildLocked()
	fn := c.onNew
	c.mu.Unlock()

	for _, e := range fresh {
		metrics.DashboardReconciledTotal.Inc()
		c.log.Debug().Str("entry_id", e.ID()).Msg("Entry recovered by poll")
		if fn != nil {
			fn(e)
		}
	}
}

// rebuildLocked reads the store under c.mu so a push cannot land between
// the read and the swap. It returns entries that were neither in the view
// nor recently dropped from it, oldest first.
func (c *Consumer) rebuildLocked() []models.Entry {
	listed := c.store.List(c.cfg.MaxEntries)

	entries := make([]models.Entry, 0, len(listed))
	inView := make(map[string]struct{}, len(listed))
	var fresh []models.Entry
	for i := len(listed) - 1; i >= 0; i-- {
		e := listed[i]
		id := e.ID()
		if id == "" {
			continue
		}
		if _, dup := inView[id]; dup {
			continue
		}
		if _, ok := c.inView[id]; !ok && !c.gone.Contains(id) {
			fresh = append(fresh, e)
		}
		inView[id] = struct{}{}
		entries = append(entries, e)
	}
	// entries was built oldest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	for id := range c.inView {
		if _, kept := inView[id]; !kept {
			c.gone.Add(id, struct{}{})
		}
	}
	c.entries = entries
	c.inView = inView
	return fresh
}

// add places a pushed entry at the head of the view. The bus delivers in
// append order, so the newest push is the newest stored entry.
func (c *Consumer) add(e models.Entry) {
	id := e.ID()
	if id == "" {
		return
	}

	c.mu.Lock()
	if _, dup := c.inView[id]; dup || c.gone.Contains(id) {
		c.mu.Unlock()
		return
	}
	c.entries = append(c.entries, models.Entry{})
	copy(c.entries[1:], c.entries)
	c.entries[0] = e
	c.inView[id] = struct{}{}
	for len(c.entries) > c.cfg.MaxEntries {
		last := c.entries[len(c.entries)-1]
		delete(c.inView, last.ID())
		c.gone.Add(last.ID(), struct{}{})
		c.entries = c.entries[:len(c.entries)-1]
	}
	fn := c.onNew
	c.mu.Unlock()

	if fn != nil {
		fn(e)
	}
}
