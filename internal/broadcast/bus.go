// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

// Package broadcast fans newly stored entries out to live subscribers.
//
// Delivery is best effort. Every subscription owns a bounded queue drained
// by its own goroutine, so handlers run in publish order for that
// subscription and a slow handler never blocks the publisher or other
// subscribers. When a queue is full the entry is dropped for that subscriber
// only. Consumers that need every entry reconcile against the event store.
package broadcast

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/metrics"
	"github.com/tomtom215/trailguard/internal/models"
)

// DefaultQueueSize is the per-subscriber buffer when none is configured.
const DefaultQueueSize = 256

// Handler is invoked once per delivered entry.
type Handler func(models.Entry)

// Bus is an in-process publish/subscribe channel for entries.
type Bus struct {
	queueSize int
	log       zerolog.Logger

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// New returns a bus whose subscriptions buffer up to queueSize entries.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		queueSize: queueSize,
		subs:      make(map[uint64]*Subscription),
		log:       logging.WithComponent("broadcast"),
	}
}

// Subscription is a live registration on the bus.
type Subscription struct {
	id      uint64
	name    string
	bus     *Bus
	handler Handler
	queue   chan models.Entry
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// Subscribe registers handler until the subscription is closed. name is
// used in logs and metrics only.
func (b *Bus) Subscribe(name string, handler Handler) *Subscription {
	sub := &Subscription{
		name:    name,
		bus:     b,
		handler: handler,
		queue:   make(chan models.Entry, b.queueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.once.Do(func() { close(sub.stop) })
		close(sub.done)
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	count := len(b.subs)
	b.mu.Unlock()

	metrics.BusSubscribers.Set(float64(count))
	go sub.run()

	b.log.Debug().Str("subscriber", name).Int("subscribers", count).Msg("Subscribed")
	return sub
}

// Publish offers entry to every current subscription without blocking.
// With no subscribers the entry is simply not delivered.
func (b *Bus) Publish(entry models.Entry) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	metrics.BusPublishedTotal.Inc()

	for _, sub := range b.subs {
		select {
		case sub.queue <- entry.Clone():
		default:
			sub.dropped.Add(1)
			metrics.RecordBusDrop(sub.name)
			b.log.Warn().
				Str("subscriber", sub.name).
				Str("entry_id", entry.ID()).
				Msg("Subscriber queue full, entry dropped")
		}
	}
}

// Unsubscribe removes sub. Calling it more than once is harmless.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.Close()
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close stops every subscription and ignores later publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[uint64]*Subscription)
	b.mu.Unlock()

	for _, s := range subs {
		s.once.Do(func() { close(s.stop) })
	}
	metrics.BusSubscribers.Set(0)
}

// Close ends the subscription. Entries still queued are discarded. It does
// not wait for an in-flight handler, so it may be called from inside one.
func (s *Subscription) Close() {
	s.once.Do(func() {
		b := s.bus
		b.mu.Lock()
		delete(b.subs, s.id)
		count := len(b.subs)
		b.mu.Unlock()

		close(s.stop)
		metrics.BusSubscribers.Set(float64(count))
		b.log.Debug().Str("subscriber", s.name).Int("subscribers", count).Msg("Unsubscribed")
	})
}

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Dropped returns how many entries were dropped for this subscription.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Name returns the subscriber name.
func (s *Subscription) Name() string {
	return s.name
}

func (s *Subscription) run() {
	defer close(s.done)
	for {
		// Check stop first so a closed subscription does not keep draining.
		select {
		case <-s.stop:
			return
		default:
		}

		select {
		case <-s.stop:
			return
		case e := <-s.queue:
			s.deliver(e)
		}
	}
}

func (s *Subscription) deliver(e models.Entry) {
	defer func() {
		if r := recover(); r != nil {
			s.bus.log.Error().
				Str("subscriber", s.name).
				Str("entry_id", e.ID()).
				Str("panic", fmt.Sprint(r)).
				Msg("Subscriber handler panicked")
		}
	}()
	s.handler(e)
}
