// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package eventstore

import (
	"context"
	"time"

	"github.com/tomtom215/trailguard/internal/logging"
)

// GCService periodically reclaims BadgerDB value log space left behind by
// evicted entries. It implements suture.Service.
type GCService struct {
	store *Store
}

// NewGCService returns the value log GC loop for s.
func NewGCService(s *Store) *GCService {
	return &GCService{store: s}
}

// Serve runs until ctx is done. A memory-only store has nothing to collect.
func (g *GCService) Serve(ctx context.Context) error {
	bp, ok := g.store.backend.(*badgerPersister)
	if !ok {
		<-ctx.Done()
		return ctx.Err()
	}

	interval := g.store.cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rounds, err := g.collect(bp)
			if err != nil {
				logging.Warn().Err(err).Msg("Value log GC failed")
				continue
			}
			if rounds > 0 {
				logging.Debug().Int("rounds", rounds).Msg("Value log GC reclaimed space")
			}
		}
	}
}

// collect holds lifeMu so Close cannot run underneath the GC.
func (g *GCService) collect(bp *badgerPersister) (int, error) {
	g.store.lifeMu.RLock()
	defer g.store.lifeMu.RUnlock()

	g.store.mu.RLock()
	closed := g.store.closed
	g.store.mu.RUnlock()
	if closed {
		return 0, nil
	}
	return bp.runGC(g.store.cfg.GCRatio)
}

func (g *GCService) String() string {
	return "event-store-gc"
}
