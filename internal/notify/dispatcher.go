// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tomtom215/trailguard/internal/broadcast"
	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/metrics"
	"github.com/tomtom215/trailguard/internal/models"
)

// Subscriber is the part of the broadcast bus the dispatcher uses.
type Subscriber interface {
	Subscribe(name string, handler broadcast.Handler) *broadcast.Subscription
}

// DispatcherConfig selects what is escalated.
type DispatcherConfig struct {
	EscalateDeviations bool `koanf:"escalate_deviations"`
	QueueSize          int  `koanf:"queue_size"`
}

// Dispatcher forwards bus entries to notifiers. It implements
// suture.Service.
type Dispatcher struct {
	cfg       DispatcherConfig
	bus       Subscriber
	notifiers []Notifier
	log       zerolog.Logger

	// skip reports entries that must not be escalated here, such as entries
	// relayed from another node.
	skip func(models.Entry) bool
}

// NewDispatcher returns a dispatcher for the enabled notifiers.
func NewDispatcher(cfg DispatcherConfig, bus Subscriber, notifiers ...Notifier) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	var active []Notifier
	for _, n := range notifiers {
		if n != nil && n.Enabled() {
			active = append(active, n)
		}
	}
	return &Dispatcher{
		cfg:       cfg,
		bus:       bus,
		notifiers: active,
		log:       logging.WithComponent("notify"),
	}
}

// SetSkip installs a filter for entries that must not be escalated.
func (d *Dispatcher) SetSkip(fn func(models.Entry) bool) {
	d.skip = fn
}

// Active returns the number of enabled notifiers.
func (d *Dispatcher) Active() int {
	return len(d.notifiers)
}

// Serve subscribes to the bus and delivers alerts until ctx is done.
func (d *Dispatcher) Serve(ctx context.Context) error {
	queue := make(chan models.Entry, d.cfg.QueueSize)
	sub := d.bus.Subscribe("notify", func(e models.Entry) {
		if !d.wants(e) {
			return
		}
		select {
		case queue <- e:
		default:
			metrics.RecordNotify("queue", errQueueFull)
			d.log.Warn().Str("entry_id", e.ID()).Msg("Escalation queue full, alert dropped")
		}
	})
	defer sub.Close()

	d.log.Info().Int("notifiers", len(d.notifiers)).Bool("deviations", d.cfg.EscalateDeviations).Msg("Escalation dispatcher started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-queue:
			d.dispatch(ctx, e)
		}
	}
}

func (d *Dispatcher) wants(e models.Entry) bool {
	if len(d.notifiers) == 0 {
		return false
	}
	if e.Kind == models.KindDeviation && !d.cfg.EscalateDeviations {
		return false
	}
	return d.skip == nil || !d.skip(e)
}

func (d *Dispatcher) dispatch(ctx context.Context, e models.Entry) {
	alert := AlertFromEntry(e)
	if alert == nil {
		return
	}
	for _, n := range d.notifiers {
		err := n.Send(ctx, alert)
		metrics.RecordNotify(n.Name(), err)
		if err != nil {
			d.log.Error().Err(err).Str("notifier", n.Name()).Str("entry_id", alert.EntryID).Msg("Escalation failed")
			continue
		}
		d.log.Info().Str("notifier", n.Name()).Str("entry_id", alert.EntryID).Str("level", string(alert.Level)).Msg("Escalation sent")
	}
}

// String implements fmt.Stringer for suture logs.
func (d *Dispatcher) String() string {
	return "notify-dispatcher"
}
