// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/trailguard/internal/broadcast"
	"github.com/tomtom215/trailguard/internal/cache"
	"github.com/tomtom215/trailguard/internal/eventstore"
	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/metrics"
	"github.com/tomtom215/trailguard/internal/models"
)

// Appender stores relayed entries. *eventstore.Store satisfies it.
type Appender interface {
	Append(ctx context.Context, entry models.Entry) (models.Entry, error)
}

// Subscriber is the part of the broadcast bus the relay listens on.
type Subscriber interface {
	Subscribe(name string, handler broadcast.Handler) *broadcast.Subscription
}

// Relay exchanges entries with other nodes. It implements suture.Service.
type Relay struct {
	cfg   Config
	store Appender
	bus   Subscriber
	log   zerolog.Logger

	nc  *natsgo.Conn
	pub message.Publisher
	sub message.Subscriber
	cb  *gobreaker.CircuitBreaker[struct{}]

	// foreign maps ids of entries received from other nodes to their origin.
	foreign *cache.LRU[string]

	readyOnce sync.Once
	ready     chan struct{}

	closeOnce sync.Once
}

// New connects to NATS, provisions the stream and prepares the Watermill
// publisher and subscriber.
func New(ctx context.Context, cfg Config, store Appender, bus Subscriber) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DurablePrefix == "" {
		cfg.DurablePrefix = cfg.NodeID
	}
	log := logging.WithComponent("relay").With().Str("node_id", cfg.NodeID).Logger()
	wmLogger := watermill.NewSlogLogger(logging.NewSlogLogger())

	natsOpts := []natsgo.Option{
		natsgo.Name("trailguard-" + cfg.NodeID),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := natsgo.Connect(cfg.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	if _, err := EnsureStream(ctx, js, cfg.Stream); err != nil {
		nc.Close()
		return nil, err
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false, // provisioned above
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, wmLogger)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		SubscribersCount: 1, // keeps entries in stream order
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			AckAsync:      false,
			DurablePrefix: cfg.DurablePrefix,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.BindStream(cfg.Stream.Name),
				natsgo.MaxDeliver(cfg.MaxDeliver),
				natsgo.AckWait(cfg.AckWaitTimeout),
				natsgo.DeliverNew(),
			},
		},
	}, wmLogger)
	if err != nil {
		_ = pub.Close()
		nc.Close()
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	cbName := "relay-publish"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)
	failures := cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerGauge(to))
		},
	})

	return &Relay{
		cfg:     cfg,
		store:   store,
		bus:     bus,
		log:     log,
		nc:      nc,
		pub:     pub,
		sub:     sub,
		cb:      cb,
		foreign: cache.NewLRU[string](cfg.SeenSize, cfg.SeenTTL),
		ready:   make(chan struct{}),
	}, nil
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Ready is closed once the relay consumes the stream.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// NodeID returns the local node id.
func (r *Relay) NodeID() string {
	return r.cfg.NodeID
}

// IsForeign reports whether e was received from another node.
func (r *Relay) IsForeign(e models.Entry) bool {
	return r.foreign.Contains(e.ID())
}

// Serve relays entries until ctx is done.
func (r *Relay) Serve(ctx context.Context) error {
	messages, err := r.sub.Subscribe(ctx, r.cfg.Stream.Wildcard())
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.cfg.Stream.Wildcard(), err)
	}

	outbound := make(chan models.Entry, broadcast.DefaultQueueSize)
	busSub := r.bus.Subscribe("relay", func(e models.Entry) {
		if r.IsForeign(e) {
			return
		}
		select {
		case outbound <- e:
		default:
			metrics.RecordRelay("out", "dropped")
			r.log.Warn().Str("entry_id", e.ID()).Msg("Relay queue full, entry not shared")
		}
	})
	defer busSub.Close()

	r.readyOnce.Do(func() { close(r.ready) })
	r.log.Info().Str("stream", r.cfg.Stream.Name).Msg("Relay started")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-outbound:
				r.publish(ctx, e)
			}
		}
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("relay subscription closed")
			}
			if err := r.receive(ctx, msg); err != nil {
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}
}

// publish shares one local entry.
func (r *Relay) publish(ctx context.Context, e models.Entry) {
	payload, err := json.Marshal(e)
	if err != nil {
		metrics.RecordRelay("out", "invalid")
		r.log.Error().Err(err).Str("entry_id", e.ID()).Msg("Failed to encode entry")
		return
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(HeaderOrigin, r.cfg.NodeID)
	msg.Metadata.Set("kind", string(e.Kind))
	// JetStream drops repeats of the same id within the duplicate window.
	msg.Metadata.Set(natsgo.MsgIdHdr, r.cfg.NodeID+"-"+e.ID())

	_, err = r.cb.Execute(func() (struct{}, error) {
		return struct{}{}, r.pub.Publish(r.cfg.Stream.Subject(string(e.Kind)), msg)
	})
	if err != nil {
		metrics.RecordRelay("out", "error")
		r.log.Error().Err(err).Str("entry_id", e.ID()).Msg("Failed to relay entry")
		return
	}
	metrics.RecordRelay("out", "published")
	r.log.Debug().Str("entry_id", e.ID()).Msg("Entry relayed")
}

// receive stores one entry from the stream. A returned error asks for
// redelivery; malformed messages are dropped.
func (r *Relay) receive(ctx context.Context, msg *message.Message) error {
	origin := msg.Metadata.Get(HeaderOrigin)
	if origin == r.cfg.NodeID {
		metrics.RecordRelay("in", "own")
		return nil
	}

	var e models.Entry
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		metrics.RecordRelay("in", "invalid")
		r.log.Warn().Err(err).Str("origin", origin).Msg("Dropping undecodable relay message")
		return nil
	}
	if err := e.Validate(); err != nil || e.ID() == "" {
		metrics.RecordRelay("in", "invalid")
		r.log.Warn().Str("origin", origin).Msg("Dropping invalid relay entry")
		return nil
	}

	// Marked before appending: the store publishes synchronously and the
	// outbound handler must already see the entry as foreign.
	if r.foreign.AddIfAbsent(e.ID(), origin) {
		metrics.RecordRelay("in", "duplicate")
		return nil
	}

	_, err := r.store.Append(ctx, e)
	if errors.Is(err, eventstore.ErrDuplicateEntry) {
		// Already held, usually a redelivery after restart. The held entry
		// may be local, so it must not stay marked foreign.
		r.foreign.Remove(e.ID())
		metrics.RecordRelay("in", "duplicate")
		r.log.Debug().Str("entry_id", e.ID()).Str("origin", origin).Msg("Relayed entry already stored")
		return nil
	}
	if err != nil && !errors.Is(err, eventstore.ErrPersistenceUnavailable) {
		r.foreign.Remove(e.ID())
		metrics.RecordRelay("in", "error")
		r.log.Error().Err(err).Str("entry_id", e.ID()).Msg("Failed to store relayed entry")
		return err
	}

	metrics.RecordRelay("in", "stored")
	r.log.Info().Str("entry_id", e.ID()).Str("origin", origin).Str("kind", string(e.Kind)).Msg("Entry received from peer")
	return nil
}

// Close releases the NATS connections.
func (r *Relay) Close() error {
	var errs []error
	r.closeOnce.Do(func() {
		if err := r.sub.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := r.pub.Close(); err != nil {
			errs = append(errs, err)
		}
		r.nc.Close()
	})
	return errors.Join(errs...)
}

// String implements fmt.Stringer for suture logs.
func (r *Relay) String() string {
	return "relay"
}
