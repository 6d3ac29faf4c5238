// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package websocket

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/trailguard/internal/dashboard"
	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/metrics"
	"github.com/tomtom215/trailguard/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// clientIDCounter orders clients for shutdown and names their consumers.
var clientIDCounter atomic.Uint64

// Client is a middleman between the websocket connection and the event feed
type Client struct {
	id       uint64
	hub      *Hub
	conn     *websocket.Conn
	send     chan Message
	consumer *dashboard.Consumer

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool

	// readDone is closed when readPump has unregistered and returned.
	readDone chan struct{}
}

// NewClient creates a client with its own dashboard consumer.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	id := clientIDCounter.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:       id,
		hub:      hub,
		conn:     conn,
		send:     make(chan Message, hub.sendSize),
		consumer: dashboard.NewConsumer("ws-"+strconv.FormatUint(id, 10), hub.viewCfg, hub.store, hub.bus),
		ctx:      ctx,
		cancel:   cancel,
		readDone: make(chan struct{}),
	}
	c.consumer.OnNew(func(e models.Entry) {
		c.enqueue(Message{Type: MessageTypeEvent, Data: e})
	})
	return c
}

// ID returns the client's unique identifier
func (c *Client) ID() uint64 {
	return c.id
}

// enqueue queues msg without blocking. A full queue disconnects the client.
func (c *Client) enqueue(msg Message) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	select {
	case c.send <- msg:
		c.mu.Unlock()
		return true
	default:
	}
	c.mu.Unlock()

	logging.Warn().Uint64("client_id", c.id).Str("message_type", msg.Type).Msg("websocket send queue full, disconnecting client")
	c.close()
	return false
}

// close stops the consumer and closes the send queue. writePump then sends
// a close frame. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.send)
}

// readPump reads console messages until the connection fails.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.Done():
			// The hub closed every client on its way out.
			c.close()
		}
		_ = c.conn.Close()
		close(c.readDone)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("unexpected websocket close error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Debug().Err(err).Uint64("client_id", c.id).Msg("ignoring malformed console message")
			continue
		}
		if msg.Type == MessageTypePing {
			c.enqueue(Message{Type: MessageTypePong})
		}
	}
}

// writePump writes queued messages and keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := MarshalMessage(message)
			if err != nil {
				logging.Error().Err(err).Str("message_type", message.Type).Msg("failed to encode websocket message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logging.Debug().Err(err).Uint64("client_id", c.id).Msg("websocket write failed")
				return
			}
			metrics.WSMessagesSentTotal.WithLabelValues(message.Type).Inc()

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start sends the initial snapshot and begins streaming. The client must be
// registered with the hub first.
func (c *Client) Start() {
	c.consumer.Seed()
	c.enqueue(Message{Type: MessageTypeSnapshot, Data: c.consumer.Snapshot()})

	go func() { _ = c.consumer.Run(c.ctx) }()
	go c.writePump()
	go c.readPump()
}
