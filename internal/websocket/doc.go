// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

/*
Package websocket pushes deviation events and incident records to monitoring
consoles.

Key Components:

  - Hub: tracks connected consoles and closes them on shutdown
  - Client: one console connection with read and write goroutines
  - Message: the {type, data} envelope written to the socket

Each client owns a dashboard.Consumer. On connect the client sends a
snapshot of the most recent entries, then one event message per entry the
consumer reports as new. Because the consumer reconciles against the event
store, a console that falls behind the live bus still receives every entry,
once.

Each client has three goroutines:
  - readPump: reads from the socket, answers application pings
  - writePump: writes queued messages and keepalive pings
  - the consumer loop: feeds the send queue

Message Types:

  - snapshot: list of entries, newest first, sent once after connecting
  - event: a single entry (deviation or incident)
  - ping / pong: application level keepalive initiated by the console

A client whose send queue fills up is disconnected. The console reconnects
and starts again from a fresh snapshot.

Usage:

	hub := websocket.NewHub(store, bus, dashboard.Config{Interval: 10 * time.Second})
	go hub.RunWithContext(ctx)

	conn, _ := upgrader.Upgrade(w, r, nil)
	client := websocket.NewClient(hub, conn)
	select {
	case hub.Register <- client:
		client.Start()
	case <-hub.Done():
		conn.Close()
	}
*/
package websocket
