// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

/*
Package relay shares stored entries between trailguard nodes over NATS
JetStream.

Every entry appended locally is published as a Watermill message on
trailguard.events.<kind> with an "origin" header naming the node. Every
node consumes the stream through its own durable consumer and appends
entries from other nodes to its local store, keeping their ids, so local
consoles and escalation see them too.

Loop prevention:
  - messages whose origin is the local node are acked and ignored
  - entries received from another node are remembered and never
    re-published

A single node can run the bundled EmbeddedServer instead of an external
NATS deployment.
*/
package relay
