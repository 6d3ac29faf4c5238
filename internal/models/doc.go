// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

/*
Package models defines the records that flow through Trailguard.

Event records:

  - DeviationEvent: a tracked subject left the planned reference area
  - IncidentRecord: evidence assembled after a distress trigger
  - Entry: the tagged union of the two, as stored in the event log,
    pushed on the broadcast bus and relayed between nodes

Supporting types:

  - ReferenceArea: the planned center a subject is checked against
  - Fix: a coordinate with its accuracy radius
  - AudioRef: a playable reference to a captured audio clip
  - APIResponse / APIError / Metadata: the HTTP response envelope

Records are values. Once an Entry has been appended to the event log it is
never mutated; consumers receive copies.
*/
package models
