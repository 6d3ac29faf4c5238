// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

// Package main provides the Trailguard HTTP server
//
// Trailguard API records itinerary deviations and distress incidents for
// tracked tourists and serves them to tourism and police consoles.
//
// @title Trailguard API
// @version 1.0
// @description Tourist safety event monitoring: geofence deviations, incident capture and console feeds.
// @description
// @description ## Rate Limiting
// @description
// @description Default rate limit: 100 requests per minute per IP address. Position reports, incident triggers and WebSocket upgrades have their own limits.
// @description
// @description ## Partial Success
// @description
// @description A request that was handled but could not be persisted is answered with `202 Accepted` and a warning in `metadata.warnings`.
// @description
// @description ## Error Responses
// @description
// @description All error responses follow this format:
// @description ```json
// @description {
// @description   "status": "error",
// @description   "data": null,
// @description   "error": {
// @description     "code": "ERROR_CODE",
// @description     "message": "Human-readable error message",
// @description     "details": {}
// @description   },
// @description   "metadata": {
// @description     "timestamp": "2026-03-01T09:00:00Z"
// @description   }
// @description }
// @description ```
//
// @contact.name GitHub Repository
// @contact.url https://github.com/tomtom215/trailguard/issues
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
//
// @tag.name Subjects
// @tag.description Device endpoints: position samples and reference areas
//
// @tag.name Incidents
// @tag.description Distress triggers and evidence uploads
//
// @tag.name Events
// @tag.description Console endpoints: the event log and its live WebSocket feed
package main
