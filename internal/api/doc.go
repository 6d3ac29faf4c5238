// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

/*
Package api exposes the safety subsystem over HTTP using the Chi router.

Device endpoints (one subject per URL):

	POST   /api/v1/subjects/{subjectID}/positions   report a position sample
	PUT    /api/v1/subjects/{subjectID}/area        set the reference area
	GET    /api/v1/subjects/{subjectID}/area        read area and state
	DELETE /api/v1/subjects/{subjectID}/area        clear the area
	POST   /api/v1/subjects/{subjectID}/incidents   raise a distress signal
	POST   /api/v1/subjects/{subjectID}/evidence    upload transcript or audio

Console endpoints:

	GET /api/v1/events              newest entries (?limit=&subject=)
	GET /api/v1/events/{entryID}    one entry
	GET /api/v1/ws                  live feed (WebSocket)

Operations:

	GET /api/v1/health[/live|/ready]
	GET /metrics
	GET /swagger/index.html   API browser; doc.json comes from swag init

Every JSON response uses the models.APIResponse envelope. A request that was
handled but only partly succeeded, such as a deviation that was broadcast
but not persisted, is answered with 202 Accepted and a warning in
metadata.warnings.
*/
package api
