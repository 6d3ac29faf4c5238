// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package api

import (
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/trailguard/internal/incident"
	"github.com/tomtom215/trailguard/internal/logging"
)

// audioRequest carries a recorded clip as standard base64.
type audioRequest struct {
	MIMEType   string `json:"mime_type" validate:"omitempty,audiomime"`
	Data       string `json:"data" validate:"required,base64"`
	DurationMS int64  `json:"duration_ms" validate:"gte=0,lte=600000"`
}

func (a *audioRequest) toClip() incident.AudioClip {
	// Validated as base64 already.
	data, _ := base64.StdEncoding.DecodeString(a.Data)
	return incident.AudioClip{
		MIMEType: a.MIMEType,
		Data:     data,
		Duration: time.Duration(a.DurationMS) * time.Millisecond,
	}
}

// incidentRequest is optional evidence sent together with the trigger.
type incidentRequest struct {
	Location   *fixRequest   `json:"location"`
	Transcript *string       `json:"transcript" validate:"omitempty,max=4000"`
	Audio      *audioRequest `json:"audio"`
}

func (req *incidentRequest) inline() incident.Inline {
	var in incident.Inline
	if req.Location != nil {
		fix := req.Location.toFix()
		in.Fix = &fix
	}
	in.Transcript = req.Transcript
	if req.Audio != nil {
		clip := req.Audio.toClip()
		in.Audio = &clip
	}
	return in
}

// TriggerIncident raises a distress signal for the subject.
//
// The body is optional. Evidence it contains is used directly; anything
// missing is gathered from the device uploads and position reports within
// the capture deadlines. Responses:
//
//	201 the record was stored
//	202 the record was broadcast but not persisted
//	409 a capture for this subject is still running
//	503 nothing could be recorded
//
// @Summary Trigger an incident capture
// @Description Gathers location, transcript and audio within their deadlines and stores one incident record, even when every source fails.
// @Tags Incidents
// @Accept json
// @Produce json
// @Param subjectID path string true "Subject id"
// @Param body body incidentRequest false "Inline evidence"
// @Success 201 {object} models.APIResponse{data=incident.Summary} "Incident stored"
// @Success 202 {object} models.APIResponse{data=incident.Summary} "Incident broadcast but not persisted"
// @Failure 400 {object} models.APIResponse "Invalid evidence"
// @Failure 409 {object} models.APIResponse "Capture already running for this subject"
// @Failure 503 {object} models.APIResponse "Incident could not be recorded"
// @Router /subjects/{subjectID}/incidents [post]
func (h *Handler) TriggerIncident(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectParam(w, r)
	if !ok {
		return
	}
	if h.deps.Incident == nil {
		respondErrorDetails(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Incident capture unavailable", nil, nil)
		return
	}

	var req incidentRequest
	if err := decodeJSON(w, r, h.config.MaxBodyBytes, &req); err != nil && !errors.Is(err, ErrEmptyBody) {
		respondDecodeError(w, r, err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, r, apiErr)
		return
	}

	ctx := logging.ContextWithSubject(r.Context(), subjectID)
	summary, err := h.deps.Incident.TriggerWith(ctx, subjectID, req.inline())

	switch {
	case err == nil && summary.Persisted:
		respondSuccess(w, r, http.StatusCreated, summary)
	case err == nil:
		respondSuccess(w, r, http.StatusAccepted, summary, WarningNotPersisted)
	case errors.Is(err, incident.ErrCaptureInProgress):
		respondErrorDetails(w, r, http.StatusConflict, "CONFLICT", "An incident capture for this subject is already running", nil, nil)
	case errors.Is(err, incident.ErrCaptureTotalFailure):
		var details map[string]interface{}
		if summary != nil {
			details = map[string]interface{}{"record_id": summary.Record.ID}
		}
		respondErrorDetails(w, r, http.StatusServiceUnavailable, "CAPTURE_FAILED", "The incident could not be recorded", details, err)
	default:
		respondErrorDetails(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Incident capture failed", nil, err)
	}
}

// evidenceRequest is a device upload answering a running or upcoming capture.
type evidenceRequest struct {
	Kind       string        `json:"kind" validate:"required,oneof=transcript audio"`
	Transcript string        `json:"transcript" validate:"required_if=Kind transcript,max=4000"`
	Audio      *audioRequest `json:"audio" validate:"required_if=Kind audio"`
}

// UploadEvidence stores a transcript or audio clip for the subject. A capture
// waiting on that source picks it up immediately.
//
// @Summary Upload capture evidence
// @Tags Incidents
// @Accept json
// @Produce json
// @Param subjectID path string true "Subject id"
// @Param body body evidenceRequest true "Transcript or audio clip"
// @Success 202 {object} models.APIResponse "Evidence accepted"
// @Failure 400 {object} models.APIResponse "Invalid evidence"
// @Failure 503 {object} models.APIResponse "Evidence upload unavailable"
// @Router /subjects/{subjectID}/evidence [post]
func (h *Handler) UploadEvidence(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectParam(w, r)
	if !ok {
		return
	}
	if h.deps.Inbox == nil {
		respondErrorDetails(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Evidence upload unavailable", nil, nil)
		return
	}

	var req evidenceRequest
	if err := decodeJSON(w, r, h.config.MaxBodyBytes, &req); err != nil {
		respondDecodeError(w, r, err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, r, apiErr)
		return
	}

	switch req.Kind {
	case "transcript":
		h.deps.Inbox.PutTranscript(subjectID, req.Transcript)
	case "audio":
		h.deps.Inbox.PutAudio(subjectID, req.Audio.toClip())
	}
	logging.Ctx(r.Context()).Debug().Str("subject_id", subjectID).Str("kind", req.Kind).Msg("Evidence received")

	respondSuccess(w, r, http.StatusAccepted, map[string]string{"kind": req.Kind})
}
