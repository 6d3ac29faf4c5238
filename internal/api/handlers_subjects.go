// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/trailguard/internal/eventstore"
	"github.com/tomtom215/trailguard/internal/geo"
	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/models"
)

// fixRequest is a position sample from a device.
type fixRequest struct {
	Lat      *float64   `json:"lat" validate:"required,latitude"`
	Lng      *float64   `json:"lng" validate:"required,longitude"`
	Accuracy float64    `json:"accuracy" validate:"gte=0,lte=100000"`
	At       *time.Time `json:"at"`
}

func (f *fixRequest) toFix() models.Fix {
	fix := models.Fix{
		Coordinate:     geo.Coordinate{Lat: *f.Lat, Lng: *f.Lng},
		AccuracyMeters: f.Accuracy,
	}
	if f.At != nil {
		fix.At = f.At.UTC()
	}
	return fix
}

// PositionResponse is returned by ReportPosition.
type PositionResponse struct {
	State     string                 `json:"state"`
	Deviation *models.DeviationEvent `json:"deviation"`
}

// ReportPosition evaluates one position sample.
//
// 200 with the deviation event when the sample starts an excursion (or null
// otherwise), 202 with a warning when the event was broadcast but not
// persisted.
//
// @Summary Report a position sample
// @Description Evaluates one fix against the subject's reference area. A deviation event is returned only for the sample that starts an excursion.
// @Tags Subjects
// @Accept json
// @Produce json
// @Param subjectID path string true "Subject id"
// @Param body body fixRequest true "Position sample"
// @Success 200 {object} models.APIResponse{data=PositionResponse} "Sample evaluated"
// @Success 202 {object} models.APIResponse{data=PositionResponse} "Deviation broadcast but not persisted"
// @Failure 400 {object} models.APIResponse "Invalid sample"
// @Failure 429 {object} models.APIResponse "Rate limit exceeded"
// @Router /subjects/{subjectID}/positions [post]
func (h *Handler) ReportPosition(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectParam(w, r)
	if !ok {
		return
	}

	var req fixRequest
	if err := decodeJSON(w, r, h.config.MaxBodyBytes, &req); err != nil {
		respondDecodeError(w, r, err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, r, apiErr)
		return
	}

	ctx := logging.ContextWithSubject(r.Context(), subjectID)
	ev, err := h.deps.Monitor.ReportFix(ctx, subjectID, req.toFix())

	resp := PositionResponse{State: h.deps.Monitor.State(subjectID).String(), Deviation: ev}
	switch {
	case err == nil:
		respondSuccess(w, r, http.StatusOK, resp)
	case errors.Is(err, eventstore.ErrPersistenceUnavailable):
		respondSuccess(w, r, http.StatusAccepted, resp, WarningNotPersisted)
	case errors.Is(err, eventstore.ErrStoreClosed):
		respondErrorDetails(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Event store unavailable", nil, err)
	default:
		respondErrorDetails(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to evaluate position", nil, err)
	}
}

type centerRequest struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lng *float64 `json:"lng" validate:"required,longitude"`
}

// areaRequest sets a reference area from an explicit center, a known city,
// or both (the city then only labels the area).
type areaRequest struct {
	ID           string         `json:"id" validate:"omitempty,max=64"`
	City         string         `json:"city" validate:"required_without=Center,omitempty,max=100"`
	Center       *centerRequest `json:"center"`
	RadiusMeters float64        `json:"radius_m" validate:"gte=0,lte=1000000"`
}

// AreaResponse describes a subject's reference area and state.
type AreaResponse struct {
	Area            *models.ReferenceArea `json:"area"`
	State           string                `json:"state"`
	ThresholdMeters float64               `json:"threshold_m"`
}

func (h *Handler) areaResponse(subjectID string) AreaResponse {
	area := h.deps.Monitor.ActiveArea(subjectID)
	threshold := h.deps.Monitor.ThresholdMeters()
	if area != nil && area.RadiusMeters > 0 {
		threshold = area.RadiusMeters
	}
	return AreaResponse{
		Area:            area,
		State:           h.deps.Monitor.State(subjectID).String(),
		ThresholdMeters: threshold,
	}
}

// SetArea replaces the subject's reference area. The subject is considered
// inside the new area until a sample says otherwise.
//
// @Summary Set the reference area
// @Tags Subjects
// @Accept json
// @Produce json
// @Param subjectID path string true "Subject id"
// @Param body body areaRequest true "Center, known city, or both"
// @Success 200 {object} models.APIResponse{data=AreaResponse}
// @Failure 400 {object} models.APIResponse "Invalid area or unknown city"
// @Router /subjects/{subjectID}/area [put]
func (h *Handler) SetArea(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectParam(w, r)
	if !ok {
		return
	}

	var req areaRequest
	if err := decodeJSON(w, r, h.config.MaxBodyBytes, &req); err != nil {
		respondDecodeError(w, r, err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, r, apiErr)
		return
	}

	area := models.ReferenceArea{
		ID:           req.ID,
		Label:        strings.TrimSpace(req.City),
		RadiusMeters: req.RadiusMeters,
		CreatedAt:    time.Now().UTC(),
	}
	if area.ID == "" {
		area.ID = uuid.NewString()
	}

	var warnings []string
	if req.Center != nil {
		area.Center = geo.Coordinate{Lat: *req.Center.Lat, Lng: *req.Center.Lng}
	} else {
		center, known := models.CityCenter(area.Label)
		area.Center = center
		if !known {
			warnings = append(warnings, WarningUnknownCity)
			logging.Ctx(r.Context()).Warn().
				Str("subject_id", subjectID).
				Str("city", sanitizeLogValue(area.Label)).
				Msg("Unknown itinerary city, using default center")
		}
	}
	if area.Label == "" {
		area.Label = "custom"
	}

	h.deps.Monitor.SetActiveArea(subjectID, &area)
	respondSuccess(w, r, http.StatusOK, h.areaResponse(subjectID), warnings...)
}

// GetArea returns the subject's reference area (null when none) and state.
//
// @Summary Get the reference area
// @Tags Subjects
// @Produce json
// @Param subjectID path string true "Subject id"
// @Success 200 {object} models.APIResponse{data=AreaResponse}
// @Failure 400 {object} models.APIResponse "Invalid subject id"
// @Router /subjects/{subjectID}/area [get]
func (h *Handler) GetArea(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectParam(w, r)
	if !ok {
		return
	}
	respondSuccess(w, r, http.StatusOK, h.areaResponse(subjectID))
}

// ClearArea removes the subject's reference area. Later samples are not
// evaluated until a new area is set.
//
// @Summary Clear the reference area
// @Tags Subjects
// @Produce json
// @Param subjectID path string true "Subject id"
// @Success 200 {object} models.APIResponse{data=AreaResponse}
// @Failure 400 {object} models.APIResponse "Invalid subject id"
// @Router /subjects/{subjectID}/area [delete]
func (h *Handler) ClearArea(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := subjectParam(w, r)
	if !ok {
		return
	}
	h.deps.Monitor.SetActiveArea(subjectID, nil)
	respondSuccess(w, r, http.StatusOK, h.areaResponse(subjectID))
}
