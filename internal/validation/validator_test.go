// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package validation

import (
	"strings"
	"testing"
)

type positionRequest struct {
	Lat      float64 `json:"lat" validate:"latitude"`
	Lng      float64 `json:"lng" validate:"longitude"`
	Accuracy float64 `json:"accuracy" validate:"gte=0,lte=100000"`
}

type evidenceRequest struct {
	Subject  string `json:"subject" validate:"required,subjectid"`
	MIMEType string `json:"mime_type" validate:"omitempty,audiomime"`
	Kind     string `json:"kind" validate:"required,oneof=transcript audio"`
	Label    string `json:"label" validate:"omitempty,min=2,max=5"`
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct_Valid(t *testing.T) {
	tests := []struct {
		name string
		req  interface{}
	}{
		{"delhi", &positionRequest{Lat: 28.6139, Lng: 77.2090, Accuracy: 12}},
		{"poles and antimeridian", &positionRequest{Lat: -90, Lng: 180}},
		{"evidence", &evidenceRequest{Subject: "T-1042", MIMEType: "audio/webm", Kind: "audio"}},
		{"dotted id", &evidenceRequest{Subject: "device.7_b", Kind: "transcript", Label: "ab"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateStruct(tt.req); err != nil {
				t.Errorf("ValidateStruct() = %v, want nil", err)
			}
		})
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		req       interface{}
		wantField string
		wantTag   string
	}{
		{"lat out of range", &positionRequest{Lat: 91, Lng: 0}, "lat", "latitude"},
		{"lng out of range", &positionRequest{Lat: 0, Lng: -180.5}, "lng", "longitude"},
		{"negative accuracy", &positionRequest{Accuracy: -1}, "accuracy", "gte"},
		{"missing subject", &evidenceRequest{Kind: "audio"}, "subject", "required"},
		{"bad subject", &evidenceRequest{Subject: "../etc", Kind: "audio"}, "subject", "subjectid"},
		{"video mime", &evidenceRequest{Subject: "T-1", MIMEType: "video/mp4", Kind: "audio"}, "mime_type", "audiomime"},
		{"unknown kind", &evidenceRequest{Subject: "T-1", Kind: "photo"}, "kind", "oneof"},
		{"short label", &evidenceRequest{Subject: "T-1", Kind: "audio", Label: "a"}, "label", "min"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.req)
			if err == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			if len(err.Errors()) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(err.Errors()), err)
			}
			fe := err.Errors()[0]
			if fe.Field() != tt.wantField || fe.Tag() != tt.wantTag {
				t.Errorf("field/tag = %s/%s, want %s/%s", fe.Field(), fe.Tag(), tt.wantField, tt.wantTag)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		req  interface{}
		want string
	}{
		{&positionRequest{Lat: 100}, "lat must be a valid latitude (-90 to 90)"},
		{&evidenceRequest{Subject: "T-1", Kind: "photo"}, "kind must be one of: transcript audio"},
		{&evidenceRequest{Subject: "T-1", Kind: "audio", Label: "toolong"}, "label must be at most 5 characters"},
		{&positionRequest{Accuracy: 200000}, "accuracy must be less than or equal to 100000"},
	}
	for _, tt := range tests {
		err := ValidateStruct(tt.req)
		if err == nil {
			t.Errorf("%+v: expected error", tt.req)
			continue
		}
		if err.Error() != tt.want {
			t.Errorf("message = %q, want %q", err.Error(), tt.want)
		}
	}
}

func TestToAPIError_SingleError(t *testing.T) {
	err := ValidateStruct(&positionRequest{Lat: 95})
	apiErr := err.ToAPIError()

	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if apiErr.Details["field"] != "lat" || apiErr.Details["tag"] != "latitude" {
		t.Errorf("Details = %v", apiErr.Details)
	}
}

func TestToAPIError_MultipleErrors(t *testing.T) {
	err := ValidateStruct(&positionRequest{Lat: 95, Lng: 200})
	apiErr := err.ToAPIError()

	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Fatalf("Details[fields] = %v", apiErr.Details["fields"])
	}
	if !strings.Contains(apiErr.Message, "lat") || !strings.Contains(apiErr.Message, "lng") {
		t.Errorf("Message = %q, want both fields", apiErr.Message)
	}
}

func TestToAPIError_Empty(t *testing.T) {
	apiErr := (&RequestValidationError{}).ToAPIError()
	if apiErr.Message != "Validation failed" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestValidateVar(t *testing.T) {
	if err := ValidateVar("T-1", "subjectID", "required,subjectid"); err != nil {
		t.Errorf("valid id rejected: %v", err)
	}

	err := ValidateVar("", "subjectID", "required,subjectid")
	if err == nil {
		t.Fatal("empty id accepted")
	}
	if err.Error() != "subjectID is required" {
		t.Errorf("message = %q", err.Error())
	}
	if err.Errors()[0].Field() != "subjectID" {
		t.Errorf("field = %q", err.Errors()[0].Field())
	}

	if err := ValidateVar(strings.Repeat("a", 65), "subjectID", "subjectid"); err == nil {
		t.Error("65 character id accepted")
	}
}
