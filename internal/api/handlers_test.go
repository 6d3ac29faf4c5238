// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/trailguard/internal/broadcast"
	"github.com/tomtom215/trailguard/internal/eventstore"
	"github.com/tomtom215/trailguard/internal/geofence"
	"github.com/tomtom215/trailguard/internal/incident"
	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/models"
)

func init() {
	logging.Init(logging.Config{Output: io.Discard})
}

type testEnv struct {
	store   *eventstore.Store
	bus     *broadcast.Bus
	monitor *geofence.Monitor
	inbox   *incident.Inbox
	router  http.Handler
}

func captureConfig() incident.Config {
	return incident.Config{
		PositionTimeout:   80 * time.Millisecond,
		TranscriptTimeout: 80 * time.Millisecond,
		AudioDuration:     60 * time.Millisecond,
		AudioGrace:        20 * time.Millisecond,
	}
}

func testMiddleware() *ChiMiddleware {
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitDisabled = true
	cfg.CORSAllowedOrigins = []string{"https://console.example"}
	return NewChiMiddleware(cfg)
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	bus := broadcast.New(64)
	t.Cleanup(bus.Close)
	store, err := eventstore.Open(eventstore.Config{Capacity: 50}, bus)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tracker := geofence.NewTracker()
	monitor := geofence.NewMonitor(geofence.Config{}, store, tracker)
	inbox := incident.NewInbox()
	orch := incident.NewOrchestrator(captureConfig(), store, incident.Sources{
		Position:   &incident.TrackerPositionSource{Tracker: tracker, MaxAge: time.Minute},
		Transcript: inbox,
		Audio:      inbox,
	})

	h := NewHandler(Deps{
		Store:    store,
		Monitor:  monitor,
		Incident: orch,
		Inbox:    inbox,
		Bus:      bus,
	}, Config{})

	return &testEnv{
		store:   store,
		bus:     bus,
		monitor: monitor,
		inbox:   inbox,
		router:  NewRouter(h, testMiddleware()).SetupChi(),
	}
}

func routerWith(deps Deps) http.Handler {
	return NewRouter(NewHandler(deps, Config{}), testMiddleware()).SetupChi()
}

type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v\n%s", method, path, err, w.Body.String())
		}
	}
	return w, env
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, want, w.Body.String())
	}
}

func expectCode(t *testing.T, env envelope, want string) {
	t.Helper()
	if env.Status != "error" || env.Error == nil || env.Error.Code != want {
		t.Fatalf("error = %+v (status %q), want code %s", env.Error, env.Status, want)
	}
}

func setDelhi(t *testing.T, env *testEnv, subject string) {
	t.Helper()
	w, _ := do(t, env.router, http.MethodPut, "/api/v1/subjects/"+subject+"/area", `{"city":"Delhi"}`)
	expectStatus(t, w, http.StatusOK)
}

// --- positions ---

func TestReportPosition_DeviationOncePerExcursion(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)
	setDelhi(t, env, "T-1")

	far := `{"lat":26.9124,"lng":75.7873,"accuracy":12}`
	w, resp := do(t, env.router, http.MethodPost, "/api/v1/subjects/T-1/positions", far)
	expectStatus(t, w, http.StatusOK)

	var got PositionResponse
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.State != "deviated" || got.Deviation == nil {
		t.Fatalf("got %+v, want a deviation", got)
	}
	if !strings.HasPrefix(got.Deviation.ID, models.DeviationIDPrefix+"_") {
		t.Errorf("id = %q", got.Deviation.ID)
	}
	if got.Deviation.AreaLabel != "Delhi" {
		t.Errorf("city = %q", got.Deviation.AreaLabel)
	}

	// Still far away: suppressed.
	w, resp = do(t, env.router, http.MethodPost, "/api/v1/subjects/T-1/positions", far)
	expectStatus(t, w, http.StatusOK)
	got = PositionResponse{}
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Deviation != nil {
		t.Errorf("second sample produced %+v", got.Deviation)
	}
	if n := env.store.Len(); n != 1 {
		t.Errorf("store has %d entries, want 1", n)
	}
}

func TestReportPosition_Validation(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"missing lat", "/api/v1/subjects/T-1/positions", `{"lng":77.2}`, http.StatusBadRequest},
		{"latitude out of range", "/api/v1/subjects/T-1/positions", `{"lat":91,"lng":77.2}`, http.StatusBadRequest},
		{"negative accuracy", "/api/v1/subjects/T-1/positions", `{"lat":28.6,"lng":77.2,"accuracy":-1}`, http.StatusBadRequest},
		{"empty body", "/api/v1/subjects/T-1/positions", ``, http.StatusBadRequest},
		{"malformed json", "/api/v1/subjects/T-1/positions", `{"lat":`, http.StatusBadRequest},
		{"bad subject", "/api/v1/subjects/-bad/positions", `{"lat":28.6,"lng":77.2}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, env.router, http.MethodPost, tt.path, tt.body)
			expectStatus(t, w, tt.want)
			expectCode(t, resp, "VALIDATION_ERROR")
		})
	}
}

type fakeMonitor struct {
	ev  *models.DeviationEvent
	err error
}

func (f *fakeMonitor) ReportFix(context.Context, string, models.Fix) (*models.DeviationEvent, error) {
	return f.ev, f.err
}
func (f *fakeMonitor) SetActiveArea(string, *models.ReferenceArea) {}
func (f *fakeMonitor) ActiveArea(string) *models.ReferenceArea     { return nil }
func (f *fakeMonitor) State(string) geofence.State {
	if f.ev != nil {
		return geofence.Deviated
	}
	return geofence.Inside
}
func (f *fakeMonitor) ThresholdMeters() float64 { return geofence.DefaultThresholdMeters }

func TestReportPosition_StoreFailures(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)
	ev := &models.DeviationEvent{ID: "dev_1", SubjectID: "T-1"}

	tests := []struct {
		name    string
		monitor *fakeMonitor
		want    int
		code    string
		warning string
	}{
		{"not persisted", &fakeMonitor{ev: ev, err: eventstore.ErrPersistenceUnavailable}, http.StatusAccepted, "", WarningNotPersisted},
		{"store closed", &fakeMonitor{err: eventstore.ErrStoreClosed}, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", ""},
		{"unexpected", &fakeMonitor{err: errors.New("boom")}, http.StatusInternalServerError, "INTERNAL_ERROR", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := routerWith(Deps{Store: env.store, Monitor: tt.monitor})
			w, resp := do(t, router, http.MethodPost, "/api/v1/subjects/T-1/positions", `{"lat":26.9,"lng":75.8}`)
			expectStatus(t, w, tt.want)
			if tt.code != "" {
				expectCode(t, resp, tt.code)
			}
			if tt.warning != "" && (len(resp.Metadata.Warnings) != 1 || resp.Metadata.Warnings[0] != tt.warning) {
				t.Errorf("warnings = %v", resp.Metadata.Warnings)
			}
		})
	}
}

// --- areas ---

func TestSetArea(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)
	delhi, _ := models.CityCenter("Delhi")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantLabel  string
		wantWarn   bool
		wantCenter *float64
	}{
		{"known city", `{"city":"Jaipur"}`, http.StatusOK, "Jaipur", false, nil},
		{"unknown city", `{"city":"Atlantis"}`, http.StatusOK, "Atlantis", true, &delhi.Lat},
		{"explicit center", `{"center":{"lat":12.97,"lng":77.59},"radius_m":2000}`, http.StatusOK, "custom", false, nil},
		{"neither", `{"radius_m":2000}`, http.StatusBadRequest, "", false, nil},
		{"bad center", `{"center":{"lat":120,"lng":0}}`, http.StatusBadRequest, "", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, env.router, http.MethodPut, "/api/v1/subjects/T-area/area", tt.body)
			expectStatus(t, w, tt.wantStatus)
			if tt.wantStatus != http.StatusOK {
				expectCode(t, resp, "VALIDATION_ERROR")
				return
			}

			var got AreaResponse
			if err := json.Unmarshal(resp.Data, &got); err != nil {
				t.Fatal(err)
			}
			if got.Area == nil || got.Area.Label != tt.wantLabel {
				t.Fatalf("area = %+v, want label %q", got.Area, tt.wantLabel)
			}
			if got.Area.ID == "" {
				t.Error("area id not assigned")
			}
			if got.State != "inside" {
				t.Errorf("state = %q", got.State)
			}
			if hasWarn := len(resp.Metadata.Warnings) > 0; hasWarn != tt.wantWarn {
				t.Errorf("warnings = %v", resp.Metadata.Warnings)
			}
			if tt.wantCenter != nil && got.Area.Center.Lat != *tt.wantCenter {
				t.Errorf("center = %v", got.Area.Center)
			}
		})
	}
}

func TestArea_RadiusOverridesThreshold(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)

	w, resp := do(t, env.router, http.MethodPut, "/api/v1/subjects/T-1/area",
		`{"city":"Delhi","center":{"lat":28.6139,"lng":77.2090},"radius_m":1500}`)
	expectStatus(t, w, http.StatusOK)
	var got AreaResponse
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ThresholdMeters != 1500 || got.Area.Label != "Delhi" {
		t.Errorf("got %+v", got)
	}
}

func TestGetAndClearArea(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)

	w, resp := do(t, env.router, http.MethodGet, "/api/v1/subjects/T-1/area", "")
	expectStatus(t, w, http.StatusOK)
	var got AreaResponse
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Area != nil || got.ThresholdMeters != geofence.DefaultThresholdMeters {
		t.Fatalf("got %+v before any area was set", got)
	}

	setDelhi(t, env, "T-1")
	do(t, env.router, http.MethodPost, "/api/v1/subjects/T-1/positions", `{"lat":26.9124,"lng":75.7873}`)
	if env.monitor.State("T-1") != geofence.Deviated {
		t.Fatal("expected deviated")
	}

	w, resp = do(t, env.router, http.MethodDelete, "/api/v1/subjects/T-1/area", "")
	expectStatus(t, w, http.StatusOK)
	got = AreaResponse{}
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Area != nil || got.State != "inside" {
		t.Errorf("after clear: %+v", got)
	}
}

// --- incidents ---

func TestTriggerIncident_InlineEvidence(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)

	body := `{
		"location":{"lat":26.9124,"lng":75.7873,"accuracy":15},
		"transcript":"please help",
		"audio":{"mime_type":"audio/webm","data":"AQID","duration_ms":5000}
	}`
	w, resp := do(t, env.router, http.MethodPost, "/api/v1/subjects/T-1/incidents", body)
	expectStatus(t, w, http.StatusCreated)

	var s incident.Summary
	if err := json.Unmarshal(resp.Data, &s); err != nil {
		t.Fatal(err)
	}
	if !s.Persisted || len(s.Record.Omitted) != 0 {
		t.Fatalf("summary = %+v", s)
	}
	if s.Record.Audio == nil || s.Record.Audio.URL != "data:audio/webm;base64,AQID" {
		t.Errorf("audio = %+v", s.Record.Audio)
	}
	if s.MapsURL != "https://www.google.com/maps?q=26.9124,75.7873" {
		t.Errorf("maps url = %q", s.MapsURL)
	}
	if _, ok := env.store.Get(s.Record.ID); !ok {
		t.Errorf("record %s not stored", s.Record.ID)
	}
}

func TestTriggerIncident_EmptyBodyUsesUploads(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)

	// A recent position report, and a transcript uploaded while the
	// capture is waiting.
	do(t, env.router, http.MethodPost, "/api/v1/subjects/T-1/positions", `{"lat":26.9124,"lng":75.7873}`)
	go func() {
		time.Sleep(20 * time.Millisecond)
		env.inbox.PutTranscript("T-1", "lost near the fort")
	}()

	w, resp := do(t, env.router, http.MethodPost, "/api/v1/subjects/T-1/incidents", "")
	expectStatus(t, w, http.StatusCreated)

	var s incident.Summary
	if err := json.Unmarshal(resp.Data, &s); err != nil {
		t.Fatal(err)
	}
	if s.Position.Status != incident.StatusOK {
		t.Errorf("position = %+v", s.Position)
	}
	if s.Record.Transcript == nil || *s.Record.Transcript != "lost near the fort" {
		t.Errorf("transcript = %v", s.Record.Transcript)
	}
	if s.Audio.Status != incident.StatusTimeout {
		t.Errorf("audio = %+v", s.Audio)
	}
	if len(s.Record.Omitted) != 1 || s.Record.Omitted[0] != models.SourceAudio {
		t.Errorf("omitted = %v", s.Record.Omitted)
	}
}

type fakeTrigger struct {
	summary *incident.Summary
	err     error
}

func (f *fakeTrigger) TriggerWith(context.Context, string, incident.Inline) (*incident.Summary, error) {
	return f.summary, f.err
}

func TestTriggerIncident_Outcomes(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)
	rec := models.IncidentRecord{ID: "inc_7", SubjectID: "T-1"}

	tests := []struct {
		name    string
		trigger IncidentTrigger
		want    int
		code    string
	}{
		{"broadcast only", &fakeTrigger{summary: &incident.Summary{Record: rec}}, http.StatusAccepted, ""},
		{"in progress", &fakeTrigger{err: incident.ErrCaptureInProgress}, http.StatusConflict, "CONFLICT"},
		{"total failure", &fakeTrigger{summary: &incident.Summary{Record: rec}, err: incident.ErrCaptureTotalFailure}, http.StatusServiceUnavailable, "CAPTURE_FAILED"},
		{"unexpected", &fakeTrigger{err: errors.New("boom")}, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"no orchestrator", nil, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := Deps{Store: env.store, Monitor: env.monitor}
			if tt.trigger != nil {
				deps.Incident = tt.trigger
			}
			w, resp := do(t, routerWith(deps), http.MethodPost, "/api/v1/subjects/T-1/incidents", "")
			expectStatus(t, w, tt.want)
			if tt.code != "" {
				expectCode(t, resp, tt.code)
			}
			if tt.code == "CAPTURE_FAILED" && resp.Error.Details["record_id"] != "inc_7" {
				t.Errorf("details = %v", resp.Error.Details)
			}
			if tt.want == http.StatusAccepted && len(resp.Metadata.Warnings) == 0 {
				t.Error("expected a not-persisted warning")
			}
		})
	}
}

func TestTriggerIncident_InvalidInline(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)

	tests := []string{
		`{"audio":{"mime_type":"video/mp4","data":"AQID"}}`,
		`{"audio":{"data":"not base64!"}}`,
		`{"location":{"lat":28.6}}`,
	}
	for _, body := range tests {
		w, resp := do(t, env.router, http.MethodPost, "/api/v1/subjects/T-1/incidents", body)
		expectStatus(t, w, http.StatusBadRequest)
		expectCode(t, resp, "VALIDATION_ERROR")
	}
	if env.store.Len() != 0 {
		t.Errorf("invalid triggers stored %d entries", env.store.Len())
	}
}

// --- evidence ---

func TestUploadEvidence(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"transcript", `{"kind":"transcript","transcript":"help"}`, http.StatusAccepted},
		{"audio", `{"kind":"audio","audio":{"data":"aGVsbG8=","duration_ms":3000}}`, http.StatusAccepted},
		{"unknown kind", `{"kind":"video"}`, http.StatusBadRequest},
		{"transcript missing", `{"kind":"transcript"}`, http.StatusBadRequest},
		{"audio missing", `{"kind":"audio"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := do(t, env.router, http.MethodPost, "/api/v1/subjects/T-ev/evidence", tt.body)
			expectStatus(t, w, tt.want)
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	clip, err := env.inbox.RecordClip(ctx, "T-ev", 0, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if string(clip.Data) != "hello" || clip.Duration != 3*time.Second {
		t.Errorf("clip = %+v", clip)
	}
}

func TestUploadEvidence_NoInbox(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)
	router := routerWith(Deps{Store: env.store, Monitor: env.monitor})

	w, resp := do(t, router, http.MethodPost, "/api/v1/subjects/T-1/evidence", `{"kind":"transcript","transcript":"x"}`)
	expectStatus(t, w, http.StatusServiceUnavailable)
	expectCode(t, resp, "SERVICE_UNAVAILABLE")
}

func TestBodyTooLarge(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)
	h := NewHandler(Deps{Store: env.store, Monitor: env.monitor, Inbox: env.inbox}, Config{MaxBodyBytes: 64})
	router := NewRouter(h, testMiddleware()).SetupChi()

	body := `{"kind":"transcript","transcript":"` + strings.Repeat("a", 200) + `"}`
	w, resp := do(t, router, http.MethodPost, "/api/v1/subjects/T-1/evidence", body)
	expectStatus(t, w, http.StatusRequestEntityTooLarge)
	expectCode(t, resp, "PAYLOAD_TOO_LARGE")
}

// --- events ---

func seed(t *testing.T, env *testEnv) {
	t.Helper()
	setDelhi(t, env, "T-1")
	setDelhi(t, env, "T-2")
	do(t, env.router, http.MethodPost, "/api/v1/subjects/T-1/positions", `{"lat":26.9124,"lng":75.7873}`)
	do(t, env.router, http.MethodPost, "/api/v1/subjects/T-2/positions", `{"lat":26.9124,"lng":75.7873}`)
	do(t, env.router, http.MethodPost, "/api/v1/subjects/T-1/incidents", `{"transcript":"help"}`)
	if env.store.Len() != 3 {
		t.Fatalf("seeded %d entries, want 3", env.store.Len())
	}
}

func TestListEvents(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)
	seed(t, env)

	tests := []struct {
		name      string
		query     string
		wantCount int
		wantFirst models.EntryKind
	}{
		{"all", "", 3, models.KindIncident},
		{"limit", "?limit=1", 1, models.KindIncident},
		{"subject", "?subject=T-2", 1, models.KindDeviation},
		{"unknown subject", "?subject=T-9", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, env.router, http.MethodGet, "/api/v1/events"+tt.query, "")
			expectStatus(t, w, http.StatusOK)

			var entries []models.Entry
			if err := json.Unmarshal(resp.Data, &entries); err != nil {
				t.Fatal(err)
			}
			if len(entries) != tt.wantCount || resp.Metadata.Count == nil || *resp.Metadata.Count != tt.wantCount {
				t.Fatalf("got %d entries (count %v), want %d", len(entries), resp.Metadata.Count, tt.wantCount)
			}
			if tt.wantCount > 0 && entries[0].Kind != tt.wantFirst {
				t.Errorf("first kind = %s, want %s", entries[0].Kind, tt.wantFirst)
			}
		})
	}
}

func TestListEvents_InvalidQuery(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)

	for _, q := range []string{"?limit=0", "?limit=abc", "?limit=5000", "?subject=%20bad"} {
		w, resp := do(t, env.router, http.MethodGet, "/api/v1/events"+q, "")
		expectStatus(t, w, http.StatusBadRequest)
		expectCode(t, resp, "VALIDATION_ERROR")
	}
}

func TestGetEvent(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)
	seed(t, env)

	latest := env.store.List(1)[0]
	w, resp := do(t, env.router, http.MethodGet, "/api/v1/events/"+latest.ID(), "")
	expectStatus(t, w, http.StatusOK)
	var got models.Entry
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID() != latest.ID() {
		t.Errorf("id = %s, want %s", got.ID(), latest.ID())
	}

	w, resp = do(t, env.router, http.MethodGet, "/api/v1/events/dev_1", "")
	expectStatus(t, w, http.StatusNotFound)
	expectCode(t, resp, "NOT_FOUND")
}

// --- health, metrics, routing ---

func TestHealth(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)
	seed(t, env)

	w, resp := do(t, env.router, http.MethodGet, "/api/v1/health", "")
	expectStatus(t, w, http.StatusOK)
	var got HealthStatus
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "healthy" || got.Store.Entries != 3 || got.Store.Capacity != 50 {
		t.Errorf("health = %+v", got)
	}

	w, _ = do(t, env.router, http.MethodGet, "/api/v1/health/live", "")
	expectStatus(t, w, http.StatusOK)
	w, _ = do(t, env.router, http.MethodGet, "/api/v1/health/ready", "")
	expectStatus(t, w, http.StatusOK)
}

func TestHealth_ClosedStore(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)
	if err := env.store.Close(); err != nil {
		t.Fatal(err)
	}

	w, resp := do(t, env.router, http.MethodGet, "/api/v1/health", "")
	expectStatus(t, w, http.StatusOK)
	var got HealthStatus
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "degraded" {
		t.Errorf("status = %q, want degraded", got.Status)
	}

	w, resp = do(t, env.router, http.MethodGet, "/api/v1/health/ready", "")
	expectStatus(t, w, http.StatusServiceUnavailable)
	expectCode(t, resp, "SERVICE_UNAVAILABLE")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)
	do(t, env.router, http.MethodGet, "/api/v1/subjects/T-1/area", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusOK)
	if !bytes.Contains(w.Body.Bytes(), []byte("trailguard_api_requests_total")) {
		t.Error("metrics output missing trailguard_api_requests_total")
	}
}

func TestSwaggerUI(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusOK)
	if !bytes.Contains(w.Body.Bytes(), []byte("swagger-ui")) {
		t.Error("swagger page missing the swagger-ui element")
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("/swagger/doc.json")) {
		t.Error("swagger page does not point at /swagger/doc.json")
	}
}

func TestRouting(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)

	w, resp := do(t, env.router, http.MethodGet, "/api/v1/nope", "")
	expectStatus(t, w, http.StatusNotFound)
	expectCode(t, resp, "NOT_FOUND")

	w, resp = do(t, env.router, http.MethodPatch, "/api/v1/subjects/T-1/area", "{}")
	expectStatus(t, w, http.StatusMethodNotAllowed)
	expectCode(t, resp, "METHOD_NOT_ALLOWED")
}

func TestResponseHeaders(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subjects/T-1/area", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "req-abc" {
		t.Errorf("X-Request-ID = %q", got)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
	if w.Header().Get("ETag") == "" {
		t.Error("missing ETag")
	}
	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Metadata.RequestID != "req-abc" {
		t.Errorf("metadata request id = %q", resp.Metadata.RequestID)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	env := setupEnv(t)

	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 2
	h := NewHandler(Deps{Store: env.store, Monitor: env.monitor}, Config{})
	router := NewRouter(h, NewChiMiddleware(cfg)).SetupChi()

	var last *httptest.ResponseRecorder
	var resp envelope
	for i := 0; i < 3; i++ {
		last, resp = do(t, router, http.MethodGet, "/api/v1/subjects/T-1/area", "")
	}
	expectStatus(t, last, http.StatusTooManyRequests)
	expectCode(t, resp, "RATE_LIMIT_EXCEEDED")
}
