// Trailguard - Tourist Safety Event Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trailguard

package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/trailguard/internal/broadcast"
	"github.com/tomtom215/trailguard/internal/geo"
	"github.com/tomtom215/trailguard/internal/logging"
	"github.com/tomtom215/trailguard/internal/models"
)

func init() {
	logging.Init(logging.Config{Output: io.Discard})
}

var (
	delhi  = geo.Coordinate{Lat: 28.6139, Lng: 77.2090}
	jaipur = geo.Coordinate{Lat: 26.9124, Lng: 75.7873}
)

func incidentEntry(id string) models.Entry {
	text := "please help"
	return models.NewIncidentEntry(models.IncidentRecord{
		ID:         id,
		SubjectID:  "T-1",
		At:         time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Location:   &models.Fix{Coordinate: jaipur, AccuracyMeters: 15},
		Transcript: &text,
		Audio:      &models.AudioRef{MIMEType: "audio/webm", Bytes: 3, URL: "data:audio/webm;base64,AQID"},
	})
}

func deviationEntry(id string) models.Entry {
	return models.NewDeviationEntry(models.DeviationEvent{
		ID:              id,
		SubjectID:       "T-2",
		DistanceMeters:  9574,
		ThresholdMeters: 5000,
		AreaLabel:       "Delhi",
		Location:        geo.Coordinate{Lat: 28.7, Lng: 77.2},
		PlannedCenter:   delhi,
		At:              time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})
}

func TestAlertFromEntry_Incident(t *testing.T) {
	t.Parallel()

	a := AlertFromEntry(incidentEntry("inc_1"))
	if a.Level != LevelHigh || a.Kind != "incident" || a.EntryID != "inc_1" {
		t.Fatalf("alert = %+v", a)
	}
	if a.Location == nil || *a.Location != jaipur || a.AccuracyMeters != 15 {
		t.Errorf("location = %v accuracy %v", a.Location, a.AccuracyMeters)
	}
	if a.MapsURL != "https://www.google.com/maps?q=26.9124,75.7873" {
		t.Errorf("maps url = %q", a.MapsURL)
	}
	if a.Message != `Distress signal from T-1: "please help"` {
		t.Errorf("message = %q", a.Message)
	}
	if a.AudioURL != "data:audio/webm;base64,AQID" {
		t.Errorf("audio url = %q", a.AudioURL)
	}
}

func TestAlertFromEntry_IncidentWithoutEvidence(t *testing.T) {
	t.Parallel()

	a := AlertFromEntry(models.NewIncidentEntry(models.IncidentRecord{ID: "inc_2", SubjectID: "T-1"}))
	if a.Location != nil || a.MapsURL != "" {
		t.Errorf("unexpected location %v", a.Location)
	}
	if a.Message != "Distress signal from T-1, location unknown" {
		t.Errorf("message = %q", a.Message)
	}
}

func TestAlertFromEntry_Deviation(t *testing.T) {
	t.Parallel()

	a := AlertFromEntry(deviationEntry("dev_1"))
	if a.Level != LevelMedium || a.Kind != "deviation" {
		t.Fatalf("alert = %+v", a)
	}
	if a.Message != "T-2 is 9574 m from Delhi (allowed 5000 m)" {
		t.Errorf("message = %q", a.Message)
	}
	if a.Location == nil || a.MapsURL == "" {
		t.Error("deviation alert missing location")
	}
}

func TestAlertFromEntry_Empty(t *testing.T) {
	t.Parallel()
	if a := AlertFromEntry(models.Entry{}); a != nil {
		t.Errorf("got %+v", a)
	}
}

// --- webhook ---

func TestWebhookNotifier_Send(t *testing.T) {
	t.Parallel()

	var got WebhookPayload
	var auth, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{
		URL:     server.URL,
		Enabled: true,
		Headers: map[string]string{"Authorization": "Bearer token"},
	})
	if err := n.Send(context.Background(), AlertFromEntry(incidentEntry("inc_1"))); err != nil {
		t.Fatal(err)
	}

	if auth != "Bearer token" || contentType != "application/json" {
		t.Errorf("headers: auth %q content-type %q", auth, contentType)
	}
	if got.EventType != "safety_alert" || got.Source != "trailguard" {
		t.Errorf("payload = %+v", got)
	}
	if got.Alert == nil || got.Alert.Level != LevelHigh || got.Alert.EntryID != "inc_1" {
		t.Errorf("alert = %+v", got.Alert)
	}
}

func TestWebhookNotifier_Disabled(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls.Add(1) }))
	defer server.Close()

	tests := []struct {
		name string
		cfg  WebhookConfig
	}{
		{"disabled", WebhookConfig{URL: server.URL}},
		{"no url", WebhookConfig{Enabled: true}},
	}
	for _, tt := range tests {
		n := NewWebhookNotifier(tt.cfg)
		if n.Enabled() {
			t.Errorf("%s: Enabled() = true", tt.name)
		}
		if err := n.Send(context.Background(), &Alert{}); err != nil {
			t.Errorf("%s: %v", tt.name, err)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("endpoint called %d times", calls.Load())
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: server.URL, Enabled: true})
	err := n.Send(context.Background(), &Alert{EntryID: "inc_1"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("err = %v, want status 502", err)
	}
}

func TestWebhookNotifier_CircuitOpens(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{
		URL:             server.URL,
		Enabled:         true,
		MinInterval:     time.Millisecond,
		Burst:           10,
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	})
	for i := 0; i < 2; i++ {
		if err := n.Send(context.Background(), &Alert{}); err == nil {
			t.Fatal("expected failure")
		}
	}
	err := n.Send(context.Background(), &Alert{})
	if err == nil || !strings.Contains(err.Error(), "circuit open") {
		t.Errorf("err = %v, want circuit open", err)
	}
	if calls.Load() != 2 {
		t.Errorf("endpoint called %d times, want 2", calls.Load())
	}
}

func TestWebhookNotifier_RateLimitHonorsContext(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: server.URL, Enabled: true, MinInterval: time.Hour, Burst: 1})
	if err := n.Send(context.Background(), &Alert{}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := n.Send(ctx, &Alert{}); err == nil {
		t.Error("second send within the interval should fail when ctx ends first")
	}
}

// --- dispatcher ---

type fakeNotifier struct {
	mu      sync.Mutex
	alerts  []*Alert
	err     error
	enabled bool
	got     chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{enabled: true, got: make(chan struct{}, 16)}
}

func (f *fakeNotifier) Name() string  { return "fake" }
func (f *fakeNotifier) Enabled() bool { return f.enabled }
func (f *fakeNotifier) Send(_ context.Context, a *Alert) error {
	f.mu.Lock()
	f.alerts = append(f.alerts, a)
	f.mu.Unlock()
	f.got <- struct{}{}
	return f.err
}

func (f *fakeNotifier) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, a := range f.alerts {
		out = append(out, a.EntryID)
	}
	return out
}

func (f *fakeNotifier) waitN(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d alerts, want %d", i, n)
		}
	}
}

func startDispatcher(t *testing.T, d *Dispatcher, bus *broadcast.Bus) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("dispatcher did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDispatcher_EscalatesIncidentsOnly(t *testing.T) {
	t.Parallel()
	bus := broadcast.New(16)
	defer bus.Close()

	n := newFakeNotifier()
	d := NewDispatcher(DispatcherConfig{}, bus, n)
	startDispatcher(t, d, bus)

	bus.Publish(deviationEntry("dev_1"))
	bus.Publish(incidentEntry("inc_2"))
	n.waitN(t, 1)

	// Give a stray deviation alert a chance to show up.
	time.Sleep(50 * time.Millisecond)
	if got := n.ids(); len(got) != 1 || got[0] != "inc_2" {
		t.Errorf("alerts = %v, want [inc_2]", got)
	}
}

func TestDispatcher_EscalatesDeviationsWhenEnabled(t *testing.T) {
	t.Parallel()
	bus := broadcast.New(16)
	defer bus.Close()

	n := newFakeNotifier()
	d := NewDispatcher(DispatcherConfig{EscalateDeviations: true}, bus, n)
	startDispatcher(t, d, bus)

	bus.Publish(deviationEntry("dev_1"))
	bus.Publish(incidentEntry("inc_2"))
	n.waitN(t, 2)

	if got := n.ids(); len(got) != 2 || got[0] != "dev_1" || got[1] != "inc_2" {
		t.Errorf("alerts = %v", got)
	}
}

func TestDispatcher_SkipAndFailures(t *testing.T) {
	t.Parallel()
	bus := broadcast.New(16)
	defer bus.Close()

	failing := newFakeNotifier()
	failing.err = errors.New("unreachable")
	ok := newFakeNotifier()
	d := NewDispatcher(DispatcherConfig{}, bus, failing, ok)
	d.SetSkip(func(e models.Entry) bool { return e.ID() == "inc_remote" })
	startDispatcher(t, d, bus)

	bus.Publish(incidentEntry("inc_remote"))
	bus.Publish(incidentEntry("inc_local"))
	ok.waitN(t, 1)

	if got := ok.ids(); len(got) != 1 || got[0] != "inc_local" {
		t.Errorf("alerts = %v, want [inc_local]", got)
	}
	if got := failing.ids(); len(got) != 1 {
		t.Errorf("failing notifier saw %v", got)
	}
}

func TestDispatcher_IgnoresDisabledNotifiers(t *testing.T) {
	t.Parallel()
	bus := broadcast.New(16)
	defer bus.Close()

	off := newFakeNotifier()
	off.enabled = false
	d := NewDispatcher(DispatcherConfig{}, bus, off, nil)
	if d.Active() != 0 {
		t.Errorf("Active() = %d", d.Active())
	}
}
