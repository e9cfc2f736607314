package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-arrival-alert/internal/alert"
	"github.com/mr1hm/go-arrival-alert/internal/engine"
	"github.com/mr1hm/go-arrival-alert/internal/geo"
	"github.com/mr1hm/go-arrival-alert/internal/geocode"
	"github.com/mr1hm/go-arrival-alert/internal/location"
	"github.com/mr1hm/go-arrival-alert/internal/stream"
	"github.com/mr1hm/go-arrival-alert/internal/tracker"
)

var testDest = geo.Coordinate{Lat: 10.0558, Lon: 76.6183}

type mockGeocoder struct {
	results []geo.Coordinate
	err     error
	calls   int
}

func (m *mockGeocoder) Search(ctx context.Context, query string) ([]geo.Coordinate, error) {
	m.calls++
	return m.results, m.err
}

type mockProvider struct {
	current    geo.Coordinate
	currentErr error
}

func (m *mockProvider) Current(ctx context.Context) (geo.Coordinate, error) {
	if m.currentErr != nil {
		return geo.Coordinate{}, m.currentErr
	}
	return m.current, nil
}

func (m *mockProvider) Subscribe(opts location.SubscribeOptions, fn func(geo.Coordinate)) (location.Subscription, error) {
	return nopSubscription{}, nil
}

type nopSubscription struct{}

func (nopSubscription) Cancel() {}

type testEnv struct {
	router   *gin.Engine
	events   *stream.Broadcaster
	geocoder *mockGeocoder
	provider *mockProvider
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	eng, err := engine.New(engine.Options{})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	events := stream.NewBroadcaster()
	t.Cleanup(events.Close)
	geocoder := &mockGeocoder{}
	provider := &mockProvider{}

	tr := tracker.New(tracker.Config{
		Engine:   eng,
		Provider: provider,
		Resolver: geocode.NewResolver(geocoder),
		Sink:     alert.LogSink{},
		Events:   events,
	})

	router := gin.New()
	handler := NewHandler(tr, events)
	handler.RegisterRoutes(router)

	return &testEnv{router: router, events: events, geocoder: geocoder, provider: provider}
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) statusResponse {
	t.Helper()
	var resp statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t)

	w := doJSON(t, env.router, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestPutDestination_Arms(t *testing.T) {
	env := setupTestRouter(t)

	w := doJSON(t, env.router, "PUT", "/api/destination",
		`{"latitude": 10.0558, "longitude": 76.6183}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decodeStatus(t, w)
	if resp.State != "armed" {
		t.Errorf("state = %q, want armed", resp.State)
	}
	if resp.Destination == nil || resp.Destination.Lat != 10.0558 {
		t.Errorf("destination = %+v", resp.Destination)
	}
}

func TestPutDestination_Validation(t *testing.T) {
	env := setupTestRouter(t)

	bodies := []string{
		`{}`,
		`{"latitude": 10.0}`,
		`{"latitude": 91, "longitude": 0}`,
		`{"latitude": 0, "longitude": 181}`,
		`not json`,
	}
	for _, body := range bodies {
		w := doJSON(t, env.router, "PUT", "/api/destination", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, w.Code)
		}
	}
}

func TestPostLocation_FiresAlertOnce(t *testing.T) {
	env := setupTestRouter(t)

	doJSON(t, env.router, "PUT", "/api/destination",
		`{"latitude": 10.0558, "longitude": 76.6183}`)

	// ~1.5 km south of the destination: inside the 2.0 km alert band.
	w := doJSON(t, env.router, "POST", "/api/location",
		`{"latitude": 10.0423, "longitude": 76.6183}`)
	resp := decodeStatus(t, w)
	if resp.State != "fired" || !resp.AlertFired {
		t.Fatalf("response = %+v, want fired with alert", resp)
	}
	if resp.AlertMessage == "" {
		t.Error("alert fired without a message")
	}

	// Same position again: still fired, but no repeat alert.
	w = doJSON(t, env.router, "POST", "/api/location",
		`{"latitude": 10.0423, "longitude": 76.6183}`)
	resp = decodeStatus(t, w)
	if resp.State != "fired" || resp.AlertFired {
		t.Errorf("second sample response = %+v, want suppressed", resp)
	}
}

func TestPostLocation_WithoutDestination(t *testing.T) {
	env := setupTestRouter(t)

	w := doJSON(t, env.router, "POST", "/api/location",
		`{"latitude": 10.0, "longitude": 76.0}`)
	resp := decodeStatus(t, w)
	if resp.State != "idle" || resp.DistanceKm != nil {
		t.Errorf("response = %+v, want idle without distance", resp)
	}
}

func TestSearchDestination_EmptyQuerySkipsGeocoder(t *testing.T) {
	env := setupTestRouter(t)

	w := doJSON(t, env.router, "POST", "/api/destination/search", `{"query": "   "}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if env.geocoder.calls != 0 {
		t.Errorf("geocoder called %d times for an empty query", env.geocoder.calls)
	}
}

func TestSearchDestination_Statuses(t *testing.T) {
	env := setupTestRouter(t)

	env.geocoder.results = []geo.Coordinate{testDest}
	w := doJSON(t, env.router, "POST", "/api/destination/search", `{"query": "angamaly"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeStatus(t, w)
	if resp.State != "armed" || resp.Destination == nil {
		t.Errorf("response = %+v, want armed with destination", resp)
	}

	env.geocoder.results = nil
	w = doJSON(t, env.router, "POST", "/api/destination/search", `{"query": "nowhere"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("not found: expected 404, got %d", w.Code)
	}

	env.geocoder.err = context.DeadlineExceeded
	w = doJSON(t, env.router, "POST", "/api/destination/search", `{"query": "somewhere"}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("transport failure: expected 502, got %d", w.Code)
	}
}

func TestDeleteDestination_GoesIdle(t *testing.T) {
	env := setupTestRouter(t)

	doJSON(t, env.router, "PUT", "/api/destination",
		`{"latitude": 10.0558, "longitude": 76.6183}`)
	w := doJSON(t, env.router, "DELETE", "/api/destination", "")
	resp := decodeStatus(t, w)
	if resp.State != "idle" || resp.Destination != nil {
		t.Errorf("response = %+v, want idle", resp)
	}
}

func TestStartTracking_WithoutDestinationIsConflict(t *testing.T) {
	env := setupTestRouter(t)

	w := doJSON(t, env.router, "POST", "/api/tracking/start", "")
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestTracking_StartStop(t *testing.T) {
	env := setupTestRouter(t)

	doJSON(t, env.router, "PUT", "/api/destination",
		`{"latitude": 10.0558, "longitude": 76.6183}`)

	w := doJSON(t, env.router, "POST", "/api/tracking/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decodeStatus(t, w); !resp.Tracking {
		t.Errorf("response = %+v, want tracking", resp)
	}

	w = doJSON(t, env.router, "POST", "/api/tracking/stop", "")
	if resp := decodeStatus(t, w); resp.Tracking {
		t.Errorf("response = %+v, want not tracking", resp)
	}
}

func TestRefreshLocation_UnavailableIs503(t *testing.T) {
	env := setupTestRouter(t)
	env.provider.currentErr = location.ErrUnavailable

	w := doJSON(t, env.router, "POST", "/api/location/refresh", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestRefreshLocation_PermissionDeniedIs403(t *testing.T) {
	env := setupTestRouter(t)
	env.provider.currentErr = location.ErrPermissionDenied

	w := doJSON(t, env.router, "POST", "/api/location/refresh", "")
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestGetMap_ReturnsGeoJSON(t *testing.T) {
	env := setupTestRouter(t)

	doJSON(t, env.router, "PUT", "/api/destination",
		`{"latitude": 10.0558, "longitude": 76.6183}`)
	doJSON(t, env.router, "POST", "/api/location",
		`{"latitude": 10.0, "longitude": 76.6}`)

	w := doJSON(t, env.router, "GET", "/api/map", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("content-type = %q, want application/geo+json", ct)
	}

	var fc FeatureCollection
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if fc.Type != "FeatureCollection" {
		t.Errorf("type = %q, want FeatureCollection", fc.Type)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("got %d features, want position and destination", len(fc.Features))
	}

	// GeoJSON puts longitude first.
	dest := fc.Features[1]
	if dest.Properties["role"] != "destination" {
		t.Errorf("second feature role = %v", dest.Properties["role"])
	}
	if dest.Geometry.Coordinates[0] != 76.6183 || dest.Geometry.Coordinates[1] != 10.0558 {
		t.Errorf("destination coordinates = %v", dest.Geometry.Coordinates)
	}
	if _, ok := dest.Properties["distance_km"]; !ok {
		t.Error("destination feature has no distance_km")
	}
}

func TestStreamEvents_DeliversAlert(t *testing.T) {
	env := setupTestRouter(t)

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, "GET", "/api/events", nil)
	w := httptest.NewRecorder()

	go func() {
		// Give the handler time to subscribe, then emit and disconnect.
		time.Sleep(50 * time.Millisecond)
		env.events.Broadcast(stream.Event{Type: stream.EventAlert, State: "fired", Message: "near"})
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	env.router.ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("content-type = %q, want text/event-stream", ct)
	}
	if body := w.Body.String(); !strings.Contains(body, "event:alert") {
		t.Errorf("stream body missing alert event: %q", body)
	}
}
