package tracking

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func newTrackingApp(store *Store) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/sos"), store, "https://alertiq.example/")
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	return resp
}

func TestTrackingURL(t *testing.T) {
	if got := TrackingURL("https://alertiq.example/", "abc"); got != "https://alertiq.example/track/abc" {
		t.Fatalf("unexpected url %s", got)
	}
}

func TestUpdateLocationHandler(t *testing.T) {
	store, _ := newTestStore(t, 100)
	app := newTrackingApp(store)
	id := store.Create("user-1", "Asha", Location{Lat: 1, Lng: 1})
	if _, err := store.Subscribe(id); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	resp := postJSON(t, app, "/sos/update-location", map[string]any{
		"sessionId": id,
		"location":  map[string]float64{"lat": 12.97, "lng": 77.59},
		"timestamp": "2026-03-01T08:00:10Z",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		Success       bool `json:"success"`
		Recorded      bool `json:"recorded"`
		ViewersActive int  `json:"viewersActive"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Success || !out.Recorded || out.ViewersActive != 1 {
		t.Fatalf("unexpected response %+v", out)
	}

	snap, _ := store.Get(id)
	if len(snap.Locations) != 2 || snap.Locations[1].Lat != 12.97 {
		t.Fatalf("location not recorded: %+v", snap.Locations)
	}
}

func TestUpdateLocationHandlerErrors(t *testing.T) {
	store, _ := newTestStore(t, 100)
	app := newTrackingApp(store)
	id := store.Create("user-1", "Asha", Location{Lat: 1, Lng: 1})

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing session id", map[string]any{"location": map[string]float64{"lat": 1, "lng": 1}}, http.StatusBadRequest},
		{"missing location", map[string]any{"sessionId": id}, http.StatusBadRequest},
		{"bad latitude", map[string]any{"sessionId": id, "location": map[string]float64{"lat": 120, "lng": 1}}, http.StatusBadRequest},
		{"unknown session", map[string]any{"sessionId": "nope", "location": map[string]float64{"lat": 1, "lng": 1}}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, app, "/sos/update-location", tc.body)
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}

	if err := store.EndSession(id); err != nil {
		t.Fatalf("end: %v", err)
	}
	resp := postJSON(t, app, "/sos/update-location", map[string]any{
		"sessionId": id,
		"location":  map[string]float64{"lat": 1, "lng": 1},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for ended session, got %d", resp.StatusCode)
	}
}

func TestEndSessionHandler(t *testing.T) {
	store, _ := newTestStore(t, 100)
	app := newTrackingApp(store)
	id := store.Create("user-1", "Asha", Location{Lat: 1, Lng: 1})

	if resp := postJSON(t, app, "/sos/end-session", map[string]string{"sessionId": id}); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp := postJSON(t, app, "/sos/end-session", map[string]string{"sessionId": id}); resp.StatusCode != http.StatusOK {
		t.Fatalf("repeat end should succeed, got %d", resp.StatusCode)
	}
	if resp := postJSON(t, app, "/sos/end-session", map[string]string{"sessionId": "nope"}); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if resp := postJSON(t, app, "/sos/end-session", map[string]string{}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetSessionHandler(t *testing.T) {
	store, _ := newTestStore(t, 100)
	app := newTrackingApp(store)
	id := store.Create("user-1", "Asha", Location{Lat: 1, Lng: 1})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/sos/session/"+id, nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get session: %v %d", err, resp.StatusCode)
	}
	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.UserName != "Asha" || len(snap.Locations) != 1 || snap.Ended {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/sos/session/nope", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSessionQRCodeHandler(t *testing.T) {
	store, _ := newTestStore(t, 100)
	app := newTrackingApp(store)
	id := store.Create("user-1", "Asha", Location{Lat: 1, Lng: 1})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/sos/session/"+id+"/qr", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("qr: %v %d", err, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %s", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Fatalf("expected png body")
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/sos/session/nope/qr", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
