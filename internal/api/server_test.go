package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"visionpro-worker-go/internal/config"
	"visionpro-worker-go/internal/hub"
	"visionpro-worker-go/internal/models"
	"visionpro-worker-go/internal/store"
	"visionpro-worker-go/internal/stream"
)

type deadSource struct{}

func (deadSource) Open(ctx context.Context, address string) (stream.FrameReader, error) {
	return nil, errors.New("no capture backend in tests")
}

func newTestServer(t *testing.T) (*Server, *store.Memory, *hub.Hub) {
	t.Helper()

	mem := store.NewMemory()
	bus := hub.New()
	registry := stream.NewRegistry(stream.SupervisorOptions{
		Source:         deadSource{},
		Hub:            bus,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
	t.Cleanup(registry.StopAll)

	cfg := &config.Config{WorkerID: "worker-test", Version: "0.0.0", Port: 0}
	srv := NewServer(cfg, Options{
		Registry:  registry,
		Directory: mem,
		Events:    mem,
		Hub:       bus,
	})
	srv.Setup()
	return srv, mem, bus
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" || body["worker_id"] != "worker-test" {
		t.Fatalf("health body = %v", body)
	}
}

func TestStartStreamUnknownCameraIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/streams/ghost/start", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStartStreamDisabledCameraIs400(t *testing.T) {
	srv, mem, _ := newTestServer(t)
	mem.PutCamera(models.Camera{ID: "cam1", RTSPURL: "rtsp://a", Enabled: false})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/streams/cam1/start", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStreamLifecycleOverHTTP(t *testing.T) {
	srv, mem, _ := newTestServer(t)
	mem.PutCamera(models.Camera{ID: "cam1", RTSPURL: "rtsp://a", FPS: 15, Enabled: true})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/streams/cam1/start", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/streams/cam1/status")
	if err != nil {
		t.Fatal(err)
	}
	var health models.StreamHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if health.CameraID != "cam1" {
		t.Fatalf("status camera = %q", health.CameraID)
	}

	resp, err = http.Post(ts.URL+"/streams/cam1/stop", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/streams/cam1/status")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status after stop = %d, want 404", resp.StatusCode)
	}
}

func TestSnapshotWithoutFrameIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/streams/cam1/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRecentEventsEndpoint(t *testing.T) {
	srv, mem, _ := newTestServer(t)
	for _, id := range []string{"ev-1", "ev-2"} {
		mem.InsertEvent(context.Background(), &models.Event{ID: id, CameraID: "cam1", Category: models.CategoryPerson})
	}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/events?limit=10")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Events []models.Event `json:"events"`
		Count  int            `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || body.Events[0].ID != "ev-2" {
		t.Fatalf("events body = %+v", body)
	}

	resp, err = http.Get(ts.URL + "/events?limit=0")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", resp.StatusCode)
	}
}

func TestEventSocketReceivesPublishedEvents(t *testing.T) {
	srv, _, bus := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount(hub.EventsChannel) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("viewer never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	payload, _ := json.Marshal(models.Event{ID: "ev-1", CameraID: "cam1"})
	bus.Publish(hub.EventsChannel, payload)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("message type = %d, want text", msgType)
	}

	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.ID != "ev-1" {
		t.Fatalf("event id = %q", ev.ID)
	}
}

func TestCameraSocketReceivesFrames(t *testing.T) {
	srv, _, bus := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/cameras/cam1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	channel := hub.CameraChannel("cam1")
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount(channel) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("viewer never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(channel, []byte("jpeg-bytes"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if msgType != websocket.BinaryMessage || string(data) != "jpeg-bytes" {
		t.Fatalf("got type %d data %q", msgType, data)
	}
}
