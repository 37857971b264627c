package detect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"visionpro-worker-go/internal/config"
	"visionpro-worker-go/internal/hub"
	"visionpro-worker-go/internal/models"
)

type fakeDirectory struct {
	cams []models.Camera
}

func (d *fakeDirectory) ListCameras(ctx context.Context) ([]models.Camera, error) {
	return d.cams, nil
}

func (d *fakeDirectory) GetCamera(ctx context.Context, cameraID string) (*models.Camera, error) {
	for _, cam := range d.cams {
		if cam.ID == cameraID {
			c := cam
			return &c, nil
		}
	}
	return nil, errors.New("camera not found")
}

type fakeFrames struct {
	mu     sync.Mutex
	frames map[string]*models.RawFrame
}

func (f *fakeFrames) Status(cameraID string) (models.StreamHealth, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.frames[cameraID]
	return models.StreamHealth{CameraID: cameraID, Connected: ok}, ok
}

func (f *fakeFrames) RawFrame(cameraID string) (*models.RawFrame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	frame, ok := f.frames[cameraID]
	return frame, ok
}

type fakeDetector struct {
	mu         sync.Mutex
	detections []models.RawDetection
	err        error
	calls      int
}

func (d *fakeDetector) Load(ctx context.Context) error { return nil }

func (d *fakeDetector) Predict(ctx context.Context, frame *models.RawFrame) ([]models.RawDetection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.detections, d.err
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (e *fakeEmbedder) Load(ctx context.Context) error { return nil }

func (e *fakeEmbedder) Extract(ctx context.Context, frame *models.RawFrame, region models.Rect) ([]float32, error) {
	return e.vec, e.err
}

type fakeIndex struct {
	matchID   string
	matched   bool
	matchErr  error
	enrollErr error

	mu       sync.Mutex
	enrolled []string
}

func (i *fakeIndex) Match(ctx context.Context, embedding []float32, threshold float64) (string, float64, bool, error) {
	return i.matchID, 0.8, i.matched, i.matchErr
}

func (i *fakeIndex) Enroll(ctx context.Context, identityID string, embedding []float32) (string, error) {
	if i.enrollErr != nil {
		return "", i.enrollErr
	}
	i.mu.Lock()
	i.enrolled = append(i.enrolled, identityID)
	i.mu.Unlock()
	return "emb-" + identityID, nil
}

type fakeSummarizer struct {
	text string
	err  error
}

func (s *fakeSummarizer) Summarize(ctx context.Context, ev *models.Event) (string, error) {
	return s.text, s.err
}

type fakeSnapshots struct {
	mu        sync.Mutex
	annotated []string
	raw       []string
	err       error
}

func (s *fakeSnapshots) WriteAnnotated(frame *models.RawFrame, objects []models.DetectedObject, name string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.annotated = append(s.annotated, name)
	return "/snapshots/" + name, nil
}

func (s *fakeSnapshots) WriteJPEG(jpeg []byte, name string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = append(s.raw, name)
	return "/snapshots/" + name, nil
}

type fakeEventStore struct {
	mu     sync.Mutex
	events []*models.Event
}

func (s *fakeEventStore) InsertEvent(ctx context.Context, ev *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeEventStore) all() []*models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Event, len(s.events))
	copy(out, s.events)
	return out
}

type fakeIdentityStore struct {
	mu          sync.Mutex
	created     []*models.Identity
	appearances []string
}

func (s *fakeIdentityStore) CreateIdentity(ctx context.Context, ident *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, ident)
	return nil
}

func (s *fakeIdentityStore) RecordAppearance(ctx context.Context, identityID string, seen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appearances = append(s.appearances, identityID)
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Dispatch(message, imagePath string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func testCamera() models.Camera {
	return models.Camera{
		ID:      "cam1",
		Name:    "Front Door",
		RTSPURL: "rtsp://example/stream",
		FPS:     15,
		Enabled: true,
		Detection: models.DetectionConfig{
			ObjectDetection:     true,
			DetectionClasses:    []string{"person", "vehicle"},
			ConfidenceThreshold: 0.5,
		},
	}
}

type testHarness struct {
	orch       *Orchestrator
	clock      *fakeClock
	detector   *fakeDetector
	events     *fakeEventStore
	identities *fakeIdentityStore
	index      *fakeIndex
	notifier   *fakeNotifier
	snapshots  *fakeSnapshots
	bus        *hub.Hub
}

func newHarness(cam models.Camera, detector *fakeDetector) *testHarness {
	cfg := &config.Config{
		InferenceInterval:    time.Second,
		EventCooldown:        15 * time.Second,
		InferenceConcurrency: 2,
		FaceMatchThreshold:   0.5,
	}
	h := &testHarness{
		clock:      &fakeClock{t: time.Unix(1_700_000_000, 0)},
		detector:   detector,
		events:     &fakeEventStore{},
		identities: &fakeIdentityStore{},
		index:      &fakeIndex{},
		notifier:   &fakeNotifier{},
		snapshots:  &fakeSnapshots{},
		bus:        hub.New(),
	}
	frame := &models.RawFrame{CameraID: cam.ID, Data: []byte("bgr"), Width: 640, Height: 480}
	h.orch = NewOrchestrator(cfg, OrchestratorOptions{
		Directory:  &fakeDirectory{cams: []models.Camera{cam}},
		Frames:     &fakeFrames{frames: map[string]*models.RawFrame{cam.ID: frame}},
		Detector:   detector,
		Index:      h.index,
		Summarizer: &fakeSummarizer{text: "A person walked up to the door."},
		Snapshots:  h.snapshots,
		Events:     h.events,
		Identities: h.identities,
		Notifier:   h.notifier,
		Hub:        h.bus,
	})
	h.orch.now = h.clock.Now
	h.orch.cooldowns.now = h.clock.Now
	return h
}

// cycle runs one polling pass and waits for inference to finish.
func (h *testHarness) cycle(t *testing.T) {
	t.Helper()
	h.orch.pollOnce(context.Background())
	h.orch.inferWG.Wait()
}

func TestDetectionCycleCreatesAndDebouncesEvents(t *testing.T) {
	detector := &fakeDetector{detections: []models.RawDetection{
		{ClassName: "person", Confidence: 0.9, Box: models.Rect{X: 10, Y: 10, W: 50, H: 120}},
		{ClassName: "car", Confidence: 0.4, Box: models.Rect{X: 200, Y: 40, W: 80, H: 60}},
	}}
	h := newHarness(testCamera(), detector)

	var mu sync.Mutex
	var fanout [][]byte
	h.bus.Subscribe(hub.EventsChannel, eventSub(func(data []byte) error {
		mu.Lock()
		fanout = append(fanout, data)
		mu.Unlock()
		return nil
	}))

	h.cycle(t) // t=0: fires
	h.clock.Advance(5 * time.Second)
	h.cycle(t) // t=5: suppressed
	h.clock.Advance(15 * time.Second)
	h.cycle(t) // t=20: fires again

	events := h.events.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Category != models.CategoryPerson {
			t.Errorf("event category = %q, want person", ev.Category)
		}
		if ev.Confidence != 0.9 {
			t.Errorf("event confidence = %v, want 0.9", ev.Confidence)
		}
		if len(ev.DetectedObjects) != 1 {
			t.Errorf("expected the sub-threshold car to be filtered, got %d objects", len(ev.DetectedObjects))
		}
		if ev.Summary != "A person walked up to the door." {
			t.Errorf("event summary = %q", ev.Summary)
		}
		if ev.SnapshotPath == "" {
			t.Error("event is missing its snapshot path")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fanout) != 2 {
		t.Fatalf("expected 2 fan-out payloads, got %d", len(fanout))
	}

	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	if len(h.notifier.messages) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(h.notifier.messages))
	}
	if h.notifier.messages[0] != "person detected on Front Door" {
		t.Errorf("notification = %q", h.notifier.messages[0])
	}
}

func TestConfidenceThresholdIsInclusive(t *testing.T) {
	cam := testCamera()
	objects, primary, found := filterDetections(&cam, []models.RawDetection{
		{ClassName: "person", Confidence: 0.5, Box: models.Rect{W: 10, H: 10}},
	})
	if !found {
		t.Fatal("detection at exactly the threshold must pass")
	}
	if len(objects) != 1 || primary.confidence != 0.5 {
		t.Fatalf("unexpected filter result: %v %v", objects, primary)
	}
}

func TestFilterDropsDisabledCategories(t *testing.T) {
	cam := testCamera()
	cam.Detection.DetectionClasses = []string{"vehicle"}
	_, primary, found := filterDetections(&cam, []models.RawDetection{
		{ClassName: "person", Confidence: 0.99},
		{ClassName: "truck", Confidence: 0.6, Box: models.Rect{W: 10, H: 10}},
	})
	if !found {
		t.Fatal("the truck should survive filtering")
	}
	if primary.category != models.CategoryVehicle {
		t.Fatalf("primary category = %q, want vehicle", primary.category)
	}
}

func TestSummaryFallbackOnFailure(t *testing.T) {
	detector := &fakeDetector{detections: []models.RawDetection{
		{ClassName: "person", Confidence: 0.8, Box: models.Rect{W: 20, H: 40}},
	}}
	h := newHarness(testCamera(), detector)
	h.orch.summarizer = &fakeSummarizer{err: errors.New("model offline")}

	h.cycle(t)

	events := h.events.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Summary != fallbackSummary {
		t.Fatalf("summary = %q, want fallback", events[0].Summary)
	}
}

func TestFaceMatchRefinesCategory(t *testing.T) {
	cam := testCamera()
	cam.Detection.FaceRecognition = true
	detector := &fakeDetector{detections: []models.RawDetection{
		{ClassName: "person", Confidence: 0.9, Box: models.Rect{X: 100, Y: 50, W: 60, H: 140}},
	}}
	h := newHarness(cam, detector)
	h.orch.embedder = &fakeEmbedder{vec: []float32{0.1, 0.2}}
	h.orch.faceReady = true
	h.index.matched = true
	h.index.matchID = "ident-42"

	h.cycle(t)

	events := h.events.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Category != models.CategoryFaceKnown {
		t.Fatalf("category = %q, want face_known", events[0].Category)
	}
	if events[0].IdentityID != "ident-42" {
		t.Fatalf("identity id = %q", events[0].IdentityID)
	}
	if len(h.identities.appearances) != 1 || h.identities.appearances[0] != "ident-42" {
		t.Fatalf("appearance not recorded: %v", h.identities.appearances)
	}
}

func TestUnknownFaceIsEnrolled(t *testing.T) {
	cam := testCamera()
	cam.Detection.FaceRecognition = true
	detector := &fakeDetector{detections: []models.RawDetection{
		{ClassName: "person", Confidence: 0.9, Box: models.Rect{X: 100, Y: 50, W: 60, H: 140}},
	}}
	h := newHarness(cam, detector)
	h.orch.embedder = &fakeEmbedder{vec: []float32{0.1, 0.2}}
	h.orch.faceReady = true

	h.cycle(t)

	events := h.events.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Category != models.CategoryFaceUnknown {
		t.Fatalf("category = %q, want face_unknown", events[0].Category)
	}
	if events[0].IdentityID == "" {
		t.Fatal("unknown face event must carry the new identity id")
	}
	if len(h.identities.created) != 1 {
		t.Fatalf("expected 1 identity record, got %d", len(h.identities.created))
	}
	if len(h.index.enrolled) != 1 {
		t.Fatalf("expected 1 enrollment, got %d", len(h.index.enrolled))
	}
	if h.identities.created[0].IsKnown {
		t.Fatal("enrolled identity must start unknown")
	}
}

func TestIdentityFailureDegradesToPerson(t *testing.T) {
	cam := testCamera()
	cam.Detection.FaceRecognition = true
	detector := &fakeDetector{detections: []models.RawDetection{
		{ClassName: "person", Confidence: 0.9, Box: models.Rect{X: 100, Y: 50, W: 60, H: 140}},
	}}
	h := newHarness(cam, detector)
	h.orch.embedder = &fakeEmbedder{err: errors.New("embed service down")}
	h.orch.faceReady = true

	h.cycle(t)

	events := h.events.all()
	if len(events) != 1 {
		t.Fatalf("identity failure must not abort the event, got %d events", len(events))
	}
	if events[0].Category != models.CategoryPerson {
		t.Fatalf("category = %q, want person", events[0].Category)
	}
	if events[0].IdentityID != "" {
		t.Fatal("degraded event must not carry an identity id")
	}
}

func TestNoEventWhenNothingSurvivesFiltering(t *testing.T) {
	detector := &fakeDetector{detections: []models.RawDetection{
		{ClassName: "potted plant", Confidence: 0.95},
		{ClassName: "person", Confidence: 0.3},
	}}
	h := newHarness(testCamera(), detector)

	h.cycle(t)

	if got := len(h.events.all()); got != 0 {
		t.Fatalf("expected no events, got %d", got)
	}
}

func TestInferenceErrorSkipsCycle(t *testing.T) {
	detector := &fakeDetector{err: errors.New("inference backend unavailable")}
	h := newHarness(testCamera(), detector)

	h.cycle(t)

	if got := len(h.events.all()); got != 0 {
		t.Fatalf("expected no events after inference failure, got %d", got)
	}
}

func TestBridgeDetectionsFlowThroughPipeline(t *testing.T) {
	h := newHarness(testCamera(), &fakeDetector{})

	h.orch.HandleExternalDetections(context.Background(), &models.BridgeMessage{
		Type:     models.BridgeTypeDetection,
		CameraID: "cam1",
		JPEG:     []byte("jpeg-bytes"),
		Detections: []models.BridgeDetection{
			{ClassName: "truck", Confidence: 0.7, Box: models.Rect{X: 5, Y: 5, W: 100, H: 60}},
		},
	})

	events := h.events.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Category != models.CategoryVehicle {
		t.Fatalf("category = %q, want vehicle", events[0].Category)
	}
	if len(h.snapshots.raw) != 1 {
		t.Fatal("bridge event should persist the provided jpeg snapshot")
	}
}

func TestBridgeDetectionForUnknownCameraDiscarded(t *testing.T) {
	h := newHarness(testCamera(), &fakeDetector{})

	h.orch.HandleExternalDetections(context.Background(), &models.BridgeMessage{
		Type:     models.BridgeTypeDetection,
		CameraID: "ghost",
		Detections: []models.BridgeDetection{
			{ClassName: "person", Confidence: 0.9},
		},
	})

	if got := len(h.events.all()); got != 0 {
		t.Fatalf("expected no events for unknown camera, got %d", got)
	}
}

type eventSub func(data []byte) error

func (f eventSub) Send(data []byte) error { return f(data) }
