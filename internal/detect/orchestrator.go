package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"visionpro-worker-go/internal/config"
	"visionpro-worker-go/internal/hub"
	"visionpro-worker-go/internal/metrics"
	"visionpro-worker-go/internal/models"
)

// fallbackSummary is used whenever the summarizer is absent or fails.
const fallbackSummary = "Event detected."

// facePadding grows the primary person box before the face crop.
const facePadding = 0.2

// Directory is the read-only camera catalogue the orchestrator polls.
type Directory interface {
	ListCameras(ctx context.Context) ([]models.Camera, error)
	GetCamera(ctx context.Context, cameraID string) (*models.Camera, error)
}

// FrameProvider exposes the latest frame and liveness per camera. Satisfied
// by stream.Registry.
type FrameProvider interface {
	Status(cameraID string) (models.StreamHealth, bool)
	RawFrame(cameraID string) (*models.RawFrame, bool)
}

// Detector is the object-detection capability.
type Detector interface {
	Load(ctx context.Context) error
	Predict(ctx context.Context, frame *models.RawFrame) ([]models.RawDetection, error)
}

// Embedder extracts a face embedding from a frame region.
type Embedder interface {
	Load(ctx context.Context) error
	Extract(ctx context.Context, frame *models.RawFrame, region models.Rect) ([]float32, error)
}

// IdentityIndex matches and enrolls embeddings in the vector index.
type IdentityIndex interface {
	Match(ctx context.Context, embedding []float32, threshold float64) (identityID string, score float64, found bool, err error)
	Enroll(ctx context.Context, identityID string, embedding []float32) (embeddingID string, err error)
}

// Summarizer produces a one-line natural-language description of an event.
type Summarizer interface {
	Summarize(ctx context.Context, ev *models.Event) (string, error)
}

// SnapshotWriter persists event snapshots to disk.
type SnapshotWriter interface {
	WriteAnnotated(frame *models.RawFrame, objects []models.DetectedObject, name string) (string, error)
	WriteJPEG(jpeg []byte, name string) (string, error)
}

// EventStore persists created events.
type EventStore interface {
	InsertEvent(ctx context.Context, ev *models.Event) error
}

// IdentityStore persists identity records.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, ident *models.Identity) error
	RecordAppearance(ctx context.Context, identityID string, seen time.Time) error
}

// Notifier dispatches event notifications without blocking the caller.
type Notifier interface {
	Dispatch(message, imagePath string)
}

// OrchestratorOptions carries the orchestrator's collaborators. Detector,
// Directory, Frames and Hub are required; everything else degrades to a
// no-op when nil.
type OrchestratorOptions struct {
	Directory  Directory
	Frames     FrameProvider
	Detector   Detector
	Embedder   Embedder
	Index      IdentityIndex
	Summarizer Summarizer
	Snapshots  SnapshotWriter
	Events     EventStore
	Identities IdentityStore
	Notifier   Notifier
	Hub        *hub.Hub
	Metrics    *metrics.Metrics
}

// Orchestrator runs the periodic detection loop: poll each eligible camera's
// latest frame, run inference off the polling path, debounce through the
// cooldown table and push created events through the persistence and fan-out
// pipeline. It also accepts pre-computed detections from the frame bridge.
type Orchestrator struct {
	directory  Directory
	frames     FrameProvider
	detector   Detector
	embedder   Embedder
	index      IdentityIndex
	summarizer Summarizer
	snapshots  SnapshotWriter
	events     EventStore
	identities IdentityStore
	notifier   Notifier
	bus        *hub.Hub
	met        *metrics.Metrics

	interval       time.Duration
	matchThreshold float64
	cooldowns      *CooldownTable
	sem            chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]bool
	inferWG    sync.WaitGroup

	runMu     sync.Mutex
	running   bool
	faceReady bool
	cancel    context.CancelFunc
	done      chan struct{}

	sleepFn func(ctx context.Context, d time.Duration) bool
	now     func() time.Time
}

func NewOrchestrator(cfg *config.Config, opts OrchestratorOptions) *Orchestrator {
	concurrency := cfg.InferenceConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		directory:      opts.Directory,
		frames:         opts.Frames,
		detector:       opts.Detector,
		embedder:       opts.Embedder,
		index:          opts.Index,
		summarizer:     opts.Summarizer,
		snapshots:      opts.Snapshots,
		events:         opts.Events,
		identities:     opts.Identities,
		notifier:       opts.Notifier,
		bus:            opts.Hub,
		met:            opts.Metrics,
		interval:       cfg.InferenceInterval,
		matchThreshold: cfg.FaceMatchThreshold,
		cooldowns:      NewCooldownTable(cfg.EventCooldown),
		sem:            make(chan struct{}, concurrency),
		inflight:       make(map[string]bool),
		sleepFn:        sleepCtx,
		now:            time.Now,
	}
}

// Start loads the detection capabilities and launches the polling loop.
// Detector load failure is fatal; embedder load failure only disables face
// recognition.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.running {
		return nil
	}

	if err := o.detector.Load(ctx); err != nil {
		return fmt.Errorf("load detector: %w", err)
	}
	if o.embedder != nil && o.index != nil {
		if err := o.embedder.Load(ctx); err != nil {
			log.Warn().Err(err).Msg("Face embedder unavailable, face recognition disabled")
		} else {
			o.faceReady = true
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})
	o.running = true
	go o.run(runCtx)

	log.Info().
		Dur("interval", o.interval).
		Bool("face_recognition", o.faceReady).
		Msg("Detection orchestrator started")
	return nil
}

// Stop cancels the polling loop and waits for in-flight inference to drain.
func (o *Orchestrator) Stop() {
	o.runMu.Lock()
	if !o.running {
		o.runMu.Unlock()
		return
	}
	o.running = false
	cancel, done := o.cancel, o.done
	o.runMu.Unlock()

	cancel()
	<-done
	o.inferWG.Wait()
	log.Info().Msg("Detection orchestrator stopped")
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.done)
	for {
		start := time.Now()
		if !o.safePoll(ctx) {
			if !o.sleepFn(ctx, 5*time.Second) {
				return
			}
			continue
		}
		wait := o.interval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		if !o.sleepFn(ctx, wait) {
			return
		}
	}
}

// safePoll confines a panicking cycle so one bad frame cannot take down the
// loop. Returns false when the cycle panicked.
func (o *Orchestrator) safePoll(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Detection cycle panicked")
			ok = false
		}
	}()
	o.pollOnce(ctx)
	return true
}

// pollOnce grabs the latest frame of every eligible camera and hands it to
// inference. Inference runs off this path so a slow camera never stalls the
// others.
func (o *Orchestrator) pollOnce(ctx context.Context) {
	cameras, err := o.directory.ListCameras(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list cameras for detection cycle")
		return
	}

	for _, cam := range cameras {
		if !cam.Enabled || !cam.Detection.ObjectDetection {
			continue
		}
		health, ok := o.frames.Status(cam.ID)
		if !ok || !health.Connected {
			continue
		}
		frame, ok := o.frames.RawFrame(cam.ID)
		if !ok {
			continue
		}
		o.startInference(ctx, cam, frame)
	}
}

// startInference runs detection for one camera on its own goroutine, bounded
// by the concurrency semaphore. A camera with inference already in flight is
// skipped for this cycle rather than queued.
func (o *Orchestrator) startInference(ctx context.Context, cam models.Camera, frame *models.RawFrame) {
	o.inflightMu.Lock()
	if o.inflight[cam.ID] {
		o.inflightMu.Unlock()
		return
	}
	o.inflight[cam.ID] = true
	o.inflightMu.Unlock()

	o.inferWG.Add(1)
	go func() {
		defer o.inferWG.Done()
		defer func() {
			o.inflightMu.Lock()
			delete(o.inflight, cam.ID)
			o.inflightMu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("camera_id", cam.ID).Msg("Inference panicked")
			}
		}()

		select {
		case o.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-o.sem }()

		detections, err := o.detector.Predict(ctx, frame)
		if o.met != nil {
			o.met.InferenceRuns.Inc()
		}
		if err != nil {
			if o.met != nil {
				o.met.InferenceErrors.Inc()
			}
			log.Warn().Err(err).Str("camera_id", cam.ID).Msg("Inference failed")
			return
		}
		o.evaluate(ctx, &cam, frame, detections, nil)
	}()
}

// HandleExternalDetections feeds pre-computed detections from the frame
// bridge into the same filtering and event pipeline as local inference.
// Messages for unknown cameras are discarded.
func (o *Orchestrator) HandleExternalDetections(ctx context.Context, msg *models.BridgeMessage) {
	cam, err := o.directory.GetCamera(ctx, msg.CameraID)
	if err != nil || cam == nil {
		log.Warn().Err(err).Str("camera_id", msg.CameraID).Msg("Bridge detection for unknown camera discarded")
		return
	}
	if !cam.Enabled || !cam.Detection.ObjectDetection {
		return
	}

	detections := make([]models.RawDetection, 0, len(msg.Detections))
	for _, d := range msg.Detections {
		detections = append(detections, models.RawDetection{
			ClassID:    d.ClassID,
			ClassName:  d.ClassName,
			Confidence: d.Confidence,
			Box:        d.Box,
			TrackID:    d.TrackID,
		})
	}
	o.evaluate(ctx, cam, nil, detections, msg.JPEG)
}

// primaryDetection is the highest-confidence detection that survived
// filtering; it determines the event's category and bounding box.
type primaryDetection struct {
	category   models.Category
	confidence float64
	box        models.Rect
}

// filterDetections keeps detections whose mapped category is enabled for the
// camera and whose confidence meets the camera threshold (inclusive).
func filterDetections(cam *models.Camera, detections []models.RawDetection) ([]models.DetectedObject, primaryDetection, bool) {
	var objects []models.DetectedObject
	var primary primaryDetection
	found := false

	for _, d := range detections {
		cat := MapClass(d.ClassName)
		if !cam.Detection.WantsCategory(cat) {
			continue
		}
		if d.Confidence < cam.Detection.ConfidenceThreshold {
			continue
		}
		objects = append(objects, models.DetectedObject{
			Class:      d.ClassName,
			Confidence: d.Confidence,
			Box:        d.Box,
		})
		if !found || d.Confidence > primary.confidence {
			primary = primaryDetection{category: cat, confidence: d.Confidence, box: d.Box}
			found = true
		}
	}
	return objects, primary, found
}

// evaluate applies the cooldown gate and, when the trigger passes, runs the
// optional identity sub-step and the event-creation pipeline. The gate runs
// before any side effect so a suppressed trigger leaves no trace beyond a
// counter.
func (o *Orchestrator) evaluate(ctx context.Context, cam *models.Camera, frame *models.RawFrame, detections []models.RawDetection, jpeg []byte) {
	objects, primary, found := filterDetections(cam, detections)
	if !found {
		return
	}

	if !o.cooldowns.Allow(cam.ID, string(primary.category)) {
		if o.met != nil {
			o.met.CooldownSuppressed.Inc()
		}
		log.Debug().
			Str("camera_id", cam.ID).
			Str("category", string(primary.category)).
			Msg("Trigger suppressed by cooldown")
		return
	}

	category := primary.category
	identityID := ""
	if category == models.CategoryPerson && cam.Detection.FaceRecognition && o.faceReady && frame != nil {
		category, identityID = o.resolveIdentity(ctx, cam, frame, primary)
	}

	o.createEvent(ctx, cam, category, identityID, primary, objects, frame, jpeg)
}

// resolveIdentity crops the padded primary box, extracts an embedding and
// matches it against the identity index. A match refines the category to
// face_known; a miss enrolls a new unknown identity. Any failure degrades to
// the plain person category.
func (o *Orchestrator) resolveIdentity(ctx context.Context, cam *models.Camera, frame *models.RawFrame, primary primaryDetection) (models.Category, string) {
	crop := primary.box.PadClamped(facePadding, frame.Width, frame.Height)
	if crop.Empty() {
		return models.CategoryPerson, ""
	}

	embedding, err := o.embedder.Extract(ctx, frame, crop)
	if err != nil || len(embedding) == 0 {
		log.Warn().Err(err).Str("camera_id", cam.ID).Msg("Face embedding failed")
		return models.CategoryPerson, ""
	}

	identityID, score, matched, err := o.index.Match(ctx, embedding, o.matchThreshold)
	if err != nil {
		log.Warn().Err(err).Str("camera_id", cam.ID).Msg("Face match failed")
		return models.CategoryPerson, ""
	}

	now := o.now()
	if matched {
		if o.identities != nil {
			if err := o.identities.RecordAppearance(ctx, identityID, now); err != nil {
				log.Warn().Err(err).Str("identity_id", identityID).Msg("Failed to record identity appearance")
			}
		}
		log.Debug().
			Str("identity_id", identityID).
			Float64("score", score).
			Msg("Face matched known identity")
		return models.CategoryFaceKnown, identityID
	}

	newID := uuid.New().String()
	embeddingID, err := o.index.Enroll(ctx, newID, embedding)
	if err != nil {
		log.Warn().Err(err).Str("camera_id", cam.ID).Msg("Face enrollment failed")
		return models.CategoryPerson, ""
	}
	if o.identities != nil {
		ident := &models.Identity{
			ID:               newID,
			IsKnown:          false,
			EmbeddingIDs:     []string{embeddingID},
			FirstSeen:        now,
			LastSeen:         now,
			TotalAppearances: 1,
		}
		if err := o.identities.CreateIdentity(ctx, ident); err != nil {
			log.Warn().Err(err).Str("identity_id", newID).Msg("Failed to persist new identity")
		}
	}
	return models.CategoryFaceUnknown, newID
}

// createEvent builds, persists and fans out an event. Snapshot, summary and
// persistence failures are logged but never abort the pipeline; fan-out to
// live subscribers always happens.
func (o *Orchestrator) createEvent(ctx context.Context, cam *models.Camera, category models.Category, identityID string, primary primaryDetection, objects []models.DetectedObject, frame *models.RawFrame, jpeg []byte) {
	now := o.now()

	snapshotPath := ""
	if o.snapshots != nil {
		name := fmt.Sprintf("%s_%s_%d.jpg", cam.ID, category, now.UnixMilli())
		var err error
		if frame != nil {
			snapshotPath, err = o.snapshots.WriteAnnotated(frame, objects, name)
		} else if len(jpeg) > 0 {
			snapshotPath, err = o.snapshots.WriteJPEG(jpeg, name)
		}
		if err != nil {
			log.Warn().Err(err).Str("camera_id", cam.ID).Msg("Snapshot write failed")
			snapshotPath = ""
		}
	}

	ev := &models.Event{
		ID:              uuid.New().String(),
		CameraID:        cam.ID,
		Category:        category,
		Confidence:      primary.confidence,
		Timestamp:       now,
		SnapshotPath:    snapshotPath,
		BoundingBox:     primary.box,
		Summary:         fallbackSummary,
		DetectedObjects: objects,
		IdentityID:      identityID,
		CreatedAt:       now,
	}

	if o.summarizer != nil {
		if summary, err := o.summarizer.Summarize(ctx, ev); err != nil {
			log.Warn().Err(err).Str("event_id", ev.ID).Msg("Event summary failed, using fallback")
		} else if summary != "" {
			ev.Summary = summary
		}
	}

	if o.events != nil {
		if err := o.events.InsertEvent(ctx, ev); err != nil {
			log.Error().Err(err).Str("event_id", ev.ID).Msg("Failed to persist event")
		}
	}

	if payload, err := json.Marshal(ev); err == nil && o.bus != nil {
		o.bus.Publish(hub.EventsChannel, payload)
	}
	if o.met != nil {
		o.met.EventsCreated.Inc()
	}

	if o.notifier != nil {
		name := cam.Name
		if name == "" {
			name = cam.ID
		}
		o.notifier.Dispatch(fmt.Sprintf("%s detected on %s", category, name), ev.SnapshotPath)
	}

	log.Info().
		Str("event_id", ev.ID).
		Str("camera_id", cam.ID).
		Str("category", string(category)).
		Float64("confidence", primary.confidence).
		Msg("Detection event created")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
