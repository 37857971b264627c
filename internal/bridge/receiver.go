package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"visionpro-worker-go/internal/hub"
	"visionpro-worker-go/internal/metrics"
	"visionpro-worker-go/internal/models"
)

// DetectionSink receives validated detection messages from the bridge.
// Satisfied by detect.Orchestrator.
type DetectionSink interface {
	HandleExternalDetections(ctx context.Context, msg *models.BridgeMessage)
}

// Receiver is the worker-side half of the frame bridge. Raw payloads from
// the transport land in a bounded queue via Ingest; a single dispatch
// goroutine decodes them and routes frames to the hub and detections to the
// sink. When the queue is full new payloads are dropped, never queued: for
// live frames staleness is worse than loss.
type Receiver struct {
	bus  *hub.Hub
	sink DetectionSink
	met  *metrics.Metrics

	queue        chan []byte
	drainTimeout time.Duration

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type ReceiverOptions struct {
	QueueSize    int
	DrainTimeout time.Duration
	Hub          *hub.Hub
	Sink         DetectionSink
	Metrics      *metrics.Metrics
}

func NewReceiver(opts ReceiverOptions) *Receiver {
	size := opts.QueueSize
	if size < 1 {
		size = 1
	}
	return &Receiver{
		bus:          opts.Hub,
		sink:         opts.Sink,
		met:          opts.Metrics,
		queue:        make(chan []byte, size),
		drainTimeout: opts.DrainTimeout,
	}
}

// Ingest enqueues one raw payload without blocking. Returns false when the
// payload was dropped because the queue is full.
func (r *Receiver) Ingest(data []byte) bool {
	select {
	case r.queue <- data:
		return true
	default:
		if r.met != nil {
			r.met.BridgeDropped.Inc()
		}
		return false
	}
}

// Start launches the dispatch goroutine. Idempotent.
func (r *Receiver) Start() {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go func() {
		defer close(r.done)
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-r.queue:
				r.dispatch(ctx, data)
			}
		}
	}()
	log.Info().Int("queue_size", cap(r.queue)).Msg("Bridge receiver started")
}

// Stop drains queued payloads for up to the drain timeout, then cancels the
// dispatch goroutine.
func (r *Receiver) Stop() {
	r.runMu.Lock()
	if !r.running {
		r.runMu.Unlock()
		return
	}
	r.running = false
	cancel, done := r.cancel, r.done
	r.runMu.Unlock()

	if r.drainTimeout > 0 {
		deadline := time.Now().Add(r.drainTimeout)
		for len(r.queue) > 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		if n := len(r.queue); n > 0 {
			log.Warn().Int("remaining", n).Msg("Bridge drain timed out")
		}
	}

	cancel()
	<-done
	log.Info().Msg("Bridge receiver stopped")
}

// dispatch decodes and routes one payload. Malformed payloads are counted
// and skipped; they never stop the loop.
func (r *Receiver) dispatch(ctx context.Context, data []byte) {
	var msg models.BridgeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		if r.met != nil {
			r.met.BridgeDecodeErrs.Inc()
		}
		log.Warn().Err(err).Msg("Bridge payload failed to decode")
		return
	}
	if err := msg.Validate(); err != nil {
		if r.met != nil {
			r.met.BridgeDecodeErrs.Inc()
		}
		log.Warn().Err(err).Str("camera_id", msg.CameraID).Msg("Bridge payload rejected")
		return
	}

	switch msg.Type {
	case models.BridgeTypeFrame:
		if r.bus != nil {
			r.bus.Publish(hub.CameraChannel(msg.CameraID), msg.JPEG)
		}
		if r.met != nil {
			r.met.BridgeFrames.Inc()
		}
	case models.BridgeTypeDetection:
		if r.sink != nil {
			r.sink.HandleExternalDetections(ctx, &msg)
		}
		if r.met != nil {
			r.met.BridgeDetections.Inc()
		}
	}
}
