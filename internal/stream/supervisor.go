package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"visionpro-worker-go/internal/hub"
	"visionpro-worker-go/internal/metrics"
	"visionpro-worker-go/internal/models"
)

// State of a supervisor's connect/read loop.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// latestFrame is the single-slot frame cache. Replaced atomically as a whole
// so readers always see a complete raw+encoded pair or nothing.
type latestFrame struct {
	raw  *models.RawFrame
	jpeg []byte
}

// Supervisor owns one camera's capture loop: connect, read, encode, publish,
// with exponential reconnect backoff and health tracking. At most one
// supervisor runs per camera id; the Registry enforces that.
type Supervisor struct {
	cameraID  string
	address   string
	targetFPS int

	source  FrameSource
	encoder Encoder
	bus     *hub.Hub
	met     *metrics.Metrics

	jpegQuality    int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	state  atomic.Int32
	latest atomic.Pointer[latestFrame]

	healthMu  sync.Mutex
	health    models.StreamHealth
	startTime time.Time

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// sleepFn is swapped in tests to observe backoff without real delays.
	sleepFn func(ctx context.Context, d time.Duration) bool
}

// SupervisorOptions carries the shared collaborators a supervisor needs.
type SupervisorOptions struct {
	Source         FrameSource
	Encoder        Encoder
	Hub            *hub.Hub
	Metrics        *metrics.Metrics
	JPEGQuality    int
	MaxFPS         int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewSupervisor(cameraID, address string, targetFPS int, opts SupervisorOptions) *Supervisor {
	if targetFPS <= 0 {
		targetFPS = 15
	}
	if opts.MaxFPS > 0 && targetFPS > opts.MaxFPS {
		targetFPS = opts.MaxFPS
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 2 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 80
	}

	s := &Supervisor{
		cameraID:       cameraID,
		address:        address,
		targetFPS:      targetFPS,
		source:         opts.Source,
		encoder:        opts.Encoder,
		bus:            opts.Hub,
		met:            opts.Metrics,
		jpegQuality:    opts.JPEGQuality,
		initialBackoff: opts.InitialBackoff,
		maxBackoff:     opts.MaxBackoff,
		health:         models.StreamHealth{CameraID: cameraID},
		sleepFn:        sleepCtx,
	}
	s.state.Store(int32(StateIdle))
	return s
}

// Start launches the capture loop. Calling Start on a running supervisor is
// a no-op.
func (s *Supervisor) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.startTime = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)

	log.Info().Str("camera_id", s.cameraID).Str("address", s.address).Int("fps", s.targetFPS).Msg("Stream supervisor started")
}

// Stop cancels the loop and waits for it to observe cancellation. Bounded by
// one read/encode cycle; the frame source handle is released on every exit
// path.
func (s *Supervisor) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.runMu.Unlock()

	cancel()
	<-done

	s.latest.Store(nil)
	s.state.Store(int32(StateStopped))

	s.healthMu.Lock()
	s.health.Connected = false
	s.healthMu.Unlock()

	log.Info().Str("camera_id", s.cameraID).Msg("Stream supervisor stopped")
}

// State returns the loop's current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Snapshot returns the latest encoded frame, or false if none exists.
func (s *Supervisor) Snapshot() ([]byte, bool) {
	lf := s.latest.Load()
	if lf == nil {
		return nil, false
	}
	return lf.jpeg, true
}

// RawFrame returns the latest raw frame, or false if none exists.
func (s *Supervisor) RawFrame() (*models.RawFrame, bool) {
	lf := s.latest.Load()
	if lf == nil {
		return nil, false
	}
	return lf.raw, true
}

// Health returns an immutable copy of the stream's counters.
func (s *Supervisor) Health() models.StreamHealth {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	h := s.health
	if !s.startTime.IsZero() {
		h.UptimeSeconds = time.Since(s.startTime).Seconds()
	}
	return h
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("camera_id", s.cameraID).Msg("Stream loop panic recovered")
		}
	}()

	backoff := s.initialBackoff

	for ctx.Err() == nil {
		s.state.Store(int32(StateConnecting))

		reader, err := s.source.Open(ctx, s.address)
		if err != nil {
			s.recordError("connect failed: " + err.Error())
			if s.met != nil {
				s.met.ReadErrors.Inc()
				s.met.Reconnects.Inc()
			}
			log.Warn().Str("camera_id", s.cameraID).Err(err).Dur("backoff", backoff).Msg("Cannot open stream, retrying")

			if !s.sleepFn(ctx, backoff) {
				break
			}
			backoff = nextBackoff(backoff, s.maxBackoff)
			continue
		}

		// Connected: backoff restarts from the initial value.
		backoff = s.initialBackoff
		s.markConnected()
		log.Info().Str("camera_id", s.cameraID).Msg("Stream connected")

		s.readLoop(ctx, reader)

		if err := reader.Close(); err != nil {
			log.Debug().Str("camera_id", s.cameraID).Err(err).Msg("Frame reader close error")
		}
		s.markDisconnected()
	}
}

func (s *Supervisor) readLoop(ctx context.Context, reader FrameReader) {
	s.state.Store(int32(StateStreaming))

	interval := time.Second / time.Duration(s.targetFPS)
	fpsCounter := 0
	fpsStart := time.Now()

	for ctx.Err() == nil {
		loopStart := time.Now()

		frame, err := reader.Read()
		if err != nil {
			s.recordError("frame read failed: " + err.Error())
			if s.met != nil {
				s.met.ReadErrors.Inc()
				s.met.Reconnects.Inc()
			}
			log.Warn().Str("camera_id", s.cameraID).Err(err).Msg("Frame read failed, reconnecting")
			return
		}
		if s.met != nil {
			s.met.FramesRead.Inc()
		}
		frame.CameraID = s.cameraID

		jpeg, err := s.encoder.EncodeJPEG(frame, s.jpegQuality)
		if err != nil {
			s.recordError("encode failed: " + err.Error())
			continue
		}

		s.latest.Store(&latestFrame{raw: frame, jpeg: jpeg})
		s.bus.Publish(hub.CameraChannel(s.cameraID), jpeg)
		if s.met != nil {
			s.met.FramesPublished.Inc()
		}

		fpsCounter++
		s.healthMu.Lock()
		s.health.FrameCount++
		s.health.LastFrameTime = time.Now()
		if elapsed := time.Since(fpsStart); elapsed >= time.Second {
			s.health.FPSActual = float64(fpsCounter) / elapsed.Seconds()
			fpsCounter = 0
			fpsStart = time.Now()
		}
		s.healthMu.Unlock()

		// Throttle to the target rate. If the cycle overran, proceed
		// immediately; there is no catch-up burst.
		if remaining := interval - time.Since(loopStart); remaining > 0 {
			if !s.sleepFn(ctx, remaining) {
				return
			}
		}
	}
}

func (s *Supervisor) markConnected() {
	s.healthMu.Lock()
	s.health.Connected = true
	s.health.LastError = ""
	s.healthMu.Unlock()
}

func (s *Supervisor) markDisconnected() {
	s.healthMu.Lock()
	s.health.Connected = false
	s.healthMu.Unlock()
}

func (s *Supervisor) recordError(msg string) {
	s.healthMu.Lock()
	s.health.ErrorCount++
	s.health.ReconnectCount++
	s.health.LastError = msg
	s.health.Connected = false
	s.healthMu.Unlock()
}

// nextBackoff doubles the delay up to the cap.
func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false on cancel.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
