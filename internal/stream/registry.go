package stream

import (
	"sync"

	"github.com/rs/zerolog/log"

	"visionpro-worker-go/internal/models"
)

// Registry owns the camera-id → supervisor map and guarantees at most one
// supervisor per camera. Constructed once at startup and passed to whatever
// needs stream access; there is no package-level instance.
type Registry struct {
	opts SupervisorOptions

	mu      sync.Mutex
	streams map[string]*Supervisor
}

func NewRegistry(opts SupervisorOptions) *Registry {
	return &Registry{
		opts:    opts,
		streams: make(map[string]*Supervisor),
	}
}

// StartStream starts supervision for a camera. If the camera is already
// supervised the existing supervisor is returned and nothing is restarted.
func (r *Registry) StartStream(cameraID, address string, fps int) *Supervisor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sup, ok := r.streams[cameraID]; ok {
		return sup
	}

	sup := NewSupervisor(cameraID, address, fps, r.opts)
	sup.Start()
	r.streams[cameraID] = sup

	if r.opts.Metrics != nil {
		r.opts.Metrics.ActiveStreams.Set(float64(len(r.streams)))
	}
	return sup
}

// StopStream stops and removes a camera's supervisor. No-op when absent.
func (r *Registry) StopStream(cameraID string) {
	r.mu.Lock()
	sup, ok := r.streams[cameraID]
	if ok {
		delete(r.streams, cameraID)
		if r.opts.Metrics != nil {
			r.opts.Metrics.ActiveStreams.Set(float64(len(r.streams)))
		}
	}
	r.mu.Unlock()

	if ok {
		sup.Stop()
	}
}

// RestartStream stops then starts a camera, picking up new configuration.
func (r *Registry) RestartStream(cameraID, address string, fps int) *Supervisor {
	r.StopStream(cameraID)
	return r.StartStream(cameraID, address, fps)
}

// StartAll starts supervisors for every enabled camera in the list and
// returns how many were started.
func (r *Registry) StartAll(cameras []models.Camera) int {
	count := 0
	for _, cam := range cameras {
		if !cam.Enabled {
			continue
		}
		r.StartStream(cam.ID, cam.RTSPURL, cam.FPS)
		count++
	}
	log.Info().Int("count", count).Msg("Camera streams started")
	return count
}

// StopAll stops every supervisor, continuing past individual failures.
func (r *Registry) StopAll() {
	r.mu.Lock()
	sups := make([]*Supervisor, 0, len(r.streams))
	for id, sup := range r.streams {
		sups = append(sups, sup)
		delete(r.streams, id)
	}
	if r.opts.Metrics != nil {
		r.opts.Metrics.ActiveStreams.Set(0)
	}
	r.mu.Unlock()

	for _, sup := range sups {
		sup.Stop()
	}
	log.Info().Msg("All camera streams stopped")
}

// IsStreaming reports whether a camera has an active supervisor.
func (r *Registry) IsStreaming(cameraID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.streams[cameraID]
	return ok
}

// Status returns the health snapshot for one camera.
func (r *Registry) Status(cameraID string) (models.StreamHealth, bool) {
	r.mu.Lock()
	sup, ok := r.streams[cameraID]
	r.mu.Unlock()

	if !ok {
		return models.StreamHealth{}, false
	}
	return sup.Health(), true
}

// AllStatuses returns health snapshots for every active stream.
func (r *Registry) AllStatuses() []models.StreamHealth {
	r.mu.Lock()
	sups := make([]*Supervisor, 0, len(r.streams))
	for _, sup := range r.streams {
		sups = append(sups, sup)
	}
	r.mu.Unlock()

	statuses := make([]models.StreamHealth, 0, len(sups))
	for _, sup := range sups {
		statuses = append(statuses, sup.Health())
	}
	return statuses
}

// Snapshot returns the latest encoded frame for a camera.
func (r *Registry) Snapshot(cameraID string) ([]byte, bool) {
	r.mu.Lock()
	sup, ok := r.streams[cameraID]
	r.mu.Unlock()

	if !ok {
		return nil, false
	}
	return sup.Snapshot()
}

// RawFrame returns the latest raw frame for a camera.
func (r *Registry) RawFrame(cameraID string) (*models.RawFrame, bool) {
	r.mu.Lock()
	sup, ok := r.streams[cameraID]
	r.mu.Unlock()

	if !ok {
		return nil, false
	}
	return sup.RawFrame()
}
