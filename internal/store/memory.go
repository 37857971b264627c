package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"visionpro-worker-go/internal/models"
)

// Memory is an in-process implementation of the same surface as Redis.
// Used by tests and by development setups without a Redis instance.
type Memory struct {
	mu         sync.RWMutex
	cameras    map[string]models.Camera
	events     map[string]*models.Event
	recent     []string
	identities map[string]*models.Identity
}

func NewMemory() *Memory {
	return &Memory{
		cameras:    make(map[string]models.Camera),
		events:     make(map[string]*models.Event),
		identities: make(map[string]*models.Identity),
	}
}

// PutCamera seeds a camera document.
func (m *Memory) PutCamera(cam models.Camera) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cameras[cam.ID] = cam
}

func (m *Memory) ListCameras(ctx context.Context) ([]models.Camera, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Camera, 0, len(m.cameras))
	for _, cam := range m.cameras {
		out = append(out, cam)
	}
	return out, nil
}

func (m *Memory) GetCamera(ctx context.Context, cameraID string) (*models.Camera, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cam, ok := m.cameras[cameraID]
	if !ok {
		return nil, fmt.Errorf("camera %s not found", cameraID)
	}
	c := cam
	return &c, nil
}

func (m *Memory) InsertEvent(ctx context.Context, ev *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *ev
	m.events[ev.ID] = &copied
	m.recent = append([]string{ev.ID}, m.recent...)
	if len(m.recent) > recentKeep {
		m.recent = m.recent[:recentKeep]
	}
	return nil
}

func (m *Memory) RecentEvents(ctx context.Context, limit int) ([]*models.Event, error) {
	if limit < 1 {
		limit = 1
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Event, 0, limit)
	for _, id := range m.recent {
		if len(out) == limit {
			break
		}
		if ev, ok := m.events[id]; ok {
			copied := *ev
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *Memory) CreateIdentity(ctx context.Context, ident *models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *ident
	m.identities[ident.ID] = &copied
	return nil
}

func (m *Memory) GetIdentity(ctx context.Context, identityID string) (*models.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ident, ok := m.identities[identityID]
	if !ok {
		return nil, fmt.Errorf("identity %s not found", identityID)
	}
	copied := *ident
	return &copied, nil
}

func (m *Memory) RecordAppearance(ctx context.Context, identityID string, seen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ident, ok := m.identities[identityID]
	if !ok {
		return fmt.Errorf("identity %s not found", identityID)
	}
	ident.LastSeen = seen
	ident.TotalAppearances++
	return nil
}
