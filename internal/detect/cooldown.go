package detect

import (
	"sync"
	"time"
)

// CooldownTable debounces event creation per (camera, trigger key). The key
// cardinality is bounded by the class taxonomy times the camera count; the
// table never grows over time.
type CooldownTable struct {
	mu        sync.Mutex
	window    time.Duration
	lastFired map[string]time.Time

	now func() time.Time
}

func NewCooldownTable(window time.Duration) *CooldownTable {
	return &CooldownTable{
		window:    window,
		lastFired: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Allow reports whether a trigger for (cameraID, key) is outside the
// cooldown window and, if so, records the new trigger time. Triggers exactly
// at the window boundary are allowed.
func (c *CooldownTable) Allow(cameraID, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	k := cameraID + "|" + key
	if last, ok := c.lastFired[k]; ok && now.Sub(last) < c.window {
		return false
	}
	c.lastFired[k] = now
	return true
}
