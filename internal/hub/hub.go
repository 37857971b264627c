// Package hub implements the channel-keyed broadcast fanout used for live
// frame delivery and structured event streaming. Supervisors and the
// detection pipeline publish; viewer connections subscribe.
package hub

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Subscriber receives published payloads. A Send error marks the subscriber
// dead; it is pruned after the publish pass.
type Subscriber interface {
	Send(data []byte) error
}

// Hub fans published messages out to every subscriber of a channel.
// Channels are created on first subscribe and removed on last unsubscribe.
type Hub struct {
	mu       sync.Mutex
	channels map[string]map[Handle]Subscriber
	nextID   uint64
}

// Handle identifies one subscription within a channel.
type Handle uint64

func New() *Hub {
	return &Hub{
		channels: make(map[string]map[Handle]Subscriber),
	}
}

// Subscribe registers sub on channel and returns its handle.
func (h *Hub) Subscribe(channel string, sub Subscriber) Handle {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[Handle]Subscriber)
		h.channels[channel] = subs
	}

	h.nextID++
	handle := Handle(h.nextID)
	subs[handle] = sub

	log.Debug().Str("channel", channel).Int("subscribers", len(subs)).Msg("Subscriber added")
	return handle
}

// Unsubscribe removes a subscriber; the last removal deletes the channel.
func (h *Hub) Unsubscribe(channel string, handle Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(channel, handle)
}

func (h *Hub) removeLocked(channel string, handle Handle) {
	subs, ok := h.channels[channel]
	if !ok {
		return
	}
	delete(subs, handle)
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
}

// Publish delivers data to every current subscriber of channel. Delivery to
// one subscriber never blocks or fails delivery to the others; subscribers
// whose Send errors are pruned after the pass. Publishing to a channel with
// no subscribers is a no-op.
func (h *Hub) Publish(channel string, data []byte) {
	h.mu.Lock()
	subs := h.channels[channel]
	snapshot := make(map[Handle]Subscriber, len(subs))
	for handle, sub := range subs {
		snapshot[handle] = sub
	}
	h.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	var dead []Handle
	for handle, sub := range snapshot {
		if err := sub.Send(data); err != nil {
			dead = append(dead, handle)
		}
	}

	if len(dead) > 0 {
		h.mu.Lock()
		for _, handle := range dead {
			h.removeLocked(channel, handle)
		}
		h.mu.Unlock()
		log.Debug().Str("channel", channel).Int("pruned", len(dead)).Msg("Pruned dead subscribers")
	}
}

// Channels returns the names of all channels with at least one subscriber.
func (h *Hub) Channels() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(h.channels))
	for name := range h.channels {
		names = append(names, name)
	}
	return names
}

// SubscriberCount returns the number of subscribers on channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels[channel])
}

// CameraChannel is the channel name frames of one camera are published on.
func CameraChannel(cameraID string) string {
	return "camera:" + cameraID
}

// EventsChannel carries structured detection events as JSON.
const EventsChannel = "events"
