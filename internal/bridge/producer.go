package bridge

import (
	"encoding/json"
	"time"

	"visionpro-worker-go/internal/models"
)

// Publisher is the outbound transport for bridge messages. Satisfied by
// the messaging service; publishes are fire-and-forget.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Producer is the sending half of the frame bridge: it pushes local frames
// and detections to another process over the at-most-once transport. Send
// failures are returned to the caller but carry no retry semantics.
type Producer struct {
	pub              Publisher
	frameSubject     string
	detectionSubject string

	now func() time.Time
}

func NewProducer(pub Publisher, frameSubject, detectionSubject string) *Producer {
	return &Producer{
		pub:              pub,
		frameSubject:     frameSubject,
		detectionSubject: detectionSubject,
		now:              time.Now,
	}
}

// PublishFrame sends one encoded frame tagged with its camera.
func (p *Producer) PublishFrame(cameraID string, jpeg []byte) error {
	return p.send(p.frameSubject, &models.BridgeMessage{
		Type:      models.BridgeTypeFrame,
		CameraID:  cameraID,
		Timestamp: p.timestamp(),
		JPEG:      jpeg,
	})
}

// PublishDetections sends one detection batch for a camera. The optional
// jpeg travels with the batch so the receiver can persist a snapshot.
func (p *Producer) PublishDetections(cameraID string, detections []models.BridgeDetection, jpeg []byte) error {
	return p.send(p.detectionSubject, &models.BridgeMessage{
		Type:       models.BridgeTypeDetection,
		CameraID:   cameraID,
		Timestamp:  p.timestamp(),
		JPEG:       jpeg,
		Detections: detections,
	})
}

func (p *Producer) send(subject string, msg *models.BridgeMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.pub.Publish(subject, data)
}

func (p *Producer) timestamp() float64 {
	return float64(p.now().UnixNano()) / float64(time.Second)
}
