package models

import "errors"

// Bridge message kinds. The external GPU pipeline pushes both over a lossy,
// at-most-once transport; staleness is worse than loss for live frames.
const (
	BridgeTypeFrame     = "frame"
	BridgeTypeDetection = "detection"
)

var (
	ErrBridgeMissingType   = errors.New("bridge message missing type")
	ErrBridgeMissingCamera = errors.New("bridge message missing camera_id")
	ErrBridgeUnknownType   = errors.New("bridge message has unknown type")
	ErrBridgeEmptyFrame    = errors.New("bridge frame message has no image payload")
)

// BridgeMessage is the tagged wire schema between the two bridge halves.
// Unknown extra fields are tolerated (forward compatibility); messages
// missing required fields are rejected per message, never fatally.
type BridgeMessage struct {
	Type       string            `json:"type"`
	CameraID   string            `json:"camera_id"`
	Timestamp  float64           `json:"timestamp"`
	JPEG       []byte            `json:"jpeg,omitempty"`
	Detections []BridgeDetection `json:"detections,omitempty"`
}

// BridgeDetection mirrors RawDetection plus the producer's category mapping.
type BridgeDetection struct {
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence"`
	Box        Rect    `json:"bbox"`
	TrackID    int64   `json:"track_id,omitempty"`
}

// Validate enforces the required fields for each message kind.
func (m *BridgeMessage) Validate() error {
	if m.Type == "" {
		return ErrBridgeMissingType
	}
	if m.CameraID == "" {
		return ErrBridgeMissingCamera
	}
	switch m.Type {
	case BridgeTypeFrame:
		if len(m.JPEG) == 0 {
			return ErrBridgeEmptyFrame
		}
	case BridgeTypeDetection:
		// Empty detection lists are legal; they are skipped downstream.
	default:
		return ErrBridgeUnknownType
	}
	return nil
}
