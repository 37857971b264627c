package models

import "time"

// Category is the internal event taxonomy raw detector labels map into.
type Category string

const (
	CategoryPerson      Category = "person"
	CategoryVehicle     Category = "vehicle"
	CategoryAnimal      Category = "animal"
	CategoryCustom      Category = "custom"
	CategoryFaceKnown   Category = "face_known"
	CategoryFaceUnknown Category = "face_unknown"
)

// RawDetection is one box as returned by the detector capability.
type RawDetection struct {
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	Box        Rect    `json:"bbox"`
	TrackID    int64   `json:"track_id,omitempty"`
}

// DetectedObject is a detection that survived per-camera filtering.
type DetectedObject struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Box        Rect    `json:"bbox"`
}

// Event is the persisted, fanned-out detection event record.
type Event struct {
	ID              string           `json:"id"`
	CameraID        string           `json:"camera_id"`
	Category        Category         `json:"event_type"`
	Confidence      float64          `json:"confidence"`
	Timestamp       time.Time        `json:"timestamp"`
	SnapshotPath    string           `json:"snapshot_path"`
	BoundingBox     Rect             `json:"bounding_box"`
	Summary         string           `json:"ai_summary"`
	DetectedObjects []DetectedObject `json:"detected_objects"`
	IdentityID      string           `json:"face_id,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Identity is a face/identity record owned by the event pipeline.
type Identity struct {
	ID               string    `json:"id"`
	Name             string    `json:"name,omitempty"`
	IsKnown          bool      `json:"is_known"`
	EmbeddingIDs     []string  `json:"embedding_ids"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	TotalAppearances int64     `json:"total_appearances"`
}
