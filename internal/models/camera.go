package models

import "time"

// Camera is a read-only camera document from the camera directory.
// The worker never mutates cameras; CRUD lives in the external backend.
type Camera struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	RTSPURL   string          `json:"rtsp_url"`
	FPS       int             `json:"fps"`
	Enabled   bool            `json:"enabled"`
	Detection DetectionConfig `json:"detection_config"`
	CreatedAt time.Time       `json:"created_at,omitempty"`
}

// DetectionConfig controls per-camera detection behaviour.
type DetectionConfig struct {
	ObjectDetection     bool     `json:"object_detection"`
	DetectionClasses    []string `json:"detection_classes"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	FaceRecognition     bool     `json:"face_recognition"`
}

// WantsCategory reports whether cat is in the camera's enabled class set.
func (c DetectionConfig) WantsCategory(cat Category) bool {
	for _, cls := range c.DetectionClasses {
		if cls == string(cat) {
			return true
		}
	}
	return false
}

// StreamHealth is a point-in-time copy of a supervisor's counters.
type StreamHealth struct {
	CameraID       string    `json:"camera_id"`
	Connected      bool      `json:"connected"`
	FPSActual      float64   `json:"fps_actual"`
	FrameCount     int64     `json:"frame_count"`
	ErrorCount     int64     `json:"error_count"`
	ReconnectCount int64     `json:"reconnect_count"`
	LastFrameTime  time.Time `json:"last_frame_time"`
	LastError      string    `json:"last_error"`
	UptimeSeconds  float64   `json:"uptime_seconds"`
}
