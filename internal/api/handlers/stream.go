package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"visionpro-worker-go/internal/models"
	"visionpro-worker-go/internal/stream"
)

// CameraDirectory is the read-only camera catalogue backing stream control.
type CameraDirectory interface {
	ListCameras(ctx context.Context) ([]models.Camera, error)
	GetCamera(ctx context.Context, cameraID string) (*models.Camera, error)
}

type StreamHandler struct {
	registry  *stream.Registry
	directory CameraDirectory
}

func NewStreamHandler(registry *stream.Registry, directory CameraDirectory) *StreamHandler {
	return &StreamHandler{registry: registry, directory: directory}
}

// StartStream starts supervision for one camera from the directory.
func (h *StreamHandler) StartStream(c *gin.Context) {
	cameraID := c.Param("camera_id")

	cam, err := h.directory.GetCamera(c.Request.Context(), cameraID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if !cam.Enabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "camera is disabled"})
		return
	}

	h.registry.StartStream(cam.ID, cam.RTSPURL, cam.FPS)
	log.Info().Str("camera_id", cam.ID).Msg("Stream start requested")
	c.JSON(http.StatusOK, gin.H{"message": "stream started", "camera_id": cam.ID})
}

// StopStream stops supervision for one camera.
func (h *StreamHandler) StopStream(c *gin.Context) {
	cameraID := c.Param("camera_id")
	h.registry.StopStream(cameraID)
	log.Info().Str("camera_id", cameraID).Msg("Stream stop requested")
	c.JSON(http.StatusOK, gin.H{"message": "stream stopped", "camera_id": cameraID})
}

// RestartStream stops then starts a camera, picking up directory changes.
func (h *StreamHandler) RestartStream(c *gin.Context) {
	cameraID := c.Param("camera_id")

	cam, err := h.directory.GetCamera(c.Request.Context(), cameraID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.registry.RestartStream(cam.ID, cam.RTSPURL, cam.FPS)
	log.Info().Str("camera_id", cam.ID).Msg("Stream restart requested")
	c.JSON(http.StatusOK, gin.H{"message": "stream restarted", "camera_id": cam.ID})
}

// GetStatus returns one stream's health snapshot.
func (h *StreamHandler) GetStatus(c *gin.Context) {
	cameraID := c.Param("camera_id")

	health, ok := h.registry.Status(cameraID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera is not streaming"})
		return
	}
	c.JSON(http.StatusOK, health)
}

// ListStatuses returns health snapshots for every active stream.
func (h *StreamHandler) ListStatuses(c *gin.Context) {
	statuses := h.registry.AllStatuses()
	c.JSON(http.StatusOK, gin.H{"streams": statuses, "count": len(statuses)})
}

// GetSnapshot serves the latest encoded frame for a camera.
func (h *StreamHandler) GetSnapshot(c *gin.Context) {
	cameraID := c.Param("camera_id")

	jpeg, ok := h.registry.Snapshot(cameraID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no frame available"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", jpeg)
}

// StartAll starts supervision for every enabled camera in the directory.
func (h *StreamHandler) StartAll(c *gin.Context) {
	cameras, err := h.directory.ListCameras(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list cameras")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	count := h.registry.StartAll(cameras)
	c.JSON(http.StatusOK, gin.H{"message": "streams started", "count": count})
}

// StopAll stops every active stream.
func (h *StreamHandler) StopAll(c *gin.Context) {
	h.registry.StopAll()
	c.JSON(http.StatusOK, gin.H{"message": "all streams stopped"})
}
