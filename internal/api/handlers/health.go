package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	workerID string
	version  string
}

func NewHealthHandler(workerID, version string) *HealthHandler {
	return &HealthHandler{workerID: workerID, version: version}
}

func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   "visionpro-worker",
		"worker_id": h.workerID,
		"version":   h.version,
	})
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"worker_id": h.workerID,
		"timestamp": time.Now().UTC(),
	})
}
