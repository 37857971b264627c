package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"visionpro-worker-go/internal/models"
)

// EventSource serves persisted events to the API.
type EventSource interface {
	RecentEvents(ctx context.Context, limit int) ([]*models.Event, error)
}

type EventHandler struct {
	events EventSource
}

func NewEventHandler(events EventSource) *EventHandler {
	return &EventHandler{events: events}
}

// ListRecent returns up to `limit` events, newest first.
func (h *EventHandler) ListRecent(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}

	events, err := h.events.RecentEvents(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load recent events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
