package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	portssvc "github.com/payflowhq/escrow_backend/internal/core/ports/services"
)

// eventsHandler exposes the in-process event history for debugging and
// dashboards.
type eventsHandler struct {
	publisher portssvc.EventPublisherFacade
}

func registerEventRoutes(rg *gin.RouterGroup, publisher portssvc.EventPublisherFacade) {
	h := &eventsHandler{publisher: publisher}

	events := rg.Group("/events")
	{
		events.GET("/recent", h.recentEvents)
	}
}

const defaultRecentEventLimit = 50

func (h *eventsHandler) recentEvents(c *gin.Context) {
	limit := defaultRecentEventLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	c.JSON(http.StatusOK, gin.H{"events": h.publisher.RecentEvents(limit)})
}
