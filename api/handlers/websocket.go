package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/ptyhost/internal/model"
	"github.com/remote-agent-terminal/ptyhost/internal/ws"
)

// EventsHandler serves the output event stream over WebSocket.
type EventsHandler struct {
	wsHandler *ws.Handler
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(wsHandler *ws.Handler) *EventsHandler {
	return &EventsHandler{
		wsHandler: wsHandler,
	}
}

// Stream handles GET /api/events?topic=terminal_output%23<id>.
func (h *EventsHandler) Stream(c *gin.Context) {
	topic := c.Query("topic")
	if topic == "" {
		if id := c.Query("id"); id != "" {
			topic = model.OutputTopic(id)
		}
	}
	if !strings.HasPrefix(topic, model.TopicPrefix) || topic == model.TopicPrefix {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "topic must look like "+model.TopicPrefix+"<id>")
		return
	}

	if err := h.wsHandler.HandleConnection(c.Writer, c.Request, topic); err != nil {
		// The upgrader has already written the response.
		return
	}
}

// RegisterRoutes registers the event stream route on a Gin router group.
func (h *EventsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/events", h.Stream)
}
