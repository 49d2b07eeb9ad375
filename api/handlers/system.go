package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/ptyhost/internal/listing"
	"github.com/remote-agent-terminal/ptyhost/internal/logging"
	"github.com/remote-agent-terminal/ptyhost/internal/model"
)

// AuditLog reads back the session lifecycle audit trail.
type AuditLog interface {
	ListBySession(ctx context.Context, sessionID string) ([]*model.SessionEvent, error)
	Recent(ctx context.Context, limit int) ([]*model.SessionEvent, error)
}

// SystemHandler serves health, log, listing and audit endpoints.
type SystemHandler struct {
	logFile string
	fetcher listing.Fetcher
	audit   AuditLog
}

// NewSystemHandler creates a new SystemHandler. audit may be nil when the
// audit trail is disabled.
func NewSystemHandler(logFile string, fetcher listing.Fetcher, audit AuditLog) *SystemHandler {
	return &SystemHandler{
		logFile: logFile,
		fetcher: fetcher,
		audit:   audit,
	}
}

// Health handles GET /health.
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Log handles GET /api/log and returns the tail of the server log file.
func (h *SystemHandler) Log(c *gin.Context) {
	lines, err := strconv.Atoi(c.DefaultQuery("lines", "500"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "lines must be a number")
		return
	}

	tail, err := logging.ReadTail(h.logFile, lines)
	if err != nil {
		if errors.Is(err, logging.ErrNoLogFile) {
			sendError(c, http.StatusNotFound, "LOG_NOT_CONFIGURED", err.Error())
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	var b strings.Builder
	for _, line := range tail {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	c.String(http.StatusOK, b.String())
}

// Listing handles GET /api/listing?url=...
func (h *SystemHandler) Listing(c *gin.Context) {
	pageURL := c.Query("url")
	if pageURL == "" {
		c.JSON(http.StatusBadRequest, model.ListingResult{Error: "url is required"})
		return
	}
	c.JSON(http.StatusOK, listing.Result(c.Request.Context(), h.fetcher, pageURL))
}

// Audit handles GET /api/audit?limit=N.
func (h *SystemHandler) Audit(c *gin.Context) {
	if h.audit == nil {
		sendError(c, http.StatusNotFound, "AUDIT_DISABLED", "audit trail is disabled")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a number")
		return
	}

	events, err := h.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read audit trail: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, nonNil(events))
}

// SessionAudit handles GET /api/sessions/:id/events.
func (h *SystemHandler) SessionAudit(c *gin.Context) {
	if h.audit == nil {
		sendError(c, http.StatusNotFound, "AUDIT_DISABLED", "audit trail is disabled")
		return
	}

	events, err := h.audit.ListBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read audit trail: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, nonNil(events))
}

func nonNil(events []*model.SessionEvent) []*model.SessionEvent {
	if events == nil {
		return []*model.SessionEvent{}
	}
	return events
}

// RegisterRoutes registers the API routes. Health is registered separately
// on the root router.
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/log", h.Log)
	rg.GET("/listing", h.Listing)
	rg.GET("/audit", h.Audit)
	rg.GET("/sessions/:id/events", h.SessionAudit)
}
