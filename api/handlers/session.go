// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/ptyhost/internal/model"
	"github.com/remote-agent-terminal/ptyhost/internal/session"
)

// SessionHandler handles HTTP requests for session management.
type SessionHandler struct {
	table *session.Table
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(table *session.Table) *SessionHandler {
	return &SessionHandler{
		table: table,
	}
}

// CreateSessionResponse is the result of a create call.
type CreateSessionResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RemoveSessionResponse is the result of a remove call.
type RemoveSessionResponse struct {
	Success bool `json:"success"`
}

// BufferResponse carries a session's retained output.
type BufferResponse struct {
	ID        string `json:"id"`
	Output    string `json:"output"`
	Limit     int    `json:"limit"`
	Discarded int64  `json:"discarded"`
}

// InputRequest is the body of an input call.
type InputRequest struct {
	Data string `json:"data"`
}

// ResizeRequest is the body of a resize call.
type ResizeRequest struct {
	Rows uint16 `json:"rows" binding:"required,min=1"`
	Cols uint16 `json:"cols" binding:"required,min=1"`
}

// TitleRequest is the body of a set title call.
type TitleRequest struct {
	Title string `json:"title"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// notFound reports an unknown session id.
func notFound(c *gin.Context, id string) {
	sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", model.ErrSessionNotFound.Error()+": "+id)
}

// Create handles POST /api/sessions. An empty body creates a session with a
// generated id and the default shell.
func (h *SessionHandler) Create(c *gin.Context) {
	var req model.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, CreateSessionResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	s, created, err := h.table.Create(c.Request.Context(), session.CreateRequest{
		ID:    req.ID,
		Shell: req.Shell,
		Rows:  req.Rows,
		Cols:  req.Cols,
	})
	if err != nil {
		c.JSON(createStatus(err), CreateSessionResponse{ID: req.ID, Error: err.Error()})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, CreateSessionResponse{Success: true, ID: s.ID})
}

func createStatus(err error) int {
	switch {
	case errors.Is(err, model.ErrSessionLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrTableClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// List handles GET /api/sessions.
func (h *SessionHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.table.List())
}

// Get handles GET /api/sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	id := c.Param("id")
	snap, ok := h.table.Snapshot(id)
	if !ok {
		notFound(c, id)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Delete handles DELETE /api/sessions/:id.
func (h *SessionHandler) Delete(c *gin.Context) {
	c.JSON(http.StatusOK, RemoveSessionResponse{Success: h.table.Remove(c.Param("id"))})
}

// Input handles POST /api/sessions/:id/input.
func (h *SessionHandler) Input(c *gin.Context) {
	var req InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	if req.Data != "" {
		h.table.Write(c.Param("id"), []byte(req.Data))
	}
	c.Status(http.StatusNoContent)
}

// Resize handles POST /api/sessions/:id/resize.
func (h *SessionHandler) Resize(c *gin.Context) {
	var req ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	h.table.Resize(c.Param("id"), req.Rows, req.Cols)
	c.Status(http.StatusNoContent)
}

// Buffer handles GET /api/sessions/:id/buffer.
func (h *SessionHandler) Buffer(c *gin.Context) {
	id := c.Param("id")
	out, ok := h.table.Buffer(id)
	if !ok {
		notFound(c, id)
		return
	}
	c.JSON(http.StatusOK, BufferResponse{
		ID:        id,
		Output:    out.Text,
		Limit:     out.Limit,
		Discarded: out.Discarded,
	})
}

// PushBuffer handles POST /api/sessions/:id/buffer/push.
func (h *SessionHandler) PushBuffer(c *gin.Context) {
	h.table.PushBuffer(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// Subscribe handles POST /api/sessions/:id/subscribe.
func (h *SessionHandler) Subscribe(c *gin.Context) {
	h.table.Subscribe(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// Unsubscribe handles POST /api/sessions/:id/unsubscribe.
func (h *SessionHandler) Unsubscribe(c *gin.Context) {
	h.table.Unsubscribe(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// SetTitle handles PUT /api/sessions/:id/title.
func (h *SessionHandler) SetTitle(c *gin.Context) {
	var req TitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	h.table.SetTitle(c.Param("id"), req.Title)
	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.POST("", h.Create)
		sessions.GET("", h.List)
		sessions.GET("/:id", h.Get)
		sessions.DELETE("/:id", h.Delete)
		sessions.POST("/:id/input", h.Input)
		sessions.POST("/:id/resize", h.Resize)
		sessions.GET("/:id/buffer", h.Buffer)
		sessions.POST("/:id/buffer/push", h.PushBuffer)
		sessions.POST("/:id/subscribe", h.Subscribe)
		sessions.POST("/:id/unsubscribe", h.Unsubscribe)
		sessions.PUT("/:id/title", h.SetTitle)
	}
}
