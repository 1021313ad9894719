// Package http exposes the call coordinator over a small control API. It is
// the surface a local client or supervisor drives the daemon through.
package http

import (
	"net/http"

	"safespace/internal/core/domain"
	"safespace/internal/core/ports"

	"github.com/gin-gonic/gin"
)

type CallHandler struct {
	calls       ports.CallService
	diagnostics ports.DiagnosticsService
	registry    ports.ConnectionRegistry
}

func NewCallHandler(
	calls ports.CallService,
	diagnostics ports.DiagnosticsService,
	registry ports.ConnectionRegistry,
) *CallHandler {
	return &CallHandler{
		calls:       calls,
		diagnostics: diagnostics,
		registry:    registry,
	}
}

func (h *CallHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.POST("/call/start", h.StartCall)
		api.POST("/call/accept", h.AcceptCall)
		api.POST("/call/reject", h.RejectCall)
		api.POST("/call/end", h.EndCall)
		api.POST("/call/mute", h.ToggleMute)
		api.POST("/call/video", h.ToggleVideo)
		api.POST("/call/screen-share/start", h.StartScreenShare)
		api.POST("/call/screen-share/stop", h.StopScreenShare)
		api.DELETE("/call/peers/:id", h.RemovePeer)
		api.GET("/call/state", h.GetState)
		api.GET("/diagnostics", h.GetDiagnostics)
		api.GET("/connections/stats", h.GetConnectionStats)
	}
}

func (h *CallHandler) StartCall(c *gin.Context) {
	var req struct {
		RoomID       domain.RoomID        `json:"roomId" binding:"required"`
		Participants []domain.Participant `json:"participants" binding:"required,min=1"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.calls.StartCall(c.Request.Context(), req.Participants, req.RoomID); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.calls.State()})
}

func (h *CallHandler) AcceptCall(c *gin.Context) {
	if err := h.calls.AcceptCall(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.calls.State()})
}

func (h *CallHandler) RejectCall(c *gin.Context) {
	if err := h.calls.RejectCall(); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.calls.State()})
}

func (h *CallHandler) EndCall(c *gin.Context) {
	if err := h.calls.EndCall(); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.calls.State()})
}

func (h *CallHandler) ToggleMute(c *gin.Context) {
	muted := h.calls.ToggleMute()
	c.JSON(http.StatusOK, gin.H{"muted": muted})
}

func (h *CallHandler) ToggleVideo(c *gin.Context) {
	enabled := h.calls.ToggleVideo()
	c.JSON(http.StatusOK, gin.H{"videoEnabled": enabled})
}

func (h *CallHandler) StartScreenShare(c *gin.Context) {
	if err := h.calls.StartScreenShare(c.Request.Context()); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.calls.State()})
}

func (h *CallHandler) StopScreenShare(c *gin.Context) {
	if err := h.calls.StopScreenShare(); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.calls.State()})
}

func (h *CallHandler) RemovePeer(c *gin.Context) {
	id := domain.UserID(c.Param("id"))
	if err := h.calls.RemovePeer(id); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": id})
}

func (h *CallHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.calls.State())
}

func (h *CallHandler) GetDiagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, h.diagnostics.Report())
}

func (h *CallHandler) GetConnectionStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Stats())
}
