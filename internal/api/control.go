package api

import (
	"net/http"

	"whatsapp-crm-lookup/internal/engine"

	"github.com/gin-gonic/gin"
)

type ControlHandler struct {
	Controller Controller
}

func NewControlHandler(controller Controller) *ControlHandler {
	return &ControlHandler{Controller: controller}
}

type ControlRequest struct {
	Action string `json:"action" binding:"required"`
}

// Signal accepts {"action": "pageReloaded" | "settingsUpdated"}.
func (h *ControlHandler) Signal(c *gin.Context) {
	var req ControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sig, ok := engine.ParseSignal(req.Action)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + req.Action})
		return
	}

	h.Controller.HandleSignal(sig)
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

func (h *ControlHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.Controller.Snapshot())
}
