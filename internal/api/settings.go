package api

import (
	"context"
	"errors"
	"net/http"

	"whatsapp-crm-lookup/internal/engine"
	"whatsapp-crm-lookup/internal/settings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SettingsStore is the persistence the settings endpoints need.
type SettingsStore interface {
	Get(ctx context.Context) (settings.Credentials, error)
	Set(ctx context.Context, creds settings.Credentials) error
}

// Controller is the slice of the engine the HTTP layer drives.
type Controller interface {
	HandleSignal(sig engine.Signal)
	Snapshot() engine.Status
}

type SettingsHandler struct {
	Store      SettingsStore
	Controller Controller
	Logger     *zap.Logger
}

func NewSettingsHandler(store SettingsStore, controller Controller, logger *zap.Logger) *SettingsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsHandler{Store: store, Controller: controller, Logger: logger}
}

// GetSettings never returns the stored key, only its masked form.
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	creds, err := h.Store.Get(c.Request.Context())
	if err != nil {
		h.Logger.Error("read settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load settings"})
		return
	}
	creds.APIKey = settings.MaskAPIKey(creds.APIKey)
	c.JSON(http.StatusOK, creds)
}

type UpdateSettingsRequest struct {
	APIKey     string `json:"apiKey"`
	LocationID string `json:"locationId"`
}

// UpdateSettings saves the credentials and resets the engine so they take
// effect.
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	apiKey := req.APIKey
	// A form that echoes the masked key back keeps the stored one.
	if current, err := h.Store.Get(ctx); err == nil && current.APIKey != "" && apiKey == settings.MaskAPIKey(current.APIKey) {
		apiKey = current.APIKey
	}

	err := h.Store.Set(ctx, settings.Credentials{APIKey: apiKey, LocationID: req.LocationID})
	if errors.Is(err, settings.ErrIncomplete) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please fill in both fields"})
		return
	}
	if err != nil {
		h.Logger.Error("save settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings"})
		return
	}

	h.Controller.HandleSignal(engine.SignalSettingsUpdated)
	c.JSON(http.StatusOK, gin.H{"status": "Settings saved successfully!"})
}
