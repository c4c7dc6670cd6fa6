package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoint.
var Version = "dev"

// HealthHandler handles health check requests
type HealthHandler struct {
	features FeatureStatus
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(features FeatureStatus) *HealthHandler {
	return &HealthHandler{
		features: features,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Disabled map[string]string `json:"disabled,omitempty"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  Version,
		Disabled: h.features.Disabled(),
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if disabled := h.features.Disabled(); len(disabled) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"disabled": disabled,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
