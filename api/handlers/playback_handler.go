package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PlaybackHandler handles streaming download requests
type PlaybackHandler struct {
	playback PlaybackService
	logger   *zap.Logger
}

// NewPlaybackHandler creates a new playback handler
func NewPlaybackHandler(playback PlaybackService, logger *zap.Logger) *PlaybackHandler {
	return &PlaybackHandler{
		playback: playback,
		logger:   logger,
	}
}

// PlayRequest represents a request to start streaming a movie
type PlayRequest struct {
	MovieID int `json:"movie_id" binding:"required,min=1"`
}

// GetPlayback handles GET /api/v1/playback
func (h *PlaybackHandler) GetPlayback(c *gin.Context) {
	c.JSON(http.StatusOK, h.playback.Playback())
}

// Play handles POST /api/v1/playback
func (h *PlaybackHandler) Play(c *gin.Context) {
	var req PlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot, err := h.playback.Play(c.Request.Context(), req.MovieID)
	if err != nil {
		h.logger.Warn("Failed to start playback",
			zap.Int("movie_id", req.MovieID),
			zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, snapshot)
}

// Stop handles DELETE /api/v1/playback
func (h *PlaybackHandler) Stop(c *gin.Context) {
	if err := h.playback.StopPlayback(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.playback.Playback())
}
