package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// MovieHandler handles movie detail requests
type MovieHandler struct {
	catalog CatalogService
}

// NewMovieHandler creates a new movie handler
func NewMovieHandler(catalog CatalogService) *MovieHandler {
	return &MovieHandler{catalog: catalog}
}

// GetMovie handles GET /api/v1/movies/:id
func (h *MovieHandler) GetMovie(c *gin.Context) {
	id, ok := movieID(c)
	if !ok {
		return
	}

	details, err := h.catalog.OpenMovie(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// GetPoster handles GET /api/v1/movies/:id/poster
func (h *MovieHandler) GetPoster(c *gin.Context) {
	id, ok := movieID(c)
	if !ok {
		return
	}

	details, err := h.catalog.OpenMovie(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if details.PosterImagePath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "poster unavailable"})
		return
	}
	c.File(details.PosterImagePath)
}

func movieID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid movie id"})
		return 0, false
	}
	return id, true
}
