package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garycarlyle/TVShow/internal/app"
	"github.com/garycarlyle/TVShow/internal/domain"
)

// CatalogHandler handles catalog browsing requests
type CatalogHandler struct {
	catalog CatalogService
	logger  *zap.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// CatalogResponse is the visible list and its pagination state.
type CatalogResponse struct {
	Outcome *app.PageLoadOutcome `json:"outcome,omitempty"`
	State   app.CacheState       `json:"state"`
	Items   []domain.MovieView   `json:"items"`
}

// NextPageRequest optionally pins the query the caller believes is active.
type NextPageRequest struct {
	Query *string `json:"query"`
}

// SearchRequest represents a request to search the catalog
type SearchRequest struct {
	Query string `json:"query"`
}

// GetCatalog handles GET /api/v1/catalog
func (h *CatalogHandler) GetCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, h.response(nil))
}

// Next handles POST /api/v1/catalog/next
func (h *CatalogHandler) Next(c *gin.Context) {
	var req NextPageRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	var (
		outcome app.PageLoadOutcome
		err     error
	)
	if req.Query != nil {
		outcome, err = h.catalog.LoadNextFor(c.Request.Context(), *req.Query)
	} else {
		outcome, err = h.catalog.LoadNext(c.Request.Context())
	}
	h.reply(c, outcome, err)
}

// Previous handles POST /api/v1/catalog/previous
func (h *CatalogHandler) Previous(c *gin.Context) {
	outcome, err := h.catalog.LoadPrevious(c.Request.Context())
	h.reply(c, outcome, err)
}

// Search handles POST /api/v1/catalog/search
func (h *CatalogHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.catalog.Search(c.Request.Context(), req.Query)
	h.reply(c, outcome, err)
}

// Stop handles POST /api/v1/catalog/stop
func (h *CatalogHandler) Stop(c *gin.Context) {
	h.catalog.StopLoading()
	c.JSON(http.StatusOK, h.response(nil))
}

// Retry handles POST /api/v1/catalog/retry
func (h *CatalogHandler) Retry(c *gin.Context) {
	outcome, err := h.catalog.RetryAfterConnectionError(c.Request.Context())
	h.reply(c, outcome, err)
}

func (h *CatalogHandler) reply(c *gin.Context, outcome app.PageLoadOutcome, err error) {
	if err != nil {
		h.logger.Debug("Catalog request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.response(&outcome))
}

func (h *CatalogHandler) response(outcome *app.PageLoadOutcome) CatalogResponse {
	return CatalogResponse{
		Outcome: outcome,
		State:   h.catalog.CatalogState(),
		Items:   h.catalog.Items(),
	}
}
