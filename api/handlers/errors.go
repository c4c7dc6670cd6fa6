package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garycarlyle/TVShow/internal/domain"
)

// StatusFor maps a failure category to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrFeatureDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTransientNetwork):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQueryMismatch):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoTorrentVariants):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrEngineFatal):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(StatusFor(err), gin.H{"error": err.Error()})
}
