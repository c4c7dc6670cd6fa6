package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/garycarlyle/TVShow/api/handlers"
	"github.com/garycarlyle/TVShow/api/middleware"
	"github.com/garycarlyle/TVShow/internal/domain"
)

// SetupRouter sets up the HTTP router
func SetupRouter(
	svc handlers.Service,
	repo domain.PlaybackRepository,
	logsDir string,
	log *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())
	router.Use(middleware.Metrics())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(svc)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		catalogHandler := handlers.NewCatalogHandler(svc, log)
		catalog := v1.Group("/catalog")
		{
			catalog.GET("", catalogHandler.GetCatalog)
			catalog.POST("/next", catalogHandler.Next)
			catalog.POST("/previous", catalogHandler.Previous)
			catalog.POST("/search", catalogHandler.Search)
			catalog.POST("/stop", catalogHandler.Stop)
			catalog.POST("/retry", catalogHandler.Retry)
		}

		movieHandler := handlers.NewMovieHandler(svc)
		v1.GET("/movies/:id", movieHandler.GetMovie)
		v1.GET("/movies/:id/poster", movieHandler.GetPoster)

		playbackHandler := handlers.NewPlaybackHandler(svc, log)
		playback := v1.Group("/playback")
		{
			playback.GET("", playbackHandler.GetPlayback)
			playback.POST("", playbackHandler.Play)
			playback.DELETE("", playbackHandler.Stop)
		}

		historyHandler := handlers.NewHistoryHandler(repo, log)
		history := v1.Group("/history")
		{
			history.GET("", historyHandler.ListHistory)
			history.GET("/stats", historyHandler.GetStats)
			history.GET("/:id", historyHandler.GetRecord)
		}

		logHandler := handlers.NewLogHandler(logsDir)
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/search", logHandler.SearchLogs)
			logs.GET("/:category/export", logHandler.ExportLogs)
		}

		eventsHandler := handlers.NewEventsWebSocketHandler(svc, log)
		v1.GET("/events", eventsHandler.HandleWebSocket)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
