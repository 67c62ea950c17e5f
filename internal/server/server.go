package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fabienpiette/wanderlust/internal/config"
	"github.com/fabienpiette/wanderlust/internal/middleware"
	"github.com/fabienpiette/wanderlust/internal/models"
	"github.com/fabienpiette/wanderlust/internal/server/handlers"
	"github.com/fabienpiette/wanderlust/internal/services"
)

const limiterCleanupInterval = 5 * time.Minute

// HTTPServer represents the HTTP server
type HTTPServer struct {
	config    *config.Config
	container *services.Container
	router    *gin.Engine
	server    *http.Server
	logger    *logrus.Logger
	limiter   *middleware.RateLimiter
	stopChan  chan struct{}
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg *config.Config, container *services.Container) *HTTPServer {
	// Set Gin mode based on configuration
	switch cfg.Environment {
	case "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	server := &HTTPServer{
		config:    cfg,
		container: container,
		router:    router,
		logger:    container.GetLogger(),
		stopChan:  make(chan struct{}),
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}

	return server
}

// Router exposes the handler for tests
func (s *HTTPServer) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.Infof("Starting HTTP server on %s", s.server.Addr)

	if s.limiter != nil {
		go s.cleanupLimiter()
	}

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown() error {
	s.logger.Info("Shutting down HTTP server")

	close(s.stopChan)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) cleanupLimiter() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if removed := s.limiter.Cleanup(); removed > 0 {
				s.logger.WithField("clients", removed).Debug("Forgot idle rate limit clients")
			}
		}
	}
}

// setupMiddleware configures middleware
func (s *HTTPServer) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestLogger(s.logger))

	// Recovery middleware
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.WithField("request_id", middleware.GetRequestID(c)).Errorf("Panic recovered: %v", recovered)
		apiErr := models.NewAPIError(http.StatusInternalServerError, "Internal Server Error",
			models.ErrInternalServerError.Error(), c.Request.URL.Path)
		apiErr.RequestID = middleware.GetRequestID(c)
		c.AbortWithStatusJSON(http.StatusInternalServerError, apiErr)
	}))

	// CORS middleware
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Request-ID, X-Session-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	if s.config.RateLimit.Enabled {
		s.limiter = middleware.NewRateLimiter(s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst)
		s.router.Use(s.limiter.Middleware())
	}
}

// setupRoutes configures all API routes
func (s *HTTPServer) setupRoutes() {
	s.router.GET("/health", s.healthCheckHandler)

	s.router.NoRoute(func(c *gin.Context) {
		apiErr := models.NewAPIError(http.StatusNotFound, "Not Found",
			models.ErrResourceNotFound.Error(), c.Request.URL.Path)
		apiErr.RequestID = middleware.GetRequestID(c)
		c.JSON(http.StatusNotFound, apiErr)
	})

	v1 := s.router.Group("/api/v1")

	listingGroup := v1.Group("/listings")
	{
		listingHandler := handlers.NewListingHandler(s.container)
		listingGroup.GET("", listingHandler.ListListings)
		listingGroup.GET("/top-rated", listingHandler.TopRated)
		listingGroup.GET("/:id/reviews", listingHandler.Reviews)
	}

	searchGroup := v1.Group("/search")
	{
		searchHandler := handlers.NewSearchHandler(s.container)
		searchGroup.GET("", searchHandler.Search)
		searchGroup.GET("/suggestions", searchHandler.GetSuggestions)
		searchGroup.GET("/popular", searchHandler.GetPopular)
		searchGroup.POST("/click", searchHandler.TrackClick)
	}

	performanceGroup := v1.Group("/performance")
	{
		performanceHandler := handlers.NewPerformanceHandler(s.container)
		performanceGroup.GET("/stats", performanceHandler.GetStats)
		performanceGroup.GET("/index-suggestions", performanceHandler.GetIndexSuggestions)
		performanceGroup.GET("/report", performanceHandler.GetReport)
		performanceGroup.GET("/history", performanceHandler.GetHistory)
		performanceGroup.DELETE("/cache/query", performanceHandler.ClearQueryCache)
		performanceGroup.DELETE("/cache/search", performanceHandler.ClearSearchCache)
	}
}

// healthCheckHandler handles health check requests
func (s *HTTPServer) healthCheckHandler(c *gin.Context) {
	ctx := c.Request.Context()
	health := s.container.HealthCheck(ctx)

	status := http.StatusOK
	if health["status"] != "healthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, health)
}
