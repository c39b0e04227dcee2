package bootstrap

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/metrics"
	"github.com/finlink/finlink/internal/middleware"
	"github.com/finlink/finlink/internal/store"
	"github.com/finlink/finlink/internal/util"
)

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(
	cfg *config.Config,
	db *store.Store,
	h handlerSet,
	recorder metrics.Recorder,
	redisClient *redis.Client,
) *gin.Engine {
	setupGinMode(cfg)
	r := gin.New()

	// Setup middleware
	r.Use(metrics.HTTPMetricsMiddleware(recorder))
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(util.IPMiddleware())

	// Health check endpoint
	r.GET("/health", createHealthCheckHandler(db))

	// Setup metrics endpoint
	setupMetricsEndpoint(r, cfg)

	// Swagger documentation (development only)
	if !cfg.IsProduction {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
		log.Printf("Swagger UI enabled at: %s/swagger/index.html", cfg.BaseURL)
	}

	// Setup rate limiting
	rateLimiters := setupRateLimiting(cfg, redisClient)

	setupFinancialRoutes(r, cfg, h, rateLimiters)

	logServerStartup(cfg)

	return r
}

// setupFinancialRoutes configures the account-linking API
func setupFinancialRoutes(
	r *gin.Engine,
	cfg *config.Config,
	h handlerSet,
	rateLimiters rateLimitMiddlewares,
) {
	financial := r.Group("/financial")

	// Provider callbacks arrive as bare browser redirects; they carry
	// no bearer token and authenticate via the state parameter instead.
	financial.GET("/callback/:provider", h.connect.Callback)

	protected := financial.Group("")
	protected.Use(middleware.RequireAuth(cfg.JWTSecret))
	{
		protected.GET("/providers", h.providers.ListProviders)
		protected.POST("/connect/:provider", rateLimiters.connect, h.connect.Connect)

		protected.GET("/accounts", h.accounts.ListAccounts)
		protected.GET("/accounts/:id", h.accounts.GetAccount)
		protected.PATCH("/accounts/:id", h.accounts.RenameAccount)
		protected.DELETE("/accounts/:id", h.accounts.DisconnectAccount)
		protected.POST("/accounts/:id/refresh", h.accounts.RefreshAccount)
		protected.POST("/accounts/:id/sync", h.accounts.SyncAccount)
	}
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config) {
	switch {
	case !cfg.MetricsEnabled:
		log.Printf("Prometheus metrics disabled")
	case cfg.MetricsToken != "":
		log.Printf("Prometheus metrics enabled at /metrics with Bearer token authentication")
		r.GET(
			"/metrics",
			middleware.MetricsAuthMiddleware(cfg.MetricsToken),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		log.Printf("Prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// createHealthCheckHandler creates health check endpoint handler
// healthCheck godoc
//
//	@Summary		Health check
//	@Description	Check server and database health status
//	@Tags			System
//	@Produce		json
//	@Success		200	{object}	object{status=string,database=string}	"Service is healthy"
//	@Failure		503	{object}	object{status=string,database=string}	"Service is unhealthy"
//	@Router			/health [get]
func createHealthCheckHandler(db *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch err := db.Health(); err {
		case nil:
			c.JSON(http.StatusOK, gin.H{
				"status":   "healthy",
				"database": "connected",
			})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "disconnected",
			})
		}
	}
}

// setupGinMode sets Gin mode based on environment configuration
func setupGinMode(cfg *config.Config) {
	gin.SetMode(ginModeMap[cfg.IsProduction])
	log.Printf("Gin mode: %s", ginModeLogMessage[cfg.IsProduction])
}

var ginModeMap = map[bool]string{
	true:  gin.ReleaseMode,
	false: gin.DebugMode,
}

var ginModeLogMessage = map[bool]string{
	true:  "Release (production)",
	false: "Debug (development)",
}

// logServerStartup logs server startup information
func logServerStartup(cfg *config.Config) {
	log.Printf("FinLink server starting on %s", cfg.ServerAddr)
	log.Printf("Callback base URL: %s", cfg.BaseURL)
	log.Printf("Frontend URL: %s", cfg.FrontendURL)
}
