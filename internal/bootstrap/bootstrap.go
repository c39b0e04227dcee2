package bootstrap

import (
	"net/http"

	"github.com/appleboy/graceful"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/finlink/finlink/internal/auth"
	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/crypto"
	"github.com/finlink/finlink/internal/metrics"
	"github.com/finlink/finlink/internal/pending"
	"github.com/finlink/finlink/internal/services"
	"github.com/finlink/finlink/internal/store"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config

	// Core infrastructure
	DB              *store.Store
	TokenCipher     *crypto.TokenCipher
	MetricsRecorder metrics.Recorder
	RedisClient     *redis.Client
	PendingStore    pending.Store
	Registry        *auth.Registry

	// Services
	ConnectionService *services.ConnectionService

	// HTTP
	HandlerSet handlerSet
	Router     *gin.Engine
	Server     *http.Server
}

// Run initializes and starts the application
func Run(cfg *config.Config) error {
	app := &Application{Config: cfg}

	// Phase 1: Validate configuration
	validateAllConfiguration(cfg)

	// Phase 2: Initialize infrastructure
	if err := app.initializeInfrastructure(); err != nil {
		return err
	}

	// Phase 3: Initialize business layer
	if err := app.initializeBusinessLayer(); err != nil {
		return err
	}

	// Phase 4: Initialize HTTP layer
	app.initializeHTTPLayer()

	// Phase 5: Start server with graceful shutdown
	app.startWithGracefulShutdown()

	return nil
}

// initializeInfrastructure sets up database, crypto, metrics, Redis and
// the pending-authorization store
func (app *Application) initializeInfrastructure() error {
	var err error

	// Database
	app.DB, err = initializeDatabase(app.Config)
	if err != nil {
		return err
	}

	// Token encryption
	app.TokenCipher, err = crypto.NewTokenCipher(app.Config.TokenEncryptionKey)
	if err != nil {
		return err
	}

	// Metrics
	app.MetricsRecorder = metrics.Init(app.Config.MetricsEnabled)

	// Redis (shared by pending store and rate limiting when configured)
	app.RedisClient, err = initializeRedisClient(app.Config)
	if err != nil {
		return err
	}

	// Pending authorization store
	app.PendingStore, err = initializePendingStore(app.Config, app.RedisClient)
	if err != nil {
		return err
	}

	return nil
}

// initializeBusinessLayer sets up the provider registry and services
func (app *Application) initializeBusinessLayer() error {
	app.Registry = initializeProviderRegistry(app.Config)
	logProvidersStatus(app.Registry)

	var err error
	app.ConnectionService, err = initializeConnectionService(
		app.Config,
		app.DB,
		app.TokenCipher,
		app.Registry,
		app.PendingStore,
		app.MetricsRecorder,
	)
	return err
}

// initializeHTTPLayer sets up handlers, router, and server
func (app *Application) initializeHTTPLayer() {
	app.HandlerSet = initializeHandlers(app.Config, app.Registry, app.ConnectionService)

	app.Router = setupRouter(
		app.Config,
		app.DB,
		app.HandlerSet,
		app.MetricsRecorder,
		app.RedisClient,
	)

	app.Server = createHTTPServer(app.Config, app.Router)
}

// startWithGracefulShutdown starts the server and handles graceful shutdown
func (app *Application) startWithGracefulShutdown() {
	m := graceful.NewManager()

	addServerRunningJob(m, app.Server)
	addServerShutdownJob(m, app.Server)
	addRefreshSweepJob(m, app.Config, app.ConnectionService)
	addMetricsGaugeUpdateJob(m, app.Config, app.DB, app.MetricsRecorder)
	addPendingStoreShutdownJob(m, app.PendingStore)
	addRedisClientShutdownJob(m, app.RedisClient)

	<-m.Done()
}
