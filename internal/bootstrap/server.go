package bootstrap

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/appleboy/graceful"
	"github.com/redis/go-redis/v9"

	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/metrics"
	"github.com/finlink/finlink/internal/pending"
	"github.com/finlink/finlink/internal/services"
	"github.com/finlink/finlink/internal/store"
)

// createHTTPServer creates the HTTP server instance
func createHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// addServerRunningJob adds the HTTP server running job
func addServerRunningJob(m *graceful.Manager, srv *http.Server) {
	m.AddRunningJob(func(ctx context.Context) error {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		return nil
	})
}

// addServerShutdownJob adds HTTP server shutdown handler
func addServerShutdownJob(m *graceful.Manager, srv *http.Server) {
	m.AddShutdownJob(func() error {
		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
			return err
		}

		log.Println("Server exited")
		return nil
	})
}

// addRefreshSweepJob adds the periodic token refresh sweep
func addRefreshSweepJob(
	m *graceful.Manager,
	cfg *config.Config,
	connectionService *services.ConnectionService,
) {
	if !cfg.RefreshSweepEnabled {
		log.Printf("Token refresh sweep disabled")
		return
	}

	log.Printf(
		"Token refresh sweep enabled (interval: %v, expiry buffer: %v)",
		cfg.RefreshSweepInterval,
		cfg.RefreshExpiryBuffer,
	)

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(cfg.RefreshSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				connectionService.RefreshExpiringTokens(ctx)
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// addMetricsGaugeUpdateJob adds periodic connected-account gauge updates
func addMetricsGaugeUpdateJob(
	m *graceful.Manager,
	cfg *config.Config,
	db *store.Store,
	recorder metrics.Recorder,
) {
	if !cfg.MetricsEnabled {
		return
	}

	m.AddRunningJob(func(ctx context.Context) error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		// Update immediately on startup
		updateAccountGauges(db, recorder)

		for {
			select {
			case <-ticker.C:
				updateAccountGauges(db, recorder)
			case <-ctx.Done():
				return nil
			}
		}
	})
}

// updateAccountGauges refreshes the per-provider active account gauge
func updateAccountGauges(db *store.Store, recorder metrics.Recorder) {
	counts, err := db.CountActiveAccountsByProvider()
	if err != nil {
		recorder.RecordDatabaseQueryError("count_connected_accounts")
		log.Printf("Failed to count connected accounts: %v", err)
		return
	}
	for provider, count := range counts {
		recorder.SetConnectedAccountsCount(provider, count)
	}
}

// addPendingStoreShutdownJob closes the pending-authorization store
func addPendingStoreShutdownJob(m *graceful.Manager, pendingStore pending.Store) {
	if pendingStore == nil {
		return
	}

	m.AddShutdownJob(func() error {
		if err := pendingStore.Close(); err != nil {
			log.Printf("Error closing pending store: %v", err)
			return err
		}
		return nil
	})
}

// addRedisClientShutdownJob adds Redis client shutdown handler
func addRedisClientShutdownJob(m *graceful.Manager, redisClient *redis.Client) {
	if redisClient == nil {
		return
	}

	m.AddShutdownJob(func() error {
		log.Println("Closing Redis connection...")
		if err := redisClient.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
			return err
		}
		log.Println("Redis connection closed")
		return nil
	})
}
