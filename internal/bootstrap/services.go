package bootstrap

import (
	"fmt"

	"github.com/finlink/finlink/internal/auth"
	"github.com/finlink/finlink/internal/client"
	"github.com/finlink/finlink/internal/config"
	"github.com/finlink/finlink/internal/crypto"
	"github.com/finlink/finlink/internal/metrics"
	"github.com/finlink/finlink/internal/pending"
	"github.com/finlink/finlink/internal/services"
	"github.com/finlink/finlink/internal/store"
)

// initializeConnectionService wires the connection service with its
// HTTP clients and injected collaborators
func initializeConnectionService(
	cfg *config.Config,
	db *store.Store,
	cipher *crypto.TokenCipher,
	registry *auth.Registry,
	pendingStore pending.Store,
	recorder metrics.Recorder,
) (*services.ConnectionService, error) {
	providerClient, err := client.NewProviderClient(
		cfg.ProviderTimeout,
		cfg.ProviderInsecureSkipVerify,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider HTTP client: %w", err)
	}

	revokeClient, err := client.NewRevokeClient(
		cfg.ProviderTimeout,
		cfg.ProviderInsecureSkipVerify,
		cfg.ProviderMaxRetries,
		cfg.ProviderRetryDelay,
		cfg.ProviderMaxRetryDelay,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create revoke HTTP client: %w", err)
	}

	return services.NewConnectionService(
		db,
		cipher,
		registry,
		pendingStore,
		providerClient,
		revokeClient,
		recorder,
		cfg,
	), nil
}
