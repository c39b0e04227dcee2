package bootstrap

import (
	"log"

	"github.com/finlink/finlink/internal/auth"
	"github.com/finlink/finlink/internal/config"
)

// initializeProviderRegistry registers every provider with a complete
// credential pair. A provider with missing credentials is skipped, not
// fatal: deployments enable institutions one by one.
func initializeProviderRegistry(cfg *config.Config) *auth.Registry {
	registry := auth.NewRegistry()

	if cfg.CoinbaseClientID != "" && cfg.CoinbaseClientSecret != "" {
		registry.Register(auth.NewCoinbaseProvider(
			cfg.CoinbaseClientID,
			cfg.CoinbaseClientSecret,
			cfg.CoinbaseScopes,
		))
		log.Printf(
			"Coinbase provider configured: redirect=%s",
			cfg.CallbackRedirectURI("coinbase"),
		)
	}

	if cfg.SchwabClientID != "" && cfg.SchwabClientSecret != "" {
		registry.Register(auth.NewSchwabProvider(
			cfg.SchwabClientID,
			cfg.SchwabClientSecret,
			cfg.SchwabScopes,
		))
		log.Printf(
			"Schwab provider configured: redirect=%s",
			cfg.CallbackRedirectURI("schwab"),
		)
	}

	return registry
}

// logProvidersStatus logs enabled providers
func logProvidersStatus(registry *auth.Registry) {
	if registry.Len() == 0 {
		log.Printf("WARNING: no providers configured; account linking is unavailable")
		return
	}
	log.Printf("Providers enabled: %v", registry.Names())
}
