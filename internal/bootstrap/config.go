package bootstrap

import (
	"log"

	"github.com/finlink/finlink/internal/config"
)

// validateAllConfiguration validates all configuration settings
func validateAllConfiguration(cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	warnProviderCredentials(cfg)
}

// warnProviderCredentials flags half-configured provider credentials.
// A provider with only one half of its credential pair is silently
// skipped at registry construction, which is confusing to debug.
func warnProviderCredentials(cfg *config.Config) {
	if (cfg.CoinbaseClientID == "") != (cfg.CoinbaseClientSecret == "") {
		log.Printf(
			"WARNING: Coinbase is partially configured; set both COINBASE_CLIENT_ID and COINBASE_CLIENT_SECRET",
		)
	}
	if (cfg.SchwabClientID == "") != (cfg.SchwabClientSecret == "") {
		log.Printf(
			"WARNING: Schwab is partially configured; set both SCHWAB_CLIENT_ID and SCHWAB_CLIENT_SECRET",
		)
	}
}
