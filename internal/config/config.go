package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Pending-authorization store backends
const (
	PendingStoreMemory = "memory"
	PendingStoreRedis  = "redis"
)

type Config struct {
	// Server settings
	ServerAddr   string
	BaseURL      string // used to construct callback redirect URIs
	FrontendURL  string // browser destination after the OAuth callback
	IsProduction bool

	// Auth settings
	JWTSecret string

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	// Token encryption
	TokenEncryptionKey string // 64 hex characters (AES-256)

	// Coinbase OAuth
	CoinbaseClientID     string
	CoinbaseClientSecret string
	CoinbaseScopes       []string

	// Schwab OAuth
	SchwabClientID     string
	SchwabClientSecret string
	SchwabScopes       []string

	// Provider HTTP client settings
	ProviderTimeout            time.Duration // timeout for all provider calls (default: 15s)
	ProviderMaxRetries         int           // revoke-call retry attempts (default: 3)
	ProviderRetryDelay         time.Duration
	ProviderMaxRetryDelay      time.Duration
	ProviderInsecureSkipVerify bool // dev/testing only

	// Pending authorization settings
	PendingAuthTTL      time.Duration // unconsumed handshake lifetime (default: 10m)
	PendingStoreBackend string        // "memory" or "redis"

	// Redis (pending store and rate limiting)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Refresh sweep settings
	RefreshSweepEnabled  bool
	RefreshSweepInterval time.Duration // how often the sweep runs (default: 5m)
	RefreshExpiryBuffer  time.Duration // refresh tokens expiring within this window (default: 10m)

	// Rate limiting
	RateLimitEnabled         bool
	ConnectRequestsPerMinute int
	RateLimitStore           string // "memory" or "redis"

	// Metrics
	MetricsEnabled bool
	MetricsToken   string
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	return &Config{
		ServerAddr:   getEnv("SERVER_ADDR", ":8080"),
		BaseURL:      getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:  getEnv("FRONTEND_URL", "http://localhost:3000"),
		IsProduction: getEnv("ENV", "development") == "production",

		JWTSecret: getEnv("JWT_SECRET", ""),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    getEnv("DATABASE_DSN", "finlink.db"),

		TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),

		CoinbaseClientID:     getEnv("COINBASE_CLIENT_ID", ""),
		CoinbaseClientSecret: getEnv("COINBASE_CLIENT_SECRET", ""),
		CoinbaseScopes: getEnvSlice(
			"COINBASE_SCOPES",
			[]string{"wallet:user:read", "wallet:accounts:read"},
		),

		SchwabClientID:     getEnv("SCHWAB_CLIENT_ID", ""),
		SchwabClientSecret: getEnv("SCHWAB_CLIENT_SECRET", ""),
		SchwabScopes:       getEnvSlice("SCHWAB_SCOPES", []string{"readonly"}),

		ProviderTimeout:            getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second),
		ProviderMaxRetries:         getEnvInt("PROVIDER_MAX_RETRIES", 3),
		ProviderRetryDelay:         getEnvDuration("PROVIDER_RETRY_DELAY", 1*time.Second),
		ProviderMaxRetryDelay:      getEnvDuration("PROVIDER_MAX_RETRY_DELAY", 10*time.Second),
		ProviderInsecureSkipVerify: getEnvBool("PROVIDER_INSECURE_SKIP_VERIFY", false),

		PendingAuthTTL:      getEnvDuration("PENDING_AUTH_TTL", 10*time.Minute),
		PendingStoreBackend: getEnv("PENDING_STORE_BACKEND", PendingStoreMemory),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RefreshSweepEnabled:  getEnvBool("REFRESH_SWEEP_ENABLED", true),
		RefreshSweepInterval: getEnvDuration("REFRESH_SWEEP_INTERVAL", 5*time.Minute),
		RefreshExpiryBuffer:  getEnvDuration("REFRESH_EXPIRY_BUFFER", 10*time.Minute),

		RateLimitEnabled:         getEnvBool("RATE_LIMIT_ENABLED", true),
		ConnectRequestsPerMinute: getEnvInt("CONNECT_REQUESTS_PER_MINUTE", 10),
		RateLimitStore:           getEnv("RATE_LIMIT_STORE", PendingStoreMemory),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		MetricsToken:   getEnv("METRICS_TOKEN", ""),
	}
}

// Validate checks settings that are fatal at startup.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if err := validateEncryptionKey(c.TokenEncryptionKey); err != nil {
		return err
	}
	if c.BaseURL == "" {
		return fmt.Errorf("BASE_URL is required")
	}
	switch c.PendingStoreBackend {
	case PendingStoreMemory, PendingStoreRedis:
	default:
		return fmt.Errorf(
			"invalid PENDING_STORE_BACKEND: %s (must be: memory, redis)",
			c.PendingStoreBackend,
		)
	}
	return nil
}

// validateEncryptionKey requires a 64-hex-character AES-256 key.
func validateEncryptionKey(key string) error {
	if key == "" {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY is required")
	}
	if len(key) != 64 {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be 64 hex characters, got %d", len(key))
	}
	if _, err := hex.DecodeString(key); err != nil {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be hex-encoded: %w", err)
	}
	return nil
}

// CallbackRedirectURI builds the exact redirect URI registered with a
// provider for its callback.
func (c *Config) CallbackRedirectURI(provider string) string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/financial/callback/" + provider
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var parts []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
