// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Ledger backends
const (
	LedgerMongo    = "mongo"
	LedgerPostgres = "postgres"
	LedgerMemory   = "memory"
)

// Config is the full service configuration
type Config struct {
	Port string

	MongoURI      string
	MongoDatabase string

	LedgerDriver string
	PostgresDSN  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	WixAppID             string
	WixAppSecret         string
	WixAPIBaseURL        string
	WixOAuthURL          string
	WixRequestsPerSecond float64
	WixMaxRetries        int

	JWTSecret          string
	CORSAllowedOrigins []string
	LogLevel           string
	RunLockTTL         time.Duration
}

// Load reads .env when present, then the environment. The returned bool
// reports whether a .env file was found.
func Load(files ...string) (*Config, bool, error) {
	envLoaded := godotenv.Load(files...) == nil

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		MongoURI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGODB_DATABASE", "store_migrator"),
		LedgerDriver:  strings.ToLower(getEnv("LEDGER_DRIVER", LedgerMongo)),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		WixAppID:      os.Getenv("WIX_APP_ID"),
		WixAppSecret:  os.Getenv("WIX_APP_SECRET"),
		WixAPIBaseURL: getEnv("WIX_API_BASE_URL", "https://www.wixapis.com"),
		WixOAuthURL:   getEnv("WIX_OAUTH_URL", "https://www.wixapis.com"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, envLoaded, err
	}
	if cfg.WixMaxRetries, err = getInt("WIX_MAX_RETRIES", 3); err != nil {
		return nil, envLoaded, err
	}
	if cfg.WixRequestsPerSecond, err = getFloat("WIX_REQUESTS_PER_SECOND", 10); err != nil {
		return nil, envLoaded, err
	}
	if cfg.RunLockTTL, err = getDuration("RUN_LOCK_TTL", 6*time.Hour); err != nil {
		return nil, envLoaded, err
	}

	for _, origin := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, envLoaded, err
	}
	return cfg, envLoaded, nil
}

// Validate checks combinations that cannot work at startup
func (c *Config) Validate() error {
	switch c.LedgerDriver {
	case LedgerMongo, LedgerMemory:
	case LedgerPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when LEDGER_DRIVER=%s", LedgerPostgres)
		}
	default:
		return fmt.Errorf("unsupported LEDGER_DRIVER %q", c.LedgerDriver)
	}
	if c.RunLockTTL <= 0 {
		return fmt.Errorf("RUN_LOCK_TTL must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
