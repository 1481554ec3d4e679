package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Constants backends.
const (
	BackendMemory   = "memory"
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string
	OTelEnabled  bool

	// Constants
	ConstantsBackend string
	ConstantsStrict  bool   // refuse built-in defaults when the store has no entry
	ConstantsSeed    string // JSON seed of the memory backend

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// Postgres
	DatabaseURL      string
	RunMigrations    bool
	DatabaseMaxConns int

	// Redis (optional shared cache tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Estimation
	TaxAvailability string // e.g. "TVA=available,IRCM=available"
	SummarizerURL   string
	AdminAPIKey     string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 16),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelEnabled:  getEnvBool("OTEL_ENABLED", false),

		ConstantsBackend: strings.ToLower(getEnv("CONSTANTS_BACKEND", BackendMemory)),
		ConstantsStrict:  getEnvBool("CONSTANTS_STRICT", false),
		ConstantsSeed:    getEnv("CONSTANTS_SEED_FILE", ""),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RunMigrations:    getEnvBool("DB_RUN_MIGRATIONS", true),
		DatabaseMaxConns: getEnvInt("DB_MAX_CONNS", 10),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		TaxAvailability: getEnv("TAX_AVAILABILITY", ""),
		SummarizerURL:   getEnv("SUMMARIZER_URL", ""),
		AdminAPIKey:     getEnv("ADMIN_API_KEY", ""),
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.ConstantsBackend {
	case BackendMemory:
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("config: CONSTANTS_BACKEND=supabase requires SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: CONSTANTS_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown CONSTANTS_BACKEND %q", c.ConstantsBackend)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("config: MAX_CONCURRENCY must be positive, got %d", c.MaxConcurrency)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
