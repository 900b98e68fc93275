package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/cristata/pkg/crdt"
	"github.com/platinummonkey/cristata/pkg/observability"
	"github.com/platinummonkey/cristata/pkg/storage"
)

// Tenant config sources
const (
	TenantSourceMongo = "mongo"
	TenantSourceDir   = "dir"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	CRDT          crdt.Config
	Auth          AuthConfig
	Tenants       TenantsConfig
	Billing       BillingConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// Playground serves the GraphQL playground at /v3/{tenant}/playground.
	Playground bool

	CORSOrigins  []string
	MaxBodyBytes int64

	// RateLimitPerMinute limits requests per tenant and caller; 0 disables.
	RateLimitPerMinute int
	RateLimitBurst     int
}

// AuthConfig configures bearer token verification
type AuthConfig struct {
	OIDCIssuer   string
	OIDCClientID string
}

// Enabled reports whether tokens are verified at all
func (a AuthConfig) Enabled() bool {
	return a.OIDCIssuer != ""
}

// TenantsConfig selects where tenant definitions come from
type TenantsConfig struct {
	Source string
	Dir    string
	// ResyncSchedule is a cron spec for the periodic full resync.
	ResyncSchedule string
	// Concurrency bounds concurrent tenant builds.
	Concurrency int
}

// BillingConfig holds the Stripe webhook settings
type BillingConfig struct {
	WebhookSecret string
	Tolerance     time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// OTel returns the OpenTelemetry settings
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// LoadConfig loads configuration from CRISTATA_* environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		CRDT:          loadCRDTConfig(),
		Auth:          loadAuthConfig(),
		Tenants:       loadTenantsConfig(),
		Billing:       loadBillingConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CRISTATA_HOST", "0.0.0.0"),
		Port:            getEnv("CRISTATA_PORT", "3000"),
		ReadTimeout:     getEnvDuration("CRISTATA_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CRISTATA_WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:     getEnvDuration("CRISTATA_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CRISTATA_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("CRISTATA_HEALTH_PORT", "9090"),
		Playground:      getEnvBool("CRISTATA_PLAYGROUND", false),
		CORSOrigins:     getEnvList("CRISTATA_CORS_ORIGINS"),
		MaxBodyBytes:    int64(getEnvInt("CRISTATA_MAX_BODY_BYTES", 10<<20)),

		RateLimitPerMinute: getEnvInt("CRISTATA_RATE_LIMIT_PER_MINUTE", 0),
		RateLimitBurst:     getEnvInt("CRISTATA_RATE_LIMIT_BURST", 0),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.MongoURI = getEnv("CRISTATA_MONGO_URI", cfg.MongoURI)
	cfg.MongoAppDatabase = getEnv("CRISTATA_MONGO_APP_DATABASE", cfg.MongoAppDatabase)
	cfg.MongoTimeout = getEnvDuration("CRISTATA_MONGO_TIMEOUT", cfg.MongoTimeout)
	if maxPool := getEnvInt("CRISTATA_MONGO_MAX_POOL_SIZE", 0); maxPool > 0 {
		cfg.MongoMaxPoolSize = uint64(maxPool)
	}

	cfg.S3Endpoint = getEnv("CRISTATA_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("CRISTATA_S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("CRISTATA_S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("CRISTATA_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("CRISTATA_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3UsePathStyle = getEnvBool("CRISTATA_S3_USE_PATH_STYLE", cfg.S3UsePathStyle)
	cfg.S3PresignExpiry = getEnvDuration("CRISTATA_S3_PRESIGN_EXPIRY", cfg.S3PresignExpiry)

	cfg.RedisURL = getEnv("CRISTATA_REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("CRISTATA_REDIS_PASSWORD", cfg.RedisPassword)
	if redisDB := getEnvInt("CRISTATA_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if poolSize := getEnvInt("CRISTATA_REDIS_POOL_SIZE", 0); poolSize > 0 {
		cfg.RedisPoolSize = poolSize
	}

	return cfg
}

func loadCRDTConfig() crdt.Config {
	cfg := crdt.DefaultConfig(getEnv("CRISTATA_CRDT_URL", ""))
	cfg.Token = getEnv("CRISTATA_CRDT_TOKEN", "")
	cfg.Encoding = getEnv("CRISTATA_CRDT_ENCODING", cfg.Encoding)
	cfg.Timeout = getEnvDuration("CRISTATA_CRDT_TIMEOUT", cfg.Timeout)
	cfg.MaxReconnectAttempts = getEnvInt("CRISTATA_CRDT_MAX_RECONNECTS", cfg.MaxReconnectAttempts)
	cfg.InitialBackoff = getEnvDuration("CRISTATA_CRDT_INITIAL_BACKOFF", cfg.InitialBackoff)
	cfg.MaxBackoff = getEnvDuration("CRISTATA_CRDT_MAX_BACKOFF", cfg.MaxBackoff)
	return cfg
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		OIDCIssuer:   getEnv("CRISTATA_OIDC_ISSUER", ""),
		OIDCClientID: getEnv("CRISTATA_OIDC_CLIENT_ID", ""),
	}
}

func loadTenantsConfig() TenantsConfig {
	return TenantsConfig{
		Source:         getEnv("CRISTATA_TENANT_SOURCE", TenantSourceMongo),
		Dir:            getEnv("CRISTATA_TENANT_DIR", ""),
		ResyncSchedule: getEnv("CRISTATA_RESYNC_SCHEDULE", "@every 5m"),
		Concurrency:    getEnvInt("CRISTATA_TENANT_CONCURRENCY", 4),
	}
}

func loadBillingConfig() BillingConfig {
	return BillingConfig{
		WebhookSecret: getEnv("CRISTATA_STRIPE_WEBHOOK_SECRET", ""),
		Tolerance:     getEnvDuration("CRISTATA_STRIPE_TOLERANCE", 5*time.Minute),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("CRISTATA_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("CRISTATA_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CRISTATA_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CRISTATA_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CRISTATA_OTEL_SERVICE_NAME", "cristata"),
		OTelServiceVersion: getEnv("CRISTATA_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CRISTATA_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("CRISTATA_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Server.RateLimitPerMinute < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}

	if c.Storage.MongoURI == "" {
		return fmt.Errorf("mongo URI is required")
	}
	if c.Storage.MongoAppDatabase == "" {
		return fmt.Errorf("mongo app database is required")
	}

	switch c.Tenants.Source {
	case TenantSourceMongo:
	case TenantSourceDir:
		if c.Tenants.Dir == "" {
			return fmt.Errorf("tenant directory is required for the dir tenant source")
		}
	default:
		return fmt.Errorf("invalid tenant source: %s (must be %s or %s)", c.Tenants.Source, TenantSourceMongo, TenantSourceDir)
	}
	if c.Tenants.ResyncSchedule != "" {
		if _, err := cron.ParseStandard(c.Tenants.ResyncSchedule); err != nil {
			return fmt.Errorf("invalid resync schedule %q: %w", c.Tenants.ResyncSchedule, err)
		}
	}

	if c.CRDT.URL != "" {
		if _, err := crdt.CodecFor(c.CRDT.Encoding); err != nil {
			return err
		}
		if c.CRDT.Timeout <= 0 {
			return fmt.Errorf("crdt timeout must be positive")
		}
	}

	if c.Auth.Enabled() && c.Auth.OIDCClientID == "" {
		return fmt.Errorf("OIDC client id is required when an issuer is set")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable as a list
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
