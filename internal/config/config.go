package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	Server     ServerConfig
	Logging    LoggingConfig
	Redis      RedisConfig
	Scylla     ScyllaConfig
	Kafka      KafkaConfig
	ClickHouse ClickHouseConfig
	Elastic    ElasticConfig
	KMS        KMSConfig
	RateLimit  RateLimitConfig
	Token      TokenConfig
	Auth       AuthConfig
	Bucketing  BucketingConfig
	Analytics  AnalyticsConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Enabled  bool
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    []string
	UsageTopic string
}

type ClickHouseConfig struct {
	Enabled  bool
	Addr     string
	Database string
	Username string
	Password string
}

type ElasticConfig struct {
	Enabled    bool
	Addresses  []string
	Username   string
	Password   string
	AuditIndex string
}

type KMSConfig struct {
	Enabled bool
	Region  string
	KeyID   string
}

// TierLimits holds fixed-window ceilings for one tier.
type TierLimits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

type RateLimitConfig struct {
	Enabled bool
	// FailOpen admits requests when the counter backend is unreachable.
	// The alternative is rejecting with 503. Default is fail-open so that
	// rate-limiting unavailability does not take the whole service down.
	FailOpen bool
	// LegacyTier names the tier applied to legacy JWT callers. Defaults to
	// "firebase" so both namespaces share ceilings unless overridden.
	LegacyTier string
	Tiers      map[string]TierLimits
}

type TokenConfig struct {
	MaxPerUser     int
	DefaultTTLDays int
}

type AuthConfig struct {
	FirebaseProjectID       string
	FirebaseCredentialsFile string
	JWTSecret               string
	// JWTSecretEncrypted carries the envelope-encrypted signing secret
	// as produced by encryption.Manager.SealSecret. When set it takes
	// precedence over JWTSecret.
	JWTSecretEncrypted string
	JWTExpiry          time.Duration
}

type BucketingConfig struct {
	IdentityBuckets int
	EventBuckets    int
}

type AnalyticsConfig struct {
	Enabled       bool
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// LoadConfig reads configuration from the environment, with .env support
// for local development.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
			EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
			AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
			Domain:       getEnv("SERVER_DOMAIN", ""),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
			AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "/var/cache/autocert"),
			Email:        getEnv("SERVER_ACME_EMAIL", ""),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Enabled:  getEnvBool("SCYLLA_ENABLED", false),
			Nodes:    getEnvSlice("SCYLLA_NODES", []string{"127.0.0.1:9042"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "gateway"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Enabled:    getEnvBool("KAFKA_ENABLED", false),
			Brokers:    getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			UsageTopic: getEnv("KAFKA_USAGE_TOPIC", "gateway.usage"),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
			Addr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("CLICKHOUSE_DATABASE", "gateway"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		},
		Elastic: ElasticConfig{
			Enabled:    getEnvBool("ELASTIC_ENABLED", false),
			Addresses:  getEnvSlice("ELASTIC_ADDRESSES", []string{"http://localhost:9200"}),
			Username:   getEnv("ELASTIC_USERNAME", ""),
			Password:   getEnv("ELASTIC_PASSWORD", ""),
			AuditIndex: getEnv("ELASTIC_AUDIT_INDEX", "gateway-audit"),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			Region:  getEnv("KMS_REGION", "us-east-1"),
			KeyID:   getEnv("KMS_KEY_ID", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:    getEnvBool("RATE_LIMIT_ENABLED", true),
			FailOpen:   getEnvBool("RATE_LIMIT_FAIL_OPEN", true),
			LegacyTier: getEnv("RATE_LIMIT_LEGACY_TIER", "firebase"),
			Tiers: map[string]TierLimits{
				"anonymous": {
					PerMinute: getEnvInt("RATE_LIMIT_ANONYMOUS_PER_MINUTE", 30),
					PerHour:   getEnvInt("RATE_LIMIT_ANONYMOUS_PER_HOUR", 500),
					PerDay:    getEnvInt("RATE_LIMIT_ANONYMOUS_PER_DAY", 2000),
				},
				"firebase": {
					PerMinute: getEnvInt("RATE_LIMIT_FIREBASE_PER_MINUTE", 60),
					PerHour:   getEnvInt("RATE_LIMIT_FIREBASE_PER_HOUR", 1000),
					PerDay:    getEnvInt("RATE_LIMIT_FIREBASE_PER_DAY", 10000),
				},
				"api_token": {
					PerMinute: getEnvInt("RATE_LIMIT_API_TOKEN_PER_MINUTE", 120),
					PerHour:   getEnvInt("RATE_LIMIT_API_TOKEN_PER_HOUR", 2000),
					PerDay:    getEnvInt("RATE_LIMIT_API_TOKEN_PER_DAY", 20000),
				},
			},
		},
		Token: TokenConfig{
			MaxPerUser:     getEnvInt("API_TOKEN_MAX_PER_USER", 5),
			DefaultTTLDays: getEnvInt("API_TOKEN_EXPIRY_DAYS", 30),
		},
		Auth: AuthConfig{
			FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			JWTSecret:               getEnv("JWT_SECRET", ""),
			JWTSecretEncrypted:      getEnv("JWT_SECRET_ENCRYPTED", ""),
			JWTExpiry:               getEnvDuration("JWT_EXPIRY", time.Hour),
		},
		Bucketing: BucketingConfig{
			IdentityBuckets: getEnvInt("BUCKETING_IDENTITY_BUCKETS", 64),
			EventBuckets:    getEnvInt("BUCKETING_EVENT_BUCKETS", 16),
		},
		Analytics: AnalyticsConfig{
			Enabled:       getEnvBool("ANALYTICS_ENABLED", true),
			BufferSize:    getEnvInt("ANALYTICS_BUFFER_SIZE", 4096),
			BatchSize:     getEnvInt("ANALYTICS_BATCH_SIZE", 200),
			FlushInterval: getEnvDuration("ANALYTICS_FLUSH_INTERVAL", 5*time.Second),
		},
	}

	return cfg
}

// Validate checks settings that must be present before serving traffic.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.Auth.JWTSecret == "" && c.Auth.JWTSecretEncrypted == "" {
			return fmt.Errorf("JWT_SECRET or JWT_SECRET_ENCRYPTED is required in production")
		}
		if !c.Redis.Enabled {
			return fmt.Errorf("REDIS_ENABLED=false is not supported in production: in-process counters are not shared across instances")
		}
	}
	for name, limits := range c.RateLimit.Tiers {
		if limits.PerMinute <= 0 || limits.PerHour <= 0 || limits.PerDay <= 0 {
			return fmt.Errorf("tier %q has a non-positive ceiling", name)
		}
	}
	if _, ok := c.RateLimit.Tiers[c.RateLimit.LegacyTier]; !ok {
		return fmt.Errorf("RATE_LIMIT_LEGACY_TIER %q does not name a configured tier", c.RateLimit.LegacyTier)
	}
	return nil
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
