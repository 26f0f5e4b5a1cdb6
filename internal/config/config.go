package config

import (
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopflow/orderflow/internal/domain"
	pkgconfig "github.com/shopflow/orderflow/pkg/config"
	"github.com/shopflow/orderflow/pkg/database"
)

// Backend selectors.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
	StoreRedis      = "redis"
	ProviderHTTP    = "http"
	ProviderMock    = "mock"
	GatewayLocal    = "local"
	SenderLog       = "log"
	SenderKafka     = "kafka"
)

// Config holds all configuration for the orderflow service.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"orderflow"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort               int `env:"HTTP_PORT" envDefault:"8080"`
	RequestTimeoutSeconds  int `env:"HTTP_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
	ShutdownTimeoutSeconds int `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"15"`

	// Backends
	StorageDriver      string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	CartStore          string `env:"CART_STORE" envDefault:"redis"`
	PaymentProvider    string `env:"PAYMENT_PROVIDER" envDefault:"http"`
	PricingProvider    string `env:"PRICING_PROVIDER" envDefault:"http"`
	OrderGateway       string `env:"ORDER_GATEWAY" envDefault:"local"`
	NotificationSender string `env:"NOTIFICATION_SENDER" envDefault:"kafka"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"orderflow"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"orderflow_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"orderflow"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`
	SlowQueryThresholdMs  int   `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	CartTTLHours  int    `env:"CART_TTL_HOURS" envDefault:"168"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Downstream services
	UserLookupEnabled bool   `env:"USER_LOOKUP_ENABLED" envDefault:"true"`
	PaymentServiceURL string `env:"PAYMENT_SERVICE_URL" envDefault:"http://localhost:8005"`
	PricingServiceURL string `env:"PRICING_SERVICE_URL" envDefault:"http://localhost:8002"`
	UserServiceURL    string `env:"USER_SERVICE_URL" envDefault:"http://localhost:8001"`
	OrderServiceURL   string `env:"ORDER_SERVICE_URL" envDefault:"http://localhost:8003"`

	// Unit price used when PRICING_PROVIDER=mock.
	MockUnitPrice string `env:"MOCK_UNIT_PRICE" envDefault:"10.00"`

	// Outbound HTTP
	HTTPClientTimeoutSeconds int `env:"HTTP_CLIENT_TIMEOUT_SECONDS" envDefault:"10"`
	HTTPClientMaxRetries     int `env:"HTTP_CLIENT_MAX_RETRIES" envDefault:"2"`

	// Circuit breaker settings for downstream service calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Per-stage checkout timeouts (seconds). Zero disables the stage timeout.
	SagaCartTimeout    int `env:"SAGA_CART_TIMEOUT" envDefault:"2"`
	SagaPricingTimeout int `env:"SAGA_PRICING_TIMEOUT" envDefault:"5"`
	SagaOrderTimeout   int `env:"SAGA_ORDER_TIMEOUT" envDefault:"5"`
	SagaPaymentTimeout int `env:"SAGA_PAYMENT_TIMEOUT" envDefault:"10"`

	CompensationPolicy  string `env:"CHECKOUT_COMPENSATION_POLICY" envDefault:"none"`
	IdempotencyTTLHours int    `env:"CHECKOUT_IDEMPOTENCY_TTL_HOURS" envDefault:"24"`

	// Notifications
	NotificationWorkers        int `env:"NOTIFICATION_WORKERS" envDefault:"2"`
	NotificationQueueSize      int `env:"NOTIFICATION_QUEUE_SIZE" envDefault:"256"`
	NotificationMaxAttempts    int `env:"NOTIFICATION_MAX_ATTEMPTS" envDefault:"3"`
	NotificationRetryBackoffMs int `env:"NOTIFICATION_RETRY_BACKOFF_MS" envDefault:"500"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load orderflow config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func oneOf(name, value string, allowed ...string) error {
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("%s must be one of %v, got %q", name, allowed, value)
	}
	return nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	selectors := []error{
		oneOf("STORAGE_DRIVER", c.StorageDriver, StoragePostgres, StorageMemory),
		oneOf("CART_STORE", c.CartStore, StoreRedis, StorageMemory),
		oneOf("PAYMENT_PROVIDER", c.PaymentProvider, ProviderHTTP, ProviderMock),
		oneOf("PRICING_PROVIDER", c.PricingProvider, ProviderHTTP, ProviderMock),
		oneOf("ORDER_GATEWAY", c.OrderGateway, GatewayLocal, ProviderHTTP),
		oneOf("NOTIFICATION_SENDER", c.NotificationSender, SenderLog, SenderKafka),
	}
	for _, err := range selectors {
		if err != nil {
			return err
		}
	}

	if _, err := domain.ParseCompensationPolicy(c.CompensationPolicy); err != nil {
		return fmt.Errorf("CHECKOUT_COMPENSATION_POLICY: %w", err)
	}

	if c.StorageDriver == StoragePostgres {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
	}
	if c.CartStore == StoreRedis && c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}
	if c.NotificationSender == SenderKafka && !c.KafkaEnabled {
		return fmt.Errorf("NOTIFICATION_SENDER=kafka requires KAFKA_ENABLED=true")
	}
	if c.PricingProvider == ProviderMock {
		price, err := decimal.NewFromString(c.MockUnitPrice)
		if err != nil || price.IsNegative() {
			return fmt.Errorf("invalid MOCK_UNIT_PRICE %q", c.MockUnitPrice)
		}
	}
	if c.NotificationMaxAttempts < 1 {
		return fmt.Errorf("NOTIFICATION_MAX_ATTEMPTS must be at least 1, got %d", c.NotificationMaxAttempts)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}

	urls := map[string]string{}
	if c.UserLookupEnabled {
		urls["USER_SERVICE_URL"] = c.UserServiceURL
	}
	if c.PaymentProvider == ProviderHTTP {
		urls["PAYMENT_SERVICE_URL"] = c.PaymentServiceURL
	}
	if c.PricingProvider == ProviderHTTP {
		urls["PRICING_SERVICE_URL"] = c.PricingServiceURL
	}
	if c.OrderGateway == ProviderHTTP {
		urls["ORDER_SERVICE_URL"] = c.OrderServiceURL
	}
	for name, rawURL := range urls {
		if rawURL == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, rawURL, err)
		}
	}
	return nil
}

// Postgres returns the database pool settings.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the Redis connection settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// RequestTimeout is the per-request handler deadline.
func (c *Config) RequestTimeout() time.Duration { return seconds(c.RequestTimeoutSeconds) }

// ShutdownTimeout bounds graceful shutdown.
func (c *Config) ShutdownTimeout() time.Duration { return seconds(c.ShutdownTimeoutSeconds) }

// CartTTL is how long an untouched cart is kept in Redis.
func (c *Config) CartTTL() time.Duration { return time.Duration(c.CartTTLHours) * time.Hour }

// UnitPrice parses MockUnitPrice. validate guarantees it is well formed.
func (c *Config) UnitPrice() decimal.Decimal {
	price, _ := decimal.NewFromString(c.MockUnitPrice)
	return price
}

// IdempotencyTTL is how long a checkout idempotency key stays reserved.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLHours) * time.Hour
}
