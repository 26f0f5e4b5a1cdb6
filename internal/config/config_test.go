package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "orderflow", cfg.ServiceName)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, StoreRedis, cfg.CartStore)
	assert.Equal(t, GatewayLocal, cfg.OrderGateway)
	assert.Equal(t, SenderKafka, cfg.NotificationSender)
	assert.Equal(t, "none", cfg.CompensationPolicy)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3, cfg.NotificationMaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL())
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
}

func TestLoad_InvalidHTTPPort(t *testing.T) {
	t.Setenv("HTTP_PORT", "0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestLoad_Selectors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"storage", "STORAGE_DRIVER", "sqlite"},
		{"cart store", "CART_STORE", "memcached"},
		{"payment", "PAYMENT_PROVIDER", "stripe"},
		{"pricing", "PRICING_PROVIDER", "static"},
		{"order gateway", "ORDER_GATEWAY", "grpc"},
		{"notification", "NOTIFICATION_SENDER", "smtp"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key+" must be one of")
		})
	}
}

func TestLoad_InMemoryProfile(t *testing.T) {
	setEnvs(t, map[string]string{
		"STORAGE_DRIVER":      "memory",
		"CART_STORE":          "memory",
		"PAYMENT_PROVIDER":    "mock",
		"PRICING_PROVIDER":    "mock",
		"NOTIFICATION_SENDER": "log",
		"KAFKA_ENABLED":       "false",
		"MOCK_UNIT_PRICE":     "4.50",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, ProviderMock, cfg.PaymentProvider)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, "4.50", cfg.UnitPrice().StringFixed(2))
}

func TestLoad_KafkaSenderNeedsKafka(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "false")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires KAFKA_ENABLED=true")
}

func TestLoad_InvalidMockUnitPrice(t *testing.T) {
	setEnvs(t, map[string]string{
		"PRICING_PROVIDER": "mock",
		"MOCK_UNIT_PRICE":  "-1",
	})

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid MOCK_UNIT_PRICE")
}

func TestLoad_InvalidCompensationPolicy(t *testing.T) {
	t.Setenv("CHECKOUT_COMPENSATION_POLICY", "refund_everything")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHECKOUT_COMPENSATION_POLICY")
}

func TestLoad_CancelOrderPolicy(t *testing.T) {
	t.Setenv("CHECKOUT_COMPENSATION_POLICY", "cancel_order")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "cancel_order", cfg.CompensationPolicy)
}

func TestLoad_InvalidNotificationAttempts(t *testing.T) {
	t.Setenv("NOTIFICATION_MAX_ATTEMPTS", "0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTIFICATION_MAX_ATTEMPTS")
}

func TestLoad_InvalidOTELSampleRate(t *testing.T) {
	t.Setenv("OTEL_SAMPLE_RATE", "2.0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTEL_SAMPLE_RATE must be between 0.0 and 1.0")
}

func TestLoad_InvalidPaymentServiceURL(t *testing.T) {
	t.Setenv("PAYMENT_SERVICE_URL", "not-a-url")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PAYMENT_SERVICE_URL")
}

func TestLoad_OrderServiceURLOnlyCheckedForHTTPGateway(t *testing.T) {
	t.Setenv("ORDER_SERVICE_URL", "not-a-url")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, GatewayLocal, cfg.OrderGateway)

	t.Setenv("ORDER_GATEWAY", "http")

	cfg, err = Load()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ORDER_SERVICE_URL")
}

func TestLoad_CustomSagaTimeouts(t *testing.T) {
	setEnvs(t, map[string]string{
		"SAGA_CART_TIMEOUT":    "1",
		"SAGA_PRICING_TIMEOUT": "3",
		"SAGA_ORDER_TIMEOUT":   "15",
		"SAGA_PAYMENT_TIMEOUT": "20",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 1, cfg.SagaCartTimeout)
	assert.Equal(t, 3, cfg.SagaPricingTimeout)
	assert.Equal(t, 15, cfg.SagaOrderTimeout)
	assert.Equal(t, 20, cfg.SagaPaymentTimeout)
}

func TestConfig_ConnectionSettings(t *testing.T) {
	setEnvs(t, map[string]string{
		"POSTGRES_HOST":                "db.internal",
		"DB_MAX_CONNS":                 "40",
		"DB_MAX_CONN_LIFETIME_MINUTES": "10",
		"REDIS_HOST":                   "cache.internal",
		"REDIS_PORT":                   "6380",
		"REDIS_DB":                     "2",
	})

	cfg, err := Load()
	require.NoError(t, err)

	pg := cfg.Postgres()
	assert.Equal(t, "db.internal", pg.Host)
	assert.Equal(t, int32(40), pg.MaxConns)
	assert.Equal(t, 10*time.Minute, pg.MaxConnLifetime)

	rc := cfg.Redis()
	assert.Equal(t, "cache.internal:6380", rc.Addr())
	assert.Equal(t, 2, rc.DB)
	assert.Equal(t, 168*time.Hour, cfg.CartTTL())
}
