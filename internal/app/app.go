package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/shopflow/orderflow/internal/client"
	"github.com/shopflow/orderflow/internal/client/mock"
	"github.com/shopflow/orderflow/internal/config"
	"github.com/shopflow/orderflow/internal/domain"
	"github.com/shopflow/orderflow/internal/event"
	handler "github.com/shopflow/orderflow/internal/handler/http"
	"github.com/shopflow/orderflow/internal/notification"
	"github.com/shopflow/orderflow/internal/pricing"
	"github.com/shopflow/orderflow/internal/repository"
	"github.com/shopflow/orderflow/internal/repository/memory"
	"github.com/shopflow/orderflow/internal/repository/postgres"
	redisrepo "github.com/shopflow/orderflow/internal/repository/redis"
	"github.com/shopflow/orderflow/internal/service"
	"github.com/shopflow/orderflow/migrations"
	"github.com/shopflow/orderflow/pkg/database"
	"github.com/shopflow/orderflow/pkg/health"
	"github.com/shopflow/orderflow/pkg/httpclient"
	pkgkafka "github.com/shopflow/orderflow/pkg/kafka"
	"github.com/shopflow/orderflow/pkg/tracing"
)

const serviceVersion = "0.1.0"

// App wires together all dependencies and runs the orderflow service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	dispatcher     *notification.Dispatcher
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// On failure every resource opened so far is released.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	policy, err := domain.ParseCompensationPolicy(cfg.CompensationPolicy)
	if err != nil {
		return nil, fmt.Errorf("compensation policy: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	a.tracerShutdown, err = tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler()

	orderRepo, err := a.orderRepository(ctx, healthHandler)
	if err != nil {
		return nil, err
	}
	cartRepo, keys, err := a.cartStores(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	publisher := a.publisher(healthHandler)

	// Downstream services, each behind its own breaker.
	paymentDoer := a.downstream("payment-service")
	userDoer := a.downstream("user-service")
	pricingDoer := a.downstream("pricing-service")
	orderDoer := a.downstream("order-service")

	senders := map[string]notification.Sender{
		notification.ChannelEmail: notification.NewLogSender(logger),
		notification.ChannelSMS:   notification.NewLogSender(logger),
	}
	if cfg.NotificationSender == config.SenderKafka {
		kafkaSender := notification.NewKafkaSender(publisher, cfg.ServiceName)
		senders[notification.ChannelEmail] = kafkaSender
		senders[notification.ChannelSMS] = kafkaSender
	}
	a.dispatcher = notification.NewDispatcher(notification.Config{
		QueueSize:    cfg.NotificationQueueSize,
		Workers:      cfg.NotificationWorkers,
		MaxAttempts:  cfg.NotificationMaxAttempts,
		RetryBackoff: time.Duration(cfg.NotificationRetryBackoffMs) * time.Millisecond,
		SendTimeout:  notification.DefaultConfig().SendTimeout,
	}, senders, logger)

	events := event.NewProducer(publisher, logger)

	var users service.UserDirectory
	if cfg.UserLookupEnabled {
		users = client.NewUserClient(userDoer, cfg.UserServiceURL)
	}

	orderService := service.NewOrderService(
		orderRepo,
		users,
		a.dispatcher,
		events,
		logger,
	)

	var source pricing.Source = client.NewPricingClient(pricingDoer, cfg.PricingServiceURL)
	if cfg.PricingProvider == config.ProviderMock {
		source = mock.FixedPriceSource{UnitPrice: cfg.UnitPrice()}
	}

	var payments service.PaymentGateway = client.NewPaymentClient(paymentDoer, cfg.PaymentServiceURL)
	if cfg.PaymentProvider == config.ProviderMock {
		payments = mock.NewPaymentGateway()
	}

	var orders service.OrderGateway = orderService
	if cfg.OrderGateway == config.ProviderHTTP {
		orders = client.NewOrderClient(orderDoer, cfg.OrderServiceURL)
	}

	checkoutService := service.NewCheckoutService(
		cartRepo,
		pricing.NewCalculator(source),
		orders,
		payments,
		keys,
		events,
		service.CheckoutOptions{
			Timeouts: service.SagaTimeouts{
				CartTimeout:    time.Duration(cfg.SagaCartTimeout) * time.Second,
				PricingTimeout: time.Duration(cfg.SagaPricingTimeout) * time.Second,
				OrderTimeout:   time.Duration(cfg.SagaOrderTimeout) * time.Second,
				PaymentTimeout: time.Duration(cfg.SagaPaymentTimeout) * time.Second,
			},
			Compensation:   policy,
			IdempotencyTTL: cfg.IdempotencyTTL(),
		},
		logger,
	)
	logger.Info("checkout configured",
		slog.String("compensation_policy", cfg.CompensationPolicy),
		slog.String("payment_provider", cfg.PaymentProvider),
		slog.String("pricing_provider", cfg.PricingProvider),
		slog.String("order_gateway", cfg.OrderGateway),
	)

	router := handler.NewRouter(handler.RouterConfig{
		ServiceName:    cfg.ServiceName,
		RequestTimeout: cfg.RequestTimeout(),
	}, orderService, checkoutService, healthHandler, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) orderRepository(ctx context.Context, hh *health.Handler) (repository.OrderRepository, error) {
	if a.cfg.StorageDriver == config.StorageMemory {
		a.logger.Warn("using in-memory order storage; orders are lost on restart")
		return memory.NewOrderRepository(), nil
	}

	pool, err := database.NewPostgresPool(ctx, a.cfg.Postgres(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", a.cfg.PostgresHost),
		slog.Int("port", a.cfg.PostgresPort),
		slog.String("database", a.cfg.PostgresDB),
	)

	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, a.cfg.ServiceName); err != nil {
		a.logger.Warn("register pool metrics", slog.String("error", err.Error()))
	}
	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	a.logger.Info("database migrations completed")

	if a.cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(a.cfg.SlowQueryThresholdMs)*time.Millisecond, a.logger)
	}

	hh.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	return postgres.NewOrderRepository(pool), nil
}

func (a *App) cartStores(ctx context.Context, hh *health.Handler) (repository.CartRepository, repository.IdempotencyStore, error) {
	if a.cfg.CartStore == config.StorageMemory {
		a.logger.Warn("using in-memory cart storage")
		return memory.NewCartRepository(), memory.NewIdempotencyStore(), nil
	}

	rdb, err := database.NewRedisClient(ctx, a.cfg.Redis())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.rdb = rdb
	a.logger.Info("connected to Redis", slog.String("addr", a.cfg.Redis().Addr()))

	hh.RegisterCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	return redisrepo.NewCartRepository(rdb, a.cfg.CartTTL()), redisrepo.NewIdempotencyStore(rdb), nil
}

func (a *App) publisher(hh *health.Handler) pkgkafka.Publisher {
	if !a.cfg.KafkaEnabled {
		a.logger.Warn("kafka disabled; events are discarded")
		return pkgkafka.Discard{}
	}

	a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(a.cfg.KafkaBrokers), a.logger)
	a.logger.Info("kafka producer initialized", slog.Any("brokers", a.cfg.KafkaBrokers))

	hh.RegisterNonCritical("kafka", a.producer.Ping)
	return a.producer
}

func (a *App) downstream(name string) httpclient.Doer {
	base := httpclient.New(httpclient.Config{
		Timeout:         time.Duration(a.cfg.HTTPClientTimeoutSeconds) * time.Second,
		MaxRetries:      a.cfg.HTTPClientMaxRetries,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 100,
	})

	cbCfg := httpclient.CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  a.cfg.CBMaxRequests,
		Interval:     time.Duration(a.cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(a.cfg.CBTimeout) * time.Second,
		FailureRatio: a.cfg.CBFailureRatio,
		MinRequests:  a.cfg.CBMinRequests,
	}
	return httpclient.NewCircuitBreakerClient(base, cbCfg, a.logger).
		WithFallback(httpclient.ServiceUnavailableFallback(name))
}

// Handler exposes the HTTP handler tree.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Notification dispatcher (deliver queued messages)
// 3. Tracer (flush pending spans)
// 4. Kafka producer
// 5. Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error
	budget := a.cfg.ShutdownTimeout()

	if a.httpServer != nil {
		httpCtx, httpCancel := context.WithTimeout(context.Background(), budget/2)
		defer httpCancel()
		if err := a.httpServer.Shutdown(httpCtx); err != nil {
			a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.dispatcher != nil {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), budget/3)
		defer drainCancel()
		if err := a.dispatcher.Close(drainCtx); err != nil {
			a.logger.Error("notification dispatcher shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases the tracer, producer and connections. Each is
// released once.
func (a *App) closeResources() error {
	var errs []error

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.producer = nil
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		a.rdb = nil
	}

	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}

	return errors.Join(errs...)
}
