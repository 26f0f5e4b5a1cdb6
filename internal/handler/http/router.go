package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopflow/orderflow/internal/service"
	"github.com/shopflow/orderflow/pkg/health"
	"github.com/shopflow/orderflow/pkg/middleware"
)

// RouterConfig holds router settings.
type RouterConfig struct {
	ServiceName    string
	RequestTimeout time.Duration
}

// NewRouter creates a chi router with the checkout and order routes.
func NewRouter(
	cfg RouterConfig,
	orderService *service.OrderService,
	checkoutService *service.CheckoutService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	orderHandler := NewOrderHandler(orderService, logger)
	checkoutHandler := NewCheckoutHandler(checkoutService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/checkout", checkoutHandler.Checkout)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.PlaceOrder)
			r.Get("/", orderHandler.ListOrders)
			r.Post("/checkout", orderHandler.CreateFromCheckout)
			r.Get("/{id}", orderHandler.GetOrder)
			r.Get("/{id}/track", orderHandler.TrackOrder)
			r.Put("/{id}", orderHandler.UpdateOrder)
			r.Post("/{id}/cancel", orderHandler.CancelOrder)
		})
	})

	return r
}
