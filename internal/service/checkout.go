package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shopflow/orderflow/internal/domain"
	"github.com/shopflow/orderflow/internal/repository"
	apperrors "github.com/shopflow/orderflow/pkg/errors"
	"github.com/shopflow/orderflow/pkg/httpclient"
	"github.com/shopflow/orderflow/pkg/logger"
	"github.com/shopflow/orderflow/pkg/tracing"
)

// DefaultIdempotencyTTL is how long a checkout idempotency key stays
// reserved after a checkout that reached the payment stages.
const DefaultIdempotencyTTL = 24 * time.Hour

// SagaTimeouts holds per-stage timeouts. A zero value means the stage only
// inherits the caller's deadline.
type SagaTimeouts struct {
	CartTimeout    time.Duration
	PricingTimeout time.Duration
	OrderTimeout   time.Duration
	PaymentTimeout time.Duration
}

func (t SagaTimeouts) forStage(stage string) time.Duration {
	switch stage {
	case domain.StageCart, domain.StageCartClear:
		return t.CartTimeout
	case domain.StagePricing:
		return t.PricingTimeout
	case domain.StageOrderCreation:
		return t.OrderTimeout
	case domain.StagePaymentIntent, domain.StagePaymentConfirmation:
		return t.PaymentTimeout
	default:
		return 0
	}
}

// CheckoutOptions configures the checkout saga.
type CheckoutOptions struct {
	Timeouts       SagaTimeouts
	Compensation   domain.CompensationPolicy
	IdempotencyTTL time.Duration
}

// CheckoutService runs the checkout saga: cart, pricing, order creation,
// payment intent, payment confirmation and cart clear, strictly in order.
type CheckoutService struct {
	carts    repository.CartRepository
	pricer   Pricer
	orders   OrderGateway
	payments PaymentGateway
	keys     repository.IdempotencyStore
	events   CheckoutEvents
	opts     CheckoutOptions
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewCheckoutService creates a checkout service. keys and events may be nil.
func NewCheckoutService(
	carts repository.CartRepository,
	pricer Pricer,
	orders OrderGateway,
	payments PaymentGateway,
	keys repository.IdempotencyStore,
	events CheckoutEvents,
	opts CheckoutOptions,
	logger *slog.Logger,
) *CheckoutService {
	if opts.Compensation == nil {
		opts.Compensation = domain.NoCompensation
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = DefaultIdempotencyTTL
	}
	return &CheckoutService{
		carts:    carts,
		pricer:   pricer,
		orders:   orders,
		payments: payments,
		keys:     keys,
		events:   events,
		opts:     opts,
		logger:   logger,
		tracer:   tracing.Tracer("github.com/shopflow/orderflow/internal/service"),
		now:      time.Now,
	}
}

// checkoutRun carries the state built up by one checkout.
type checkoutRun struct {
	req     domain.CheckoutRequest
	key     string
	steps   []domain.SagaStep
	cart    *domain.Cart
	price   *domain.PriceBreakdown
	order   *domain.CreateOrderResponse
	intent  *domain.PaymentIntent
	payment *domain.PaymentConfirmation
}

func (r *checkoutRun) step(stage string) *domain.SagaStep {
	for i := range r.steps {
		if r.steps[i].Name == stage {
			return &r.steps[i]
		}
	}
	return nil
}

func (r *checkoutRun) orderID() string {
	if r.order == nil {
		return ""
	}
	return r.order.OrderID
}

// Checkout places an order for the user's cart and pays for it. A stage
// failure aborts the remaining stages and returns a *domain.CheckoutError
// naming the stage. The cart is only cleared once payment is confirmed.
//
// Order creation, payment intent and confirmation each carry their own
// idempotency key downstream, so the transport may replay them safely.
func (s *CheckoutService) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	if req.UserID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	start := time.Now()
	defer func() { checkoutDuration.Observe(time.Since(start).Seconds()) }()

	ctx = logger.WithUserID(ctx, req.UserID)
	ctx, span := s.tracer.Start(ctx, "checkout", trace.WithAttributes(attribute.String("user.id", req.UserID)))
	defer span.End()

	if err := s.reserveKey(ctx, req.IdempotencyKey); err != nil {
		if errors.Is(err, domain.ErrDuplicateCheckout) {
			checkoutTotal.WithLabelValues(outcomeDuplicate).Inc()
		} else {
			checkoutTotal.WithLabelValues(outcomeFailed).Inc()
			s.logger.ErrorContext(ctx, "failed to reserve idempotency key", slog.String("error", err.Error()))
			err = &domain.CheckoutError{Stage: domain.StageIdempotency, Err: err, Steps: domain.NewCheckoutSaga()}
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	run := &checkoutRun{req: req, key: req.IdempotencyKey, steps: domain.NewCheckoutSaga()}
	if run.key == "" {
		run.key = uuid.NewString()
	}

	stages := []struct {
		name string
		fn   func(context.Context, *checkoutRun) error
	}{
		{domain.StageCart, s.resolveCart},
		{domain.StagePricing, s.priceCart},
		{domain.StageOrderCreation, s.createOrder},
		{domain.StagePaymentIntent, s.createIntent},
		{domain.StagePaymentConfirmation, s.confirmPayment},
	}
	for _, st := range stages {
		if err := s.runStage(ctx, run, st.name, st.fn); err != nil {
			cerr := s.fail(ctx, run, st.name, err)
			span.SetStatus(codes.Error, cerr.Error())
			return nil, cerr
		}
	}

	cleared := true
	if err := s.runStage(ctx, run, domain.StageCartClear, s.clearCart); err != nil {
		cleared = false
		s.logger.ErrorContext(ctx, "failed to clear cart after payment",
			slog.String("order_id", run.orderID()),
			slog.String("error", err.Error()),
		)
	}

	res := &domain.CheckoutResult{
		Order:       run.order,
		Intent:      run.intent,
		Payment:     run.payment,
		Message:     domain.CheckoutSuccessMessage,
		CartCleared: cleared,
		Steps:       run.steps,
	}

	checkoutTotal.WithLabelValues(outcomeSuccess).Inc()

	if s.events != nil {
		if err := s.events.PublishCheckoutCompleted(ctx, req.UserID, res); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish checkout.completed event",
				slog.String("order_id", run.orderID()),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "checkout completed",
		slog.String("order_id", run.orderID()),
		slog.String("intent_id", run.intent.ID),
		slog.String("total_amount", run.order.TotalAmount.StringFixed(2)),
		slog.Bool("cart_cleared", cleared),
	)

	return res, nil
}

func (s *CheckoutService) reserveKey(ctx context.Context, key string) error {
	if key == "" || s.keys == nil {
		return nil
	}
	ok, err := s.keys.Reserve(ctx, key, s.opts.IdempotencyTTL)
	if err != nil {
		return fmt.Errorf("reserve idempotency key: %w", err)
	}
	if !ok {
		return domain.DuplicateCheckout(key)
	}
	return nil
}

// runStage runs fn under the stage's span and timeout and records the
// outcome on the saga step.
func (s *CheckoutService) runStage(ctx context.Context, run *checkoutRun, stage string, fn func(context.Context, *checkoutRun) error) error {
	ctx, span := s.tracer.Start(ctx, "checkout."+stage, trace.WithAttributes(attribute.String("checkout.stage", stage)))
	defer span.End()

	if d := s.opts.Timeouts.forStage(stage); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	step := run.step(stage)
	if err := fn(ctx, run); err != nil {
		step.Fail(err.Error())
		checkoutStageFailures.WithLabelValues(stage).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	step.Complete()
	return nil
}

// fail builds the checkout error for a failed stage, runs the configured
// compensations and releases the idempotency key when nothing outside this
// service has been charged.
func (s *CheckoutService) fail(ctx context.Context, run *checkoutRun, stage string, cause error) *domain.CheckoutError {
	s.compensate(ctx, run, stage)

	cerr := &domain.CheckoutError{
		Stage:   stage,
		OrderID: run.orderID(),
		Err:     cause,
		Steps:   run.steps,
	}

	if releasable(stage, cause) && run.req.IdempotencyKey != "" && s.keys != nil {
		if err := s.keys.Release(context.WithoutCancel(ctx), run.req.IdempotencyKey); err != nil {
			s.logger.WarnContext(ctx, "failed to release idempotency key",
				slog.String("error", err.Error()),
			)
		}
	}

	checkoutTotal.WithLabelValues(outcomeFailed).Inc()

	if s.events != nil {
		if err := s.events.PublishCheckoutFailed(ctx, run.req.UserID, cerr); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish checkout.failed event",
				slog.String("stage", stage),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.WarnContext(ctx, "checkout failed",
		slog.String("stage", stage),
		slog.String("order_id", cerr.OrderID),
		slog.String("error", cause.Error()),
	)

	return cerr
}

// releasable reports whether a checkout that failed at stage may be retried
// under the same key. An order_creation failure only qualifies when the order
// service gave a definite answer; after a timeout or a 5xx the order may exist.
func releasable(stage string, cause error) bool {
	switch stage {
	case domain.StageCart, domain.StagePricing:
		return true
	case domain.StageOrderCreation:
		if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
			return false
		}
		return apperrors.HTTPStatus(cause) < 500
	default:
		return false
	}
}

func (s *CheckoutService) compensate(ctx context.Context, run *checkoutRun, stage string) {
	for _, c := range s.opts.Compensation.For(stage) {
		step := run.step(c.Stage())
		if step == nil || step.Status != domain.SagaStepCompleted {
			continue
		}

		switch c {
		case domain.CompensationCancelOrder:
			cctx := httpclient.WithIdempotencyKey(context.WithoutCancel(ctx), "order:"+run.orderID()+":cancel")
			if d := s.opts.Timeouts.OrderTimeout; d > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(cctx, d)
				defer cancel()
			}
			if _, err := s.orders.CancelOrder(cctx, run.orderID()); err != nil {
				s.logger.ErrorContext(ctx, "compensation failed",
					slog.String("compensation", string(c)),
					slog.String("order_id", run.orderID()),
					slog.String("error", err.Error()),
				)
				continue
			}
		}

		step.Compensate()
		s.logger.InfoContext(ctx, "compensation applied",
			slog.String("compensation", string(c)),
			slog.String("order_id", run.orderID()),
		)
	}
}

func (s *CheckoutService) resolveCart(ctx context.Context, run *checkoutRun) error {
	cart, err := s.carts.Get(ctx, run.req.UserID)
	if err == nil {
		run.cart = cart
		return nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("get cart: %w", err)
	}

	cart = domain.NewCart(run.req.UserID, s.now())
	if err := s.carts.Save(ctx, cart); err != nil {
		return fmt.Errorf("create cart: %w", err)
	}
	run.cart = cart
	return nil
}

func (s *CheckoutService) priceCart(ctx context.Context, run *checkoutRun) error {
	price, err := s.pricer.Price(ctx, run.cart)
	if err != nil {
		return err
	}
	run.price = price
	return nil
}

func (s *CheckoutService) createOrder(ctx context.Context, run *checkoutRun) error {
	ctx = httpclient.WithIdempotencyKey(ctx, run.key+":"+domain.StageOrderCreation)
	resp, err := s.orders.CreateFromCheckout(ctx, buildOrderRequest(run.req, run.price))
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	run.order = resp
	return nil
}

func (s *CheckoutService) createIntent(ctx context.Context, run *checkoutRun) error {
	ctx = httpclient.WithIdempotencyKey(ctx, "order:"+run.order.OrderID+":"+domain.StagePaymentIntent)
	intent, err := s.payments.CreateIntent(ctx, &domain.PaymentIntentRequest{
		OrderID: run.order.OrderID,
		UserID:  run.req.UserID,
		Amount:  run.order.TotalAmount,
		Method:  run.req.PaymentMethod,
	})
	if err != nil {
		return fmt.Errorf("create payment intent: %w", err)
	}
	run.intent = intent
	return nil
}

func (s *CheckoutService) confirmPayment(ctx context.Context, run *checkoutRun) error {
	ctx = httpclient.WithIdempotencyKey(ctx, run.intent.ID+":"+domain.StagePaymentConfirmation)
	conf, err := s.payments.Confirm(ctx, run.intent.ID)
	if err != nil {
		return fmt.Errorf("confirm payment: %w", err)
	}
	run.payment = conf
	return nil
}

func (s *CheckoutService) clearCart(ctx context.Context, run *checkoutRun) error {
	run.cart.Clear(s.now())
	if err := s.carts.Save(ctx, run.cart); err != nil {
		return fmt.Errorf("save cleared cart: %w", err)
	}
	return nil
}

// buildOrderRequest turns a priced cart into the order-creation payload. A
// cart with no items still produces a payload with a zero amount.
func buildOrderRequest(req domain.CheckoutRequest, price *domain.PriceBreakdown) *domain.CreateOrderRequest {
	items := make([]domain.CreateOrderItem, 0, len(price.Lines))
	for _, l := range price.Lines {
		items = append(items, domain.CreateOrderItem{
			ProductID: l.ProductID,
			Name:      domain.ItemName(l.ProductID),
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
		})
	}
	return &domain.CreateOrderRequest{
		UserID:         req.UserID,
		AddressID:      req.AddressID,
		ShippingOption: req.ShippingOption,
		Amount:         price.GrandTotal,
		Items:          items,
	}
}
