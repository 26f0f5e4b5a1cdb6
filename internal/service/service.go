package service

import (
	"context"

	"github.com/shopflow/orderflow/internal/domain"
)

// OrderGateway creates orders on behalf of checkout. *OrderService is the
// in-process gateway; client.OrderClient reaches a remote order service.
type OrderGateway interface {
	CreateFromCheckout(ctx context.Context, req *domain.CreateOrderRequest) (*domain.CreateOrderResponse, error)
	CancelOrder(ctx context.Context, id string) (*domain.Order, error)
}

// PaymentGateway opens and confirms payment intents. Each call may fail on
// its own; retries belong to the transport.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req *domain.PaymentIntentRequest) (*domain.PaymentIntent, error)
	Confirm(ctx context.Context, intentID string) (*domain.PaymentConfirmation, error)
}

// UserDirectory resolves customer contact details.
type UserDirectory interface {
	GetUserDetails(ctx context.Context, customerID string) (*domain.UserDetails, error)
}

// Pricer prices a cart. *pricing.Calculator implements it.
type Pricer interface {
	Price(ctx context.Context, cart *domain.Cart) (*domain.PriceBreakdown, error)
}

// Notifier queues customer notifications. Errors mean the message was not
// queued; delivery failures are never reported back.
type Notifier interface {
	SendOrderPlacedEmail(ctx context.Context, o *domain.Order) error
	SendOrderPlacedSMS(ctx context.Context, o *domain.Order) error
	SendOrderCancelledEmail(ctx context.Context, o *domain.Order) error
}

// OrderEvents publishes order lifecycle events.
type OrderEvents interface {
	PublishOrderPlaced(ctx context.Context, o *domain.Order) error
	PublishOrderUpdated(ctx context.Context, o *domain.Order) error
	PublishOrderCancelled(ctx context.Context, o *domain.Order) error
}

// CheckoutEvents publishes checkout outcomes.
type CheckoutEvents interface {
	PublishCheckoutCompleted(ctx context.Context, userID string, res *domain.CheckoutResult) error
	PublishCheckoutFailed(ctx context.Context, userID string, cerr *domain.CheckoutError) error
}
