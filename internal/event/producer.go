package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/shopflow/orderflow/internal/domain"
	pkgkafka "github.com/shopflow/orderflow/pkg/kafka"
)

// Kafka topics for order and checkout events.
const (
	TopicOrderPlaced       = "ecommerce.order.placed"
	TopicOrderUpdated      = "ecommerce.order.updated"
	TopicOrderCancelled    = "ecommerce.order.cancelled"
	TopicCheckoutCompleted = "ecommerce.checkout.completed"
	TopicCheckoutFailed    = "ecommerce.checkout.failed"
)

const (
	AggregateTypeOrder    = "order"
	AggregateTypeCheckout = "checkout"
)

// SourceOrderflow identifies events published by this service.
const SourceOrderflow = "orderflow"

// OrderData is the payload of every order.* event.
type OrderData struct {
	OrderID     string             `json:"order_id"`
	CustomerID  string             `json:"customer_id"`
	Status      domain.OrderStatus `json:"status"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	ItemCount   int                `json:"item_count"`
}

// CheckoutCompletedData is the payload for checkout.completed.
type CheckoutCompletedData struct {
	UserID      string          `json:"user_id"`
	OrderID     string          `json:"order_id"`
	IntentID    string          `json:"intent_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CartCleared bool            `json:"cart_cleared"`
}

// CheckoutFailedData is the payload for checkout.failed.
type CheckoutFailedData struct {
	UserID        string `json:"user_id"`
	OrderID       string `json:"order_id,omitempty"`
	Stage         string `json:"stage"`
	FailureReason string `json:"failure_reason"`
}

// Producer publishes order and checkout events.
type Producer struct {
	publisher pkgkafka.Publisher
	logger    *slog.Logger
}

func NewProducer(publisher pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

func (p *Producer) PublishOrderPlaced(ctx context.Context, o *domain.Order) error {
	return p.publishOrder(ctx, TopicOrderPlaced, o)
}

func (p *Producer) PublishOrderUpdated(ctx context.Context, o *domain.Order) error {
	return p.publishOrder(ctx, TopicOrderUpdated, o)
}

func (p *Producer) PublishOrderCancelled(ctx context.Context, o *domain.Order) error {
	return p.publishOrder(ctx, TopicOrderCancelled, o)
}

func (p *Producer) publishOrder(ctx context.Context, topic string, o *domain.Order) error {
	count := 0
	for _, it := range o.Items {
		count += it.Quantity
	}
	data := OrderData{
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		ItemCount:   count,
	}
	return p.publish(ctx, topic, o.ID, AggregateTypeOrder, data)
}

func (p *Producer) PublishCheckoutCompleted(ctx context.Context, userID string, res *domain.CheckoutResult) error {
	data := CheckoutCompletedData{UserID: userID, CartCleared: res.CartCleared}
	if res.Order != nil {
		data.OrderID = res.Order.OrderID
		data.TotalAmount = res.Order.TotalAmount
	}
	if res.Intent != nil {
		data.IntentID = res.Intent.ID
	}
	return p.publish(ctx, TopicCheckoutCompleted, userID, AggregateTypeCheckout, data)
}

func (p *Producer) PublishCheckoutFailed(ctx context.Context, userID string, cerr *domain.CheckoutError) error {
	data := CheckoutFailedData{
		UserID:        userID,
		OrderID:       cerr.OrderID,
		Stage:         cerr.Stage,
		FailureReason: cerr.Err.Error(),
	}
	return p.publish(ctx, TopicCheckoutFailed, userID, AggregateTypeCheckout, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceOrderflow, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	event.WithContext(ctx)

	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}
