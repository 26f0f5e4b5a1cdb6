// Package mock provides in-process stand-ins for the payment and pricing
// services, used when PAYMENT_PROVIDER or PRICING_PROVIDER is "mock".
package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopflow/orderflow/internal/domain"
	apperrors "github.com/shopflow/orderflow/pkg/errors"
)

// Intent statuses reported by PaymentGateway.
const (
	IntentRequiresConfirmation = "requires_confirmation"
	IntentSucceeded            = "succeeded"
)

// DeclinedMethod is a payment method PaymentGateway always declines.
const DeclinedMethod = "decline"

// PaymentGateway accepts every intent except those paid with DeclinedMethod.
type PaymentGateway struct {
	mu      sync.Mutex
	intents map[string]*domain.PaymentIntent
}

func NewPaymentGateway() *PaymentGateway {
	return &PaymentGateway{intents: make(map[string]*domain.PaymentIntent)}
}

func (g *PaymentGateway) CreateIntent(_ context.Context, req *domain.PaymentIntentRequest) (*domain.PaymentIntent, error) {
	if req.Method == DeclinedMethod {
		return nil, apperrors.PaymentFailed("payment method declined")
	}

	intent := &domain.PaymentIntent{
		ID:      "mock_pi_" + uuid.NewString(),
		OrderID: req.OrderID,
		UserID:  req.UserID,
		Amount:  req.Amount,
		Method:  req.Method,
		Status:  IntentRequiresConfirmation,
	}
	g.mu.Lock()
	g.intents[intent.ID] = intent
	g.mu.Unlock()

	out := *intent
	return &out, nil
}

func (g *PaymentGateway) Confirm(_ context.Context, intentID string) (*domain.PaymentConfirmation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[intentID]
	if !ok {
		return nil, apperrors.NotFound("payment intent", intentID)
	}
	intent.Status = IntentSucceeded
	return &domain.PaymentConfirmation{IntentID: intentID, Status: IntentSucceeded}, nil
}

// FixedPriceSource prices every unit at the same amount.
type FixedPriceSource struct {
	UnitPrice decimal.Decimal
}

func (s FixedPriceSource) GrandTotal(_ context.Context, cart *domain.Cart) (decimal.Decimal, error) {
	return s.UnitPrice.Mul(decimal.NewFromInt(int64(cart.ItemCount()))), nil
}
