package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckoutSuccessMessage is returned with every completed checkout.
const CheckoutSuccessMessage = "Order placed successfully!"

// ItemName is the display name given to order lines built from a cart.
func ItemName(productID string) string {
	return "Product-" + productID
}

// CheckoutRequest starts a checkout for a user's cart.
type CheckoutRequest struct {
	UserID         string
	AddressID      string
	ShippingOption string
	PaymentMethod  string
	IdempotencyKey string
}

// CheckoutResult is returned by a successful checkout.
type CheckoutResult struct {
	Order       *CreateOrderResponse `json:"order"`
	Intent      *PaymentIntent       `json:"payment_intent"`
	Payment     *PaymentConfirmation `json:"payment"`
	Message     string               `json:"message"`
	CartCleared bool                 `json:"cart_cleared"`
	Steps       []SagaStep           `json:"steps"`
}

// PriceBreakdown is a priced cart. The line totals add up to GrandTotal.
type PriceBreakdown struct {
	GrandTotal decimal.Decimal `json:"grand_total"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Lines      []LinePrice     `json:"lines"`
}

// LinePrice is one priced cart line.
type LinePrice struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// CreateOrderRequest is the order-creation payload sent to the order store.
type CreateOrderRequest struct {
	UserID         string            `json:"user_id" validate:"required"`
	CustomerEmail  string            `json:"customer_email,omitempty" validate:"omitempty,email"`
	AddressID      string            `json:"address_id"`
	ShippingOption string            `json:"shipping_option"`
	Amount         decimal.Decimal   `json:"amount" validate:"money"`
	Items          []CreateOrderItem `json:"items" validate:"dive"`
}

// CreateOrderItem is one line of CreateOrderRequest.
type CreateOrderItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"money"`
	LineTotal decimal.Decimal `json:"line_total" validate:"money"`
}

// CreateOrderResponse identifies the order the store created.
type CreateOrderResponse struct {
	OrderID     string          `json:"order_id"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OrderDate   time.Time       `json:"order_date"`
}

// PaymentIntentRequest asks the payment gateway to open an intent.
type PaymentIntentRequest struct {
	OrderID string          `json:"order_id"`
	UserID  string          `json:"user_id"`
	Amount  decimal.Decimal `json:"amount"`
	Method  string          `json:"method"`
}

// PaymentIntent is held only for the duration of one checkout.
type PaymentIntent struct {
	ID      string          `json:"id"`
	OrderID string          `json:"order_id"`
	UserID  string          `json:"user_id"`
	Amount  decimal.Decimal `json:"amount"`
	Method  string          `json:"method"`
	Status  string          `json:"status"`
}

// PaymentConfirmation is the outcome of confirming an intent.
type PaymentConfirmation struct {
	IntentID string `json:"intent_id"`
	Status   string `json:"status"`
}

// UserDetails is what the user directory returns for a customer.
type UserDetails struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}
