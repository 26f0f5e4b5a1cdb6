package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shopflow/orderflow/internal/domain"
)

// Channel constants.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Kind constants.
const (
	KindOrderPlaced    = "order_placed"
	KindOrderCancelled = "order_cancelled"
)

// Message is one notification waiting to be delivered.
type Message struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	UserID    string    `json:"user_id"`
	OrderID   string    `json:"order_id"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func newMessage(kind, channel, recipient string, o *domain.Order) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Channel:   channel,
		Recipient: recipient,
		UserID:    o.CustomerID,
		OrderID:   o.ID,
		CreatedAt: time.Now().UTC(),
	}
}

// OrderPlacedEmail builds the placement confirmation email.
func OrderPlacedEmail(o *domain.Order) *Message {
	m := newMessage(KindOrderPlaced, ChannelEmail, o.CustomerEmail, o)
	m.Subject = fmt.Sprintf("Your order %s has been placed", o.ID)
	m.Body = fmt.Sprintf("Thank you for your order. Total: %s. Estimated delivery: %s.",
		o.TotalAmount.StringFixed(2), o.EstimatedDelivery.Format("2006-01-02"))
	return m
}

// OrderPlacedSMS builds the placement text message. The recipient is the
// customer ID; the SMS provider resolves the phone number.
func OrderPlacedSMS(o *domain.Order) *Message {
	m := newMessage(KindOrderPlaced, ChannelSMS, o.CustomerID, o)
	m.Body = fmt.Sprintf("Order %s placed. Total %s.", o.ID, o.TotalAmount.StringFixed(2))
	return m
}

// OrderCancelledEmail builds the cancellation email.
func OrderCancelledEmail(o *domain.Order) *Message {
	m := newMessage(KindOrderCancelled, ChannelEmail, o.CustomerEmail, o)
	m.Subject = fmt.Sprintf("Your order %s has been cancelled", o.ID)
	m.Body = "Your order has been cancelled. Any payment taken will be refunded."
	return m
}
