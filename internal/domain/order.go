package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is one of the four lifecycle states.
type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "PLACED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// EstimatedDeliveryWindow is added to the order date on placement.
const EstimatedDeliveryWindow = 5 * 24 * time.Hour

// Order is a customer order.
type Order struct {
	ID                string          `json:"order_id"`
	CustomerID        string          `json:"customer_id"`
	CustomerEmail     string          `json:"customer_email,omitempty"`
	AddressID         string          `json:"address_id,omitempty"`
	ShippingOption    string          `json:"shipping_option,omitempty"`
	Items             []OrderItem     `json:"items"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	Status            OrderStatus     `json:"status"`
	OrderDate         time.Time       `json:"order_date"`
	EstimatedDelivery time.Time       `json:"estimated_delivery"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// OrderItem belongs to exactly one order.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Operation is a mutation requested against an existing order.
type Operation string

const (
	OpUpdate Operation = "update"
	OpCancel Operation = "cancel"
)

type transition struct {
	to       OrderStatus
	rejected func(id string, from OrderStatus) error
}

func allowed(to OrderStatus) transition { return transition{to: to} }

func rejectModify() transition {
	return transition{rejected: func(id string, from OrderStatus) error { return ModificationNotAllowed(id, from) }}
}

func rejectCancel() transition {
	return transition{rejected: func(id string, from OrderStatus) error { return CancellationNotAllowed(id, from) }}
}

// transitions holds every legal and illegal move. Nothing here leads into
// SHIPPED or DELIVERED; fulfilment sets those outside this service.
var transitions = map[OrderStatus]map[Operation]transition{
	OrderStatusPlaced: {
		OpUpdate: allowed(OrderStatusPlaced),
		OpCancel: allowed(OrderStatusCancelled),
	},
	OrderStatusShipped: {
		OpUpdate: rejectModify(),
		OpCancel: rejectCancel(),
	},
	OrderStatusDelivered: {
		OpUpdate: rejectModify(),
		OpCancel: rejectCancel(),
	},
	OrderStatusCancelled: {
		OpUpdate: rejectModify(),
		OpCancel: rejectModify(),
	},
}

// ValidStatuses returns all order statuses.
func ValidStatuses() []OrderStatus {
	return []OrderStatus{OrderStatusPlaced, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled}
}

// IsValid reports whether s is one of the known statuses.
func (s OrderStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// Next returns the status op would move the order to, or the domain error
// explaining why op is not allowed.
func (o *Order) Next(op Operation) (OrderStatus, error) {
	t, ok := transitions[o.Status][op]
	if !ok {
		return "", ModificationNotAllowed(o.ID, o.Status)
	}
	if t.rejected != nil {
		return "", t.rejected(o.ID, o.Status)
	}
	return t.to, nil
}

// Place gives a new order its identity and initial state.
func (o *Order) Place(now time.Time) {
	now = now.UTC()
	o.ID = uuid.NewString()
	o.Status = OrderStatusPlaced
	o.OrderDate = now
	o.EstimatedDelivery = now.Add(EstimatedDeliveryWindow)
	o.UpdatedAt = now
}

// Apply updates items and total when the lifecycle permits it. Nil fields
// in patch are left unchanged. On error the order is untouched.
func (o *Order) Apply(patch OrderPatch, now time.Time) error {
	next, err := o.Next(OpUpdate)
	if err != nil {
		return err
	}
	if patch.Items != nil {
		o.Items = cloneItems(patch.Items)
	}
	if patch.TotalAmount != nil {
		o.TotalAmount = *patch.TotalAmount
	}
	o.Status = next
	o.UpdatedAt = now.UTC()
	return nil
}

// Cancel moves the order to CANCELLED when the lifecycle permits it.
func (o *Order) Cancel(now time.Time) error {
	next, err := o.Next(OpCancel)
	if err != nil {
		return err
	}
	o.Status = next
	o.UpdatedAt = now.UTC()
	return nil
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = cloneItems(o.Items)
	return &c
}

// OrderPatch carries the mutable fields of an order.
type OrderPatch struct {
	Items       []OrderItem
	TotalAmount *decimal.Decimal
}

func cloneItems(items []OrderItem) []OrderItem {
	if items == nil {
		return nil
	}
	out := make([]OrderItem, len(items))
	copy(out, items)
	return out
}
