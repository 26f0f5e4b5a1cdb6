package repository

import (
	"context"
	"time"

	"github.com/shopflow/orderflow/internal/domain"
)

// OrderRepository is the order store gateway.
type OrderRepository interface {
	// Save upserts an order and its items. An order without an ID is given
	// one. The stored form is written back into order.
	Save(ctx context.Context, order *domain.Order) error

	// FindByOrderID returns the order or an error matching apperrors.ErrNotFound.
	FindByOrderID(ctx context.Context, id string) (*domain.Order, error)

	// FindByCustomerID returns the customer's orders, newest first.
	FindByCustomerID(ctx context.Context, customerID string) ([]domain.Order, error)
}

// CartRepository stores one cart per user.
type CartRepository interface {
	// Get returns the user's cart or an error matching apperrors.ErrNotFound.
	Get(ctx context.Context, userID string) (*domain.Cart, error)

	// Save overwrites the user's cart.
	Save(ctx context.Context, cart *domain.Cart) error
}

// IdempotencyStore remembers checkout idempotency keys.
type IdempotencyStore interface {
	// Reserve claims key for ttl. It returns false if the key is already held.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release frees key so the same request can be retried.
	Release(ctx context.Context, key string) error
}
