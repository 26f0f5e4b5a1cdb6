// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopflow/orderflow/internal/domain"
	apperrors "github.com/shopflow/orderflow/pkg/errors"
)

// OrderRepository is a mutex-guarded map of orders. Values are copied in and
// out so callers never share state with the store.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]*domain.Order)}
}

func (r *OrderRepository) Save(_ context.Context, o *domain.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	r.mu.Lock()
	r.orders[o.ID] = o.Clone()
	r.mu.Unlock()
	return nil
}

func (r *OrderRepository) FindByOrderID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.OrderNotFound(id)
	}
	return o.Clone(), nil
}

func (r *OrderRepository) FindByCustomerID(_ context.Context, customerID string) ([]domain.Order, error) {
	r.mu.RLock()
	out := []domain.Order{}
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			out = append(out, *o.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].OrderDate.After(out[j].OrderDate) })
	return out, nil
}

// CartRepository keeps carts by user ID.
type CartRepository struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]domain.Cart)}
}

func (r *CartRepository) Get(_ context.Context, userID string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.carts[userID]
	if !ok {
		return nil, apperrors.NotFound("cart", userID)
	}
	c.Items = append([]domain.CartItem{}, c.Items...)
	return &c, nil
}

func (r *CartRepository) Save(_ context.Context, cart *domain.Cart) error {
	c := *cart
	c.Items = append([]domain.CartItem{}, cart.Items...)
	r.mu.Lock()
	r.carts[cart.UserID] = c
	r.mu.Unlock()
	return nil
}

// IdempotencyStore holds reserved keys until they expire.
type IdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{keys: make(map[string]time.Time), now: time.Now}
}

func (s *IdempotencyStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if exp, ok := s.keys[key]; ok && (exp.IsZero() || now.Before(exp)) {
		return false, nil
	}
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl)
	}
	s.keys[key] = exp
	return true, nil
}

func (s *IdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
	return nil
}
