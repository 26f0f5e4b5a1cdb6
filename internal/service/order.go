package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopflow/orderflow/internal/domain"
	"github.com/shopflow/orderflow/internal/repository"
	apperrors "github.com/shopflow/orderflow/pkg/errors"
	"github.com/shopflow/orderflow/pkg/logger"
	"github.com/shopflow/orderflow/pkg/validator"
)

// OrderService implements the order lifecycle: placement, updates,
// cancellation and lookups.
type OrderService struct {
	repo     repository.OrderRepository
	users    UserDirectory
	notifier Notifier
	events   OrderEvents
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrderService creates an order service. users and events may be nil.
func NewOrderService(
	repo repository.OrderRepository,
	users UserDirectory,
	notifier Notifier,
	events OrderEvents,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		repo:     repo,
		users:    users,
		notifier: notifier,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// PlaceOrder stores draft as a new PLACED order and queues the placement
// notifications. A failed email lookup or notification never fails the
// placement.
func (s *OrderService) PlaceOrder(ctx context.Context, draft *domain.Order) (*domain.Order, error) {
	if draft == nil {
		return nil, apperrors.InvalidInput("order is required")
	}
	for i, it := range draft.Items {
		if it.Quantity <= 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("item %d: quantity must be greater than 0", i))
		}
	}

	o := draft.Clone()
	o.Place(s.now())
	s.resolveEmail(ctx, o)

	if err := s.repo.Save(ctx, o); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}

	ctx = logger.WithOrderID(ctx, o.ID)

	if o.CustomerEmail != "" {
		s.notify(ctx, "order_placed_email", o, s.notifier.SendOrderPlacedEmail)
	}
	s.notify(ctx, "order_placed_sms", o, s.notifier.SendOrderPlacedSMS)

	if s.events != nil {
		if err := s.events.PublishOrderPlaced(ctx, o); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish order.placed event",
				slog.String("order_id", o.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", o.ID),
		slog.String("customer_id", o.CustomerID),
		slog.String("total_amount", o.TotalAmount.StringFixed(2)),
	)

	return o, nil
}

// CreateFromCheckout places an order built from a checkout payload.
func (s *OrderService) CreateFromCheckout(ctx context.Context, req *domain.CreateOrderRequest) (*domain.CreateOrderResponse, error) {
	if req == nil {
		return nil, apperrors.InvalidInput("order request is required")
	}
	if err := validator.Validate(req); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	items := make([]domain.OrderItem, len(req.Items))
	sum := decimal.Zero
	for i, it := range req.Items {
		lineTotal := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		if !it.LineTotal.Equal(lineTotal) {
			return nil, apperrors.InvalidInput(fmt.Sprintf(
				"item %d: line total %s does not match %s x %d",
				i, it.LineTotal.StringFixed(2), it.UnitPrice.StringFixed(2), it.Quantity))
		}
		sum = sum.Add(lineTotal)
		items[i] = domain.OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     it.UnitPrice,
		}
	}

	if !sum.Equal(req.Amount) {
		return nil, apperrors.InvalidInput(fmt.Sprintf(
			"line totals add up to %s, amount is %s", sum.StringFixed(2), req.Amount.StringFixed(2)))
	}

	o, err := s.PlaceOrder(ctx, &domain.Order{
		CustomerID:     req.UserID,
		CustomerEmail:  req.CustomerEmail,
		AddressID:      req.AddressID,
		ShippingOption: req.ShippingOption,
		Items:          items,
		TotalAmount:    req.Amount,
	})
	if err != nil {
		return nil, err
	}

	return &domain.CreateOrderResponse{
		OrderID:     o.ID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		OrderDate:   o.OrderDate,
	}, nil
}

// GetOrder returns an order by ID.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := s.repo.FindByOrderID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return o, nil
}

// TrackOrder is a read-only lookup of the order's current state.
func (s *OrderService) TrackOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.GetOrder(ctx, id)
}

// ListCustomerOrders returns the customer's orders, newest first.
func (s *OrderService) ListCustomerOrders(ctx context.Context, customerID string) ([]domain.Order, error) {
	if customerID == "" {
		return nil, apperrors.InvalidInput("customer id is required")
	}
	orders, err := s.repo.FindByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list customer orders: %w", err)
	}
	return orders, nil
}

// UpdateOrder replaces the order's items and/or total while the lifecycle
// allows it.
func (s *OrderService) UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch) (*domain.Order, error) {
	for i, it := range patch.Items {
		if it.Quantity <= 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("item %d: quantity must be greater than 0", i))
		}
	}
	if patch.TotalAmount != nil && patch.TotalAmount.IsNegative() {
		return nil, apperrors.InvalidInput("total amount must not be negative")
	}

	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := o.Apply(patch, s.now()); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, o); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishOrderUpdated(ctx, o); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish order.updated event",
				slog.String("order_id", o.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "order updated", slog.String("order_id", o.ID))
	return o, nil
}

// CancelOrder moves a PLACED order to CANCELLED and queues the cancellation
// email.
func (s *OrderService) CancelOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := o.Cancel(s.now()); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, o); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}

	ctx = logger.WithOrderID(ctx, o.ID)

	notice := o.Clone()
	s.resolveEmail(ctx, notice)
	if notice.CustomerEmail != "" {
		s.notify(ctx, "order_cancelled_email", notice, s.notifier.SendOrderCancelledEmail)
	}

	if s.events != nil {
		if err := s.events.PublishOrderCancelled(ctx, o); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish order.cancelled event",
				slog.String("order_id", o.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "order cancelled", slog.String("order_id", o.ID))
	return o, nil
}

// resolveEmail fills in the customer's email from the user directory when
// it is missing. Lookup failures leave it empty.
func (s *OrderService) resolveEmail(ctx context.Context, o *domain.Order) {
	if o.CustomerEmail != "" || o.CustomerID == "" || s.users == nil {
		return
	}

	details, err := s.users.GetUserDetails(ctx, o.CustomerID)
	if err != nil {
		s.logger.WarnContext(ctx, "user lookup failed, continuing without email",
			slog.String("customer_id", o.CustomerID),
			slog.String("error", err.Error()),
		)
		return
	}
	if details != nil {
		o.CustomerEmail = details.Email
	}
}

func (s *OrderService) notify(ctx context.Context, kind string, o *domain.Order, send func(context.Context, *domain.Order) error) {
	if err := send(ctx, o); err != nil {
		s.logger.WarnContext(ctx, "failed to queue notification",
			slog.String("notification", kind),
			slog.String("order_id", o.ID),
			slog.String("error", err.Error()),
		)
	}
}
