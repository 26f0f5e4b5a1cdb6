package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shopflow/orderflow/internal/domain"
	"github.com/shopflow/orderflow/internal/repository/memory"
	apperrors "github.com/shopflow/orderflow/pkg/errors"
)

// --- Mocks ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendOrderPlacedEmail(ctx context.Context, o *domain.Order) error {
	return m.Called(ctx, o).Error(0)
}

func (m *mockNotifier) SendOrderPlacedSMS(ctx context.Context, o *domain.Order) error {
	return m.Called(ctx, o).Error(0)
}

func (m *mockNotifier) SendOrderCancelledEmail(ctx context.Context, o *domain.Order) error {
	return m.Called(ctx, o).Error(0)
}

type mockUserDirectory struct {
	mock.Mock
}

func (m *mockUserDirectory) GetUserDetails(ctx context.Context, customerID string) (*domain.UserDetails, error) {
	args := m.Called(ctx, customerID)
	if v := args.Get(0); v != nil {
		return v.(*domain.UserDetails), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockOrderEvents struct {
	mock.Mock
}

func (m *mockOrderEvents) PublishOrderPlaced(ctx context.Context, o *domain.Order) error {
	return m.Called(ctx, o).Error(0)
}

func (m *mockOrderEvents) PublishOrderUpdated(ctx context.Context, o *domain.Order) error {
	return m.Called(ctx, o).Error(0)
}

func (m *mockOrderEvents) PublishOrderCancelled(ctx context.Context, o *domain.Order) error {
	return m.Called(ctx, o).Error(0)
}

// discardNotifier accepts every notification.
type discardNotifier struct{}

func (discardNotifier) SendOrderPlacedEmail(context.Context, *domain.Order) error    { return nil }
func (discardNotifier) SendOrderPlacedSMS(context.Context, *domain.Order) error      { return nil }
func (discardNotifier) SendOrderCancelledEmail(context.Context, *domain.Order) error { return nil }

// failingOrderRepo fails every Save.
type failingOrderRepo struct {
	*memory.OrderRepository
}

func (failingOrderRepo) Save(context.Context, *domain.Order) error {
	return errors.New("connection refused")
}

// --- Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newOrderService(repo *memory.OrderRepository, users UserDirectory, n Notifier) *OrderService {
	s := NewOrderService(repo, users, n, nil, newTestLogger())
	s.now = func() time.Time { return fixedNow }
	return s
}

func draftOrder() *domain.Order {
	return &domain.Order{
		CustomerID:     "user-1",
		CustomerEmail:  "jane@example.com",
		AddressID:      "addr-1",
		ShippingOption: "standard",
		Items: []domain.OrderItem{
			{ProductID: "1", Name: "Product-1", Quantity: 2, Price: decimal.RequireFromString("10.00")},
		},
		TotalAmount: decimal.RequireFromString("20.00"),
	}
}

// storeOrder saves an order with the given status straight into repo.
func storeOrder(t *testing.T, repo *memory.OrderRepository, status domain.OrderStatus) *domain.Order {
	t.Helper()
	o := draftOrder()
	o.Place(fixedNow)
	o.Status = status
	require.NoError(t, repo.Save(context.Background(), o))
	return o
}

// --- PlaceOrder ---

func TestPlaceOrder_AssignsIdentityAndDates(t *testing.T) {
	repo := memory.NewOrderRepository()
	n := new(mockNotifier)
	n.On("SendOrderPlacedEmail", mock.Anything, mock.Anything).Return(nil)
	n.On("SendOrderPlacedSMS", mock.Anything, mock.Anything).Return(nil)
	svc := newOrderService(repo, nil, n)

	o, err := svc.PlaceOrder(context.Background(), draftOrder())
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, domain.OrderStatusPlaced, o.Status)
	assert.Equal(t, fixedNow, o.OrderDate)
	assert.Equal(t, fixedNow.Add(5*24*time.Hour), o.EstimatedDelivery)

	stored, err := repo.FindByOrderID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPlaced, stored.Status)
	n.AssertExpectations(t)
}

func TestPlaceOrder_DoesNotMutateDraft(t *testing.T) {
	svc := newOrderService(memory.NewOrderRepository(), nil, discardNotifier{})
	draft := draftOrder()

	_, err := svc.PlaceOrder(context.Background(), draft)
	require.NoError(t, err)
	assert.Empty(t, draft.ID)
	assert.Empty(t, draft.Status)
}

func TestPlaceOrder_ResolvesMissingEmail(t *testing.T) {
	repo := memory.NewOrderRepository()
	users := new(mockUserDirectory)
	users.On("GetUserDetails", mock.Anything, "user-1").
		Return(&domain.UserDetails{ID: "user-1", Email: "found@example.com"}, nil)
	n := new(mockNotifier)
	n.On("SendOrderPlacedEmail", mock.Anything, mock.MatchedBy(func(o *domain.Order) bool {
		return o.CustomerEmail == "found@example.com"
	})).Return(nil)
	n.On("SendOrderPlacedSMS", mock.Anything, mock.Anything).Return(nil)
	svc := newOrderService(repo, users, n)

	draft := draftOrder()
	draft.CustomerEmail = ""
	o, err := svc.PlaceOrder(context.Background(), draft)
	require.NoError(t, err)

	stored, err := repo.FindByOrderID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "found@example.com", stored.CustomerEmail)
	users.AssertExpectations(t)
	n.AssertExpectations(t)
}

func TestPlaceOrder_EmailLookupFailureStillPlaces(t *testing.T) {
	repo := memory.NewOrderRepository()
	users := new(mockUserDirectory)
	users.On("GetUserDetails", mock.Anything, "user-1").Return(nil, errors.New("user service down"))
	n := new(mockNotifier)
	n.On("SendOrderPlacedSMS", mock.Anything, mock.Anything).Return(nil)
	svc := newOrderService(repo, users, n)

	draft := draftOrder()
	draft.CustomerEmail = ""
	o, err := svc.PlaceOrder(context.Background(), draft)
	require.NoError(t, err)
	assert.Empty(t, o.CustomerEmail)

	stored, err := repo.FindByOrderID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.CustomerEmail)
	n.AssertNotCalled(t, "SendOrderPlacedEmail", mock.Anything, mock.Anything)
	n.AssertCalled(t, "SendOrderPlacedSMS", mock.Anything, mock.Anything)
}

func TestPlaceOrder_SkipsLookupWithoutCustomerID(t *testing.T) {
	users := new(mockUserDirectory)
	n := new(mockNotifier)
	n.On("SendOrderPlacedSMS", mock.Anything, mock.Anything).Return(nil)
	svc := newOrderService(memory.NewOrderRepository(), users, n)

	draft := draftOrder()
	draft.CustomerEmail = ""
	draft.CustomerID = ""
	_, err := svc.PlaceOrder(context.Background(), draft)
	require.NoError(t, err)
	users.AssertNotCalled(t, "GetUserDetails", mock.Anything, mock.Anything)
}

func TestPlaceOrder_NotificationFailureIgnored(t *testing.T) {
	n := new(mockNotifier)
	n.On("SendOrderPlacedEmail", mock.Anything, mock.Anything).Return(errors.New("queue full"))
	n.On("SendOrderPlacedSMS", mock.Anything, mock.Anything).Return(errors.New("queue full"))
	svc := newOrderService(memory.NewOrderRepository(), nil, n)

	o, err := svc.PlaceOrder(context.Background(), draftOrder())
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
}

func TestPlaceOrder_SaveError(t *testing.T) {
	svc := NewOrderService(failingOrderRepo{memory.NewOrderRepository()}, nil, discardNotifier{}, nil, newTestLogger())

	_, err := svc.PlaceOrder(context.Background(), draftOrder())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save order")
}

func TestPlaceOrder_RejectsBadInput(t *testing.T) {
	svc := newOrderService(memory.NewOrderRepository(), nil, discardNotifier{})

	_, err := svc.PlaceOrder(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	draft := draftOrder()
	draft.Items[0].Quantity = 0
	_, err = svc.PlaceOrder(context.Background(), draft)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestPlaceOrder_PublishesEvent(t *testing.T) {
	events := new(mockOrderEvents)
	events.On("PublishOrderPlaced", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	svc := NewOrderService(memory.NewOrderRepository(), nil, discardNotifier{}, events, newTestLogger())

	_, err := svc.PlaceOrder(context.Background(), draftOrder())
	require.NoError(t, err)
	events.AssertExpectations(t)
}

// --- CreateFromCheckout ---

func TestCreateFromCheckout(t *testing.T) {
	repo := memory.NewOrderRepository()
	svc := newOrderService(repo, nil, discardNotifier{})

	resp, err := svc.CreateFromCheckout(context.Background(), &domain.CreateOrderRequest{
		UserID:         "user-1",
		AddressID:      "addr-1",
		ShippingOption: "express",
		Amount:         decimal.RequireFromString("20.00"),
		Items: []domain.CreateOrderItem{{
			ProductID: "1",
			Name:      "Product-1",
			Quantity:  2,
			UnitPrice: decimal.RequireFromString("10.00"),
			LineTotal: decimal.RequireFromString("20.00"),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPlaced, resp.Status)
	assert.True(t, resp.TotalAmount.Equal(decimal.RequireFromString("20")))
	assert.Equal(t, fixedNow, resp.OrderDate)

	stored, err := repo.FindByOrderID(context.Background(), resp.OrderID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "Product-1", stored.Items[0].Name)
	assert.True(t, stored.Items[0].Price.Equal(decimal.RequireFromString("10")))
	assert.Equal(t, "express", stored.ShippingOption)
}

func TestCreateFromCheckout_Invalid(t *testing.T) {
	svc := newOrderService(memory.NewOrderRepository(), nil, discardNotifier{})

	_, err := svc.CreateFromCheckout(context.Background(), &domain.CreateOrderRequest{Amount: decimal.Zero})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.CreateFromCheckout(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreateFromCheckout_RejectsInconsistentTotals(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		item   domain.CreateOrderItem
	}{
		{
			name:   "line total differs from unit x quantity",
			amount: "0.04",
			item: domain.CreateOrderItem{ProductID: "a", Quantity: 4,
				UnitPrice: decimal.RequireFromString("0.01"), LineTotal: decimal.RequireFromString("0.03")},
		},
		{
			name:   "lines do not add up to amount",
			amount: "0.03",
			item: domain.CreateOrderItem{ProductID: "a", Quantity: 4,
				UnitPrice: decimal.RequireFromString("0.01"), LineTotal: decimal.RequireFromString("0.04")},
		},
		{
			name:   "negative line total",
			amount: "0.03",
			item: domain.CreateOrderItem{ProductID: "a", Quantity: 1,
				UnitPrice: decimal.RequireFromString("0.03"), LineTotal: decimal.RequireFromString("-0.01")},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := memory.NewOrderRepository()
			svc := newOrderService(repo, nil, discardNotifier{})

			_, err := svc.CreateFromCheckout(context.Background(), &domain.CreateOrderRequest{
				UserID: "user-1",
				Amount: decimal.RequireFromString(tc.amount),
				Items:  []domain.CreateOrderItem{tc.item},
			})
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

			orders, err := repo.FindByCustomerID(context.Background(), "user-1")
			require.NoError(t, err)
			assert.Empty(t, orders)
		})
	}
}

// --- UpdateOrder ---

func TestUpdateOrder_ByStatus(t *testing.T) {
	tests := []struct {
		status  domain.OrderStatus
		wantErr error
	}{
		{domain.OrderStatusPlaced, nil},
		{domain.OrderStatusShipped, domain.ErrModificationNotAllowed},
		{domain.OrderStatusDelivered, domain.ErrModificationNotAllowed},
		{domain.OrderStatusCancelled, domain.ErrModificationNotAllowed},
	}

	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			repo := memory.NewOrderRepository()
			svc := newOrderService(repo, nil, discardNotifier{})
			existing := storeOrder(t, repo, tc.status)

			total := decimal.RequireFromString("35.50")
			patch := domain.OrderPatch{
				Items:       []domain.OrderItem{{ProductID: "9", Name: "Product-9", Quantity: 1, Price: total}},
				TotalAmount: &total,
			}
			updated, err := svc.UpdateOrder(context.Background(), existing.ID, patch)

			stored, findErr := repo.FindByOrderID(context.Background(), existing.ID)
			require.NoError(t, findErr)

			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, tc.status, stored.Status)
				assert.True(t, stored.TotalAmount.Equal(existing.TotalAmount))
				assert.Equal(t, existing.Items, stored.Items)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, domain.OrderStatusPlaced, updated.Status)
			assert.True(t, stored.TotalAmount.Equal(total))
			require.Len(t, stored.Items, 1)
			assert.Equal(t, "9", stored.Items[0].ProductID)
		})
	}
}

func TestUpdateOrder_NotFound(t *testing.T) {
	svc := newOrderService(memory.NewOrderRepository(), nil, discardNotifier{})
	_, err := svc.UpdateOrder(context.Background(), "missing", domain.OrderPatch{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdateOrder_RejectsNegativeTotal(t *testing.T) {
	repo := memory.NewOrderRepository()
	svc := newOrderService(repo, nil, discardNotifier{})
	existing := storeOrder(t, repo, domain.OrderStatusPlaced)

	neg := decimal.RequireFromString("-1")
	_, err := svc.UpdateOrder(context.Background(), existing.ID, domain.OrderPatch{TotalAmount: &neg})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- CancelOrder ---

func TestCancelOrder_ByStatus(t *testing.T) {
	tests := []struct {
		status  domain.OrderStatus
		wantErr error
	}{
		{domain.OrderStatusPlaced, nil},
		{domain.OrderStatusShipped, domain.ErrCancellationNotAllowed},
		{domain.OrderStatusDelivered, domain.ErrCancellationNotAllowed},
		{domain.OrderStatusCancelled, domain.ErrModificationNotAllowed},
	}

	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			repo := memory.NewOrderRepository()
			n := new(mockNotifier)
			n.On("SendOrderCancelledEmail", mock.Anything, mock.Anything).Return(nil)
			svc := newOrderService(repo, nil, n)
			existing := storeOrder(t, repo, tc.status)

			_, err := svc.CancelOrder(context.Background(), existing.ID)
			stored, findErr := repo.FindByOrderID(context.Background(), existing.ID)
			require.NoError(t, findErr)

			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, tc.status, stored.Status)
				n.AssertNotCalled(t, "SendOrderCancelledEmail", mock.Anything, mock.Anything)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, domain.OrderStatusCancelled, stored.Status)
			n.AssertNumberOfCalls(t, "SendOrderCancelledEmail", 1)
		})
	}
}

func TestCancelOrder_ResolvesEmailForNotice(t *testing.T) {
	repo := memory.NewOrderRepository()
	o := draftOrder()
	o.CustomerEmail = ""
	o.Place(fixedNow)
	require.NoError(t, repo.Save(context.Background(), o))

	users := new(mockUserDirectory)
	users.On("GetUserDetails", mock.Anything, "user-1").
		Return(&domain.UserDetails{ID: "user-1", Email: "found@example.com"}, nil)
	n := new(mockNotifier)
	n.On("SendOrderCancelledEmail", mock.Anything, mock.Anything).Return(nil)
	svc := newOrderService(repo, users, n)

	_, err := svc.CancelOrder(context.Background(), o.ID)
	require.NoError(t, err)
	n.AssertExpectations(t)
}

func TestCancelOrder_NotFound(t *testing.T) {
	svc := newOrderService(memory.NewOrderRepository(), nil, discardNotifier{})
	_, err := svc.CancelOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// --- Lookups ---

func TestTrackOrder_IsReadOnly(t *testing.T) {
	repo := memory.NewOrderRepository()
	svc := newOrderService(repo, nil, discardNotifier{})
	existing := storeOrder(t, repo, domain.OrderStatusShipped)

	first, err := svc.TrackOrder(context.Background(), existing.ID)
	require.NoError(t, err)
	second, err := svc.TrackOrder(context.Background(), existing.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, domain.OrderStatusShipped, second.Status)
}

func TestTrackOrder_NotFound(t *testing.T) {
	svc := newOrderService(memory.NewOrderRepository(), nil, discardNotifier{})
	_, err := svc.TrackOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, 404, apperrors.HTTPStatus(err))
}

func TestListCustomerOrders(t *testing.T) {
	repo := memory.NewOrderRepository()
	svc := newOrderService(repo, nil, discardNotifier{})
	storeOrder(t, repo, domain.OrderStatusPlaced)
	storeOrder(t, repo, domain.OrderStatusDelivered)

	orders, err := svc.ListCustomerOrders(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	none, err := svc.ListCustomerOrders(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.ListCustomerOrders(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
