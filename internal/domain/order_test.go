package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/shopflow/orderflow/pkg/errors"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func placedOrder() *Order {
	o := &Order{
		CustomerID:  "cust-1",
		Items:       []OrderItem{{ProductID: "1", Quantity: 2, Price: decimal.RequireFromString("10.00")}},
		TotalAmount: decimal.RequireFromString("20.00"),
	}
	o.Place(fixedNow)
	return o
}

// ============================================================================
// Place
// ============================================================================

func TestPlace_InitialState(t *testing.T) {
	o := placedOrder()

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, OrderStatusPlaced, o.Status)
	assert.Equal(t, fixedNow, o.OrderDate)
	assert.Equal(t, fixedNow.Add(5*24*time.Hour), o.EstimatedDelivery)
}

func TestPlace_AssignsFreshIdentity(t *testing.T) {
	assert.NotEqual(t, placedOrder().ID, placedOrder().ID)
}

// ============================================================================
// Transition table
// ============================================================================

func TestNext_TransitionTable(t *testing.T) {
	tests := []struct {
		from     OrderStatus
		op       Operation
		to       OrderStatus
		sentinel error
	}{
		{OrderStatusPlaced, OpUpdate, OrderStatusPlaced, nil},
		{OrderStatusPlaced, OpCancel, OrderStatusCancelled, nil},
		{OrderStatusShipped, OpUpdate, "", ErrModificationNotAllowed},
		{OrderStatusShipped, OpCancel, "", ErrCancellationNotAllowed},
		{OrderStatusDelivered, OpUpdate, "", ErrModificationNotAllowed},
		{OrderStatusDelivered, OpCancel, "", ErrCancellationNotAllowed},
		{OrderStatusCancelled, OpUpdate, "", ErrModificationNotAllowed},
		{OrderStatusCancelled, OpCancel, "", ErrModificationNotAllowed},
	}

	for _, tc := range tests {
		t.Run(string(tc.from)+"_"+string(tc.op), func(t *testing.T) {
			o := &Order{ID: "o-1", Status: tc.from}
			got, err := o.Next(tc.op)
			if tc.sentinel == nil {
				require.NoError(t, err)
				assert.Equal(t, tc.to, got)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.sentinel)
			assert.Equal(t, 409, apperrors.HTTPStatus(err))
		})
	}
}

func TestNext_NoOperationReachesShippedOrDelivered(t *testing.T) {
	for _, from := range ValidStatuses() {
		for _, op := range []Operation{OpUpdate, OpCancel} {
			o := &Order{Status: from}
			to, _ := o.Next(op)
			assert.NotEqual(t, OrderStatusShipped, to)
			assert.NotEqual(t, OrderStatusDelivered, to)
		}
	}
}

func TestNext_UnknownStatus(t *testing.T) {
	o := &Order{ID: "o-1", Status: "LOST"}
	_, err := o.Next(OpUpdate)
	assert.ErrorIs(t, err, ErrModificationNotAllowed)
	assert.False(t, OrderStatus("LOST").IsValid())
	assert.True(t, OrderStatusDelivered.IsValid())
}

// ============================================================================
// Apply / Cancel
// ============================================================================

func TestApply_UpdatesPlacedOrder(t *testing.T) {
	o := placedOrder()
	total := decimal.RequireFromString("35.50")
	items := []OrderItem{{ProductID: "9", Quantity: 1, Price: total}}

	require.NoError(t, o.Apply(OrderPatch{Items: items, TotalAmount: &total}, fixedNow.Add(time.Hour)))

	assert.Equal(t, OrderStatusPlaced, o.Status)
	assert.True(t, o.TotalAmount.Equal(total))
	assert.Equal(t, "9", o.Items[0].ProductID)
	assert.Equal(t, fixedNow.Add(time.Hour), o.UpdatedAt)

	items[0].ProductID = "mutated"
	assert.Equal(t, "9", o.Items[0].ProductID)
}

func TestApply_RejectedLeavesOrderUntouched(t *testing.T) {
	for _, status := range []OrderStatus{OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled} {
		o := placedOrder()
		o.Status = status
		before := o.Clone()
		total := decimal.NewFromInt(1)

		err := o.Apply(OrderPatch{TotalAmount: &total}, fixedNow)

		assert.ErrorIs(t, err, ErrModificationNotAllowed)
		assert.Equal(t, before, o)
	}
}

func TestCancel(t *testing.T) {
	o := placedOrder()
	require.NoError(t, o.Cancel(fixedNow))
	assert.Equal(t, OrderStatusCancelled, o.Status)

	err := o.Cancel(fixedNow)
	assert.ErrorIs(t, err, ErrModificationNotAllowed)
	assert.Equal(t, OrderStatusCancelled, o.Status)
}

func TestCancel_ShippedKeepsStatus(t *testing.T) {
	o := placedOrder()
	o.Status = OrderStatusShipped

	err := o.Cancel(fixedNow)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CANCELLATION_NOT_ALLOWED", appErr.Code)
	assert.Equal(t, OrderStatusShipped, o.Status)
}

func TestClone_IsDeep(t *testing.T) {
	o := placedOrder()
	c := o.Clone()
	c.Items[0].Quantity = 99
	assert.Equal(t, 2, o.Items[0].Quantity)
}
