package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/shopflow/orderflow/pkg/errors"
)

func TestNewCheckoutSaga(t *testing.T) {
	steps := NewCheckoutSaga()
	require.Len(t, steps, 6)
	assert.Equal(t, StageCart, steps[0].Name)
	assert.Equal(t, StageCartClear, steps[5].Name)
	for _, s := range steps {
		assert.Equal(t, SagaStepPending, s.Status)
		assert.True(t, s.ExecutedAt.IsZero())
	}
}

func TestSagaStep_Lifecycle(t *testing.T) {
	s := NewSagaStep(StageOrderCreation)
	s.Complete()
	assert.Equal(t, SagaStepCompleted, s.Status)
	assert.False(t, s.ExecutedAt.IsZero())

	s.Compensate()
	assert.Equal(t, SagaStepCompensated, s.Status)

	f := NewSagaStep(StagePaymentIntent)
	f.Fail("card declined")
	assert.Equal(t, SagaStepFailed, f.Status)
	assert.Equal(t, "card declined", f.Error)
}

func TestParseCompensationPolicy(t *testing.T) {
	p, err := ParseCompensationPolicy("")
	require.NoError(t, err)
	assert.Empty(t, p.For(StagePaymentIntent))

	p, err = ParseCompensationPolicy(PolicyCancelOrder)
	require.NoError(t, err)
	assert.Equal(t, []Compensation{CompensationCancelOrder}, p.For(StagePaymentIntent))
	assert.Equal(t, []Compensation{CompensationCancelOrder}, p.For(StagePaymentConfirmation))
	assert.Empty(t, p.For(StagePricing))

	_, err = ParseCompensationPolicy("refund")
	assert.Error(t, err)
}

func TestCompensation_Stage(t *testing.T) {
	assert.Equal(t, StageOrderCreation, CompensationCancelOrder.Stage())
	assert.Empty(t, Compensation("unknown").Stage())
}

func TestCheckoutError(t *testing.T) {
	cause := apperrors.PaymentFailed("card declined")
	err := error(&CheckoutError{Stage: StagePaymentIntent, OrderID: "o-1", Err: cause})

	var ce *CheckoutError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, StagePaymentIntent, ce.Stage)
	assert.True(t, ce.OrderCreated())
	assert.ErrorIs(t, err, apperrors.ErrPaymentFailed)
	assert.Contains(t, err.Error(), "checkout failed at payment_intent")
}

func TestDuplicateCheckout(t *testing.T) {
	err := DuplicateCheckout("key-1")
	assert.Equal(t, "DUPLICATE_CHECKOUT", err.Code)
	assert.ErrorIs(t, err, ErrDuplicateCheckout)
}
