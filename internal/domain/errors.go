package domain

import (
	"errors"
	"fmt"

	apperrors "github.com/shopflow/orderflow/pkg/errors"
)

var (
	ErrModificationNotAllowed = errors.New("order modification not allowed")
	ErrCancellationNotAllowed = errors.New("order cancellation not allowed")
	ErrDuplicateCheckout      = errors.New("duplicate checkout request")
)

// OrderNotFound reports that no order has the given ID.
func OrderNotFound(id string) *apperrors.AppError {
	return apperrors.NotFound("order", id)
}

// ModificationNotAllowed reports an update or cancel attempted from a status
// that does not allow it.
func ModificationNotAllowed(id string, status OrderStatus) *apperrors.AppError {
	return apperrors.ConflictWithCode("MODIFICATION_NOT_ALLOWED",
		fmt.Sprintf("order %s cannot be modified in status %s", id, status),
		ErrModificationNotAllowed)
}

// CancellationNotAllowed reports a cancel attempted after the order shipped.
func CancellationNotAllowed(id string, status OrderStatus) *apperrors.AppError {
	return apperrors.ConflictWithCode("CANCELLATION_NOT_ALLOWED",
		fmt.Sprintf("order %s cannot be cancelled in status %s", id, status),
		ErrCancellationNotAllowed)
}

// DuplicateCheckout reports an idempotency key that was already used.
func DuplicateCheckout(key string) *apperrors.AppError {
	return apperrors.ConflictWithCode("DUPLICATE_CHECKOUT",
		fmt.Sprintf("checkout with idempotency key %q already submitted", key),
		ErrDuplicateCheckout)
}

// CheckoutError is returned when a checkout stage fails. Stage names the
// failing step so callers can tell "nothing happened" (cart, pricing,
// order_creation) from "order exists but payment failed".
type CheckoutError struct {
	Stage   string
	OrderID string
	Err     error
	Steps   []SagaStep
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checkout failed at %s: %v", e.Stage, e.Err)
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

// OrderCreated reports whether an order exists despite the failure.
func (e *CheckoutError) OrderCreated() bool {
	return e.OrderID != ""
}
