package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopflow/orderflow/internal/domain"
	"github.com/shopflow/orderflow/internal/service"
	apperrors "github.com/shopflow/orderflow/pkg/errors"
	"github.com/shopflow/orderflow/pkg/httputil"
	"github.com/shopflow/orderflow/pkg/middleware"
	"github.com/shopflow/orderflow/pkg/validator"
)

// IdempotencyHeader carries the client's checkout idempotency key.
const IdempotencyHeader = "Idempotency-Key"

// CheckoutHandler handles POST /api/v1/checkout.
type CheckoutHandler struct {
	service *service.CheckoutService
	logger  *slog.Logger
}

func NewCheckoutHandler(svc *service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: svc, logger: logger}
}

// CheckoutRequest is the JSON body of a checkout. user_id may instead come
// from the X-User-ID header.
type CheckoutRequest struct {
	UserID         string `json:"user_id" validate:"required"`
	AddressID      string `json:"address_id" validate:"required"`
	ShippingOption string `json:"shipping_option" validate:"required"`
	PaymentMethod  string `json:"payment_method" validate:"required"`
}

// Checkout handles POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req CheckoutRequest
	if err := validator.Decode(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}
	if req.UserID == "" {
		req.UserID = r.Header.Get(middleware.UserHeader)
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	res, err := h.service.Checkout(r.Context(), domain.CheckoutRequest{
		UserID:         req.UserID,
		AddressID:      req.AddressID,
		ShippingOption: req.ShippingOption,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.writeCheckoutError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: res})
}

// writeCheckoutError answers a failed stage with 502 CHECKOUT_FAILED, or 422
// when the payment was declined. The failing stage is reported in details.
func (h *CheckoutHandler) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var cerr *domain.CheckoutError
	if !errors.As(err, &cerr) {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := http.StatusBadGateway
	if errors.Is(cerr, apperrors.ErrPaymentFailed) {
		status = http.StatusUnprocessableEntity
	}

	details := map[string]string{"stage": cerr.Stage}
	if cerr.OrderID != "" {
		details["order_id"] = cerr.OrderID
	}

	httputil.WriteErrorResponse(w, r, status, &httputil.ErrorResponse{
		Code:    "CHECKOUT_FAILED",
		Message: "checkout failed at stage " + cerr.Stage,
		Details: details,
	})
}
