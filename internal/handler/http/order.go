package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/shopflow/orderflow/internal/domain"
	"github.com/shopflow/orderflow/internal/service"
	"github.com/shopflow/orderflow/pkg/httputil"
	"github.com/shopflow/orderflow/pkg/middleware"
	"github.com/shopflow/orderflow/pkg/validator"
)

const maxBodyBytes = 1 << 20

// OrderHandler handles the order endpoints.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// OrderItemRequest is one order line in a request body.
type OrderItemRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
	Price     decimal.Decimal `json:"price" validate:"money"`
}

// PlaceOrderRequest is the body of POST /api/v1/orders.
type PlaceOrderRequest struct {
	CustomerID     string             `json:"customer_id" validate:"required"`
	CustomerEmail  string             `json:"customer_email" validate:"omitempty,email"`
	AddressID      string             `json:"address_id"`
	ShippingOption string             `json:"shipping_option"`
	Items          []OrderItemRequest `json:"items" validate:"dive"`
	TotalAmount    decimal.Decimal    `json:"total_amount" validate:"money"`
}

// UpdateOrderRequest is the body of PUT /api/v1/orders/{id}. Omitted fields
// are left unchanged.
type UpdateOrderRequest struct {
	Items       []OrderItemRequest `json:"items" validate:"omitempty,dive"`
	TotalAmount *decimal.Decimal   `json:"total_amount"`
}

func toOrderItems(in []OrderItemRequest) []domain.OrderItem {
	if in == nil {
		return nil
	}
	items := make([]domain.OrderItem, len(in))
	for i, it := range in {
		name := it.Name
		if name == "" {
			name = domain.ItemName(it.ProductID)
		}
		items[i] = domain.OrderItem{ProductID: it.ProductID, Name: name, Quantity: it.Quantity, Price: it.Price}
	}
	return items
}

// --- Handlers ---

// PlaceOrder handles POST /api/v1/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req PlaceOrderRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	order, err := h.service.PlaceOrder(r.Context(), &domain.Order{
		CustomerID:     req.CustomerID,
		CustomerEmail:  req.CustomerEmail,
		AddressID:      req.AddressID,
		ShippingOption: req.ShippingOption,
		Items:          toOrderItems(req.Items),
		TotalAmount:    req.TotalAmount,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: order})
}

// CreateFromCheckout handles POST /api/v1/orders/checkout
func (h *OrderHandler) CreateFromCheckout(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req domain.CreateOrderRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	resp, err := h.service.CreateFromCheckout(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: resp})
}

// ListOrders handles GET /api/v1/orders?customer_id=
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		customerID = r.Header.Get(middleware.UserHeader)
	}

	orders, err := h.service.ListCustomerOrders(r.Context(), customerID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: orders})
}

// GetOrder handles GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// TrackOrder handles GET /api/v1/orders/{id}/track
func (h *OrderHandler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.TrackOrder(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// UpdateOrder handles PUT /api/v1/orders/{id}
func (h *OrderHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req UpdateOrderRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	order, err := h.service.UpdateOrder(r.Context(), id.String(), domain.OrderPatch{
		Items:       toOrderItems(req.Items),
		TotalAmount: req.TotalAmount,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// CancelOrder handles POST /api/v1/orders/{id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.CancelOrder(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}
