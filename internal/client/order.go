package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopflow/orderflow/internal/domain"
	"github.com/shopflow/orderflow/pkg/httpclient"
)

// OrderClient reaches an order service running in another process. It is
// the remote order gateway used when checkout and orders are deployed apart.
type OrderClient struct {
	base
}

func NewOrderClient(doer httpclient.Doer, baseURL string) *OrderClient {
	return &OrderClient{base: newBase(doer, baseURL, "order")}
}

// CreateFromCheckout submits a checkout payload and returns the new order.
func (c *OrderClient) CreateFromCheckout(ctx context.Context, req *domain.CreateOrderRequest) (*domain.CreateOrderResponse, error) {
	var created domain.CreateOrderResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/orders/checkout", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// CancelOrder cancels an order through the remote lifecycle.
func (c *OrderClient) CancelOrder(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	if err := c.call(ctx, http.MethodPost, "/api/v1/orders/"+url.PathEscape(id)+"/cancel", nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}
