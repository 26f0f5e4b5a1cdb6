package client

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/shopflow/orderflow/internal/domain"
	"github.com/shopflow/orderflow/pkg/httpclient"
)

// PricingClient asks the pricing service for a cart's grand total. It
// implements pricing.Source.
type PricingClient struct {
	base
}

func NewPricingClient(doer httpclient.Doer, baseURL string) *PricingClient {
	return &PricingClient{base: newBase(doer, baseURL, "pricing")}
}

type quoteRequest struct {
	UserID string            `json:"user_id"`
	Items  []domain.CartItem `json:"items"`
}

type quoteResponse struct {
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// GrandTotal returns the authoritative total for cart.
func (c *PricingClient) GrandTotal(ctx context.Context, cart *domain.Cart) (decimal.Decimal, error) {
	var quote quoteResponse
	req := quoteRequest{UserID: cart.UserID, Items: cart.Items}
	if err := c.call(ctx, http.MethodPost, "/api/v1/pricing/quote", req, &quote); err != nil {
		return decimal.Zero, err
	}
	return quote.GrandTotal, nil
}
