package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopflow/orderflow/internal/domain"
	"github.com/shopflow/orderflow/pkg/httpclient"
)

// PaymentClient talks to the payment service.
type PaymentClient struct {
	base
}

func NewPaymentClient(doer httpclient.Doer, baseURL string) *PaymentClient {
	return &PaymentClient{base: newBase(doer, baseURL, "payment")}
}

// CreateIntent opens a payment intent for an order.
func (c *PaymentClient) CreateIntent(ctx context.Context, req *domain.PaymentIntentRequest) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	if err := c.call(ctx, http.MethodPost, "/api/v1/payments/intents", req, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// Confirm confirms a previously created intent.
func (c *PaymentClient) Confirm(ctx context.Context, intentID string) (*domain.PaymentConfirmation, error) {
	var conf domain.PaymentConfirmation
	path := "/api/v1/payments/intents/" + url.PathEscape(intentID) + "/confirm"
	if err := c.call(ctx, http.MethodPost, path, struct{}{}, &conf); err != nil {
		return nil, err
	}
	if conf.IntentID == "" {
		conf.IntentID = intentID
	}
	return &conf, nil
}
