package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopflow/orderflow/internal/domain"
	"github.com/shopflow/orderflow/pkg/httpclient"
)

// UserClient looks customers up in the user service.
type UserClient struct {
	base
}

func NewUserClient(doer httpclient.Doer, baseURL string) *UserClient {
	return &UserClient{base: newBase(doer, baseURL, "user")}
}

// GetUserDetails returns the customer's contact details.
func (c *UserClient) GetUserDetails(ctx context.Context, customerID string) (*domain.UserDetails, error) {
	var user domain.UserDetails
	if err := c.call(ctx, http.MethodGet, "/api/v1/users/"+url.PathEscape(customerID), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
