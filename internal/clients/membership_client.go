// internal/clients/membership_client.go
package clients

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"lendnexus/internal/membership"
	"lendnexus/internal/store"
)

func (c *Client) RegisterCustomer(ctx context.Context, req membership.RegisterRequest) (*membership.CustomerView, error) {
	var customer membership.CustomerView
	err := c.do(ctx, call{method: http.MethodPost, path: "/customers", body: req, result: &customer})
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (c *Client) GetCustomer(ctx context.Context, id uuid.UUID) (*membership.CustomerView, error) {
	var customer membership.CustomerView
	err := c.do(ctx, call{method: http.MethodGet, path: "/customers/{id}", id: id.String(), result: &customer})
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (c *Client) ListCustomers(ctx context.Context, q store.Query) (store.Page[*membership.CustomerView], error) {
	var page store.Page[*membership.CustomerView]
	err := c.do(ctx, call{method: http.MethodGet, path: "/customers", query: params(q), result: &page})
	return page, err
}
