// internal/clients/catalog_client.go
package clients

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"lendnexus/internal/catalog"
	"lendnexus/internal/inventory"
	"lendnexus/internal/store"
)

func (c *Client) AddItem(ctx context.Context, req catalog.AddItemRequest) (*catalog.ItemView, error) {
	var item catalog.ItemView
	err := c.do(ctx, call{method: http.MethodPost, path: "/items", body: req, result: &item})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) GetItem(ctx context.Context, id uuid.UUID) (*catalog.ItemView, error) {
	var item catalog.ItemView
	err := c.do(ctx, call{method: http.MethodGet, path: "/items/{id}", id: id.String(), result: &item})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) EditItem(ctx context.Context, id uuid.UUID, req catalog.EditItemRequest) (*catalog.ItemView, error) {
	var item catalog.ItemView
	err := c.do(ctx, call{method: http.MethodPatch, path: "/items/{id}", id: id.String(), body: req, result: &item})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// SetItemStatus runs a staff action such as mark_lost on the item.
func (c *Client) SetItemStatus(ctx context.Context, id uuid.UUID, action inventory.Action) (*catalog.ItemView, error) {
	var item catalog.ItemView
	body := map[string]inventory.Action{"action": action}
	err := c.do(ctx, call{method: http.MethodPost, path: "/items/{id}/status", id: id.String(), body: body, result: &item})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) ItemAvailability(ctx context.Context, id uuid.UUID) (inventory.Availability, error) {
	var avail inventory.Availability
	err := c.do(ctx, call{method: http.MethodGet, path: "/items/{id}/availability", id: id.String(), result: &avail})
	return avail, err
}

func (c *Client) ListItems(ctx context.Context, q store.Query) (store.Page[*catalog.ItemView], error) {
	var page store.Page[*catalog.ItemView]
	err := c.do(ctx, call{method: http.MethodGet, path: "/items", query: params(q), result: &page})
	return page, err
}
