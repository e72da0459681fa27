// internal/clients/reservation_client.go
package clients

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"lendnexus/internal/reservation"
)

// CreateReservation returns the new reservation with its pickup code.
func (c *Client) CreateReservation(ctx context.Context, req reservation.CreateRequest) (*reservation.Created, error) {
	var created reservation.Created
	if err := c.do(ctx, call{method: http.MethodPost, path: "/reservations", body: req, result: &created}); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) GetReservation(ctx context.Context, id uuid.UUID) (*reservation.View, error) {
	var v reservation.View
	if err := c.do(ctx, call{method: http.MethodGet, path: "/reservations/{id}", id: id.String(), result: &v}); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) VerifyPickupCode(ctx context.Context, id uuid.UUID, code string) (*reservation.View, error) {
	var v reservation.View
	body := map[string]string{"code": code}
	err := c.do(ctx, call{method: http.MethodPost, path: "/reservations/{id}/verify", id: id.String(), body: body, result: &v})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) CancelReservation(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, call{method: http.MethodDelete, path: "/reservations/{id}", id: id.String()})
}
