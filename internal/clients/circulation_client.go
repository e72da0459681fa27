// internal/clients/circulation_client.go
package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lendnexus/internal/circulation"
	"lendnexus/internal/store"
)

// RentalRequest is the body of a new rental. A zero RentedOn means today.
type RentalRequest struct {
	CustomerID uuid.UUID
	Items      []circulation.Line
	Deposit    decimal.Decimal
	RentedOn   time.Time
	ExpectedOn time.Time
	Employee   string
	Remark     string
}

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func (c *Client) CreateRental(ctx context.Context, req RentalRequest) (*circulation.RentalView, error) {
	body := map[string]any{
		"customer_id": req.CustomerID,
		"items":       req.Items,
		"deposit":     req.Deposit,
		"rented_on":   date(req.RentedOn),
		"expected_on": date(req.ExpectedOn),
		"employee":    req.Employee,
		"remark":      req.Remark,
	}
	var view circulation.RentalView
	if err := c.do(ctx, call{method: http.MethodPost, path: "/rentals", body: body, result: &view}); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) GetRental(ctx context.Context, id uuid.UUID) (*circulation.RentalView, error) {
	var view circulation.RentalView
	if err := c.do(ctx, call{method: http.MethodGet, path: "/rentals/{id}", id: id.String(), result: &view}); err != nil {
		return nil, err
	}
	return &view, nil
}

// ListRentals filters by derived status through q.Status.
func (c *Client) ListRentals(ctx context.Context, q store.Query) (store.Page[*circulation.RentalView], error) {
	var page store.Page[*circulation.RentalView]
	err := c.do(ctx, call{method: http.MethodGet, path: "/rentals", query: params(q), result: &page})
	return page, err
}

func (c *Client) ExtendRental(ctx context.Context, id uuid.UUID, expectedOn time.Time, employee string) (*circulation.RentalView, error) {
	body := map[string]string{"expected_on": date(expectedOn), "employee": employee}
	var view circulation.RentalView
	err := c.do(ctx, call{method: http.MethodPost, path: "/rentals/{id}/extend", id: id.String(), body: body, result: &view})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) RecordReturn(ctx context.Context, id uuid.UUID, req circulation.ReturnRequest) (*circulation.RentalView, error) {
	var view circulation.RentalView
	err := c.do(ctx, call{method: http.MethodPost, path: "/rentals/{id}/returns", id: id.String(), body: req, result: &view})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) ReturnDeposit(ctx context.Context, id uuid.UUID, amount decimal.Decimal, employee string) (*circulation.RentalView, error) {
	body := map[string]any{"amount": amount, "employee": employee}
	var view circulation.RentalView
	err := c.do(ctx, call{method: http.MethodPost, path: "/rentals/{id}/deposit", id: id.String(), body: body, result: &view})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) RentalHistory(ctx context.Context, id uuid.UUID) ([]store.Change, error) {
	var changes []store.Change
	err := c.do(ctx, call{method: http.MethodGet, path: "/rentals/{id}/history", id: id.String(), result: &changes})
	return changes, err
}

// ConvertReservation opens a rental for a reservation's items.
func (c *Client) ConvertReservation(ctx context.Context, id uuid.UUID, deposit decimal.Decimal, expectedOn time.Time, employee string) (*circulation.RentalView, error) {
	body := map[string]any{"deposit": deposit, "expected_on": date(expectedOn), "employee": employee}
	var view circulation.RentalView
	err := c.do(ctx, call{method: http.MethodPost, path: "/reservations/{id}/convert", id: id.String(), body: body, result: &view})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) OverdueDashboard(ctx context.Context) (*circulation.Dashboard, error) {
	var d circulation.Dashboard
	if err := c.do(ctx, call{method: http.MethodGet, path: "/dashboard/overdue", result: &d}); err != nil {
		return nil, err
	}
	return &d, nil
}
