// internal/clients/client.go
package clients

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"lendnexus/internal/domain"
	"lendnexus/internal/httpx"
	"lendnexus/internal/store"
	"lendnexus/internal/store/breaker"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 10 * time.Second

// Client talks to the lending API.
type Client struct {
	http *resty.Client
}

// New returns a client for the API at baseURL.
func New(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(DefaultTimeout).
			SetRetryCount(0).
			SetHeader("Accept", "application/json"),
	}
}

// APIError is a non-2xx answer. It matches the domain and store sentinels of
// its kind through errors.Is.
type APIError struct {
	Status int
	Body   httpx.ErrorBody
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lendnexus api: %d %s: %s", e.Status, e.Body.Error, e.Body.Message)
}

var kinds = map[string]error{
	"item_unavailable":         domain.ErrItemUnavailable,
	"item_no_longer_available": domain.ErrItemNoLongerAvailable,
	"not_found":                store.ErrNotFound,
	"invalid_argument":         domain.ErrInvalidArgument,
	"invalid_return_count":     domain.ErrInvalidReturnCount,
	"deposit_overpay":          domain.ErrDepositOverpay,
	"invalid_extension":        domain.ErrInvalidExtension,
	"invalid_transition":       domain.ErrInvalidTransition,
	"invalid_pickup_code":      domain.ErrInvalidPickupCode,
	"conflict":                 store.ErrConflict,
	"rate_limited":             httpx.ErrRateLimited,
	"unavailable":              breaker.ErrUnavailable,
}

func (e *APIError) Is(target error) bool {
	sentinel, ok := kinds[e.Body.Error]
	return ok && errors.Is(sentinel, target)
}

type call struct {
	method string
	path   string
	id     string
	query  map[string]string
	body   any
	result any
}

func (c *Client) do(ctx context.Context, cl call) error {
	req := c.http.R().
		SetContext(ctx).
		SetError(&httpx.ErrorBody{})
	if cl.id != "" {
		req.SetPathParam("id", cl.id)
	}
	if cl.query != nil {
		req.SetQueryParams(cl.query)
	}
	if cl.body != nil {
		req.SetBody(cl.body)
	}
	if cl.result != nil {
		req.SetResult(cl.result)
	}

	resp, err := req.Execute(cl.method, cl.path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}
	if resp.IsError() {
		apiErr := &APIError{Status: resp.StatusCode()}
		if body, ok := resp.Error().(*httpx.ErrorBody); ok && body != nil {
			apiErr.Body = *body
		}
		return apiErr
	}
	return nil
}

// params turns list filters into query parameters.
func params(q store.Query) map[string]string {
	p := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			p[k] = v
		}
	}
	set("q", q.Search)
	set("status", q.Status)
	set("sort", q.Sort)
	if q.CustomerID != uuid.Nil {
		p["customer_id"] = q.CustomerID.String()
	}
	if q.ItemID != uuid.Nil {
		p["item_id"] = q.ItemID.String()
	}
	if q.OpenOnly {
		p["open"] = "true"
	}
	if q.Desc {
		p["desc"] = "true"
	}
	if q.Page > 0 {
		p["page"] = strconv.Itoa(q.Page)
	}
	if q.PerPage > 0 {
		p["per_page"] = strconv.Itoa(q.PerPage)
	}
	return p
}
