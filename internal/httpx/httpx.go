// internal/httpx/httpx.go

// Package httpx holds the JSON and error plumbing shared by the handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"lendnexus/internal/domain"
	"lendnexus/internal/store"
	"lendnexus/internal/store/breaker"
)

// ErrRateLimited is returned by throttled operations.
var ErrRateLimited = errors.New("rate limited")

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string             `json:"error"`
	Message string             `json:"message"`
	Items   []domain.Shortfall `json:"items,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to encode response")
	}
}

// Decode reads a JSON request body into v.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Invalidf("malformed request body: %v", err)
	}
	return nil
}

// Classify maps err to an HTTP status and error kind.
func Classify(err error) (int, ErrorBody) {
	body := ErrorBody{Message: err.Error()}

	var unavailable *domain.ItemUnavailableError
	var noLonger *domain.ItemNoLongerAvailableError

	switch {
	case errors.As(err, &unavailable):
		body.Error, body.Items = "item_unavailable", unavailable.Items
		return http.StatusConflict, body
	case errors.As(err, &noLonger):
		body.Error, body.Items = "item_no_longer_available", noLonger.Items
		return http.StatusConflict, body
	case errors.Is(err, domain.ErrItemUnavailable):
		body.Error = "item_unavailable"
		return http.StatusConflict, body
	case errors.Is(err, store.ErrNotFound):
		body.Error = "not_found"
		return http.StatusNotFound, body
	case errors.Is(err, domain.ErrInvalidArgument):
		body.Error = "invalid_argument"
		return http.StatusBadRequest, body
	case errors.Is(err, domain.ErrInvalidReturnCount):
		body.Error = "invalid_return_count"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, domain.ErrDepositOverpay):
		body.Error = "deposit_overpay"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, domain.ErrInvalidExtension):
		body.Error = "invalid_extension"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, domain.ErrInvalidTransition):
		body.Error = "invalid_transition"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, domain.ErrInvalidPickupCode):
		body.Error = "invalid_pickup_code"
		return http.StatusForbidden, body
	case errors.Is(err, store.ErrConflict):
		body.Error = "conflict"
		return http.StatusConflict, body
	case errors.Is(err, ErrRateLimited):
		body.Error = "rate_limited"
		return http.StatusTooManyRequests, body
	case errors.Is(err, breaker.ErrUnavailable):
		body.Error = "unavailable"
		return http.StatusServiceUnavailable, body
	}

	body.Error, body.Message = "internal", "internal server error"
	return http.StatusInternalServerError, body
}

// Error writes err as a JSON error response. Unexpected errors are logged
// and their text is not exposed.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status, body := Classify(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("Request failed")
	}
	JSON(w, status, body)
}

// PathID parses the uuid path parameter name.
func PathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.Invalidf("invalid %s %q", name, chi.URLParam(r, name))
	}
	return id, nil
}

// ParseQuery reads list parameters: q, status, customer_id, item_id, open,
// sort, desc, page and per_page.
func ParseQuery(r *http.Request) (store.Query, error) {
	v := r.URL.Query()
	q := store.Query{
		Search: v.Get("q"),
		Status: v.Get("status"),
		Sort:   v.Get("sort"),
	}

	var err error
	if q.CustomerID, err = optionalID(v.Get("customer_id"), "customer_id"); err != nil {
		return q, err
	}
	if q.ItemID, err = optionalID(v.Get("item_id"), "item_id"); err != nil {
		return q, err
	}
	if q.OpenOnly, err = optionalBool(v.Get("open"), "open"); err != nil {
		return q, err
	}
	if q.Desc, err = optionalBool(v.Get("desc"), "desc"); err != nil {
		return q, err
	}
	if q.Page, err = optionalInt(v.Get("page"), "page"); err != nil {
		return q, err
	}
	if q.PerPage, err = optionalInt(v.Get("per_page"), "per_page"); err != nil {
		return q, err
	}
	return q.Normalize(), nil
}

func optionalID(s, name string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, domain.Invalidf("invalid %s %q", name, s)
	}
	return id, nil
}

func optionalBool(s, name string) (bool, error) {
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, domain.Invalidf("invalid %s %q", name, s)
	}
	return b, nil
}

func optionalInt(s, name string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, domain.Invalidf("invalid %s %q", name, s)
	}
	return n, nil
}

// Healthz answers liveness probes.
func Healthz(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NotFound answers unknown routes in the error shape.
func NotFound(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusNotFound, ErrorBody{Error: "not_found", Message: fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path)})
}
