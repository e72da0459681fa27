// internal/circulation/handler.go
package circulation

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lendnexus/internal/domain"
	"lendnexus/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the rental routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/rentals", h.HandleList)
	r.Post("/rentals", h.HandleCreate)
	r.Get("/rentals/{id}", h.HandleGet)
	r.Post("/rentals/{id}/extend", h.HandleExtend)
	r.Post("/rentals/{id}/returns", h.HandleReturn)
	r.Post("/rentals/{id}/deposit", h.HandleDeposit)
	r.Get("/rentals/{id}/history", h.HandleHistory)
	r.Post("/reservations/{id}/convert", h.HandleConvert)
	r.Get("/dashboard/overdue", h.HandleDashboard)
}

// parseDate accepts 2006-01-02 or RFC 3339.
func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, domain.Invalidf("invalid %s %q", field, s)
	}
	return t, nil
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID uuid.UUID       `json:"customer_id"`
		Items      []Line          `json:"items"`
		Deposit    decimal.Decimal `json:"deposit"`
		RentedOn   string          `json:"rented_on"`
		ExpectedOn string          `json:"expected_on"`
		Employee   string          `json:"employee"`
		Remark     string          `json:"remark"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	rentedOn, err := parseDate("rented_on", req.RentedOn)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	expectedOn, err := parseDate("expected_on", req.ExpectedOn)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	rental, err := h.service.CreateRental(r.Context(), CreateRentalRequest{
		CustomerID: req.CustomerID,
		Items:      req.Items,
		Deposit:    req.Deposit,
		RentedOn:   rentedOn,
		ExpectedOn: expectedOn,
		Employee:   req.Employee,
		Remark:     req.Remark,
	})
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.respondView(w, r, http.StatusCreated, rental.ID)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q, err := httpx.ParseQuery(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	page, err := h.service.ListRentals(r.Context(), q)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.respondView(w, r, http.StatusOK, id)
}

func (h *Handler) HandleExtend(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req struct {
		ExpectedOn string `json:"expected_on"`
		Employee   string `json:"employee"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	expectedOn, err := parseDate("expected_on", req.ExpectedOn)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	if _, err := h.service.ExtendRental(r.Context(), id, expectedOn, req.Employee); err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.respondView(w, r, http.StatusOK, id)
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req ReturnRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	if _, err := h.service.RecordReturn(r.Context(), id, req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.respondView(w, r, http.StatusOK, id)
}

func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req struct {
		Amount   decimal.Decimal `json:"amount"`
		Employee string          `json:"employee"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	if _, err := h.service.ReturnDeposit(r.Context(), id, req.Amount, req.Employee); err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.respondView(w, r, http.StatusOK, id)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	changes, err := h.service.History(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, changes)
}

func (h *Handler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req struct {
		Deposit    decimal.Decimal `json:"deposit"`
		RentedOn   string          `json:"rented_on"`
		ExpectedOn string          `json:"expected_on"`
		Employee   string          `json:"employee"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	rentedOn, err := parseDate("rented_on", req.RentedOn)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	expectedOn, err := parseDate("expected_on", req.ExpectedOn)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	rental, err := h.service.ConvertReservation(r.Context(), ConvertRequest{
		ReservationID: id,
		Deposit:       req.Deposit,
		RentedOn:      rentedOn,
		ExpectedOn:    expectedOn,
		Employee:      req.Employee,
	})
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.respondView(w, r, http.StatusCreated, rental.ID)
}

func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

// respondView answers with the derived view of the rental after a write.
func (h *Handler) respondView(w http.ResponseWriter, r *http.Request, status int, id uuid.UUID) {
	view, err := h.service.GetRental(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, status, view)
}
