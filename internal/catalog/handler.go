// internal/catalog/handler.go
package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lendnexus/internal/httpx"
	"lendnexus/internal/inventory"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the item routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/items", h.HandleList)
	r.Post("/items", h.HandleAdd)
	r.Get("/items/{id}", h.HandleGet)
	r.Patch("/items/{id}", h.HandleEdit)
	r.Post("/items/{id}/status", h.HandleStatus)
	r.Get("/items/{id}/availability", h.HandleAvailability)
	r.Get("/items/{id}/history", h.HandleHistory)
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	item, err := h.service.AddItem(r.Context(), req)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.respondView(w, r, http.StatusCreated, item.ID)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q, err := httpx.ParseQuery(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	page, err := h.service.ListItems(r.Context(), q)
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
	view, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req EditItemRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	if _, err := h.service.EditItem(r.Context(), id, req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.respondView(w, r, http.StatusOK, id)
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	var req struct {
		Action inventory.Action `json:"action"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	if _, err := h.service.ApplyAction(r.Context(), id, req.Action); err != nil {
		httpx.Error(w, r, err)
		return
	}
	h.respondView(w, r, http.StatusOK, id)
}

func (h *Handler) HandleAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	avail, err := h.service.Availability(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, avail)
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

func (h *Handler) respondView(w http.ResponseWriter, r *http.Request, status int, id uuid.UUID) {
	view, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, status, view)
}
