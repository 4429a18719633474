package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openkart/checkout/internal/repository"
)

// GetOrder returns one of the caller's orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if o.UserID != userID(r.Context()) {
		// Do not reveal that the order exists.
		writeDomainError(w, repository.ErrOrderNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toOrderWire(o))
}

// ListMyOrders returns a page of the caller's orders, newest first.
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	orders, err := h.orders.ListByUser(r.Context(), userID(r.Context()), page, 20)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]orderWire, len(orders))
	for i := range orders {
		out[i] = toOrderWire(&orders[i])
	}
	writeJSON(w, http.StatusOK, out)
}
