package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
)

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.carts.View(r.Context(), ownerID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type addItemRequest struct {
	VariantID string `json:"productVariantId"`
	// UnitPrice is a decimal amount in the store's base currency, e.g. "10.00".
	UnitPrice string `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	price, err := money.Parse(req.UnitPrice, h.carts.Currency())
	if err != nil {
		h.fail(w, r, apperr.Validation("unitPrice: %v", err))
		return
	}

	c, err := h.carts.AddItem(r.Context(), ownerID(r), req.VariantID, price, req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Quantity == nil {
		h.fail(w, r, apperr.Validation("quantity is required"))
		return
	}

	c, err := h.carts.UpdateQuantity(r.Context(), ownerID(r), chi.URLParam(r, "lineId"), *req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), ownerID(r), chi.URLParam(r, "lineId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
