package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/idempotency"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/order"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

type checkoutRequest struct {
	Shipping checkout.Selection `json:"shipping"`
	Address  order.Address      `json:"address"`
	Currency string             `json:"currency,omitempty"`
}

// Checkout turns the caller's cart into a pending order. With an
// Idempotency-Key the first successful response is stored and replayed for
// every retry carrying the same key.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var body checkoutRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	owner := ownerID(r)
	req := checkout.Request{
		OwnerID:  owner,
		Shipping: body.Shipping,
		Address:  body.Address,
		Currency: body.Currency,
	}

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if key == "" || h.idem == nil {
		o, err := h.checkout.Assemble(r.Context(), req)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, o)
		return
	}

	scope := "checkout:" + owner
	stored, err := h.idem.Reserve(r.Context(), scope, key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if stored != nil {
		w.Header().Set(headerReplayed, "true")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
		return
	}

	o, err := h.checkout.Assemble(r.Context(), req)
	if err != nil {
		if rerr := h.idem.Release(r.Context(), scope, key); rerr != nil {
			h.logger.Printf("release idempotency key %s: %v", key, rerr)
		}
		h.fail(w, r, err)
		return
	}

	payload, err := json.Marshal(o)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.idem.Complete(r.Context(), scope, key, idempotency.Response{Status: http.StatusCreated, Body: payload}); err != nil {
		h.logger.Printf("store idempotent response for order %s: %v", o.ID, err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(payload)
}
