package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/payment"
)

const HeaderSignature = "X-Signature"

type paymentWebhook struct {
	OrderID               string `json:"orderId"`
	OwnerID               string `json:"ownerId"`
	ProviderTransactionID string `json:"providerTransactionId"`
	Status                string `json:"status"`
}

// PaymentWebhook accepts gateway status reports signed with
// HMAC-SHA256(body) under the shared webhook secret.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		h.fail(w, r, apperr.Validation("read body: %v", err))
		return
	}
	if !validSignature(h.webhookSecret, body, r.Header.Get(HeaderSignature)) {
		writeError(w, r, apperr.Describe(apperr.ErrUnauthenticated, "invalid webhook signature"))
		return
	}

	var ev paymentWebhook
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ev); err != nil {
		h.fail(w, r, apperr.Validation("invalid request body: %v", err))
		return
	}
	if ev.OrderID == "" {
		h.fail(w, r, apperr.Validation("orderId is required"))
		return
	}

	o, err := h.payments.Reconcile(r.Context(), ev.OrderID, ev.OwnerID, ev.ProviderTransactionID, payment.ParseReported(ev.Status))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"orderId": o.ID,
		"status":  string(o.Status),
	})
}

// Sign returns the hex X-Signature value for body.
func Sign(secret string, body []byte) string {
	return hex.EncodeToString(signature(secret, body))
}

func signature(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

func validSignature(secret string, body []byte, header string) bool {
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(header), "sha256="))
	if err != nil || len(got) == 0 {
		return false
	}
	return hmac.Equal(got, signature(secret, body))
}
