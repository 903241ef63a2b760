package httpapi

import (
	"context"
	"log"
	"net/http"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/idempotency"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/payment"
)

type CartService interface {
	View(ctx context.Context, ownerID string) (cart.Snapshot, error)
	AddItem(ctx context.Context, ownerID, variantID string, unitPrice money.Money, quantity int) (*cart.Cart, error)
	UpdateQuantity(ctx context.Context, ownerID, lineID string, quantity int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, ownerID, lineID string) (*cart.Cart, error)
	Currency() money.Currency
}

type CheckoutService interface {
	Assemble(ctx context.Context, req checkout.Request) (*order.Order, error)
}

type OrderReader interface {
	GetForOwner(ctx context.Context, orderID, ownerID string) (*order.Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]order.Order, error)
}

type PaymentService interface {
	CreateIntent(ctx context.Context, ownerID, orderID string) (*payment.Payment, error)
	Reconcile(ctx context.Context, orderID, ownerID, providerTxID string, reported payment.Reported) (*order.Order, error)
}

type Handler struct {
	carts         CartService
	checkout      CheckoutService
	orders        OrderReader
	payments      PaymentService
	idem          idempotency.Store
	webhookSecret string
	logger        *log.Logger
}

type HandlerDeps struct {
	Carts    CartService
	Checkout CheckoutService
	Orders   OrderReader
	Payments PaymentService
	// Idempotency is optional; without it Idempotency-Key is ignored.
	Idempotency   idempotency.Store
	WebhookSecret string
	Logger        *log.Logger
}

func NewHandler(d HandlerDeps) *Handler {
	return &Handler{
		carts:         d.Carts,
		checkout:      d.Checkout,
		orders:        d.Orders,
		payments:      d.Payments,
		idem:          d.Idempotency,
		webhookSecret: d.WebhookSecret,
		logger:        d.Logger,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "checkout-engine",
	})
}

// fail logs server-side failures before answering.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		h.logger.Printf("%s %s cid=%s: %v", r.Method, r.URL.Path, GetCorrelationID(r.Context()), err)
	}
	writeError(w, r, err)
}
