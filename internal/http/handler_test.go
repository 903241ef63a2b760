package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/auth"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/checkout"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/idempotency"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/metrics"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/money"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/payment"
)

const webhookSecret = "whsec"

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (auth.Principal, error) {
	if token == "good" {
		return auth.Principal{OwnerID: "user-1"}, nil
	}
	return auth.Principal{}, apperr.ErrUnauthenticated
}

type fakeCarts struct {
	viewFunc   func(ctx context.Context, ownerID string) (cart.Snapshot, error)
	addFunc    func(ctx context.Context, ownerID, variantID string, unitPrice money.Money, quantity int) (*cart.Cart, error)
	updateFunc func(ctx context.Context, ownerID, lineID string, quantity int) (*cart.Cart, error)
	removeFunc func(ctx context.Context, ownerID, lineID string) (*cart.Cart, error)
}

func (f *fakeCarts) View(ctx context.Context, ownerID string) (cart.Snapshot, error) {
	if f.viewFunc != nil {
		return f.viewFunc(ctx, ownerID)
	}
	return cart.Snapshot{OwnerID: ownerID, Currency: money.USD, Subtotal: money.Zero(money.USD)}, nil
}

func (f *fakeCarts) AddItem(ctx context.Context, ownerID, variantID string, unitPrice money.Money, quantity int) (*cart.Cart, error) {
	if f.addFunc != nil {
		return f.addFunc(ctx, ownerID, variantID, unitPrice, quantity)
	}
	return &cart.Cart{OwnerID: ownerID}, nil
}

func (f *fakeCarts) UpdateQuantity(ctx context.Context, ownerID, lineID string, quantity int) (*cart.Cart, error) {
	if f.updateFunc != nil {
		return f.updateFunc(ctx, ownerID, lineID, quantity)
	}
	return &cart.Cart{OwnerID: ownerID}, nil
}

func (f *fakeCarts) RemoveItem(ctx context.Context, ownerID, lineID string) (*cart.Cart, error) {
	if f.removeFunc != nil {
		return f.removeFunc(ctx, ownerID, lineID)
	}
	return &cart.Cart{OwnerID: ownerID}, nil
}

func (f *fakeCarts) Currency() money.Currency { return money.USD }

type fakeCheckout struct {
	calls        int
	assembleFunc func(ctx context.Context, req checkout.Request) (*order.Order, error)
}

func (f *fakeCheckout) Assemble(ctx context.Context, req checkout.Request) (*order.Order, error) {
	f.calls++
	if f.assembleFunc != nil {
		return f.assembleFunc(ctx, req)
	}
	return &order.Order{ID: "order-1", OwnerID: req.OwnerID, Status: order.StatusPendingPayment}, nil
}

type fakeOrders struct {
	getFunc  func(ctx context.Context, orderID, ownerID string) (*order.Order, error)
	listFunc func(ctx context.Context, ownerID string) ([]order.Order, error)
}

func (f *fakeOrders) GetForOwner(ctx context.Context, orderID, ownerID string) (*order.Order, error) {
	if f.getFunc != nil {
		return f.getFunc(ctx, orderID, ownerID)
	}
	return nil, apperr.ErrNotFoundOrForbidden
}

func (f *fakeOrders) ListByOwner(ctx context.Context, ownerID string) ([]order.Order, error) {
	if f.listFunc != nil {
		return f.listFunc(ctx, ownerID)
	}
	return nil, nil
}

type fakePayments struct {
	intentFunc    func(ctx context.Context, ownerID, orderID string) (*payment.Payment, error)
	reconcileFunc func(ctx context.Context, orderID, ownerID, providerTxID string, reported payment.Reported) (*order.Order, error)
}

func (f *fakePayments) CreateIntent(ctx context.Context, ownerID, orderID string) (*payment.Payment, error) {
	if f.intentFunc != nil {
		return f.intentFunc(ctx, ownerID, orderID)
	}
	return &payment.Payment{OrderID: orderID, Status: payment.StatusRequiresPayment}, nil
}

func (f *fakePayments) Reconcile(ctx context.Context, orderID, ownerID, providerTxID string, reported payment.Reported) (*order.Order, error) {
	if f.reconcileFunc != nil {
		return f.reconcileFunc(ctx, orderID, ownerID, providerTxID, reported)
	}
	return &order.Order{ID: orderID, Status: order.StatusConfirmed}, nil
}

// memStore is an in-memory idempotency.Store.
type memStore struct {
	entries map[string]*idempotency.Response
}

func (m *memStore) Reserve(_ context.Context, scope, key string) (*idempotency.Response, error) {
	k := scope + "/" + key
	resp, ok := m.entries[k]
	if !ok {
		m.entries[k] = nil
		return nil, nil
	}
	if resp == nil {
		return nil, idempotency.ErrInFlight
	}
	return resp, nil
}

func (m *memStore) Complete(_ context.Context, scope, key string, resp idempotency.Response) error {
	m.entries[scope+"/"+key] = &resp
	return nil
}

func (m *memStore) Release(_ context.Context, scope, key string) error {
	delete(m.entries, scope+"/"+key)
	return nil
}

type fixture struct {
	carts    *fakeCarts
	checkout *fakeCheckout
	orders   *fakeOrders
	payments *fakePayments
	idem     *memStore
	router   http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		carts:    &fakeCarts{},
		checkout: &fakeCheckout{},
		orders:   &fakeOrders{},
		payments: &fakePayments{},
		idem:     &memStore{entries: map[string]*idempotency.Response{}},
	}
	logger := log.New(io.Discard, "", 0)
	h := NewHandler(HandlerDeps{
		Carts:         f.carts,
		Checkout:      f.checkout,
		Orders:        f.orders,
		Payments:      f.payments,
		Idempotency:   f.idem,
		WebhookSecret: webhookSecret,
		Logger:        logger,
	})
	f.router = NewRouter(h, RouterConfig{Verifier: fakeVerifier{}, Metrics: metrics.New(), Logger: logger})
	return f
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer good")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const checkoutBody = `{"shipping":{"method":"standard"},"address":{"name":"Ada","line1":"1 Main St","city":"Springfield","postalCode":"12345","country":"US"}}`

func TestHealth(t *testing.T) {
	f := newFixture()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderCorrelationID))
}

func TestAPIRequiresBearerToken(t *testing.T) {
	f := newFixture()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decodeError(t, rec).Code)

	rec = f.do(http.MethodGet, "/api/cart", "", map[string]string{"Authorization": "Bearer forged"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetCart(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, "/api/cart", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "user-1", snap["ownerId"])
}

func TestAddItem(t *testing.T) {
	f := newFixture()
	var gotPrice money.Money
	f.carts.addFunc = func(_ context.Context, ownerID, variantID string, unitPrice money.Money, quantity int) (*cart.Cart, error) {
		gotPrice = unitPrice
		if quantity > 999 {
			return nil, apperr.Describe(apperr.ErrQuantityLimitExceeded, "quantity %d exceeds 999", quantity)
		}
		return &cart.Cart{OwnerID: ownerID}, nil
	}

	rec := f.do(http.MethodPost, "/api/cart/items", `{"productVariantId":"sku-a","unitPrice":"10.00","quantity":2}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1000), gotPrice.MinorUnits())

	rec = f.do(http.MethodPost, "/api/cart/items", `{"productVariantId":"sku-a","unitPrice":"10.00","quantity":1000}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "quantity_limit_exceeded", decodeError(t, rec).Code)

	rec = f.do(http.MethodPost, "/api/cart/items", `{"productVariantId":"sku-a","unitPrice":"ten","quantity":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/cart/items", `{"sku":"x"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAndRemoveItem(t *testing.T) {
	f := newFixture()
	var gotLine string
	var gotQty int
	f.carts.updateFunc = func(_ context.Context, _, lineID string, quantity int) (*cart.Cart, error) {
		gotLine, gotQty = lineID, quantity
		return &cart.Cart{}, nil
	}
	f.carts.removeFunc = func(_ context.Context, _, lineID string) (*cart.Cart, error) {
		return nil, apperr.Describe(apperr.ErrLineNotFound, "line %s is not in the cart", lineID)
	}

	rec := f.do(http.MethodPatch, "/api/cart/items/line-7", `{"quantity":3}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "line-7", gotLine)
	assert.Equal(t, 3, gotQty)

	rec = f.do(http.MethodPatch, "/api/cart/items/line-7", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodDelete, "/api/cart/items/line-8", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "line_not_found", decodeError(t, rec).Code)
}

func TestCheckout(t *testing.T) {
	f := newFixture()
	var got checkout.Request
	f.checkout.assembleFunc = func(_ context.Context, req checkout.Request) (*order.Order, error) {
		got = req
		return &order.Order{ID: "order-1", OwnerID: req.OwnerID, Status: order.StatusPendingPayment}, nil
	}

	rec := f.do(http.MethodPost, "/api/checkout", checkoutBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user-1", got.OwnerID)
	assert.Equal(t, "standard", got.Shipping.Method)
	assert.Equal(t, "Springfield", got.Address.City)
}

func TestCheckoutIdempotencyKeyReplays(t *testing.T) {
	f := newFixture()
	headers := map[string]string{HeaderIdempotencyKey: "abc"}

	first := f.do(http.MethodPost, "/api/checkout", checkoutBody, headers)
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.do(http.MethodPost, "/api/checkout", checkoutBody, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(headerReplayed))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, f.checkout.calls)
}

func TestCheckoutFailureReleasesKey(t *testing.T) {
	f := newFixture()
	f.checkout.assembleFunc = func(context.Context, checkout.Request) (*order.Order, error) {
		return nil, apperr.ErrEmptyCart
	}
	headers := map[string]string{HeaderIdempotencyKey: "abc"}

	rec := f.do(http.MethodPost, "/api/checkout", checkoutBody, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty_cart", decodeError(t, rec).Code)
	assert.Empty(t, f.idem.entries)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperr.Validation("bad"), http.StatusBadRequest, "validation"},
		{"foreign order", apperr.ErrNotFoundOrForbidden, http.StatusNotFound, "not_found"},
		{"conflict", apperr.Conflict("settled"), http.StatusConflict, "conflict"},
		{"retryable", apperr.Retryable("busy", errors.New("40001")), http.StatusServiceUnavailable, "retryable"},
		{"timeout", context.DeadlineExceeded, http.StatusServiceUnavailable, "retryable"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.orders.getFunc = func(context.Context, string, string) (*order.Order, error) { return nil, tt.err }

			rec := f.do(http.MethodGet, "/api/orders/order-1", "", nil)
			assert.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.code, body.Code)
			if tt.status == http.StatusServiceUnavailable {
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			}
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", body.Error)
			}
		})
	}
}

func TestOrders(t *testing.T) {
	f := newFixture()
	f.orders.getFunc = func(_ context.Context, orderID, ownerID string) (*order.Order, error) {
		return &order.Order{ID: orderID, OwnerID: ownerID, Status: order.StatusPendingPayment}, nil
	}

	rec := f.do(http.MethodGet, "/api/orders/order-9", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var o map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &o))
	assert.Equal(t, "order-9", o["orderId"])
	assert.Equal(t, "user-1", o["ownerId"])

	rec = f.do(http.MethodGet, "/api/orders", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCreatePaymentIntent(t *testing.T) {
	f := newFixture()
	var gotOwner, gotOrder string
	f.payments.intentFunc = func(_ context.Context, ownerID, orderID string) (*payment.Payment, error) {
		gotOwner, gotOrder = ownerID, orderID
		return &payment.Payment{OrderID: orderID, ClientSecret: "cs"}, nil
	}

	rec := f.do(http.MethodPost, "/api/orders/order-1/payment-intent", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", gotOwner)
	assert.Equal(t, "order-1", gotOrder)
}

func TestPaymentWebhook(t *testing.T) {
	body := `{"orderId":"order-1","ownerId":"user-1","providerTransactionId":"txn-1","status":"completed"}`

	t.Run("valid signature", func(t *testing.T) {
		f := newFixture()
		var got payment.Reported
		f.payments.reconcileFunc = func(_ context.Context, orderID, _, _ string, reported payment.Reported) (*order.Order, error) {
			got = reported
			return &order.Order{ID: orderID, Status: order.StatusConfirmed}, nil
		}

		rec := f.do(http.MethodPost, "/webhooks/payments", body, map[string]string{
			"Authorization": "",
			HeaderSignature: "sha256=" + Sign(webhookSecret, []byte(body)),
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, payment.ReportedCompleted, got)
		assert.JSONEq(t, `{"orderId":"order-1","status":"confirmed"}`, rec.Body.String())
	})

	t.Run("bad signature", func(t *testing.T) {
		f := newFixture()
		rec := f.do(http.MethodPost, "/webhooks/payments", body, map[string]string{HeaderSignature: Sign("other", []byte(body))})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("contradicting report", func(t *testing.T) {
		f := newFixture()
		f.payments.reconcileFunc = func(context.Context, string, string, string, payment.Reported) (*order.Order, error) {
			return nil, apperr.Conflict("order order-1 is already confirmed")
		}
		rec := f.do(http.MethodPost, "/webhooks/payments", body, map[string]string{HeaderSignature: Sign(webhookSecret, []byte(body))})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("exhausted retries ask for redelivery", func(t *testing.T) {
		f := newFixture()
		f.payments.reconcileFunc = func(context.Context, string, string, string, payment.Reported) (*order.Order, error) {
			return nil, apperr.Retryable("tx payment.reconcile: retries exhausted", errors.New("connection reset by peer"))
		}
		rec := f.do(http.MethodPost, "/webhooks/payments", body, map[string]string{HeaderSignature: Sign(webhookSecret, []byte(body))})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	})

	t.Run("reserved status is rejected", func(t *testing.T) {
		f := newFixture()
		f.payments.reconcileFunc = func(context.Context, string, string, string, payment.Reported) (*order.Order, error) {
			return nil, apperr.Validation(`status "succeeded" cannot be reported`)
		}
		reserved := `{"orderId":"order-1","ownerId":"user-1","providerTransactionId":"txn-1","status":"succeeded"}`
		rec := f.do(http.MethodPost, "/webhooks/payments", reserved, map[string]string{HeaderSignature: Sign(webhookSecret, []byte(reserved))})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
