package httpapi

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/auth"
	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/metrics"
)

type RouterConfig struct {
	Verifier auth.Verifier
	Metrics  *metrics.Metrics
	Logger   *log.Logger
}

func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: cfg.Logger, NoColor: true}))
	r.Use(Recover(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Get("/health", h.Health)

	if h.webhookSecret != "" {
		r.Post("/webhooks/payments", h.PaymentWebhook)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(cfg.Verifier))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/items", h.AddItem)
			r.Patch("/items/{lineId}", h.UpdateItem)
			r.Delete("/items/{lineId}", h.RemoveItem)
		})

		r.Post("/checkout", h.Checkout)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Get("/{orderId}", h.GetOrder)
			r.Post("/{orderId}/payment-intent", h.CreatePaymentIntent)
		})
	})

	return r
}
