// Package metrics exposes Prometheus counters for the engine. Metrics
// implements the observer interfaces of the checkout, payment, txn and
// inventory packages.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "checkout_engine"

type Metrics struct {
	Requests   *prometheus.CounterVec
	LatencyMS  *prometheus.HistogramVec
	Checkouts  *prometheus.CounterVec
	Reconciles *prometheus.CounterVec
	TxRetries  *prometheus.CounterVec
	Outbox     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the engine collectors on a fresh registry, so several
// instances can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by result code.",
		}, []string{"result"}),
		Reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciles_total",
			Help:      "Payment reports by reconcile outcome.",
		}, []string{"outcome"}),
		TxRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_retries_total",
			Help:      "Transactions retried after a serialization failure.",
		}, []string{"tx"}),
		Outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Inventory outbox delivery attempts.",
		}, []string{"action", "result"}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.Requests, m.LatencyMS, m.Checkouts, m.Reconciles, m.TxRetries, m.Outbox,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) CheckoutFinished(result string) {
	m.Checkouts.WithLabelValues(result).Inc()
}

func (m *Metrics) ReconcileFinished(outcome string) {
	m.Reconciles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TxRetried(name string) {
	m.TxRetries.WithLabelValues(name).Inc()
}

func (m *Metrics) OutboxPublished(action string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.Outbox.WithLabelValues(action, result).Inc()
}

// Middleware records one request count and latency sample per request,
// labelled by chi route pattern so path parameters don't explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}
